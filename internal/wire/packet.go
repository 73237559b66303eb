// Package wire implements the positional packet encoding shared by all
// transports. A packet is a heterogeneous array whose first element is the
// packet-type string; optional fields extend the tail, so consumers gate on
// packet length rather than expecting a fixed shape.
package wire

import (
	"encoding/json"
	"fmt"
	"math"
)

// Window ids are transmitted as integers; -1 means "no window".
const maxWid = 1 << 48

// Packet wraps a decoded packet array and provides typed field access.
// Accessors return an error for missing fields or values outside the
// declared range; handlers treat that as a malformed packet.
type Packet struct {
	data []any
}

// New builds an outbound packet.
func New(packetType string, fields ...any) *Packet {
	data := make([]any, 0, len(fields)+1)
	data = append(data, packetType)
	data = append(data, fields...)
	return &Packet{data: data}
}

// FromSlice validates a decoded array as a packet.
func FromSlice(data []any) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet")
	}
	if _, ok := data[0].(string); !ok {
		return nil, fmt.Errorf("packet type is not a string: %T", data[0])
	}
	return &Packet{data: data}, nil
}

// Type returns the packet-type string.
func (p *Packet) Type() string {
	s, _ := p.data[0].(string)
	return s
}

// Len returns the number of elements including the type string.
func (p *Packet) Len() int {
	return len(p.data)
}

// Slice exposes the raw array, for encoding.
func (p *Packet) Slice() []any {
	return p.data
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s(%d fields)", p.Type(), len(p.data)-1)
}

func (p *Packet) field(i int) (any, error) {
	if i < 0 || i >= len(p.data) {
		return nil, fmt.Errorf("%s packet has no field at index %d", p.Type(), i)
	}
	return p.data[i], nil
}

// asInt coerces the numeric representations the codec can produce.
// JSON decodes every number as float64.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return asInt(float64(n))
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func asStr(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// AsInt coerces a raw decoded value to an integer, for callers walking
// nested sequences that packet accessors cannot reach.
func AsInt(v any) (int64, bool) {
	return asInt(v)
}

// AsStr coerces a raw decoded value to a string.
func AsStr(v any) (string, bool) {
	return asStr(v)
}

// AsList returns a raw decoded value as a sequence.
func AsList(v any) ([]any, bool) {
	seq, ok := v.([]any)
	return seq, ok
}

// Int returns the field as an integer without range restrictions.
func (p *Packet) Int(i int) (int64, error) {
	v, err := p.field(i)
	if err != nil {
		return 0, err
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("invalid integer value %v at index %d of %s packet", v, i, p.Type())
	}
	return n, nil
}

// Wid returns a window id; -1 is allowed and means "no window".
func (p *Packet) Wid(i int) (int, error) {
	n, err := p.Int(i)
	if err != nil {
		return 0, err
	}
	if n < -1 || n >= maxWid {
		return 0, fmt.Errorf("invalid window id value %d", n)
	}
	return int(n), nil
}

// Bool accepts a boolean or the integers 0 and 1.
func (p *Packet) Bool(i int) (bool, error) {
	v, err := p.field(i)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	if n, ok := asInt(v); ok && (n == 0 || n == 1) {
		return n == 1, nil
	}
	return false, fmt.Errorf("invalid boolean value %v at index %d of %s packet", v, i, p.Type())
}

func (p *Packet) ranged(i int, min, max int64, kind string) (int64, error) {
	n, err := p.Int(i)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, fmt.Errorf("invalid %s value %d at index %d of %s packet", kind, n, i, p.Type())
	}
	return n, nil
}

func (p *Packet) U8(i int) (uint8, error) {
	n, err := p.ranged(i, 0, math.MaxUint8, "u8")
	return uint8(n), err
}

func (p *Packet) U16(i int) (uint16, error) {
	n, err := p.ranged(i, 0, math.MaxUint16, "u16")
	return uint16(n), err
}

func (p *Packet) U32(i int) (uint32, error) {
	n, err := p.ranged(i, 0, math.MaxUint32, "u32")
	return uint32(n), err
}

func (p *Packet) I32(i int) (int32, error) {
	n, err := p.ranged(i, math.MinInt32, math.MaxInt32, "i32")
	return int32(n), err
}

// Str decodes a string field; byte strings are accepted and converted.
func (p *Packet) Str(i int) (string, error) {
	v, err := p.field(i)
	if err != nil {
		return "", err
	}
	s, ok := asStr(v)
	if !ok {
		return "", fmt.Errorf("expected a string at index %d of %s packet but got %T", i, p.Type(), v)
	}
	return s, nil
}

// Strs decodes a sequence of strings.
func (p *Packet) Strs(i int) ([]string, error) {
	v, err := p.field(i)
	if err != nil {
		return nil, err
	}
	switch seq := v.(type) {
	case []string:
		return seq, nil
	case []any:
		out := make([]string, 0, len(seq))
		for j, e := range seq {
			s, ok := asStr(e)
			if !ok {
				return nil, fmt.Errorf("expected a string at index %d[%d] of %s packet but got %T", i, j, p.Type(), e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a sequence at index %d of %s packet but got %T", i, p.Type(), v)
}

// Ints decodes a sequence of integers.
func (p *Packet) Ints(i int) ([]int, error) {
	v, err := p.field(i)
	if err != nil {
		return nil, err
	}
	switch seq := v.(type) {
	case []int:
		return seq, nil
	case []any:
		out := make([]int, 0, len(seq))
		for j, e := range seq {
			n, ok := asInt(e)
			if !ok {
				return nil, fmt.Errorf("expected an integer at index %d[%d] of %s packet but got %T", i, j, p.Type(), e)
			}
			out = append(out, int(n))
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a sequence at index %d of %s packet but got %T", i, p.Type(), v)
}

// Any returns a raw field, nil when absent.
func (p *Packet) Any(i int) any {
	if i < 0 || i >= len(p.data) {
		return nil
	}
	return p.data[i]
}

// DictAt decodes a dictionary field.
func (p *Packet) DictAt(i int) (Dict, error) {
	v, err := p.field(i)
	if err != nil {
		return nil, err
	}
	d, ok := AsDict(v)
	if !ok {
		return nil, fmt.Errorf("expected a dictionary at index %d of %s packet but got %T", i, p.Type(), v)
	}
	return d, nil
}
