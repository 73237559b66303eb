package wire

import (
	"sort"

	"github.com/seamd/seamd/internal/logger"
)

// Dict is a string-keyed capability or attribute map with forgiving typed
// getters: a missing or badly-typed value logs a warning and yields the
// caller's default instead of failing the whole packet.
type Dict map[string]any

// AsDict coerces the map shapes the codec and internal callers produce.
func AsDict(v any) (Dict, bool) {
	switch m := v.(type) {
	case Dict:
		return m, true
	case map[string]any:
		return Dict(m), true
	case map[string]string:
		out := make(Dict, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

func (d Dict) Raw(key string) any {
	return d[key]
}

func (d Dict) Str(key, def string) string {
	v, ok := d[key]
	if !ok {
		return def
	}
	s, ok := asStr(v)
	if !ok {
		logger.Warnf("Warning: invalid string value for %q: %v (%T)", key, v, v)
		return def
	}
	return s
}

func (d Dict) Int(key string, def int) int {
	v, ok := d[key]
	if !ok {
		return def
	}
	n, ok := asInt(v)
	if !ok {
		logger.Warnf("Warning: invalid integer value for %q: %v (%T)", key, v, v)
		return def
	}
	return int(n)
}

func (d Dict) Bool(key string, def bool) bool {
	v, ok := d[key]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if n, ok := asInt(v); ok {
		return n != 0
	}
	logger.Warnf("Warning: invalid boolean value for %q: %v (%T)", key, v, v)
	return def
}

// IntPair decodes a two-integer sequence such as a size or a rate pair.
func (d Dict) IntPair(key string) (int, int, bool) {
	ints := d.Ints(key)
	if len(ints) < 2 {
		return 0, 0, false
	}
	return ints[0], ints[1], true
}

func (d Dict) Strs(key string) []string {
	v, ok := d[key]
	if !ok {
		return nil
	}
	switch seq := v.(type) {
	case []string:
		return seq
	case []any:
		out := make([]string, 0, len(seq))
		for _, e := range seq {
			if s, ok := asStr(e); ok {
				out = append(out, s)
			}
		}
		return out
	}
	logger.Warnf("Warning: invalid string sequence for %q: %v (%T)", key, v, v)
	return nil
}

func (d Dict) Ints(key string) []int {
	v, ok := d[key]
	if !ok {
		return nil
	}
	switch seq := v.(type) {
	case []int:
		return seq
	case []any:
		out := make([]int, 0, len(seq))
		for _, e := range seq {
			n, ok := asInt(e)
			if !ok {
				logger.Warnf("Warning: invalid integer sequence for %q: %v (%T)", key, v, v)
				return nil
			}
			out = append(out, int(n))
		}
		return out
	}
	logger.Warnf("Warning: invalid integer sequence for %q: %v (%T)", key, v, v)
	return nil
}

// SortedKeys returns the keys in lexical order, for deterministic
// iteration.
func (d Dict) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sub returns a nested dictionary, nil when absent.
func (d Dict) Sub(key string) Dict {
	v, ok := d[key]
	if !ok {
		return nil
	}
	sub, ok := AsDict(v)
	if !ok {
		logger.Warnf("Warning: invalid dictionary value for %q: %v (%T)", key, v, v)
		return nil
	}
	return sub
}
