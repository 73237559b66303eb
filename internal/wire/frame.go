package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single packet frame; anything larger kills the
// connection rather than the server.
const MaxFrameSize = 8 * 1024 * 1024

// WriteFrame writes a packet with a length prefix
func WriteFrame(w io.Writer, p *Packet) error {
	data, err := json.Marshal(p.Slice())
	if err != nil {
		return fmt.Errorf("failed to marshal %s packet: %w", p.Type(), err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%s packet exceeds maximum frame size: %d bytes", p.Type(), len(data))
	}

	// Write length prefix (4 bytes, big-endian)
	length := len(data)
	lengthBuf := []byte{
		byte(length >> 24),
		byte(length >> 16),
		byte(length >> 8),
		byte(length),
	}

	if _, err := w.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Force flush if the writer supports it
	if flusher, ok := w.(interface{ Flush() error }); ok {
		_ = flusher.Flush() // Best effort flush, already wrote data
	}

	return nil
}

// ReadFrame reads one length-prefixed packet
func ReadFrame(r io.Reader) (*Packet, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d", length, MaxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}

	var fields []any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return FromSlice(fields)
}

// Marshal encodes a packet without framing, for transports that carry
// their own message boundaries.
func Marshal(p *Packet) ([]byte, error) {
	data, err := json.Marshal(p.Slice())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s packet: %w", p.Type(), err)
	}
	return data, nil
}

// Unmarshal decodes a packet from a single message payload.
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("message size %d exceeds maximum %d", len(data), MaxFrameSize)
	}
	var fields []any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet: %w", err)
	}
	return FromSlice(fields)
}
