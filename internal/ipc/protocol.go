// Package ipc is the local control channel: a unix socket the command
// line tools use to inspect and stop a running server. Messages are
// JSON objects with the same 4-byte length prefix as the client
// protocol.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Control commands.
const (
	CommandInfo     = "info"
	CommandSessions = "sessions"
	CommandStop     = "stop"
)

// maxMessageSize bounds a control message; the info dict is the
// largest thing that travels here.
const maxMessageSize = 4 * 1024 * 1024

// Request names one control operation.
type Request struct {
	Command string `json:"command"`
}

// Response carries the result of one control operation. Exactly one of
// the payload fields is set, matching the command.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Info     map[string]any `json:"info,omitempty"`
	Sessions []SessionEntry `json:"sessions,omitempty"`
}

// SessionEntry is one connected client as reported by the sessions
// command.
type SessionEntry struct {
	UUID             string `json:"uuid"`
	Address          string `json:"address"`
	Transport        string `json:"transport"`
	UIClient         bool   `json:"ui_client"`
	Share            bool   `json:"share"`
	Username         string `json:"username,omitempty"`
	Hostname         string `json:"hostname,omitempty"`
	LatencyMS        int64  `json:"latency_ms"`
	UserEvents       int64  `json:"user_events"`
	ConnectedSeconds int64  `json:"connected_seconds"`
}

// writeMessage writes v as one length-prefixed JSON message.
func writeMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("control message too large: %d bytes", len(data))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed JSON message into v.
func readMessage(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return err
	}
	if length == 0 || length > maxMessageSize {
		return fmt.Errorf("invalid control message size %d", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("failed to read message data: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal control message: %w", err)
	}
	return nil
}
