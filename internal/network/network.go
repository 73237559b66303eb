// Package network accepts client connections over SSH and WebSocket
// and exchanges framed packets with them. Transports never touch
// server state: every event goes through the Handler, whose
// implementation reposts it onto the scheduler loop.
package network

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/seamd/seamd/internal/session"
	"github.com/seamd/seamd/internal/wire"
)

// Handler receives connection lifecycle events. Calls arrive on
// transport goroutines, one connection at a time per connection.
type Handler interface {
	HandleConnect(conn session.Conn)
	HandlePacket(conn session.Conn, p *wire.Packet)
	HandleDisconnect(conn session.Conn, err error)
}

// Transport is one way for clients to reach the server.
type Transport interface {
	// Start begins accepting connections. It does not block; the
	// transport shuts down when ctx is cancelled or Stop is called.
	Start(ctx context.Context) error
	Stop()
	// Addr describes the listening endpoint for logs.
	Addr() string
}

// pump reads framed packets from r and reports them until the
// connection dies. The disconnect error is nil for an orderly close.
func pump(h Handler, conn session.Conn, r io.Reader) {
	h.HandleConnect(conn)
	for {
		p, err := wire.ReadFrame(r)
		if err != nil {
			h.HandleDisconnect(conn, closeReason(err))
			return
		}
		h.HandlePacket(conn, p)
	}
}

// closeReason maps the read errors of an orderly teardown to nil so
// they are not reported as failures.
func closeReason(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
