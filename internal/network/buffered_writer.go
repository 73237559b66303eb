package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/seamd/seamd/internal/wire"
)

// maxSendBuffer bounds the bytes queued for one connection. A client
// that stops reading gets its connection killed instead of growing the
// queue without limit.
const maxSendBuffer = 32 * 1024 * 1024

// closeFlushTimeout is how long Close waits for the final drain; a
// wedged socket must not stall the shutdown sequence.
const closeFlushTimeout = 500 * time.Millisecond

// frameBuffer decouples the packet loop from slow sockets: WritePacket
// appends a complete frame to an in-memory queue and returns
// immediately while a flusher goroutine drains the queue to the
// connection. The first write error sticks and is returned to every
// later call so the caller tears the connection down.
type frameBuffer struct {
	mu     sync.Mutex
	w      interface{ Write([]byte) (int, error) }
	buf    []byte
	err    error
	closed bool

	kick   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

func newFrameBuffer(w interface{ Write([]byte) (int, error) }) *frameBuffer {
	fb := &frameBuffer{
		w:      w,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go fb.flushLoop()
	return fb
}

// WritePacket queues one framed packet. The length prefix and body are
// appended in a single critical section so frames never interleave.
func (fb *frameBuffer) WritePacket(p *wire.Packet) error {
	data, err := wire.Marshal(p)
	if err != nil {
		return err
	}
	if len(data) > wire.MaxFrameSize {
		return fmt.Errorf("%s packet exceeds maximum frame size: %d bytes", p.Type(), len(data))
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.err != nil {
		return fb.err
	}
	if fb.closed {
		return net.ErrClosed
	}
	if len(fb.buf)+len(data)+4 > maxSendBuffer {
		fb.err = fmt.Errorf("send buffer overflow: %d bytes queued", len(fb.buf))
		return fb.err
	}
	n := len(data)
	fb.buf = append(fb.buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	fb.buf = append(fb.buf, data...)
	select {
	case fb.kick <- struct{}{}:
	default:
	}
	return nil
}

func (fb *frameBuffer) flushLoop() {
	defer close(fb.exited)
	for {
		select {
		case <-fb.done:
			fb.flush()
			return
		case <-fb.kick:
			fb.flush()
		}
	}
}

// flush writes the queued bytes outside the lock; only the flusher
// goroutine touches the socket so writes stay ordered.
func (fb *frameBuffer) flush() {
	fb.mu.Lock()
	data := fb.buf
	fb.buf = nil
	err := fb.err
	fb.mu.Unlock()
	if err != nil || len(data) == 0 {
		return
	}
	if _, werr := fb.w.Write(data); werr != nil {
		fb.mu.Lock()
		if fb.err == nil {
			fb.err = werr
		}
		fb.mu.Unlock()
	}
}

// Close stops the flusher after a final drain of whatever is queued,
// waiting at most closeFlushTimeout for a stuck socket. Safe to call
// more than once.
func (fb *frameBuffer) Close() error {
	fb.mu.Lock()
	if fb.closed {
		fb.mu.Unlock()
		return nil
	}
	fb.closed = true
	fb.mu.Unlock()
	close(fb.done)
	select {
	case <-fb.exited:
	case <-time.After(closeFlushTimeout):
	}
	return nil
}
