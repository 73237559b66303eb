package cursor

import (
	"time"

	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/wire"
)

// batchDelay coalesces bursts of cursor changes into a single send.
const batchDelay = 25 * time.Millisecond

// Sender pushes cursor packets to one client connection. Updates are
// held back briefly so that rapid cursor changes only produce the most
// recent image on the wire. A nil pending image stands for the client's
// own default cursor and is sent as an empty packet.
type Sender struct {
	clock   scheduler.Clock
	write   func(*wire.Packet)
	enabled bool
	pending *Image
	timer   scheduler.Timer
}

func NewSender(clock scheduler.Clock, write func(*wire.Packet)) *Sender {
	return &Sender{
		clock:   clock,
		write:   write,
		enabled: true,
	}
}

// SetSendCursors toggles cursor forwarding for this connection.
func (s *Sender) SetSendCursors(enabled bool) {
	s.enabled = enabled
	if !enabled {
		s.CancelTimer()
		s.pending = nil
	}
}

func (s *Sender) SendCursors() bool {
	return s.enabled
}

// SendCursor queues an image for delivery. Pass nil when the pointer is
// showing the default cursor.
func (s *Sender) SendCursor(img *Image) {
	if !s.enabled {
		return
	}
	s.pending = img
	if s.timer != nil {
		return
	}
	s.timer = s.clock.After(batchDelay, s.flush)
}

// SendEmptyCursor immediately tells the client to show its default
// cursor, dropping anything still queued.
func (s *Sender) SendEmptyCursor() {
	s.CancelTimer()
	s.pending = nil
	s.write(wire.New("cursor", ""))
}

// CancelTimer drops any scheduled delivery.
func (s *Sender) CancelTimer() {
	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
}

func (s *Sender) flush() {
	s.timer = nil
	img := s.pending
	s.pending = nil
	if img == nil {
		s.write(wire.New("cursor", ""))
		return
	}
	s.write(wire.New("cursor", img.Slice()...))
}
