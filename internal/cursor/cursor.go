// Package cursor forwards the server pointer cursor to connected
// clients. Cursor changes are de-duplicated by serial, compared against
// the default cursor so clients can substitute their own, and can be
// suspended while the pointer is outside the forwarded area.
package cursor

import (
	"errors"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/wire"
)

// sharedCursorSize is used when several clients share the session and
// their preferred sizes cannot all be honoured.
const sharedCursorSize = 24

// Sink is a connected client that accepts cursor pushes.
type Sink interface {
	SendCursor(img *Image)
	SendEmptyCursor()
	SetSendCursors(enabled bool)
}

// Registry lists the connections that currently want cursor updates.
type Registry interface {
	CursorSinks() []Sink
}

// Capture grabs cursor images from the display backend.
type Capture interface {
	SelectChanges(enable bool) error
	CurrentImage() (*Image, error)
	DefaultSize() (w, h int)
	MaxSize() (w, h int)
}

// Forwarder tracks the current and default cursor images and fans
// updates out to every interested client.
type Forwarder struct {
	registry   Registry
	capture    Capture
	enabled    bool
	size       int
	suspended  bool
	defaultImg *Image
	lastImg    *Image
	lastSerial uint64
}

func New(registry Registry, enabled bool) *Forwarder {
	return &Forwarder{
		registry: registry,
		enabled:  enabled,
	}
}

// Setup wires the display backend in and records the default cursor
// image. A backend without cursor support downgrades the feature
// instead of failing.
func (f *Forwarder) Setup(capture Capture) {
	if !f.enabled {
		return
	}
	if capture == nil {
		logger.Error("cursor forwarding support is not available")
		f.enabled = false
		return
	}
	if err := capture.SelectChanges(true); err != nil {
		logger.Errorf("cursor forwarding support is not available: %v", err)
		f.enabled = false
		return
	}
	f.capture = capture
	img, err := capture.CurrentImage()
	if err != nil {
		logger.Debugf("no default cursor image: %v", err)
		return
	}
	f.defaultImg = img
}

func (f *Forwarder) Enabled() bool {
	return f.enabled
}

// AddClient records the cursor size for a new connection. Shared
// sessions fall back to a fixed size since the clients may disagree.
func (f *Forwarder) AddClient(caps wire.Dict, shareCount int) {
	if shareCount > 0 {
		f.size = sharedCursorSize
	} else {
		f.size = caps.Int("cursor.size", 0)
	}
}

// Size returns the cursor size negotiated for the session, 0 when no
// client expressed a preference.
func (f *Forwarder) Size() int {
	return f.size
}

// IsDefault reports whether cd shows the default cursor. Both images
// must be complete and carry the same serial.
func (f *Forwarder) IsDefault(cd *Image) bool {
	return f.defaultImg.complete() && cd.complete() && cd.Serial == f.defaultImg.Serial
}

// CursorChanged handles a change notification from the display backend.
// Repeats of the last serial are dropped, then the new image is pushed
// to every sink. The default cursor is forwarded as nil so clients show
// their own.
func (f *Forwarder) CursorChanged(serial uint64) {
	if !f.enabled || f.capture == nil {
		return
	}
	if serial != 0 && serial == f.lastSerial {
		logger.Debugf("ignoring cursor event with the same serial number %d", serial)
		return
	}
	f.lastSerial = serial
	img, err := f.capture.CurrentImage()
	if err != nil {
		logger.Debugf("failed to get cursor image: %v", err)
		return
	}
	f.forward(img)
}

// PollChanged captures the cursor and forwards it when its serial moved
// since the last update, for displays that cannot report changes.
func (f *Forwarder) PollChanged() {
	if !f.enabled || f.capture == nil {
		return
	}
	img, err := f.capture.CurrentImage()
	if err != nil {
		logger.Debugf("failed to get cursor image: %v", err)
		return
	}
	if img.Serial != 0 && img.Serial == f.lastSerial {
		return
	}
	f.lastSerial = img.Serial
	f.forward(img)
}

func (f *Forwarder) forward(img *Image) {
	f.lastImg = img
	if f.IsDefault(img) {
		img = nil
	}
	for _, s := range f.registry.CursorSinks() {
		s.SendCursor(img)
	}
}

// Suspend blanks the cursor for s until Resume. Repeated calls are
// no-ops.
func (f *Forwarder) Suspend(s Sink) {
	if f.suspended {
		return
	}
	f.suspended = true
	if s != nil {
		s.SendEmptyCursor()
	}
}

// Resume undoes Suspend and re-sends the last known cursor.
func (f *Forwarder) Resume(s Sink) {
	if !f.suspended {
		return
	}
	f.suspended = false
	if s == nil || f.lastImg == nil {
		return
	}
	img := f.lastImg
	if f.IsDefault(img) {
		img = nil
	}
	s.SendCursor(img)
}

// ProcessSet handles a cursor-set packet, toggling cursor sends for the
// requesting connection.
func (f *Forwarder) ProcessSet(s Sink, p *wire.Packet) error {
	if !f.enabled {
		return errors.New("cannot toggle cursor sends: the feature is disabled")
	}
	enabled, err := p.Bool(1)
	if err != nil {
		return err
	}
	s.SetSendCursors(enabled)
	return nil
}

// Caps describes the cursor feature for the hello response.
func (f *Forwarder) Caps() wire.Dict {
	caps := wire.Dict{}
	sizes := wire.Dict{}
	if f.capture != nil {
		if w, h := f.capture.DefaultSize(); w > 0 && h > 0 {
			sizes["default"] = []int{w, h}
		}
		if w, h := f.capture.MaxSize(); w > 0 && h > 0 {
			sizes["max"] = []int{w, h}
		}
	}
	if len(sizes) > 0 {
		caps["sizes"] = sizes
	}
	if f.defaultImg != nil {
		caps["default"] = f.defaultImg.Slice()
	}
	return caps
}

// Info reports cursor state for the info subsystem.
func (f *Forwarder) Info() map[string]any {
	info := map[string]any{
		"enabled":   f.enabled,
		"size":      f.size,
		"suspended": f.suspended,
	}
	if cd := f.lastImg; cd != nil {
		current := cd.Geometry()
		current["is-default"] = f.IsDefault(cd)
		info["current"] = current
	}
	return info
}
