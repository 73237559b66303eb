// Package x11 implements the platform collaborators against a live X
// display: XTEST key injection, RandR geometry switching, root window
// settings properties and XFIXES cursor capture, all sharing a single
// xgb connection.
package x11

import (
	"fmt"
	"os"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil"

	"github.com/seamd/seamd/internal/logger"
)

// Display is one connection to the X server, shared by every
// collaborator built from it.
type Display struct {
	xu     *xgbutil.XUtil
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo

	randrOK    bool
	randrMajor uint32
	randrMinor uint32

	xtestOK  bool
	xfixesOK bool

	atoms map[string]xproto.Atom
}

// Connect dials the display named by DISPLAY and probes the extensions
// the collaborators need. A missing extension disables its feature
// rather than failing the connection.
func Connect() (*Display, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to display %q: %w", os.Getenv("DISPLAY"), err)
	}
	d := &Display{
		xu:     xu,
		conn:   xu.Conn(),
		root:   xu.RootWin(),
		screen: xu.Screen(),
		atoms:  make(map[string]xproto.Atom),
	}
	if err := randr.Init(d.conn); err != nil {
		logger.Warnf("Warning: no X11 RandR support on %q: %v", os.Getenv("DISPLAY"), err)
	} else if reply, err := randr.QueryVersion(d.conn, 1, 6).Reply(); err != nil {
		logger.Warnf("Warning: RandR version query failed: %v", err)
	} else {
		d.randrOK = true
		d.randrMajor = reply.MajorVersion
		d.randrMinor = reply.MinorVersion
		logger.Debugf("randr version %d.%d", d.randrMajor, d.randrMinor)
	}
	if err := xtest.Init(d.conn); err != nil {
		logger.Debugf("no XTEST extension: %v", err)
	} else if _, err := xtest.GetVersion(d.conn, 2, 2).Reply(); err == nil {
		d.xtestOK = true
	}
	if err := xfixes.Init(d.conn); err != nil {
		logger.Debugf("no XFIXES extension: %v", err)
	} else if _, err := xfixes.QueryVersion(d.conn, 4, 0).Reply(); err == nil {
		d.xfixesOK = true
	}
	return d, nil
}

func (d *Display) HasXTest() bool  { return d.xtestOK }
func (d *Display) HasRandR() bool  { return d.randrOK }
func (d *Display) HasXFixes() bool { return d.xfixesOK }

// Atom interns an atom, caching the result. Only call from the
// scheduler goroutine.
func (d *Display) Atom(name string) (xproto.Atom, error) {
	if a, ok := d.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %q: %w", name, err)
	}
	d.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// Listen starts the event pump. Screen-change and cursor notifications
// invoke the callbacks from the pump goroutine; callers are expected to
// hand them off to the scheduler.
func (d *Display) Listen(onScreenChange func(), onCursorChange func(serial uint64)) {
	if d.randrOK {
		if err := randr.SelectInputChecked(d.conn, d.root, randr.NotifyMaskScreenChange).Check(); err != nil {
			logger.Warnf("cannot select screen change events: %v", err)
		}
	}
	go func() {
		for {
			ev, err := d.conn.WaitForEvent()
			if ev == nil && err == nil {
				logger.Debug("x11 event pump closed")
				return
			}
			if err != nil {
				logger.Debugf("x11 event error: %v", err)
				continue
			}
			switch e := ev.(type) {
			case randr.ScreenChangeNotifyEvent:
				logger.Debugf("screen change notify: %dx%d", e.Width, e.Height)
				if onScreenChange != nil {
					onScreenChange()
				}
			case xfixes.CursorNotifyEvent:
				if onCursorChange != nil {
					onCursorChange(uint64(e.CursorSerial))
				}
			}
		}
	}()
}

// Ungrab forcibly releases any pointer or keyboard grab held by a
// client of this display.
func (d *Display) Ungrab() {
	xproto.UngrabPointer(d.conn, xproto.TimeCurrentTime)
	xproto.UngrabKeyboard(d.conn, xproto.TimeCurrentTime)
	d.conn.Sync()
}

// Close drops the X connection, which also stops the event pump.
func (d *Display) Close() {
	d.conn.Close()
}
