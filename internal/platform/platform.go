// Package platform assembles the host-side collaborators: key
// injection, screen control, settings management and cursor capture.
package platform

import (
	"fmt"
	"os"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/cursor"
	"github.com/seamd/seamd/internal/display"
	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/platform/ibus"
	"github.com/seamd/seamd/internal/platform/noop"
	"github.com/seamd/seamd/internal/platform/uinputdev"
	"github.com/seamd/seamd/internal/platform/wlrrandr"
	"github.com/seamd/seamd/internal/platform/x11"
)

// Platform bundles what the host provides. Display, Settings, Cursors
// and InputMethod stay nil when the host cannot back them; Keyboard is
// always usable, falling back to an inert device.
type Platform struct {
	Keyboard     keyboard.Device
	KeyboardName string
	Display      display.Backend
	Settings     display.SettingsSink
	Cursors      cursor.Capture
	InputMethod  keyboard.InputMethod

	x11     *x11.Display
	closers []func()
	closed  bool
}

// Setup connects to the display and picks the key injection backend the
// configuration asks for.
func Setup(cfg *config.Config) (*Platform, error) {
	p := &Platform{}
	if os.Getenv("DISPLAY") != "" {
		d, err := x11.Connect()
		if err != nil {
			logger.Warnf("Warning: cannot use the X display: %v", err)
		} else {
			p.x11 = d
			p.closers = append(p.closers, d.Close)
			if b := d.Backend(); b != nil {
				p.Display = b
			}
			if cfg.Display.SyncSettings {
				if sink, err := d.Settings(); err != nil {
					logger.Warnf("Warning: settings synchronization is not available: %v", err)
				} else {
					p.Settings = sink
					p.closers = append(p.closers, sink.Close)
				}
			}
			if cfg.Cursor.Enabled {
				if capture, err := d.Cursors(); err != nil {
					logger.Warnf("Warning: cursor capture is not available: %v", err)
				} else {
					p.Cursors = capture
				}
			}
		}
	} else if os.Getenv("WAYLAND_DISPLAY") != "" || os.Getenv("SUDO_USER") != "" {
		logger.Info("no X display, trying the Wayland compositor")
		if b, err := wlrrandr.New(); err != nil {
			logger.Warnf("Warning: cannot drive the Wayland display: %v", err)
		} else {
			p.Display = b
		}
	} else {
		logger.Info("no DISPLAY in the environment, running without a display")
	}

	if err := p.setupKeyboard(cfg); err != nil {
		p.Close()
		return nil, err
	}

	if im, err := ibus.Connect(); err != nil {
		logger.Debugf("input method switching is not available: %v", err)
	} else {
		p.InputMethod = im
	}
	return p, nil
}

// setupKeyboard resolves the configured input backend. The auto backend
// walks xtest, then uinput, then the inert fallback.
func (p *Platform) setupKeyboard(cfg *config.Config) error {
	backend := cfg.Input.Backend
	if backend == "" {
		backend = "auto"
	}
	switch backend {
	case "auto":
		if kb := p.tryXTest(); kb != nil {
			p.Keyboard, p.KeyboardName = kb, "xtest"
		} else if kb := p.tryUinput(cfg.Input.UinputName); kb != nil {
			p.Keyboard, p.KeyboardName = kb, "uinput"
		} else {
			logger.Warnf("Warning: no key injection backend is available, keys will be dropped")
			p.Keyboard, p.KeyboardName = noop.NewKeyboard(), "none"
		}
	case "xtest":
		kb := p.tryXTest()
		if kb == nil {
			return fmt.Errorf("the xtest input backend is not available")
		}
		p.Keyboard, p.KeyboardName = kb, "xtest"
	case "uinput":
		kb := p.tryUinput(cfg.Input.UinputName)
		if kb == nil {
			return fmt.Errorf("the uinput input backend is not available")
		}
		p.Keyboard, p.KeyboardName = kb, "uinput"
	case "none":
		p.Keyboard, p.KeyboardName = noop.NewKeyboard(), "none"
	default:
		return fmt.Errorf("unknown input backend %q", backend)
	}
	logger.Infof("Key injection backend: %s", p.KeyboardName)
	return nil
}

func (p *Platform) tryXTest() keyboard.Device {
	if p.x11 == nil {
		return nil
	}
	kb, err := p.x11.Keyboard()
	if err != nil {
		logger.Debugf("xtest injection is not available: %v", err)
		return nil
	}
	return kb
}

func (p *Platform) tryUinput(name string) keyboard.Device {
	kb, err := uinputdev.New(name)
	if err != nil {
		logger.Debugf("uinput injection is not available: %v", err)
		return nil
	}
	p.closers = append(p.closers, kb.Close)
	return kb
}

// Listen starts the display event pump. Callbacks run on the pump
// goroutine; the caller reposts them onto its own loop.
func (p *Platform) Listen(onScreenChange func(), onCursorChange func(serial uint64)) {
	if p.x11 != nil {
		p.x11.Listen(onScreenChange, onCursorChange)
	}
}

// Close releases every handle the platform opened, most recent first.
func (p *Platform) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
