// Package ibus switches input-method engines through the IBus daemon.
package ibus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
)

const (
	ibusService   = "org.freedesktop.IBus"
	ibusPath      = "/org/freedesktop/IBus"
	ibusInterface = "org.freedesktop.IBus"
)

// Conn calls the IBus daemon over the session bus.
type Conn struct {
	bus *dbus.Conn
}

var _ keyboard.InputMethod = (*Conn)(nil)

// Connect opens the session bus and checks that the daemon answers.
func Connect() (*Conn, error) {
	bus, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the session bus: %w", err)
	}
	c := &Conn{bus: bus}
	engines, err := c.Engines()
	if err != nil {
		return nil, fmt.Errorf("ibus is not reachable: %w", err)
	}
	logger.Debugf("ibus daemon is running with %d engines", len(engines))
	return c, nil
}

// ActivateEngine makes the named engine the global input method and
// reports the keyboard layout the engine declares for itself.
func (c *Conn) ActivateEngine(name string) (keyboard.EngineLayout, error) {
	obj := c.bus.Object(ibusService, ibusPath)
	if call := obj.Call(ibusInterface+".SetGlobalEngine", 0, name); call.Err != nil {
		return keyboard.EngineLayout{}, fmt.Errorf("failed to activate engine %q: %w", name, call.Err)
	}
	var desc dbus.Variant
	if err := obj.Call(ibusInterface+".GetGlobalEngine", 0).Store(&desc); err != nil {
		// the engine is active, we just cannot read its layout
		logger.Debugf("cannot query the global engine: %v", err)
		return keyboard.EngineLayout{}, nil
	}
	return engineLayout(desc), nil
}

// engineLayout extracts the layout fields from a serialized engine
// description: the type name and attachment dict, then name, longname,
// description, language, license, author, icon, layout, rank, hotkeys,
// symbol, setup, layout variant and layout option. Engines that defer
// to the system keymap declare the literal layout "default", reported
// here as the zero value.
func engineLayout(v dbus.Variant) keyboard.EngineLayout {
	fields, ok := v.Value().([]any)
	if !ok {
		return keyboard.EngineLayout{}
	}
	var el keyboard.EngineLayout
	if len(fields) > 9 {
		el.Layout, _ = fields[9].(string)
	}
	if len(fields) > 15 {
		el.Variant, _ = fields[14].(string)
		el.Options, _ = fields[15].(string)
	}
	if el.Layout == "default" || el.Layout == "" {
		return keyboard.EngineLayout{}
	}
	return el
}

// Engines lists the input-method engines the daemon knows about.
func (c *Conn) Engines() ([]string, error) {
	var descs []dbus.Variant
	err := c.bus.Object(ibusService, ibusPath).Call(ibusInterface+".ListEngines", 0).Store(&descs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(descs))
	for _, v := range descs {
		// Engine descriptions are serialized structs with the type
		// name, an attachment dict and then the engine name.
		fields, ok := v.Value().([]any)
		if !ok || len(fields) < 3 {
			continue
		}
		if name, ok := fields[2].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
