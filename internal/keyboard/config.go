package keyboard

import (
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/wire"
)

// Config is the per-client keyboard configuration, negotiated from hello
// capabilities and updated by keymap-changed and layout-changed packets.
type Config struct {
	Enabled bool
	Sync    bool

	Layout  string
	Variant string
	Options string

	// keysym name -> modifier name, from the client keymap
	modMeanings map[string]string
	// modifier name -> keycodes able to toggle it
	modKeycodes map[string][]int
}

// NewConfig parses a keyboard configuration from hello capabilities.
func NewConfig(caps wire.Dict) *Config {
	c := &Config{
		Enabled: caps.Bool("keyboard", true),
		Sync:    caps.Bool("keyboard_sync", true),
	}
	if keymap := caps.Sub("keymap"); keymap != nil {
		c.ParseOptions(keymap)
	}
	return c
}

// ParseOptions updates the configuration from keymap properties and
// returns the number of fields that changed.
func (c *Config) ParseOptions(props wire.Dict) int {
	changed := 0
	setStr := func(field *string, key string) {
		v := props.Str(key, *field)
		if v != *field {
			*field = v
			changed++
		}
	}
	setStr(&c.Layout, "layout")
	setStr(&c.Variant, "variant")
	setStr(&c.Options, "options")

	if meanings := props.Sub("mod_meanings"); meanings != nil {
		c.modMeanings = make(map[string]string, len(meanings))
		for keysym := range meanings {
			c.modMeanings[keysym] = meanings.Str(keysym, "")
		}
		changed++
	}
	if keycodes := props.Sub("mod_keycodes"); keycodes != nil {
		c.modKeycodes = make(map[string][]int, len(keycodes))
		for mod := range keycodes {
			c.modKeycodes[mod] = keycodes.Ints(mod)
		}
		changed++
	}
	logger.Debugf("parsed keymap options, %d changes: layout=%q variant=%q options=%q",
		changed, c.Layout, c.Variant, c.Options)
	return changed
}

// SetLayout updates the layout triple and reports whether it changed.
func (c *Config) SetLayout(layout, variant, options string) bool {
	if layout == c.Layout && variant == c.Variant && options == c.Options {
		return false
	}
	c.Layout = layout
	c.Variant = variant
	c.Options = options
	return true
}

// Keycode resolves a client keycode to a server keycode and layout group.
// Without a translation table the client keycode is used verbatim; a
// client that sent no usable keycode resolves to -1 and the event is
// dropped by the caller.
func (c *Config) Keycode(clientKeycode int, keyname string, pressed bool, modifiers []string, keyval int, keystr string, group int) (int, int) {
	if clientKeycode <= 0 {
		return -1, group
	}
	return clientKeycode, group
}

// IsModifier reports whether the key is a modifier under this keymap.
func (c *Config) IsModifier(keyname string, keycode int) bool {
	if c.modifierName(keyname) != "" {
		return true
	}
	for _, keycodes := range c.modKeycodes {
		for _, kc := range keycodes {
			if kc == keycode {
				return true
			}
		}
	}
	return false
}

// modifierName maps a keysym name to its modifier name, or "".
func (c *Config) modifierName(keyname string) string {
	if name, ok := c.modMeanings[keyname]; ok {
		return name
	}
	return defaultModMeanings[keyname]
}

// ModifierKeycodes lists the keycodes able to toggle the given modifier.
func (c *Config) ModifierKeycodes(mod string) []int {
	return c.modKeycodes[mod]
}

// Info reports the configuration for the info subsystem.
func (c *Config) Info() map[string]any {
	return map[string]any{
		"enabled": c.Enabled,
		"sync":    c.Sync,
		"layout":  c.Layout,
		"variant": c.Variant,
		"options": c.Options,
	}
}
