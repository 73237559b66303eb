// Package uinputdev injects keys through a virtual uinput keyboard, for
// sessions without an X display or without the XTEST extension.
package uinputdev

import (
	"fmt"
	"slices"

	"github.com/ThomasT75/uinput"

	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
)

// X keycodes are the kernel event code plus eight.
const evdevOffset = 8

// Modifier names for the kernel event codes of the usual modifier keys.
var modifierKeys = map[int]string{
	29:  "control", // KEY_LEFTCTRL
	42:  "shift",   // KEY_LEFTSHIFT
	54:  "shift",   // KEY_RIGHTSHIFT
	56:  "mod1",    // KEY_LEFTALT
	58:  "lock",    // KEY_CAPSLOCK
	69:  "mod2",    // KEY_NUMLOCK
	97:  "control", // KEY_RIGHTCTRL
	100: "mod1",    // KEY_RIGHTALT
	125: "mod4",    // KEY_LEFTMETA
	126: "mod4",    // KEY_RIGHTMETA
}

// Keyboard is a virtual keyboard device.
type Keyboard struct {
	dev   uinput.Keyboard
	down  map[int]bool
	group int
}

var _ keyboard.Device = (*Keyboard)(nil)

// New creates the virtual device, which requires write access to
// /dev/uinput.
func New(name string) (*Keyboard, error) {
	dev, err := uinput.CreateKeyboard("/dev/uinput", []byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create the virtual keyboard: %w", err)
	}
	return &Keyboard{dev: dev, down: map[int]bool{}}, nil
}

func (k *Keyboard) PressKey(keycode int, press bool) error {
	code := keycode - evdevOffset
	if code <= 0 {
		logger.Debugf("keycode %d is out of range for the virtual keyboard", keycode)
		return nil
	}
	var err error
	if press {
		err = k.dev.KeyDown(code)
	} else {
		err = k.dev.KeyUp(code)
	}
	if err != nil {
		return err
	}
	if press {
		k.down[keycode] = true
	} else {
		delete(k.down, keycode)
	}
	return nil
}

func (k *Keyboard) ClearKeys(keycodes []int) {
	for _, kc := range keycodes {
		if err := k.PressKey(kc, false); err != nil {
			logger.Debugf("failed to release keycode %d: %v", kc, err)
		}
	}
}

// KeycodesDown reports the keys held from our own tracking: the kernel
// does not expose the state of a virtual device.
func (k *Keyboard) KeycodesDown() []int {
	keys := make([]int, 0, len(k.down))
	for kc := range k.down {
		keys = append(keys, kc)
	}
	slices.Sort(keys)
	return keys
}

// SetRepeatRate is a no-op: a virtual device never auto-repeats on its
// own, repeat comes from timed key events upstream.
func (k *Keyboard) SetRepeatRate(delayMS, intervalMS int) error {
	logger.Debugf("ignoring repeat rate %d/%d on the virtual keyboard", delayMS, intervalMS)
	return nil
}

func (k *Keyboard) LayoutGroup() int { return k.group }

func (k *Keyboard) SetLayoutGroup(group int) error {
	if group < 0 {
		group = 0
	}
	k.group = group
	return nil
}

func (k *Keyboard) CurrentModifiers() []string {
	var mods []string
	for kc := range k.down {
		name, ok := modifierKeys[kc-evdevOffset]
		if ok && !slices.Contains(mods, name) {
			mods = append(mods, name)
		}
	}
	slices.Sort(mods)
	return mods
}

// SetKeymap is a no-op: interpreting the event codes belongs to whoever
// consumes the virtual device.
func (k *Keyboard) SetKeymap(layout, variant, options string) error {
	logger.Debugf("ignoring keymap %q/%q/%q on the virtual keyboard", layout, variant, options)
	return nil
}

func (k *Keyboard) Close() {
	if err := k.dev.Close(); err != nil {
		logger.Debugf("failed to close the virtual keyboard: %v", err)
	}
}
