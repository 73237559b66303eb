// Package noop provides an inert key injector, used when neither the
// display nor a virtual device is available.
package noop

import (
	"slices"

	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
)

// Keyboard swallows key events while still tracking which keycodes are
// nominally held, so repeat emulation and shutdown cleanup behave.
type Keyboard struct {
	down  map[int]bool
	group int
}

var _ keyboard.Device = (*Keyboard)(nil)

func NewKeyboard() *Keyboard {
	return &Keyboard{down: map[int]bool{}}
}

func (k *Keyboard) PressKey(keycode int, press bool) error {
	logger.Debugf("dropping key event %d press=%v", keycode, press)
	if press {
		k.down[keycode] = true
	} else {
		delete(k.down, keycode)
	}
	return nil
}

func (k *Keyboard) ClearKeys(keycodes []int) {
	for _, kc := range keycodes {
		delete(k.down, kc)
	}
}

func (k *Keyboard) KeycodesDown() []int {
	keys := make([]int, 0, len(k.down))
	for kc := range k.down {
		keys = append(keys, kc)
	}
	slices.Sort(keys)
	return keys
}

func (k *Keyboard) SetRepeatRate(delayMS, intervalMS int) error { return nil }

func (k *Keyboard) LayoutGroup() int { return k.group }

func (k *Keyboard) SetLayoutGroup(group int) error {
	if group < 0 {
		group = 0
	}
	k.group = group
	return nil
}

func (k *Keyboard) CurrentModifiers() []string { return nil }

func (k *Keyboard) SetKeymap(layout, variant, options string) error { return nil }
