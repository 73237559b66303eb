package x11

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"

	"github.com/seamd/seamd/internal/logger"
)

// X modifier mask bits in order, as reported by QueryPointer.
var modMaskNames = []string{"shift", "lock", "control", "mod1", "mod2", "mod3", "mod4", "mod5"}

// Keyboard injects key events through XTEST. The layout group is
// tracked here because group switching is an XKB request the wire
// protocol we speak does not carry.
type Keyboard struct {
	d          *Display
	minKeycode int
	maxKeycode int
	group      int
}

// Keyboard builds the XTEST key injector. Fails when the extension is
// missing.
func (d *Display) Keyboard() (*Keyboard, error) {
	if !d.xtestOK {
		return nil, errors.New("XTEST extension is not available")
	}
	k := &Keyboard{d: d, minKeycode: 8, maxKeycode: 255}
	if setup := d.xu.Setup(); setup != nil {
		k.minKeycode = int(setup.MinKeycode)
		k.maxKeycode = int(setup.MaxKeycode)
	}
	return k, nil
}

// PressKey injects a key down or up event. Keycodes outside the range
// the server advertises are dropped silently.
func (k *Keyboard) PressKey(keycode int, press bool) error {
	if keycode < k.minKeycode || keycode > k.maxKeycode {
		return nil
	}
	evType := byte(xproto.KeyPress)
	if !press {
		evType = xproto.KeyRelease
	}
	return xtest.FakeInputChecked(k.d.conn, evType, byte(keycode), 0, k.d.root, 0, 0, 0).Check()
}

// ClearKeys releases every keycode in the list.
func (k *Keyboard) ClearKeys(keycodes []int) {
	if len(keycodes) == 0 {
		return
	}
	logger.Debugf("clearing keys pressed: %v", keycodes)
	for _, kc := range keycodes {
		if err := k.PressKey(kc, false); err != nil {
			logger.Debugf("failed to release keycode %d: %v", kc, err)
		}
	}
}

// KeycodesDown reports the keycodes the X server considers held.
func (k *Keyboard) KeycodesDown() []int {
	reply, err := xproto.QueryKeymap(k.d.conn).Reply()
	if err != nil {
		logger.Debugf("QueryKeymap failed: %v", err)
		return nil
	}
	var down []int
	for kc := k.minKeycode; kc <= k.maxKeycode; kc++ {
		if reply.Keys[kc/8]&(1<<(kc%8)) != 0 {
			down = append(down, kc)
		}
	}
	return down
}

// SetRepeatRate configures hardware auto-repeat. The timing itself is
// an XKB control, so this shells out to xset and falls back to just
// enabling repeat over the core protocol.
func (k *Keyboard) SetRepeatRate(delayMS, intervalMS int) error {
	if delayMS <= 0 || intervalMS <= 0 {
		return xproto.ChangeKeyboardControlChecked(k.d.conn,
			xproto.KbAutoRepeatMode, []uint32{xproto.AutoRepeatModeOff}).Check()
	}
	rate := 1000 / intervalMS
	if rate < 1 {
		rate = 1
	}
	if err := exec.Command("xset", "r", "rate", strconv.Itoa(delayMS), strconv.Itoa(rate)).Run(); err != nil {
		logger.Debugf("xset r rate %d %d failed: %v", delayMS, rate, err)
		return xproto.ChangeKeyboardControlChecked(k.d.conn,
			xproto.KbAutoRepeatMode, []uint32{xproto.AutoRepeatModeOn}).Check()
	}
	return nil
}

// LayoutGroup returns the last group applied via SetLayoutGroup.
func (k *Keyboard) LayoutGroup() int {
	return k.group
}

func (k *Keyboard) SetLayoutGroup(group int) error {
	if group < 0 {
		group = 0
	}
	k.group = group
	return nil
}

// CurrentModifiers lists the modifier names currently active, read
// from the pointer's key-but mask.
func (k *Keyboard) CurrentModifiers() []string {
	reply, err := xproto.QueryPointer(k.d.conn, k.d.root).Reply()
	if err != nil {
		logger.Debugf("QueryPointer failed: %v", err)
		return nil
	}
	var mods []string
	for i, name := range modMaskNames {
		if reply.Mask&(1<<i) != 0 {
			mods = append(mods, name)
		}
	}
	return mods
}

// SetKeymap applies an XKB layout to the display via setxkbmap.
func (k *Keyboard) SetKeymap(layout, variant, options string) error {
	if layout == "" {
		return nil
	}
	args := []string{"-layout", layout}
	if variant != "" {
		args = append(args, "-variant", variant)
	}
	// always reset the option list so stale options do not accumulate
	args = append(args, "-option", "")
	if options != "" {
		args = append(args, "-option", options)
	}
	out, err := exec.Command("setxkbmap", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("setxkbmap %v: %w (%s)", args, err, out)
	}
	logger.Infof("keymap set to layout=%q variant=%q options=%q", layout, variant, options)
	return nil
}
