// Package keyboard replays client key events on the server keyboard
// device and emulates key auto-repeat server side. State transitions are
// loop-only: the engine is fed packets by the server's router and drives
// the native device through the Device interface.
package keyboard

// Device is the native keyboard the engine injects into. The x11 backend
// uses XTEST, the uinput backend a virtual device; headless servers and
// tests use a no-op implementation.
type Device interface {
	// PressKey injects a key down (press=true) or up event.
	PressKey(keycode int, press bool) error
	// ClearKeys releases every keycode in the list.
	ClearKeys(keycodes []int)
	// KeycodesDown reports the keycodes the device considers held.
	KeycodesDown() []int
	// SetRepeatRate configures hardware auto-repeat, in milliseconds.
	SetRepeatRate(delayMS, intervalMS int) error
	// LayoutGroup returns the active layout group.
	LayoutGroup() int
	SetLayoutGroup(group int) error
	// CurrentModifiers lists the modifier names currently active.
	CurrentModifiers() []string
	// SetKeymap applies a layout to the device.
	SetKeymap(layout, variant, options string) error
}

// X11 core modifier names, in mask order.
var modifierNames = []string{"shift", "lock", "control", "mod1", "mod2", "mod3", "mod4", "mod5"}

// defaultModMeanings maps the common modifier keysyms to modifier names,
// used when the client keymap does not declare its own meanings.
var defaultModMeanings = map[string]string{
	"Shift_L":          "shift",
	"Shift_R":          "shift",
	"Caps_Lock":        "lock",
	"Control_L":        "control",
	"Control_R":        "control",
	"Alt_L":            "mod1",
	"Alt_R":            "mod1",
	"Meta_L":           "mod1",
	"Meta_R":           "mod1",
	"Num_Lock":         "mod2",
	"Super_L":          "mod4",
	"Super_R":          "mod4",
	"Hyper_L":          "mod4",
	"Hyper_R":          "mod4",
	"ISO_Level3_Shift": "mod5",
	"Mode_switch":      "mod5",
}
