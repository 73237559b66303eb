package keyboard

import (
	"time"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/wire"
)

// Defaults used when the client does not negotiate repeat rates.
const (
	DefaultRepeatDelay    = 500
	DefaultRepeatInterval = 30
)

// Keymap updates within this window collapse into one refresh.
const keymapDebounce = 500 * time.Millisecond

// Source is the view of a client session the engine needs.
type Source interface {
	UUID() string
	UserEvent()
	KeyboardConfig() *Config
	SetKeyboardConfig(cfg *Config)
}

// Registry answers client contention queries.
type Registry interface {
	// OtherUIClients returns the uuids of UI clients besides the one given.
	OtherUIClients(uuid string) []string
}

// EngineLayout is the keyboard layout an input-method engine declares
// for itself. Zero when the engine defers to the system layout.
type EngineLayout struct {
	Layout  string
	Variant string
	Options string
}

// InputMethod switches input-method engines named by layout-changed
// packets. Implemented by the ibus backend.
type InputMethod interface {
	ActivateEngine(name string) (EngineLayout, error)
}

// Engine consumes keyboard packets and drives the key state and device.
type Engine struct {
	clock    scheduler.Clock
	state    *State
	device   Device
	registry Registry
	im       InputMethod

	readonly    bool
	syncAllowed bool

	keymapTimer   scheduler.Timer
	appliedLayout [3]string
}

// NewEngine wires the keyboard subsystem. The input method is optional
// and attached with SetInputMethod.
func NewEngine(clock scheduler.Clock, device Device, registry Registry) *Engine {
	return &Engine{
		clock:       clock,
		state:       NewState(clock, device),
		device:      device,
		registry:    registry,
		syncAllowed: true,
	}
}

// State exposes the key bookkeeping, for info and shutdown handling.
func (e *Engine) State() *State {
	return e.state
}

func (e *Engine) SetInputMethod(im InputMethod) {
	e.im = im
}

// SetReadonly drops all key injection when enabled.
func (e *Engine) SetReadonly(readonly bool) {
	e.readonly = readonly
}

// SetSyncAllowed is the server-wide master switch for key-repeat
// emulation; client sync requests cannot override it.
func (e *Engine) SetSyncAllowed(allowed bool) {
	e.syncAllowed = allowed
}

// HelloKeyboard negotiates the keyboard configuration from hello
// capabilities. Key-repeat rates from the client are honored only when it
// is the sole UI client.
func (e *Engine) HelloKeyboard(src Source, caps wire.Dict) {
	others := e.registry.OtherUIClients(src.UUID())
	cfg := NewConfig(caps)
	cfg.Sync = cfg.Sync && e.syncAllowed
	src.SetKeyboardConfig(cfg)

	delay, interval := DefaultRepeatDelay, DefaultRepeatInterval
	if len(others) == 0 {
		if d, i, ok := caps.IntPair("key_repeat"); ok {
			delay, interval = d, i
		}
		// always clear modifiers before applying a new keymap
		e.makeKeymaskMatch(cfg, caps.Strs("modifiers"), 0)
	}
	e.state.SetRepeatRate(delay, interval)
	e.setKeymap(src, false)
}

// ProcessKeyAction replays one client key event.
func (e *Engine) ProcessKeyAction(src Source, p *wire.Packet) error {
	if e.readonly {
		return nil
	}
	wid, err := p.Wid(1)
	if err != nil {
		return err
	}
	keyname, err := p.Str(2)
	if err != nil {
		return err
	}
	pressed, err := p.Bool(3)
	if err != nil {
		return err
	}
	modifiers, err := p.Strs(4)
	if err != nil {
		return err
	}
	keyval, err := p.U32(5)
	if err != nil {
		return err
	}
	keystr, err := p.Str(6)
	if err != nil {
		return err
	}
	clientKeycode, err := p.U32(7)
	if err != nil {
		return err
	}
	group := 0
	if p.Len() >= 9 {
		g, err := p.U8(8)
		if err != nil {
			return err
		}
		group = int(g)
	}

	cfg := src.KeyboardConfig()
	if cfg == nil {
		return nil
	}
	keycode, group := cfg.Keycode(int(clientKeycode), keyname, pressed, modifiers, int(keyval), keystr, group)
	logger.Debugf("key action %s: server keycode=%d, group=%d", p, keycode, group)
	if group >= 0 && keycode >= 0 {
		e.setLayoutGroup(group)
	}
	e.makeKeymaskMatch(cfg, modifiers, keycode, keyname)
	// negative keycodes are used for key events without a real
	// press/unpress, e.g. Caps_Lock state updates
	if keycode >= 0 {
		isMod := cfg.IsModifier(keyname, keycode)
		e.state.HandleKey(wid, pressed, keyname, int(keyval), keycode, modifiers, isMod, cfg.Sync)
	}
	src.UserEvent()
	return nil
}

// ProcessKeyRepeat refreshes the repeat timer for a held key and brings
// back keys the timeout force-released within the grace window.
func (e *Engine) ProcessKeyRepeat(src Source, p *wire.Packet) error {
	if e.readonly {
		return nil
	}
	cfg := src.KeyboardConfig()
	if cfg == nil {
		return nil
	}
	wid, err := p.Wid(1)
	if err != nil {
		return err
	}
	keyname, err := p.Str(2)
	if err != nil {
		return err
	}
	keyval, err := p.U32(3)
	if err != nil {
		return err
	}
	clientKeycode, err := p.U32(4)
	if err != nil {
		return err
	}
	modifiers, err := p.Strs(5)
	if err != nil {
		return err
	}
	group := 0
	if p.Len() >= 7 {
		g, err := p.U8(6)
		if err != nil {
			return err
		}
		group = int(g)
	}

	keycode, group := cfg.Keycode(int(clientKeycode), keyname, true, modifiers, int(keyval), "", group)
	if group >= 0 {
		e.setLayoutGroup(group)
	}
	// repeat packets carry the modifiers of the last pointer event
	e.makeKeymaskMatch(cfg, modifiers, 0)
	if !cfg.Sync {
		// clients should not send key-repeat without keyboard_sync
		return nil
	}
	if keycode >= 0 {
		e.state.RepressTimedOut(keycode, keyname)
		isMod := cfg.IsModifier(keyname, keycode)
		e.state.ScheduleRepeat(wid, true, keyname, int(keyval), keycode, modifiers, isMod, e.state.RepeatInterval())
	}
	src.UserEvent()
	return nil
}

// ProcessLayoutChanged switches the server layout to the client's, or
// to the one its input-method engine declares.
func (e *Engine) ProcessLayoutChanged(src Source, p *wire.Packet) error {
	logger.Debugf("layout-changed: %s", p)
	if e.readonly {
		return nil
	}
	layout, err := p.Str(1)
	if err != nil {
		return err
	}
	variant, err := p.Str(2)
	if err != nil {
		return err
	}
	options := ""
	if p.Len() >= 4 {
		if options, err = p.Str(3); err != nil {
			return err
		}
	}
	backend, name := "", ""
	if p.Len() >= 6 {
		if backend, err = p.Str(4); err != nil {
			return err
		}
		if name, err = p.Str(5); err != nil {
			return err
		}
	}
	if el, ok := e.setBackend(backend, name); ok {
		// the engine declares its own layout, which beats whatever the
		// client asked for
		layout, variant, options = el.Layout, el.Variant, el.Options
	}
	cfg := src.KeyboardConfig()
	if cfg == nil {
		return nil
	}
	if cfg.SetLayout(layout, variant, options) {
		e.setKeymap(src, true)
	}
	return nil
}

// setBackend activates the named input-method engine and reports the
// layout it declares, if any.
func (e *Engine) setBackend(backend, name string) (EngineLayout, bool) {
	if backend == "" || name == "" {
		return EngineLayout{}, false
	}
	if backend != "ibus" {
		logger.Debugf("ignoring unknown keyboard backend %q", backend)
		return EngineLayout{}, false
	}
	if e.im == nil {
		logger.Debugf("no input method available to activate engine %q", name)
		return EngineLayout{}, false
	}
	el, err := e.im.ActivateEngine(name)
	if err != nil {
		logger.Warnf("Warning: failed to activate input method engine %q: %v", name, err)
		return EngineLayout{}, false
	}
	return el, el.Layout != ""
}

// ProcessKeymapChanged installs a new client keymap. Ignored when other
// UI clients are connected: the keymap is contended state and first
// writer wins until the others leave.
func (e *Engine) ProcessKeymapChanged(src Source, p *wire.Packet) error {
	if e.readonly {
		return nil
	}
	props, err := p.DictAt(1)
	if err != nil {
		return err
	}
	logger.Debugf("received new keymap from client %s", src.UUID())
	if others := e.registry.OtherUIClients(src.UUID()); len(others) > 0 {
		logger.Warnf("Warning: ignoring keymap change as there are %d other clients", len(others))
		return nil
	}
	cfg := src.KeyboardConfig()
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	cfg.ParseOptions(props)
	e.setKeymap(src, true)
	e.makeKeymaskMatch(cfg, props.Strs("modifiers"), 0)
	return nil
}

// ProcessSyncEnabled toggles key-repeat emulation for one client.
func (e *Engine) ProcessSyncEnabled(src Source, p *wire.Packet) error {
	if e.readonly {
		return nil
	}
	enabled, err := p.Bool(1)
	if err != nil {
		return err
	}
	cfg := src.KeyboardConfig()
	if cfg == nil {
		return nil
	}
	cfg.Sync = enabled && e.syncAllowed
	logger.Debugf("toggled keyboard-sync to %v for %s", cfg.Sync, src.UUID())
	return nil
}

// setKeymap applies the source's layout to the device. Without force the
// layout is only applied when it differs from the last one applied.
func (e *Engine) setKeymap(src Source, force bool) {
	cfg := src.KeyboardConfig()
	if cfg == nil || !cfg.Enabled {
		return
	}
	// when sharing, the keymap stays with the client that set it first;
	// later clients get their keycodes translated onto it instead
	if others := e.registry.OtherUIClients(src.UUID()); len(others) > 0 {
		logger.Debugf("not applying the keymap of %s, %d other clients connected", src.UUID(), len(others))
		return
	}
	layout := [3]string{cfg.Layout, cfg.Variant, cfg.Options}
	if !force && layout == e.appliedLayout {
		return
	}
	// open the swallow window before touching the device, so the change
	// notification we trigger ourselves is ignored
	if e.keymapTimer == nil {
		e.keymapTimer = e.clock.After(keymapDebounce, func() {
			e.keymapTimer = nil
		})
	}
	e.state.ClearPressed()
	if err := e.device.SetKeymap(cfg.Layout, cfg.Variant, cfg.Options); err != nil {
		logger.Warnf("Warning: failed to apply keymap layout=%q variant=%q: %v", cfg.Layout, cfg.Variant, err)
		return
	}
	e.appliedLayout = layout
}

// KeymapChanged handles a device-side keymap change notification,
// debounced so a flood collapses into one refresh. Notifications inside
// the swallow window opened by setKeymap are our own and are dropped.
func (e *Engine) KeymapChanged() {
	if e.keymapTimer != nil {
		return
	}
	e.keymapTimer = e.clock.After(keymapDebounce, func() {
		e.keymapTimer = nil
		logger.Debug("keyboard mapping changed externally")
		e.appliedLayout = [3]string{}
	})
}

// setLayoutGroup switches the active layout group when it differs.
func (e *Engine) setLayoutGroup(group int) {
	if group == e.device.LayoutGroup() {
		return
	}
	if err := e.device.SetLayoutGroup(group); err != nil {
		logger.Warnf("Warning: failed to switch keyboard layout group to %d: %v", group, err)
	}
}

// makeKeymaskMatch aligns the device modifier state with the modifier
// list from a packet, pressing or releasing modifier keys as needed. The
// key being handled is skipped so its own event stays authoritative.
func (e *Engine) makeKeymaskMatch(cfg *Config, wanted []string, ignoredKeycode int, ignoredKeynames ...string) {
	current := e.device.CurrentModifiers()
	want := make(map[string]bool, len(wanted))
	for _, mod := range wanted {
		want[mod] = true
	}
	cur := make(map[string]bool, len(current))
	for _, mod := range current {
		cur[mod] = true
	}
	ignored := make(map[string]bool, len(ignoredKeynames))
	for _, name := range ignoredKeynames {
		if mod := cfg.modifierName(name); mod != "" {
			ignored[mod] = true
		}
	}
	for _, mod := range modifierNames {
		if want[mod] == cur[mod] || ignored[mod] {
			continue
		}
		toggled := false
		for _, keycode := range cfg.ModifierKeycodes(mod) {
			if keycode == ignoredKeycode || keycode <= 0 {
				continue
			}
			if err := e.device.PressKey(keycode, want[mod]); err != nil {
				logger.Debugf("failed to toggle modifier %s via keycode %d: %v", mod, keycode, err)
				continue
			}
			toggled = true
			break
		}
		if !toggled && len(cfg.ModifierKeycodes(mod)) > 0 {
			logger.Debugf("could not toggle modifier %s to %v", mod, want[mod])
		}
	}
}

// Cleanup cancels timers and releases held keys.
func (e *Engine) Cleanup() {
	if e.keymapTimer != nil {
		e.keymapTimer.Cancel()
		e.keymapTimer = nil
	}
	e.state.ClearPressed()
}

// Info reports keyboard state for the info subsystem.
func (e *Engine) Info() map[string]any {
	return e.state.Info()
}
