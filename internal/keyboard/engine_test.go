package keyboard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/wire"
)

type fakeSource struct {
	uuid       string
	cfg        *Config
	userEvents int
}

func (s *fakeSource) UUID() string                { return s.uuid }
func (s *fakeSource) UserEvent()                  { s.userEvents++ }
func (s *fakeSource) KeyboardConfig() *Config     { return s.cfg }
func (s *fakeSource) SetKeyboardConfig(c *Config) { s.cfg = c }

type fakeRegistry struct {
	others []string
}

func (r *fakeRegistry) OtherUIClients(uuid string) []string { return r.others }

type fakeIM struct {
	activated []string
	layout    EngineLayout
	err       error
}

func (im *fakeIM) ActivateEngine(name string) (EngineLayout, error) {
	im.activated = append(im.activated, name)
	return im.layout, im.err
}

func newTestEngine() (*Engine, *fakeDevice, *fakeRegistry, *scheduler.Manual) {
	clock := scheduler.NewManual()
	device := &fakeDevice{}
	registry := &fakeRegistry{}
	engine := NewEngine(clock, device, registry)
	engine.State().SetRepeatRate(500, 30)
	return engine, device, registry, clock
}

func keyActionPacket(name string, pressed bool, keycode int) *wire.Packet {
	return wire.New("key-action", 0, name, pressed, []string{}, 97, name, keycode, 0)
}

func TestProcessKeyActionPressRelease(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	require.NoError(t, engine.ProcessKeyAction(src, keyActionPacket("a", true, 38)))
	require.NoError(t, engine.ProcessKeyAction(src, keyActionPacket("a", false, 38)))

	assert.Equal(t, []keyEvent{{38, true}, {38, false}}, device.events)
	assert.Equal(t, 2, src.userEvents)
}

func TestProcessKeyActionWithoutConfig(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	src := &fakeSource{uuid: "c1"}

	require.NoError(t, engine.ProcessKeyAction(src, keyActionPacket("a", true, 38)))

	assert.Empty(t, device.events)
}

func TestProcessKeyActionMalformed(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	// too short, missing everything past the window id
	err := engine.ProcessKeyAction(src, wire.New("key-action", 0))
	assert.Error(t, err)
}

func TestProcessKeyActionSwitchesLayoutGroup(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	p := wire.New("key-action", 0, "adiaeresis", true, []string{}, 228, "ä", 48, 1)
	require.NoError(t, engine.ProcessKeyAction(src, p))

	assert.Equal(t, 1, device.group)
}

func TestProcessKeyActionReadonly(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	engine.SetReadonly(true)
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	require.NoError(t, engine.ProcessKeyAction(src, keyActionPacket("a", true, 38)))

	assert.Empty(t, device.events)
	assert.Equal(t, 0, src.userEvents)
}

func TestProcessKeyRepeatRequiresSync(t *testing.T) {
	engine, _, _, clock := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: false}}

	p := wire.New("key-repeat", 0, "a", 97, 38, []string{})
	require.NoError(t, engine.ProcessKeyRepeat(src, p))

	assert.Equal(t, 0, clock.Pending())
}

func TestProcessKeyRepeatRearmsTimer(t *testing.T) {
	engine, device, _, clock := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	require.NoError(t, engine.ProcessKeyAction(src, keyActionPacket("a", true, 38)))
	device.events = nil

	// client confirms the key is still held before the delay elapses
	clock.Advance(400 * time.Millisecond)
	p := wire.New("key-repeat", 0, "a", 97, 38, []string{})
	require.NoError(t, engine.ProcessKeyRepeat(src, p))

	assert.Equal(t, 1, clock.Pending())
	assert.Empty(t, device.events, "key must stay held while repeats arrive")

	// once repeats stop, the re-armed timer releases the key; the
	// interval is clamped up to the minimum delay
	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, []keyEvent{{38, false}}, device.events)
}

func TestProcessKeyRepeatRepressesTimedOutKey(t *testing.T) {
	engine, device, _, clock := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	require.NoError(t, engine.ProcessKeyAction(src, keyActionPacket("a", true, 38)))
	clock.Advance(500 * time.Millisecond)
	require.False(t, engine.State().IsPressed(38), "timeout should have released the key")
	device.events = nil

	p := wire.New("key-repeat", 0, "a", 97, 38, []string{})
	require.NoError(t, engine.ProcessKeyRepeat(src, p))

	assert.Equal(t, []keyEvent{{38, true}}, device.events)
	assert.True(t, engine.State().IsPressed(38))
}

func TestProcessKeymapChangedContention(t *testing.T) {
	engine, device, registry, _ := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true, Layout: "us"}}

	registry.others = []string{"c2"}
	props := wire.Dict{"layout": "de"}
	require.NoError(t, engine.ProcessKeymapChanged(src, wire.New("keymap-changed", props)))

	// with another UI client connected the change is ignored
	assert.Equal(t, "us", src.cfg.Layout)
	assert.Empty(t, device.keymaps)

	registry.others = nil
	require.NoError(t, engine.ProcessKeymapChanged(src, wire.New("keymap-changed", props)))

	assert.Equal(t, "de", src.cfg.Layout)
	assert.Equal(t, []string{"de/"}, device.keymaps)
}

func TestProcessLayoutChanged(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	im := &fakeIM{}
	engine.SetInputMethod(im)
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	p := wire.New("layout-changed", "fr", "oss", "", "ibus", "anthy")
	require.NoError(t, engine.ProcessLayoutChanged(src, p))

	assert.Equal(t, "fr", src.cfg.Layout)
	assert.Equal(t, "oss", src.cfg.Variant)
	assert.Equal(t, []string{"fr/oss"}, device.keymaps)
	assert.Equal(t, []string{"anthy"}, im.activated)

	t.Run("unchanged layout does not reapply", func(t *testing.T) {
		require.NoError(t, engine.ProcessLayoutChanged(src, p))
		assert.Equal(t, []string{"fr/oss"}, device.keymaps, "supposedly changed layout applied twice")
	})
}

func TestProcessLayoutChangedEngineLayoutWins(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	im := &fakeIM{layout: EngineLayout{Layout: "jp", Variant: "kana"}}
	engine.SetInputMethod(im)
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	p := wire.New("layout-changed", "us", "", "", "ibus", "mozc-jp")
	require.NoError(t, engine.ProcessLayoutChanged(src, p))

	assert.Equal(t, "jp", src.cfg.Layout)
	assert.Equal(t, "kana", src.cfg.Variant)
	assert.Equal(t, []string{"jp/kana"}, device.keymaps)

	t.Run("activation failure falls back to the client layout", func(t *testing.T) {
		im.err = errors.New("no such engine")
		p := wire.New("layout-changed", "us", "intl", "", "ibus", "missing")
		require.NoError(t, engine.ProcessLayoutChanged(src, p))

		assert.Equal(t, "us", src.cfg.Layout)
		assert.Equal(t, []string{"jp/kana", "us/intl"}, device.keymaps)
	})
}

func TestLayoutNotAppliedWhenSharing(t *testing.T) {
	engine, device, registry, _ := newTestEngine()
	registry.others = []string{"c1"}
	src := &fakeSource{uuid: "c2", cfg: &Config{Enabled: true, Sync: true}}

	p := wire.New("layout-changed", "de", "", "")
	require.NoError(t, engine.ProcessLayoutChanged(src, p))

	// the config tracks the client, but the shared device keymap does not
	assert.Equal(t, "de", src.cfg.Layout)
	assert.Empty(t, device.keymaps)
}

func TestHelloKeyboardRepeatRate(t *testing.T) {
	t.Run("sole client sets the rate", func(t *testing.T) {
		engine, device, _, _ := newTestEngine()
		src := &fakeSource{uuid: "c1"}

		caps := wire.Dict{"key_repeat": []any{400, 25}}
		engine.HelloKeyboard(src, caps)

		assert.Equal(t, 400, device.delay)
		assert.Equal(t, 25, device.interval)
		require.NotNil(t, src.cfg)
		assert.True(t, src.cfg.Sync)
	})

	t.Run("sharing client cannot change the rate", func(t *testing.T) {
		engine, device, registry, _ := newTestEngine()
		registry.others = []string{"c1"}
		src := &fakeSource{uuid: "c2"}

		caps := wire.Dict{"key_repeat": []any{400, 25}}
		engine.HelloKeyboard(src, caps)

		assert.Equal(t, DefaultRepeatDelay, device.delay)
		assert.Equal(t, DefaultRepeatInterval, device.interval)
	})

	t.Run("missing cap falls back to defaults", func(t *testing.T) {
		engine, device, _, _ := newTestEngine()
		engine.HelloKeyboard(&fakeSource{uuid: "c1"}, wire.Dict{})

		assert.Equal(t, DefaultRepeatDelay, device.delay)
		assert.Equal(t, DefaultRepeatInterval, device.interval)
	})
}

func TestHelloKeyboardSyncMasterSwitch(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	engine.SetSyncAllowed(false)
	src := &fakeSource{uuid: "c1"}

	engine.HelloKeyboard(src, wire.Dict{"keyboard_sync": true})

	require.NotNil(t, src.cfg)
	assert.False(t, src.cfg.Sync, "server-wide sync switch must win")
}

func TestProcessSyncEnabled(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	src := &fakeSource{uuid: "c1", cfg: &Config{Enabled: true, Sync: true}}

	require.NoError(t, engine.ProcessSyncEnabled(src, wire.New("set-keyboard-sync-enabled", false)))
	assert.False(t, src.cfg.Sync)

	require.NoError(t, engine.ProcessSyncEnabled(src, wire.New("set-keyboard-sync-enabled", 1)))
	assert.True(t, src.cfg.Sync)
}

func TestMakeKeymaskMatch(t *testing.T) {
	engine, device, _, _ := newTestEngine()
	cfg := &Config{Enabled: true, Sync: true}
	cfg.ParseOptions(wire.Dict{
		"mod_keycodes": map[string]any{
			"shift":   []any{50, 62},
			"control": []any{37},
		},
	})
	src := &fakeSource{uuid: "c1", cfg: cfg}

	// device has control held, client wants only shift
	device.modifiers = []string{"control"}
	p := wire.New("key-action", 0, "a", true, []string{"shift"}, 97, "a", 38, 0)
	require.NoError(t, engine.ProcessKeyAction(src, p))

	assert.Contains(t, device.events, keyEvent{50, true}, "shift should be pressed")
	assert.Contains(t, device.events, keyEvent{37, false}, "control should be released")
}

func TestKeymapChangedDebounce(t *testing.T) {
	engine, _, _, clock := newTestEngine()

	engine.KeymapChanged()
	engine.KeymapChanged()
	engine.KeymapChanged()

	assert.Equal(t, 1, clock.Pending())
	clock.Advance(time.Second)
	assert.Equal(t, 0, clock.Pending())
}
