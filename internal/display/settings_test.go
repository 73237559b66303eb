package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamd/seamd/internal/wire"
)

type fakeSettingsSink struct {
	defaults   *SettingsBlob
	currentErr error
	applied    []*SettingsBlob
	resources  []string
}

func (s *fakeSettingsSink) CurrentSettings() (*SettingsBlob, error) {
	return s.defaults, s.currentErr
}

func (s *fakeSettingsSink) ApplySettings(blob *SettingsBlob) error {
	s.applied = append(s.applied, blob)
	return nil
}

func (s *fakeSettingsSink) SetResourceManager(value string) error {
	s.resources = append(s.resources, value)
	return nil
}

// noOverrides carries the "no client value" double-click sentinel.
var noOverrides = Overrides{DoubleClickDistance: [2]int{-1, -1}}

func withDistance(x, y int) Overrides {
	o := noOverrides
	o.DoubleClickDistance = [2]int{x, y}
	return o
}

func blobValue(t *testing.T, blob *SettingsBlob, name string) (any, bool) {
	t.Helper()
	var found []Setting
	for _, st := range blob.Settings {
		if st.Name == name {
			found = append(found, st)
		}
	}
	if len(found) == 0 {
		return nil, false
	}
	require.Len(t, found, 1, "duplicate setting %s", name)
	return found[0].Value, true
}

func TestCookResourceManagerDPI(t *testing.T) {
	o := noOverrides
	o.DPI = 192
	value := "Gtk/CursorThemeName:\tAdwaita\n" +
		"Gdk/WindowScalingFactor:\t2\n" +
		"not a record\n"
	cooked := cookResourceManager(value, o)

	assert.Contains(t, cooked, "Gtk/CursorThemeName:\tAdwaita\n")
	assert.NotContains(t, cooked, "Gdk/WindowScalingFactor")
	assert.NotContains(t, cooked, "not a record")
	assert.Contains(t, cooked, "Xft.dpi:\t192\n")
	assert.Contains(t, cooked, "Xft/DPI:\t196608\n")
	assert.Contains(t, cooked, "gnome.Xft/DPI:\t196608\n")

	// cooking an empty blob yields exactly the derived records
	o.CursorSize = 24
	cooked = cookResourceManager("", o)
	assert.Equal(t, "Xcursor.size:\t24\nXft.dpi:\t192\nXft/DPI:\t196608\ngnome.Xft/DPI:\t196608\n", cooked)
}

func TestCookResourceManagerOverridesClientValue(t *testing.T) {
	o := noOverrides
	o.DPI = 120
	cooked := cookResourceManager("Xft.dpi:\t96\n", o)
	assert.Contains(t, cooked, "Xft.dpi:\t120\n")
	assert.NotContains(t, cooked, "Xft.dpi:\t96\n")
}

func TestCookResourceManagerAntialias(t *testing.T) {
	o := noOverrides
	o.Antialias = wire.Dict{"enabled": 1, "hinting": 1, "orientation": "RGB", "contrast": 1100}
	o.SubpixelOK = true
	cooked := cookResourceManager("", o)
	assert.Contains(t, cooked, "Xft.antialias:\t1\n")
	assert.Contains(t, cooked, "Xft.hinting:\t1\n")
	assert.Contains(t, cooked, "Xft.rgba:\trgb\n")
	assert.Contains(t, cooked, "Xft.hintstyle:\thintmedium\n")

	// sub-pixel order is withheld when it cannot be trusted
	o.SubpixelOK = false
	cooked = cookResourceManager("", o)
	assert.Contains(t, cooked, "Xft.rgba:\tnone\n")
}

func TestCookSettingsBlobDPI(t *testing.T) {
	o := noOverrides
	o.DPI = 192
	blob := &SettingsBlob{Serial: 7, Settings: []Setting{
		{Type: SettingString, Name: "Gtk/FontName", Value: "Sans 10"},
		{Type: SettingInteger, Name: "Xft/DPI", Value: 98304},
		{Type: SettingString, Name: "Gtk/SessionBusId", Value: "abc"},
	}}
	cooked := cookSettingsBlob(blob, o)

	assert.Equal(t, uint32(7), cooked.Serial)
	_, found := blobValue(t, cooked, "Gtk/SessionBusId")
	assert.False(t, found)
	v, found := blobValue(t, cooked, "Xft/DPI")
	require.True(t, found)
	assert.Equal(t, 196608, v)
	v, found = blobValue(t, cooked, "Gtk/FontName")
	require.True(t, found)
	assert.Equal(t, "Sans 10", v)
}

func TestCookSettingsBlobDoubleClick(t *testing.T) {
	tests := []struct {
		x, y  int
		want  int
		found bool
	}{
		{8, 260, 128, true},
		{0, 0, 1, true},
		{4, 6, 5, true},
		{300, 300, 128, true},
		{-1, -1, 0, false},
	}
	for _, tt := range tests {
		cooked := cookSettingsBlob(&SettingsBlob{}, withDistance(tt.x, tt.y))
		v, found := blobValue(t, cooked, "Net/DoubleClickDistance")
		assert.Equalf(t, tt.found, found, "distance (%d, %d)", tt.x, tt.y)
		if tt.found {
			assert.Equalf(t, tt.want, v, "distance (%d, %d)", tt.x, tt.y)
		}
	}
}

func TestCookSettingsBlobDoubleClickTime(t *testing.T) {
	o := noOverrides
	o.DoubleClickTime = 250
	cooked := cookSettingsBlob(&SettingsBlob{}, o)
	v, found := blobValue(t, cooked, "Net/DoubleClickTime")
	require.True(t, found)
	assert.Equal(t, 250, v)
}

func TestCookSettingsBlobAntialiasRGBA(t *testing.T) {
	o := noOverrides
	o.Antialias = wire.Dict{"enabled": 1, "orientation": "BGR"}
	o.SubpixelOK = true
	cooked := cookSettingsBlob(&SettingsBlob{}, o)
	v, found := blobValue(t, cooked, "Xft/RGBA")
	require.True(t, found)
	assert.Equal(t, "bgr", v)

	o.SubpixelOK = false
	cooked = cookSettingsBlob(&SettingsBlob{}, o)
	v, _ = blobValue(t, cooked, "Xft/RGBA")
	assert.Equal(t, "none", v)
}

func TestAntialiasHintstyle(t *testing.T) {
	tests := []struct {
		antialias wire.Dict
		want      string
	}{
		{wire.Dict{"contrast": 1700}, "hintfull"},
		{wire.Dict{"contrast": 1100}, "hintmedium"},
		{wire.Dict{"contrast": 500}, "hintslight"},
		{wire.Dict{"contrast": 0}, "hintnone"},
		{wire.Dict{}, "hintnone"},
		{wire.Dict{"hintstyle": "HintSlight", "contrast": 1700}, "hintslight"},
		{wire.Dict{"hintstyle": "fancy", "contrast": 1700}, "hintfull"},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, antialiasHintstyle(tt.antialias), "antialias %v", tt.antialias)
	}
}

func TestParseSettingsBlobWireForm(t *testing.T) {
	raw := []any{3, []any{
		[]any{0, "Net/DoubleClickTime", 400, 1},
		[]any{1, "Gtk/FontName", "Sans 10", 2},
		[]any{0, "truncated"},
	}}
	blob := parseSettingsBlob(raw)
	assert.Equal(t, uint32(3), blob.Serial)
	require.Len(t, blob.Settings, 2)
	assert.Equal(t, Setting{Type: SettingInteger, Name: "Net/DoubleClickTime", Value: 400, Serial: 1}, blob.Settings[0])
	assert.Equal(t, Setting{Type: SettingString, Name: "Gtk/FontName", Value: "Sans 10", Serial: 2}, blob.Settings[1])

	// already-decoded blobs pass through untouched
	assert.Same(t, blob, parseSettingsBlob(blob))

	// anything unparseable becomes an empty blob
	assert.Empty(t, parseSettingsBlob("junk").Settings)
}

func TestSettingsUpdateAppliesAndDiffs(t *testing.T) {
	sink := &fakeSettingsSink{defaults: &SettingsBlob{Serial: 1, Settings: []Setting{
		{Type: SettingInteger, Name: "Net/CursorBlinkTime", Value: 1200},
	}}}
	s := NewSettings(true)
	s.Setup(sink)
	require.True(t, s.Enabled())

	o := noOverrides
	o.DPI = 96
	update := map[string]any{
		"resource-manager": "Gtk/CursorThemeName:\tAdwaita\n",
		"xsettings-blob": &SettingsBlob{Serial: 2, Settings: []Setting{
			{Type: SettingString, Name: "Gtk/FontName", Value: "Sans 10"},
		}},
	}
	s.Update(update, false, o)
	require.Len(t, sink.resources, 1)
	assert.Contains(t, sink.resources[0], "Xft.dpi:\t96\n")
	require.Len(t, sink.applied, 1)
	v, found := blobValue(t, sink.applied[0], "Xft/DPI")
	require.True(t, found)
	assert.Equal(t, 98304, v)

	// the same update cooks to the same values and is not re-applied
	s.Update(update, false, o)
	assert.Len(t, sink.resources, 1)
	assert.Len(t, sink.applied, 1)

	// a changed override is
	o.DPI = 120
	s.Refresh(o)
	assert.Len(t, sink.resources, 2)
	assert.Len(t, sink.applied, 2)
}

func TestSettingsResetRestoresDefaults(t *testing.T) {
	defaults := &SettingsBlob{Serial: 1, Settings: []Setting{
		{Type: SettingInteger, Name: "Net/CursorBlinkTime", Value: 1200},
	}}
	sink := &fakeSettingsSink{defaults: defaults}
	s := NewSettings(true)
	s.Setup(sink)

	s.Update(map[string]any{"xsettings-blob": &SettingsBlob{Serial: 5}}, false, noOverrides)
	s.Reset()
	require.NotEmpty(t, sink.applied)
	assert.True(t, defaults.Equal(sink.applied[len(sink.applied)-1]))
}

func TestSettingsDisabled(t *testing.T) {
	sink := &fakeSettingsSink{defaults: &SettingsBlob{}}
	s := NewSettings(false)
	s.Setup(sink)
	assert.False(t, s.Enabled())
	s.Update(map[string]any{"resource-manager": "a:\tb\n"}, false, noOverrides)
	assert.Empty(t, sink.resources)

	// a missing sink disables synchronization too
	s = NewSettings(true)
	s.Setup(nil)
	assert.False(t, s.Enabled())
}

func TestSettingsBlobEqual(t *testing.T) {
	a := &SettingsBlob{Serial: 1, Settings: []Setting{{Type: SettingInteger, Name: "x", Value: 1}}}
	b := &SettingsBlob{Serial: 1, Settings: []Setting{{Type: SettingInteger, Name: "x", Value: 1}}}
	assert.True(t, a.Equal(b))

	b.Settings[0].Value = 2
	assert.False(t, a.Equal(b))

	b.Settings[0].Value = 1
	b.Serial = 2
	assert.False(t, a.Equal(b))

	assert.False(t, a.Equal(nil))
	var nilBlob *SettingsBlob
	assert.True(t, nilBlob.Equal(nil))
}
