package display

import (
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/wire"
)

// Setting value types, matching the XSETTINGS wire encoding.
type SettingType int

const (
	SettingInteger SettingType = 0
	SettingString  SettingType = 1
	SettingColor   SettingType = 2
)

// Setting is a single typed desktop setting.
type Setting struct {
	Type   SettingType
	Name   string
	Value  any
	Serial uint32
}

// SettingsBlob is a versioned collection of settings.
type SettingsBlob struct {
	Serial   uint32
	Settings []Setting
}

// Equal compares two blobs including their serials.
func (b *SettingsBlob) Equal(other *SettingsBlob) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Serial != other.Serial || len(b.Settings) != len(other.Settings) {
		return false
	}
	for i, st := range b.Settings {
		o := other.Settings[i]
		if st.Type != o.Type || st.Name != o.Name || st.Serial != o.Serial {
			return false
		}
		if !reflect.DeepEqual(st.Value, o.Value) {
			return false
		}
	}
	return true
}

// Some settings must never be forwarded from a client: they are
// specific to the client's own desktop session.
var blocklisted = func() []string {
	v := os.Getenv("SEAMD_BLOCKLISTED_SETTINGS")
	if v == "" {
		v = "Gdk/WindowScalingFactor,Gtk/SessionBusId,Gtk/IMModule"
	}
	return strings.Split(v, ",")
}()

// Overrides are the server-side values folded into client settings
// while cooking.
type Overrides struct {
	DPI             int
	DoubleClickTime int
	// DoubleClickDistance of (-1, -1) means no client supplied one; an
	// explicit (0, 0) is a real value and still cooks.
	DoubleClickDistance [2]int
	Antialias           wire.Dict
	CursorSize          int
	// SubpixelOK is set when sub-pixel font hinting can be honoured.
	SubpixelOK bool
}

func (o Overrides) any() bool {
	return o.DPI > 0 || o.DoubleClickTime > 0 || len(o.Antialias) > 0 ||
		(o.DoubleClickDistance[0] >= 0 && o.DoubleClickDistance[1] >= 0)
}

// SettingsSink applies cooked settings to the display.
type SettingsSink interface {
	// CurrentSettings reads the settings in effect, used to capture the
	// defaults to restore later.
	CurrentSettings() (*SettingsBlob, error)
	ApplySettings(*SettingsBlob) error
	SetResourceManager(value string) error
}

// Settings mirrors client desktop settings into the display, cooking
// DPI, antialias and double-click overrides into them on the way.
type Settings struct {
	enabled  bool
	sink     SettingsSink
	defaults *SettingsBlob
	current  map[string]any
}

func NewSettings(enabled bool) *Settings {
	return &Settings{
		enabled: enabled,
		current: map[string]any{},
	}
}

func (s *Settings) Enabled() bool {
	return s.enabled && s.sink != nil
}

// Setup wires in the sink and captures the default settings.
func (s *Settings) Setup(sink SettingsSink) {
	if !s.enabled {
		return
	}
	if sink == nil {
		logger.Debug("settings synchronization is not available")
		s.enabled = false
		return
	}
	s.sink = sink
	blob, err := sink.CurrentSettings()
	if err != nil {
		logger.Warnf("Warning: failed to read the current settings: %v", err)
		return
	}
	s.defaults = blob
}

// Reset restores the settings captured at startup.
func (s *Settings) Reset() {
	if !s.Enabled() {
		return
	}
	blob := s.defaults
	if blob == nil {
		blob = &SettingsBlob{}
	}
	logger.Debugf("resetting settings to %d defaults", len(blob.Settings))
	if err := s.sink.ApplySettings(blob); err != nil {
		logger.Warnf("Warning: failed to reset settings: %v", err)
	}
}

// UpdateAll re-derives the cooked settings from scratch, so that DPI
// and antialias overrides get refreshed even without client input.
func (s *Settings) UpdateAll(reset bool, o Overrides) {
	s.Update(map[string]any{
		"resource-manager": "",
		"xsettings-blob":   &SettingsBlob{},
	}, reset, o)
}

// Refresh re-cooks the last known settings with new overrides.
func (s *Settings) Refresh(o Overrides) {
	if len(s.current) == 0 {
		s.UpdateAll(false, o)
		return
	}
	snapshot := make(map[string]any, len(s.current))
	for k, v := range s.current {
		snapshot[k] = v
	}
	s.Update(snapshot, false, o)
}

// Update merges incoming settings, cooks the overrides in and applies
// whatever actually changed.
func (s *Settings) Update(settings map[string]any, reset bool, o Overrides) {
	if !s.Enabled() {
		logger.Debugf("ignoring settings update with %d entries", len(settings))
		return
	}
	if reset {
		s.Reset()
		s.current = map[string]any{}
		if s.defaults != nil {
			for _, st := range s.defaults.Settings {
				s.current[st.Name] = st.Value
			}
		}
	}
	old := make(map[string]any, len(s.current))
	for k, v := range s.current {
		old[k] = v
	}
	for k, raw := range settings {
		var v any = raw
		switch k {
		case "resource-manager":
			value, _ := wire.AsStr(raw)
			if o.DPI > 0 || len(o.Antialias) > 0 || o.CursorSize > 0 {
				value = cookResourceManager(value, o)
			}
			v = value
		case "xsettings-blob":
			blob := parseSettingsBlob(raw)
			if o.any() {
				blob = cookSettingsBlob(blob, o)
			}
			v = blob
		}
		s.current[k] = v
		if oldV, ok := old[k]; ok && settingEqual(oldV, v) {
			continue
		}
		switch k {
		case "resource-manager":
			value, _ := v.(string)
			if err := s.sink.SetResourceManager(value); err != nil {
				logger.Warnf("Warning: failed to set the resource manager: %v", err)
			}
		case "xsettings-blob":
			blob, _ := v.(*SettingsBlob)
			if err := s.sink.ApplySettings(blob); err != nil {
				logger.Warnf("Warning: failed to apply settings: %v", err)
			}
		default:
			logger.Warnf("Warning: unexpected setting %s", k)
		}
	}
}

func settingEqual(a, b any) bool {
	if ab, ok := a.(*SettingsBlob); ok {
		bb, ok := b.(*SettingsBlob)
		return ok && ab.Equal(bb)
	}
	return reflect.DeepEqual(a, b)
}

// parseSettingsBlob accepts either an already-decoded blob or the
// positional wire form [serial, [[type, name, value, serial], ...]].
func parseSettingsBlob(v any) *SettingsBlob {
	if b, ok := v.(*SettingsBlob); ok {
		return b
	}
	seq, ok := wire.AsList(v)
	if !ok || len(seq) < 2 {
		return &SettingsBlob{}
	}
	serial, _ := wire.AsInt(seq[0])
	blob := &SettingsBlob{Serial: uint32(serial)}
	entries, _ := wire.AsList(seq[1])
	for _, e := range entries {
		f, ok := wire.AsList(e)
		if !ok || len(f) < 4 {
			continue
		}
		t, _ := wire.AsInt(f[0])
		name, _ := wire.AsStr(f[1])
		sv, _ := wire.AsInt(f[3])
		st := Setting{Type: SettingType(t), Name: name, Serial: uint32(sv)}
		switch st.Type {
		case SettingInteger:
			n, _ := wire.AsInt(f[2])
			st.Value = int(n)
		case SettingString:
			str, _ := wire.AsStr(f[2])
			st.Value = str
		default:
			st.Value = f[2]
		}
		blob.Settings = append(blob.Settings, st)
	}
	return blob
}

// cookResourceManager rewrites an X resource blob, stripping
// blocklisted keys and folding in the cursor size, DPI and antialias
// overrides. Records are newline-delimited "key:\tvalue" pairs.
func cookResourceManager(value string, o Overrides) string {
	var keys []string
	values := map[string]string{}
	set := func(k, v string) {
		if _, ok := values[k]; !ok {
			keys = append(keys, k)
		}
		values[k] = v
	}
	for _, option := range strings.Split(value, "\n") {
		if option == "" {
			continue
		}
		parts := strings.SplitN(option, ":\t", 2)
		if len(parts) != 2 {
			logger.Debugf("skipped invalid option: %q", option)
			continue
		}
		if slices.Contains(blocklisted, parts[0]) {
			logger.Debugf("skipped blocklisted option: %q", option)
			continue
		}
		set(parts[0], parts[1])
	}
	if o.CursorSize > 0 {
		set("Xcursor.size", strconv.Itoa(o.CursorSize))
	}
	if o.DPI > 0 {
		set("Xft.dpi", strconv.Itoa(o.DPI))
		set("Xft/DPI", strconv.Itoa(o.DPI*1024))
		set("gnome.Xft/DPI", strconv.Itoa(o.DPI*1024))
	}
	if len(o.Antialias) > 0 {
		subpixel := "none"
		if o.SubpixelOK {
			subpixel = strings.ToLower(o.Antialias.Str("orientation", "none"))
		}
		set("Xft.antialias", strconv.Itoa(o.Antialias.Int("enabled", -1)))
		set("Xft.hinting", strconv.Itoa(o.Antialias.Int("hinting", -1)))
		set("Xft.rgba", subpixel)
		set("Xft.hintstyle", antialiasHintstyle(o.Antialias))
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(":\t")
		b.WriteString(values[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// cookSettingsBlob strips blocklisted settings and folds the overrides
// into the blob.
func cookSettingsBlob(blob *SettingsBlob, o Overrides) *SettingsBlob {
	cooked := &SettingsBlob{Serial: blob.Serial}
	for _, st := range blob.Settings {
		if slices.Contains(blocklisted, st.Name) {
			logger.Debugf("skipped blocklisted setting %s", st.Name)
			continue
		}
		cooked.Settings = append(cooked.Settings, st)
	}
	set := func(name string, t SettingType, value any) {
		kept := make([]Setting, 0, len(cooked.Settings)+1)
		for _, st := range cooked.Settings {
			if st.Name != name {
				kept = append(kept, st)
			}
		}
		cooked.Settings = append(kept, Setting{Type: t, Name: name, Value: value})
	}
	setInt := func(name string, value int) {
		if value < 0 {
			return
		}
		set(name, SettingInteger, value)
	}
	if o.DPI > 0 {
		setInt("Xft/DPI", o.DPI*1024)
	}
	if o.DoubleClickTime > 0 {
		setInt("Net/DoubleClickTime", o.DoubleClickTime)
	}
	if len(o.Antialias) > 0 {
		subpixel := "none"
		if o.SubpixelOK {
			subpixel = strings.ToLower(o.Antialias.Str("orientation", "none"))
		}
		setInt("Xft/Antialias", o.Antialias.Int("enabled", -1))
		setInt("Xft/Hinting", o.Antialias.Int("hinting", -1))
		set("Xft/RGBA", SettingString, subpixel)
		set("Xft/HintStyle", SettingString, antialiasHintstyle(o.Antialias))
	}
	// some platforms report a distance per axis but X11 only has one
	// value, so take the average
	if x, y := o.DoubleClickDistance[0], o.DoubleClickDistance[1]; x >= 0 && y >= 0 {
		d := roundDiv(float64(x+y) / 2)
		d = max(1, min(128, d))
		setInt("Net/DoubleClickDistance", d)
	}
	return cooked
}

// antialiasHintstyle maps client hinting information to an X11 hint
// style. X11 clients send the style directly; win32 style clients send
// a contrast value instead.
func antialiasHintstyle(antialias wire.Dict) string {
	hintstyle := strings.ToLower(antialias.Str("hintstyle", ""))
	switch hintstyle {
	case "hintnone", "hintslight", "hintmedium", "hintfull":
		return hintstyle
	}
	contrast := antialias.Int("contrast", -1)
	switch {
	case contrast > 1600:
		return "hintfull"
	case contrast > 1000:
		return "hintmedium"
	case contrast > 0:
		return "hintslight"
	}
	return "hintnone"
}
