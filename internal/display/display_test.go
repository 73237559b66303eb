package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/wire"
)

type fakeBackend struct {
	rootW, rootH       int
	depth              int
	sizes              [][2]int
	exact              bool
	addErr, setErr     error
	wmm, hmm           int
	physW, physH       int
	desktopW, desktopH int
	workarea           [4]int
	desktops           int
	names              []string
	ungrabbed          int
	added              [][2]int
	setCalls           [][2]int
}

func (b *fakeBackend) Name() string          { return ":1" }
func (b *fakeBackend) RootSize() (int, int)  { return b.rootW, b.rootH }
func (b *fakeBackend) BitDepth() int         { return b.depth }
func (b *fakeBackend) ScreenSizes() [][2]int { return b.sizes }
func (b *fakeBackend) ExactResize() bool     { return b.exact }
func (b *fakeBackend) SizeMM() (int, int)    { return b.wmm, b.hmm }
func (b *fakeBackend) Ungrab()               { b.ungrabbed++ }

func (b *fakeBackend) AddScreenSize(w, h int) error {
	if b.addErr != nil {
		return b.addErr
	}
	b.added = append(b.added, [2]int{w, h})
	b.sizes = append(b.sizes, [2]int{w, h})
	return nil
}

func (b *fakeBackend) SetScreenSize(w, h int) error {
	b.setCalls = append(b.setCalls, [2]int{w, h})
	if b.setErr != nil {
		return b.setErr
	}
	b.rootW, b.rootH = w, h
	return nil
}

func (b *fakeBackend) SetPhysicalSize(wmm, hmm int) error {
	b.physW, b.physH = wmm, hmm
	return nil
}

func (b *fakeBackend) SetDesktopGeometry(w, h int) error {
	b.desktopW, b.desktopH = w, h
	return nil
}

func (b *fakeBackend) SetWorkarea(x, y, w, h int) error {
	b.workarea = [4]int{x, y, w, h}
	return nil
}

func (b *fakeBackend) SetDesktops(count int, names []string) error {
	b.desktops = count
	b.names = names
	return nil
}

func (b *fakeBackend) Screenshot() (int, int, []byte, error) {
	return b.rootW, b.rootH, []byte{0x89, 0x50}, nil
}

type fakeDisplaySource struct {
	uuid     string
	desktop  DesktopState
	notified [][4]int
	rate     int
}

func (s *fakeDisplaySource) UUID() string           { return s.uuid }
func (s *fakeDisplaySource) Desktop() *DesktopState { return &s.desktop }
func (s *fakeDisplaySource) SetRefreshRate(r int)   { s.rate = r }

func (s *fakeDisplaySource) UpdatedDesktopSize(rootW, rootH, maxW, maxH int) bool {
	if s.desktop.ServerWidth == rootW && s.desktop.ServerHeight == rootH {
		return false
	}
	s.desktop.SetServerSize(rootW, rootH)
	s.notified = append(s.notified, [4]int{rootW, rootH, maxW, maxH})
	return true
}

type fakeDisplayRegistry struct {
	sources []Source
}

func (r *fakeDisplayRegistry) DisplaySources() []Source { return r.sources }

func testDisplayConfig() config.DisplayConfig {
	return config.DisplayConfig{
		Resize:      true,
		DPI:         96,
		RefreshRate: "auto",
	}
}

func newTestNegotiator(backend *fakeBackend) (*Negotiator, *fakeDisplaySource) {
	src := &fakeDisplaySource{uuid: "client-1"}
	reg := &fakeDisplayRegistry{sources: []Source{src}}
	n := New(scheduler.NewManual(), reg, testDisplayConfig())
	n.Setup(backend)
	return n, src
}

func screenEntry(name string, w, h, wmm, hmm, workX, workY, workW, workH int) []any {
	return []any{name, w, h, wmm, hmm, []any{}, workX, workY, workW, workH}
}

func TestProcessDesktopSizeFullPacket(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {1920, 1080}}}
	n, src := newTestNegotiator(backend)

	screens := []any{screenEntry(":0.0", 1920, 1080, 508, 285, 0, 30, 1920, 1050)}
	monitors := map[string]any{
		"0": map[string]any{"refresh-rate": 59940},
	}
	p := wire.New("desktop_size", 1920, 1080, screens, 2, []any{"One", "Two"},
		1920, 1080, 96, 120, 0, monitors)
	require.NoError(t, n.ProcessDesktopSize(src, p))

	assert.Equal(t, 1920, src.desktop.Width)
	assert.Equal(t, 1080, src.desktop.Height)
	assert.Equal(t, [2]int{1920, 1080}, [2]int{src.desktop.UnscaledWidth, src.desktop.UnscaledHeight})
	assert.Len(t, src.desktop.Monitors, 1)
	assert.Zero(t, src.desktop.VRefresh)
	require.Len(t, src.desktop.Screens, 1)
	assert.Equal(t, ":0.0", src.desktop.Screens[0].Name)

	// dpi is the average of the per-axis values
	assert.Equal(t, 108, n.dpi)
	assert.Equal(t, 96, n.xdpi)
	assert.Equal(t, 120, n.ydpi)

	// the display was resized and the desktop attributes follow
	assert.Equal(t, 1920, backend.rootW)
	assert.Equal(t, [2]int{1920, 1080}, [2]int{backend.desktopW, backend.desktopH})
	assert.Equal(t, 2, backend.desktops)
	assert.Equal(t, []string{"One", "Two"}, backend.names)

	// refresh rate from the monitor definition, floor-divided to Hz
	assert.Equal(t, 59, src.rate)
}

func TestProcessDesktopSizeShortPacket(t *testing.T) {
	backend := &fakeBackend{rootW: 800, rootH: 600, sizes: [][2]int{{800, 600}}}
	n, src := newTestNegotiator(backend)

	require.NoError(t, n.ProcessDesktopSize(src, wire.New("desktop_size", 800, 600)))
	assert.Equal(t, 800, src.desktop.Width)
	assert.Zero(t, n.dpi)
	assert.Empty(t, src.desktop.Screens)
}

func TestProcessDesktopSizeMalformed(t *testing.T) {
	backend := &fakeBackend{rootW: 800, rootH: 600, sizes: [][2]int{{800, 600}}}
	n, src := newTestNegotiator(backend)

	err := n.ProcessDesktopSize(src, wire.New("desktop_size", "wide", 600))
	assert.Error(t, err)

	err = n.ProcessDesktopSize(src, wire.New("desktop_size", 123456, 600))
	assert.Error(t, err)
}

func TestProcessDesktopSizeVRefreshFallback(t *testing.T) {
	backend := &fakeBackend{rootW: 800, rootH: 600, sizes: [][2]int{{800, 600}}}
	n, src := newTestNegotiator(backend)

	p := wire.New("desktop_size", 800, 600, []any{}, 1, []any{}, 800, 600, 0, 0, 60)
	require.NoError(t, n.ProcessDesktopSize(src, p))
	assert.Equal(t, 60, src.desktop.VRefresh)
	assert.Equal(t, 60, src.rate)

	// out of range values are ignored
	p = wire.New("desktop_size", 800, 600, []any{}, 1, []any{}, 800, 600, 0, 0, 240)
	require.NoError(t, n.ProcessDesktopSize(src, p))
	assert.Equal(t, 60, src.desktop.VRefresh)
}

func TestProcessConfigureDisplay(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {1280, 800}}}
	n, src := newTestNegotiator(backend)

	attrs := map[string]any{
		"desktop-size":  []any{1280, 800},
		"vrefresh":      75,
		"dpi":           map[string]any{"x": 120, "y": 120},
		"desktop-names": []any{"Work", "Play"},
	}
	require.NoError(t, n.ProcessConfigureDisplay(src, wire.New("configure-display", attrs)))

	assert.Equal(t, [2]int{1280, 800}, [2]int{src.desktop.Width, src.desktop.Height})
	assert.Equal(t, 75, src.desktop.VRefresh)
	assert.Equal(t, 120, n.dpi)
	assert.Equal(t, 1280, backend.rootW)
	assert.Equal(t, 2, backend.desktops)
	assert.Equal(t, []string{"Work", "Play"}, backend.names)
	assert.Equal(t, 75, src.rate)
}

func TestWorkareaIntersection(t *testing.T) {
	backend := &fakeBackend{rootW: 2560, rootH: 1600, sizes: [][2]int{{2560, 1600}}}
	n, src := newTestNegotiator(backend)
	other := &fakeDisplaySource{uuid: "client-2"}
	n.registry.(*fakeDisplayRegistry).sources = append(n.registry.(*fakeDisplayRegistry).sources, other)

	src.desktop.SetScreens([]any{screenEntry(":0.0", 2560, 1600, 677, 423, 0, 30, 2560, 1570)})
	other.desktop.SetScreens([]any{screenEntry(":1.0", 2048, 1536, 0, 0, 0, 0, 2048, 1536)})

	n.calculateWorkarea(2560, 1600)
	assert.Equal(t, [4]int{0, 30, 2048, 1506}, backend.workarea)
}

func TestWorkareaDegenerateFallsBack(t *testing.T) {
	backend := &fakeBackend{rootW: 1920, rootH: 1080, sizes: [][2]int{{1920, 1080}}}
	n, src := newTestNegotiator(backend)

	// two workareas that do not overlap
	src.desktop.SetScreens([]any{
		screenEntry("a", 1920, 1080, 0, 0, 0, 0, 800, 1080),
		screenEntry("b", 1920, 1080, 0, 0, 1000, 0, 800, 1080),
	})
	n.calculateWorkarea(1920, 1080)
	assert.Equal(t, [4]int{0, 0, 1920, 1080}, backend.workarea)
}

func TestWorkareaOversizedRejected(t *testing.T) {
	backend := &fakeBackend{rootW: 30000, rootH: 1080, sizes: [][2]int{{30000, 1080}}}
	n, src := newTestNegotiator(backend)

	// a video wall: the intersected workarea is wider than X11 tools
	// handle, so the trim is discarded
	src.desktop.SetScreens([]any{screenEntry("wall", 30000, 1080, 0, 0, 0, 30, 30000, 1000)})
	n.calculateWorkarea(30000, 1080)
	assert.Equal(t, [4]int{0, 0, 30000, 1080}, backend.workarea)
}

func TestSetScreenSizeClosestMatch(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1920, 1080}, {1280, 720}, {1024, 768}}}
	n, _ := newTestNegotiator(backend)
	n.dpi = 96

	w, h := n.SetScreenSize(1600, 900)
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h})
	assert.Contains(t, backend.setCalls, [2]int{1280, 720})
	// physical size derived from the requested size at 96 dpi
	assert.Equal(t, 423, backend.physW)
	assert.Equal(t, 238, backend.physH)
}

func TestSetScreenSizeExactResize(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}}, exact: true}
	n, _ := newTestNegotiator(backend)
	n.dpi = 96

	w, h := n.SetScreenSize(1600, 900)
	assert.Equal(t, [2]int{1600, 900}, [2]int{w, h})
	assert.Equal(t, [][2]int{{1600, 900}}, backend.added)
}

func TestSetScreenSizeNoResize(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}}}
	cfg := testDisplayConfig()
	cfg.Resize = false
	n := New(scheduler.NewManual(), &fakeDisplayRegistry{}, cfg)
	n.Setup(backend)

	w, h := n.SetScreenSize(1920, 1080)
	assert.Equal(t, [2]int{1024, 768}, [2]int{w, h})
	assert.Empty(t, backend.setCalls)
}

func TestConfigureBestScreenSizePicksLargestClient(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {1920, 1080}, {2560, 1440}}}
	n, src := newTestNegotiator(backend)
	src.desktop.SetSize(1920, 1080)
	other := &fakeDisplaySource{uuid: "client-2"}
	other.desktop.SetSize(2560, 1440)
	n.registry.(*fakeDisplayRegistry).sources = append(n.registry.(*fakeDisplayRegistry).sources, other)

	w, h, ok := n.ConfigureBestScreenSize()
	require.True(t, ok)
	assert.Equal(t, [2]int{2560, 1440}, [2]int{w, h})
	assert.Equal(t, 2560, backend.rootW)
}

func TestParseScreenInfoRecordsServerSize(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {1920, 1080}}}
	n, src := newTestNegotiator(backend)
	src.desktop.SetSize(1920, 1080)

	w, h := n.ParseScreenInfo(src)
	assert.Equal(t, [2]int{1920, 1080}, [2]int{w, h})
	// recorded so the hello response does not trigger a notification
	assert.Equal(t, 1920, src.desktop.ServerWidth)
	assert.Empty(t, src.notified)
}

func TestSendUpdatedScreenSizeSuppressesEcho(t *testing.T) {
	backend := &fakeBackend{rootW: 1920, rootH: 1080, sizes: [][2]int{{1920, 1080}, {2560, 1440}}}
	n, src := newTestNegotiator(backend)
	src.desktop.SetServerSize(1920, 1080)

	n.SendUpdatedScreenSize()
	assert.Empty(t, src.notified)

	backend.rootW, backend.rootH = 2560, 1440
	n.SendUpdatedScreenSize()
	require.Len(t, src.notified, 1)
	assert.Equal(t, [4]int{2560, 1440, 2560, 1440}, src.notified[0])

	// a repeat changes nothing
	n.SendUpdatedScreenSize()
	assert.Len(t, src.notified, 1)
}

func TestSendUpdatedScreenSizeClampsToMax(t *testing.T) {
	// the root can exceed the advertised maximum while a mode switch is
	// in flight; clients only ever see the clamped size
	backend := &fakeBackend{rootW: 1920, rootH: 1080, sizes: [][2]int{{1600, 1200}}}
	n, src := newTestNegotiator(backend)

	n.SendUpdatedScreenSize()
	require.Len(t, src.notified, 1)
	assert.Equal(t, [4]int{1600, 1080, 1600, 1200}, src.notified[0])
}

func TestScreenChangedDebounce(t *testing.T) {
	backend := &fakeBackend{rootW: 1920, rootH: 1080, sizes: [][2]int{{1920, 1080}}}
	src := &fakeDisplaySource{uuid: "client-1"}
	clock := scheduler.NewManual()
	n := New(clock, &fakeDisplayRegistry{sources: []Source{src}}, testDisplayConfig())
	n.Setup(backend)

	n.ScreenChanged()
	n.ScreenChanged()
	n.ScreenChanged()
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(screenChangedDelay)
	require.Len(t, src.notified, 1)
	assert.Equal(t, [2]int{1920, 1080}, [2]int{backend.desktopW, backend.desktopH})
}

func TestMaxScreenSize(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {2560, 1440}}}
	n, _ := newTestNegotiator(backend)

	w, h := n.MaxScreenSize()
	assert.Equal(t, [2]int{2560, 1440}, [2]int{w, h})
}

func TestAddClientParsesDPIAndDoubleClick(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}}}
	n, _ := newTestNegotiator(backend)

	n.AddClient(wire.Dict{
		"dpi":          map[string]any{"": 110, "x": 108, "y": 112},
		"antialias":    map[string]any{"enabled": 1},
		"double_click": map[string]any{"time": 250, "distance": []any{4, 6}},
	}, 0)
	assert.Equal(t, 110, n.dpi)
	assert.Equal(t, 108, n.xdpi)
	assert.Equal(t, 112, n.ydpi)
	assert.Equal(t, 250, n.doubleClickTime)
	assert.Equal(t, [2]int{4, 6}, n.doubleClickDistance)

	// legacy flat dpi value
	n.AddClient(wire.Dict{"dpi": 96}, 0)
	assert.Equal(t, 96, n.dpi)
	assert.Equal(t, 96, n.xdpi)

	// shared sessions contend on these, so they reset
	n.AddClient(wire.Dict{"dpi": 120}, 1)
	assert.Zero(t, n.dpi)
	assert.Equal(t, [2]int{-1, -1}, n.doubleClickDistance)
}

func TestCapsContents(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {1920, 1080}}}
	n, src := newTestNegotiator(backend)
	src.desktop.SetSize(800, 600)

	caps := n.Caps(src)
	assert.Equal(t, []int{1024, 768}, caps["actual_desktop_size"])
	assert.Equal(t, []int{800, 600}, caps["desktop_size"])
	assert.Equal(t, []int{1920, 1080}, caps["max_desktop_size"])
	assert.Equal(t, true, caps["resize_screen"])
	assert.Equal(t, true, caps["force_ungrab"])
	assert.Len(t, caps["screen-sizes"], 2)
}

func TestForceUngrab(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}}}
	n, src := newTestNegotiator(backend)

	require.NoError(t, n.ProcessForceUngrab(src, wire.New("force-ungrab", 1)))
	assert.Equal(t, 1, backend.ungrabbed)
}

func TestMakeScreenshotPacket(t *testing.T) {
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}}}
	n, _ := newTestNegotiator(backend)

	p, err := n.MakeScreenshotPacket()
	require.NoError(t, err)
	assert.Equal(t, "screenshot", p.Type())

	w, err := p.Int(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), w)
}

func TestRefreshRateForValue(t *testing.T) {
	tests := []struct {
		setting string
		value   int
		want    int
	}{
		{"auto", 120000, 120000},
		{"", 120000, 120000},
		{"none", 120000, 120000},
		{"50%", 120000, 60000},
		{"60", 120000, 60000},
		{"60", 50000, 50000},
		{"60", 0, 60000},
		{"250000", 120000, 120000},
		{"abc", 120000, 120000},
		{"0", 120000, 120000},
	}
	for _, tt := range tests {
		got := RefreshRateForValue(tt.setting, tt.value, 1000)
		assert.Equalf(t, tt.want, got, "setting %q value %d", tt.setting, tt.value)
	}
}

func TestSetScreensSkipsBrokenEntries(t *testing.T) {
	var ds DesktopState
	count := ds.SetScreens([]any{
		screenEntry(":0.0", 1920, 1080, 508, 285, 0, 0, 1920, 1050),
		"garbage",
		[]any{"too-short"},
		nil,
	})
	assert.Equal(t, 1, count)
	require.Len(t, ds.Screens, 1)
	assert.True(t, ds.Screens[0].HasWorkarea())
	assert.True(t, ds.Screens[0].HasPhysicalSize())
}
