// Package display negotiates screen geometry between the server
// display and connected clients: picking the best resolution, deriving
// DPI from client metrics, computing the common workarea and desktops,
// and cooking per-client settings back into the display.
package display

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/wire"
)

const (
	// DefaultDPI is assumed when neither the client nor the
	// configuration supply a value.
	DefaultDPI = 96
	// maxWindowSize bounds dimensions X11 tools reliably handle; a
	// computed workarea at or above it is treated as bogus.
	maxWindowSize = 32768 - 8192
	// maxDesktops caps the virtual desktop count clients can request.
	maxDesktops = 20
	// screenChangedDelay coalesces backend geometry notifications.
	screenChangedDelay = 10 * time.Millisecond
)

// Source is one connected UI client taking part in geometry
// negotiation.
type Source interface {
	UUID() string
	Desktop() *DesktopState
	// UpdatedDesktopSize notifies the client of new server geometry.
	// It reports false when the notification was suppressed, either
	// because the handshake is not finished or because it would only
	// echo the client's own request.
	UpdatedDesktopSize(rootW, rootH, maxW, maxH int) bool
	// SetRefreshRate records the refresh rate chosen for this client.
	SetRefreshRate(rate int)
}

// Registry lists the UI clients in connection order.
type Registry interface {
	DisplaySources() []Source
}

// Backend drives the actual display: mode queries and switching,
// desktop geometry properties and screen capture.
type Backend interface {
	Name() string
	RootSize() (int, int)
	BitDepth() int
	ScreenSizes() [][2]int
	ExactResize() bool
	AddScreenSize(w, h int) error
	SetScreenSize(w, h int) error
	SizeMM() (int, int)
	SetPhysicalSize(wmm, hmm int) error
	SetDesktopGeometry(w, h int) error
	SetWorkarea(x, y, w, h int) error
	SetDesktops(count int, names []string) error
	Ungrab()
	Screenshot() (w, h int, data []byte, err error)
}

// Negotiator owns the server-wide display state: the agreed geometry,
// DPI and antialias overrides, and the settings manager that pushes
// them to the display.
type Negotiator struct {
	clock    scheduler.Clock
	registry Registry
	backend  Backend
	settings *Settings

	resize      bool
	exactResize bool
	sizesAdded  [][2]int
	refreshRate string

	defaultDPI      int
	dpi, xdpi, ydpi int
	antialias       wire.Dict

	doubleClickTime     int
	doubleClickDistance [2]int

	bitDepth           int
	cursorSize         func() int
	screenChangedTimer scheduler.Timer
}

func New(clock scheduler.Clock, registry Registry, cfg config.DisplayConfig) *Negotiator {
	return &Negotiator{
		clock:               clock,
		registry:            registry,
		settings:            NewSettings(cfg.SyncSettings),
		resize:              cfg.Resize,
		refreshRate:         cfg.RefreshRate,
		defaultDPI:          cfg.DPI,
		doubleClickDistance: [2]int{-1, -1},
		cursorSize:          func() int { return 0 },
	}
}

// Setup wires in the display backend. A missing backend or an empty
// mode list downgrades resizing instead of failing.
func (d *Negotiator) Setup(backend Backend) {
	if backend == nil {
		if d.resize {
			logger.Warn("Warning: no display backend")
			logger.Warn(" the virtual display cannot be configured properly")
			d.resize = false
		}
		return
	}
	d.backend = backend
	d.bitDepth = backend.BitDepth()
	if d.resize {
		sizes := backend.ScreenSizes()
		if len(sizes) == 0 {
			logger.Warn("Warning: no screen resolutions reported")
			logger.Warn(" the virtual display cannot be configured properly")
			d.resize = false
		} else {
			d.exactResize = backend.ExactResize() || len(sizes) == 1
		}
	}
	d.printScreenInfo()
}

// SetupSettings wires in the settings sink and primes the display with
// the configured defaults.
func (d *Negotiator) SetupSettings(sink SettingsSink) {
	d.settings.Setup(sink)
	dpi := d.defaultDPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	d.settings.UpdateAll(true, Overrides{DPI: dpi, CursorSize: 24, DoubleClickDistance: [2]int{-1, -1}})
}

// Settings exposes the settings manager for packet routing.
func (d *Negotiator) Settings() *Settings {
	return d.settings
}

// SetCursorSizeFunc supplies the negotiated cursor size for settings
// cooking.
func (d *Negotiator) SetCursorSizeFunc(fn func() int) {
	if fn != nil {
		d.cursorSize = fn
	}
}

func (d *Negotiator) printScreenInfo() {
	desc := fmt.Sprintf("display %s", d.backend.Name())
	if w, h := d.backend.RootSize(); w > 0 && h > 0 {
		desc += fmt.Sprintf(" with size %dx%d", w, h)
	}
	logger.Info(desc)
	if d.bitDepth > 0 {
		logger.Infof(" with %d bit colors", d.bitDepth)
	}
}

// AddClient ingests the display caps of a new connection. When the
// session is shared the per-client overrides are contended, so they
// reset to neutral values instead of flapping between clients.
func (d *Negotiator) AddClient(caps wire.Dict, shareCount int) {
	if shareCount > 0 {
		logger.Infof("sharing with %d other client(s)", shareCount)
		d.dpi, d.xdpi, d.ydpi = 0, 0, 0
		d.antialias = nil
		d.doubleClickTime = 0
		d.doubleClickDistance = [2]int{-1, -1}
		return
	}
	if n, ok := wire.AsInt(caps.Raw("dpi")); ok {
		// legacy flat form
		d.dpi, d.xdpi, d.ydpi = int(n), int(n), int(n)
	} else if tdpi := caps.Sub("dpi"); tdpi != nil {
		d.dpi = tdpi.Int("", 0)
		d.xdpi = tdpi.Int("x", d.xdpi)
		d.ydpi = tdpi.Int("y", d.ydpi)
	}
	d.antialias = caps.Sub("antialias")
	if dc := caps.Sub("double_click"); dc != nil {
		d.doubleClickTime = dc.Int("time", 0)
		if x, y, ok := dc.IntPair("distance"); ok {
			d.doubleClickDistance = [2]int{x, y}
		}
	} else {
		d.doubleClickTime = caps.Int("double_click.time", 0)
		if x, y, ok := caps.IntPair("double_click.distance"); ok {
			d.doubleClickDistance = [2]int{x, y}
		}
	}
	logger.Debugf("dpi=%d, dpi.x=%d, dpi.y=%d, antialias=%v", d.dpi, d.xdpi, d.ydpi, d.antialias)
}

// ParseScreenInfo negotiates the initial geometry for a new client and
// returns the desktop size to announce in the hello response.
func (d *Negotiator) ParseScreenInfo(src Source) (int, int) {
	ds := src.Desktop()
	dw, dh := ds.Width, ds.Height
	if dw > 0 && dh > 0 {
		logger.Infof(" client root window size is %dx%d", dw, dh)
		ds.logScreens()
	}
	sw, sh, ok := d.ConfigureBestScreenSize()
	if !ok {
		return dw, dh
	}
	// the client learns this size from the hello response, so record it
	// as already-known to avoid a redundant change notification
	ds.SetServerSize(sw, sh)
	w, h := dw, dh
	if w == 0 {
		w = sw
	}
	if h == 0 {
		h = sh
	}
	if maxW, maxH := d.MaxScreenSize(); maxW > 0 && maxH > 0 {
		w = min(w, maxW)
		h = min(h, maxH)
	}
	d.setDesktopGeometryAttributes(w, h)
	d.ApplyRefreshRate(src)
	logger.Debugf("screen size for %s: %dx%d", src.UUID(), w, h)
	return w, h
}

// ConfigureBestScreenSize switches the display to the largest size any
// UI client is using.
func (d *Negotiator) ConfigureBestScreenSize() (int, int, bool) {
	if d.backend == nil {
		return 0, 0, false
	}
	rootW, rootH := d.backend.RootSize()
	if !d.resize {
		return rootW, rootH, true
	}
	maxW, maxH := 0, 0
	type clientSize struct {
		uuid, size string
	}
	var sizes []clientSize
	for _, src := range d.registry.DisplaySources() {
		ds := src.Desktop()
		if ds.Width <= 0 || ds.Height <= 0 {
			continue
		}
		maxW = max(maxW, ds.Width)
		maxH = max(maxH, ds.Height)
		sizes = append(sizes, clientSize{src.UUID(), fmt.Sprintf("%dx%d", ds.Width, ds.Height)})
	}
	if len(sizes) > 1 {
		logger.Infof("screen used by %d clients:", len(sizes))
		for _, cs := range sizes {
			logger.Infof("* %s: %s", cs.uuid, cs.size)
		}
	}
	logger.Debugf("current server resolution is %dx%d, maximum client resolution is %dx%d",
		rootW, rootH, maxW, maxH)
	if maxW <= 0 || maxH <= 0 {
		return rootW, rootH, true
	}
	w, h := d.SetScreenSize(maxW, maxH)
	return w, h, true
}

// SetScreenSize switches the display to the best mode for the desired
// size, deriving the DPI and physical dimensions to go with it. The
// resulting size is returned, which may differ from the request.
func (d *Negotiator) SetScreenSize(desiredW, desiredH int) (int, int) {
	rootW, rootH := d.backend.RootSize()
	if !d.resize {
		return rootW, rootH
	}
	if desiredW == rootW && desiredH == rootH {
		return rootW, rootH
	}
	xdpi, ydpi := d.xdpi, d.ydpi
	if xdpi == 0 {
		xdpi = d.dpi
	}
	if ydpi == 0 {
		ydpi = d.dpi
	}
	wmm, hmm := 0, 0
	if xdpi <= 0 || ydpi <= 0 {
		xdpi = d.defaultDPI
		ydpi = d.defaultDPI
		if xdpi <= 0 {
			xdpi, ydpi = DefaultDPI, DefaultDPI
		}
		// derive the real DPI from the largest physical screen the
		// clients reported
		clientW, clientH := 0, 0
		for _, src := range d.registry.DisplaySources() {
			for _, s := range src.Desktop().Screens {
				if !s.HasPhysicalSize() {
					continue
				}
				clientW = max(clientW, s.Width)
				clientH = max(clientH, s.Height)
				wmm = max(wmm, s.WidthMM)
				hmm = max(hmm, s.HeightMM)
			}
		}
		if wmm > 0 && hmm > 0 && clientW > 0 && clientH > 0 {
			xdpi = roundDiv(float64(clientW) * 25.4 / float64(wmm))
			ydpi = roundDiv(float64(clientH) * 25.4 / float64(hmm))
			logger.Debugf("calculated DPI: %d x %d (from %d/%dmm, %d/%dmm)", xdpi, ydpi, clientW, wmm, clientH, hmm)
		}
	}
	if wmm == 0 || hmm == 0 {
		wmm = roundDiv(float64(desiredW) * 25.4 / float64(xdpi))
		hmm = roundDiv(float64(desiredH) * 25.4 / float64(ydpi))
	}
	if err := d.backend.SetPhysicalSize(wmm, hmm); err != nil {
		logger.Debugf("failed to set physical size %dx%dmm: %v", wmm, hmm, err)
	}
	d.setDPI(xdpi, ydpi)

	w, h := d.bestScreenSize(desiredW, desiredH)
	if w == rootW && h == rootH {
		logger.Infof("best resolution matching %dx%d is unchanged: %dx%d", desiredW, desiredH, w, h)
		return rootW, rootH
	}
	if err := d.backend.SetScreenSize(w, h); err != nil {
		logger.Errorf("Error: failed to set new resolution: %v", err)
		return rootW, rootH
	}
	rootW, rootH = d.backend.RootSize()
	if rootW != w || rootH != h {
		logger.Warnf("Warning: tried to set resolution to %dx%d", w, h)
		logger.Warnf(" and ended up with %dx%d", rootW, rootH)
	} else {
		msg := fmt.Sprintf("server virtual display now set to %dx%d", rootW, rootH)
		if desiredW != rootW || desiredH != rootH {
			msg += fmt.Sprintf(" (best match for %dx%d)", desiredW, desiredH)
		}
		logger.Info(msg)
	}
	// let the resize settle before reporting the resulting DPI
	d.clock.Post(func() { d.showDPI(xdpi, ydpi) })
	return rootW, rootH
}

// bestScreenSize finds the closest supported mode for the desired size,
// adding an exact mode when the backend supports it.
func (d *Negotiator) bestScreenSize(desiredW, desiredH int) (int, int) {
	if !d.resize {
		return desiredW, desiredH
	}
	sizes := d.allScreenSizes()
	for _, s := range sizes {
		if s[0] == desiredW && s[1] == desiredH {
			return desiredW, desiredH
		}
	}
	if d.exactResize {
		if err := d.backend.AddScreenSize(desiredW, desiredH); err != nil {
			logger.Warnf("Warning: failed to add resolution %dx%d:", desiredW, desiredH)
			logger.Warnf(" %v", err)
			sizes = d.allScreenSizes()
		} else {
			d.sizesAdded = append(d.sizesAdded, [2]int{desiredW, desiredH})
			return desiredW, desiredH
		}
	}
	bestW, bestH := 0, 0
	bestDist := math.MaxInt
	for _, s := range sizes {
		dist := absInt(desiredW*desiredH - s[0]*s[1])
		if dist < bestDist {
			bestW, bestH, bestDist = s[0], s[1], dist
		}
	}
	if bestDist == math.MaxInt {
		logger.Warnf("Warning: no matching resolution found for %dx%d", desiredW, desiredH)
		return d.backend.RootSize()
	}
	return bestW, bestH
}

// allScreenSizes lists the modes the backend reports plus the ones we
// added ourselves, which some servers fail to list back.
func (d *Negotiator) allScreenSizes() [][2]int {
	if d.backend == nil {
		return nil
	}
	sizes := d.backend.ScreenSizes()
	for _, added := range d.sizesAdded {
		found := false
		for _, s := range sizes {
			if s == added {
				found = true
				break
			}
		}
		if !found {
			sizes = append(sizes, added)
		}
	}
	return sizes
}

// MaxScreenSize returns the largest size the display can provide.
func (d *Negotiator) MaxScreenSize() (int, int) {
	if d.backend == nil {
		return 0, 0
	}
	maxW, maxH := d.backend.RootSize()
	if d.resize {
		for _, s := range d.allScreenSizes() {
			maxW = max(maxW, s[0])
			maxH = max(maxH, s[1])
		}
		if maxW > maxWindowSize || maxH > maxWindowSize {
			logger.Warnf("Warning: maximum screen size is very large: %dx%d", maxW, maxH)
			logger.Warn(" you may encounter window sizing problems")
		}
	}
	return maxW, maxH
}

func (d *Negotiator) setDesktopGeometryAttributes(w, h int) {
	d.calculateDesktops()
	d.calculateWorkarea(w, h)
	if d.backend != nil {
		if err := d.backend.SetDesktopGeometry(w, h); err != nil {
			logger.Warnf("Warning: failed to set desktop geometry: %v", err)
		}
	}
}

// calculateDesktops publishes the virtual desktop count, honouring the
// largest count and any names the clients supplied.
func (d *Negotiator) calculateDesktops() {
	if d.backend == nil {
		return
	}
	count := 1
	for _, src := range d.registry.DisplaySources() {
		if n := src.Desktop().Desktops; n > count {
			count = n
		}
	}
	count = max(1, min(maxDesktops, count))
	names := make([]string, count)
	for i := range names {
		if i == 0 {
			names[i] = "Main"
		} else {
			names[i] = fmt.Sprintf("Desktop %d", i+1)
		}
		for _, src := range d.registry.DisplaySources() {
			ds := src.Desktop()
			if ds.Desktops > 0 && i < len(ds.DesktopNames) && ds.DesktopNames[i] != "" {
				names[i] = ds.DesktopNames[i]
			}
		}
	}
	if err := d.backend.SetDesktops(count, names); err != nil {
		logger.Debugf("failed to set desktops: %v", err)
	}
}

// calculateWorkarea intersects the workareas of every client screen.
// A degenerate result falls back to the full display area.
func (d *Negotiator) calculateWorkarea(maxW, maxH int) {
	if d.backend == nil {
		return
	}
	workarea := image.Rect(0, 0, maxW, maxH)
	for _, src := range d.registry.DisplaySources() {
		for _, s := range src.Desktop().Screens {
			if !s.HasWorkarea() {
				continue
			}
			r := image.Rect(s.WorkX, s.WorkY, s.WorkX+s.WorkWidth, s.WorkY+s.WorkHeight)
			workarea = workarea.Intersect(r)
			if workarea.Empty() {
				logger.Warn("Warning: failed to calculate workarea")
				logger.Warnf(" as intersection with %dx%d at %d,%d of %q",
					s.WorkWidth, s.WorkHeight, s.WorkX, s.WorkY, s.Name)
			}
		}
	}
	if workarea.Dx() == 0 || workarea.Dy() == 0 || workarea.Dx() >= maxWindowSize || workarea.Dy() >= maxWindowSize {
		logger.Warn("Warning: failed to calculate a common workarea")
		logger.Warnf(" using the full display area: %dx%d", maxW, maxH)
		workarea = image.Rect(0, 0, maxW, maxH)
	}
	if err := d.backend.SetWorkarea(workarea.Min.X, workarea.Min.Y, workarea.Dx(), workarea.Dy()); err != nil {
		logger.Debugf("failed to set workarea: %v", err)
	}
}

// ScreenChanged schedules a geometry refresh after a backend
// notification. Bursts collapse into a single refresh.
func (d *Negotiator) ScreenChanged() {
	d.cancelScreenChangedTimer()
	d.screenChangedTimer = d.clock.After(screenChangedDelay, d.screenChanged)
}

func (d *Negotiator) screenChanged() {
	d.screenChangedTimer = nil
	if d.backend == nil {
		return
	}
	w, h := d.backend.RootSize()
	logger.Debugf("new screen dimensions: %dx%d", w, h)
	d.setDesktopGeometryAttributes(w, h)
	d.SendUpdatedScreenSize()
}

func (d *Negotiator) cancelScreenChangedTimer() {
	if t := d.screenChangedTimer; t != nil {
		d.screenChangedTimer = nil
		t.Cancel()
	}
}

// SendUpdatedScreenSize tells every client about the current server
// geometry and logs how many actually needed the update.
func (d *Negotiator) SendUpdatedScreenSize() {
	if d.backend == nil {
		return
	}
	rootW, rootH := d.backend.RootSize()
	maxW, maxH := d.MaxScreenSize()
	if rootW <= 0 || rootH <= 0 || maxW <= 0 || maxH <= 0 {
		return
	}
	rootW = min(rootW, maxW)
	rootH = min(rootH, maxH)
	count := 0
	for _, src := range d.registry.DisplaySources() {
		if src.UpdatedDesktopSize(rootW, rootH, maxW, maxH) {
			count++
		}
	}
	if count > 0 {
		logger.Infof("sent updated screen size to %d clients: %dx%d (max %dx%d)", count, rootW, rootH, maxW, maxH)
	}
}

// ApplyRefreshRate computes and records the refresh rate for a client.
func (d *Negotiator) ApplyRefreshRate(src Source) int {
	rate := d.clientRefreshRate(src)
	logger.Debugf("refresh rate for %s: %dHz", src.UUID(), rate)
	if rate > 0 {
		src.SetRefreshRate(rate)
	}
	return rate
}

func (d *Negotiator) setDPI(xdpi, ydpi int) {
	if xdpi == d.xdpi && ydpi == d.ydpi {
		return
	}
	d.xdpi, d.ydpi = xdpi, ydpi
	d.dpi = roundDiv(float64(xdpi+ydpi) / 2)
	logger.Debugf("new dpi: %dx%d", xdpi, ydpi)
	d.refreshSettings()
}

func (d *Negotiator) showDPI(xdpi, ydpi int) {
	if d.backend == nil {
		return
	}
	rootW, rootH := d.backend.RootSize()
	wmm, hmm := d.backend.SizeMM()
	if wmm <= 0 || hmm <= 0 {
		return
	}
	actualX := roundDiv(float64(rootW) * 25.4 / float64(wmm))
	actualY := roundDiv(float64(rootH) * 25.4 / float64(hmm))
	if absInt(actualX-xdpi) <= 1 && absInt(actualY-ydpi) <= 1 {
		logger.Infof("DPI set to %d x %d", actualX, actualY)
		return
	}
	msg := fmt.Sprintf("DPI set to %d x %d (wanted %d x %d)", actualX, actualY, xdpi, ydpi)
	if max(absInt(actualX-xdpi), absInt(actualY-ydpi)) >= 10 {
		logger.Warn(msg)
		logger.Warn(" you may experience scaling problems, such as huge or small fonts")
		logger.Warn(" to fix this issue, try the dpi switch")
	} else {
		logger.Info(msg)
	}
}

// refreshSettings re-cooks the last known settings with the current
// overrides.
func (d *Negotiator) refreshSettings() {
	d.settings.Refresh(d.overrides())
}

// updateAllSettings resets the DPI and antialias derived settings.
func (d *Negotiator) updateAllSettings() {
	d.settings.UpdateAll(false, d.overrides())
}

func (d *Negotiator) overrides() Overrides {
	o := Overrides{
		DPI:                 d.dpi,
		DoubleClickTime:     d.doubleClickTime,
		DoubleClickDistance: d.doubleClickDistance,
		Antialias:           d.antialias,
		CursorSize:          d.cursorSize(),
	}
	srcs := d.registry.DisplaySources()
	if len(srcs) == 1 {
		// sub-pixel hinting is only trustworthy when a single client is
		// connected and it is not running with desktop scaling
		ds := srcs[0].Desktop()
		o.SubpixelOK = ds.UnscaledWidth == 0 ||
			(ds.UnscaledWidth == ds.Width && ds.UnscaledHeight == ds.Height)
	}
	return o
}

// LastClientExited restores the display defaults.
func (d *Negotiator) LastClientExited() {
	d.settings.Reset()
}

// ProcessForceUngrab releases any keyboard or pointer grab.
func (d *Negotiator) ProcessForceUngrab(src Source, _ *wire.Packet) error {
	logger.Debugf("force ungrab from %s", src.UUID())
	if d.backend != nil {
		d.backend.Ungrab()
	}
	return nil
}

// MakeScreenshotPacket captures the display into a screenshot packet.
func (d *Negotiator) MakeScreenshotPacket() (*wire.Packet, error) {
	if d.backend == nil {
		return nil, errors.New("no display backend")
	}
	w, h, data, err := d.backend.Screenshot()
	if err != nil {
		return nil, err
	}
	return wire.New("screenshot", w, h, "png", w*4, data), nil
}

// Caps describes the display for the hello response.
func (d *Negotiator) Caps(src Source) wire.Dict {
	caps := wire.Dict{}
	if d.backend == nil {
		return caps
	}
	rootW, rootH := d.backend.RootSize()
	if rootW > 0 && rootH > 0 {
		caps["actual_desktop_size"] = []int{rootW, rootH}
		caps["root_window_size"] = []int{rootW, rootH}
		dw, dh := desktopSizeCapability(src, rootW, rootH)
		caps["desktop_size"] = []int{dw, dh}
	}
	if name := d.backend.Name(); name != "" {
		caps["name"] = name
	}
	if maxW, maxH := d.MaxScreenSize(); maxW > 0 && maxH > 0 {
		caps["max_desktop_size"] = []int{maxW, maxH}
	}
	caps["resize_screen"] = d.resize
	caps["resize_exact"] = d.exactResize
	caps["force_ungrab"] = true
	if d.resize {
		if sizes := d.allScreenSizes(); len(sizes) > 1 {
			caps["screen-sizes"] = sizes
		}
	}
	return caps
}

// desktopSizeCapability clamps the client's desktop size to the server
// root window.
func desktopSizeCapability(src Source, rootW, rootH int) (int, int) {
	ds := src.Desktop()
	if ds.Width <= 0 || ds.Height <= 0 {
		return rootW, rootH
	}
	return min(ds.Width, rootW), min(ds.Height, rootH)
}

// Info reports display state for the info subsystem.
func (d *Negotiator) Info() map[string]any {
	info := map[string]any{
		"dpi": map[string]any{
			"default": d.defaultDPI,
			"value":   d.dpi,
			"x":       d.xdpi,
			"y":       d.ydpi,
		},
		"depth":        d.bitDepth,
		"refresh-rate": d.refreshRate,
		"resize":       d.resize,
		"resize-exact": d.exactResize,
	}
	if len(d.antialias) > 0 {
		info["antialias"] = map[string]any(d.antialias)
	}
	if d.backend != nil {
		w, h := d.backend.RootSize()
		info["size"] = []int{w, h}
	}
	return info
}

// Cleanup cancels pending timers.
func (d *Negotiator) Cleanup() {
	d.cancelScreenChangedTimer()
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func roundDiv(v float64) int {
	return int(math.Round(v))
}
