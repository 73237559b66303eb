package display

import (
	"fmt"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/wire"
)

// ScreenInfo is one display entry from a client's screen list. The
// positional form is:
//
//	[name, width, height, width_mm, height_mm, monitors,
//	 work_x, work_y, work_width, work_height]
//
// Old clients send fewer fields; fields records how many were present.
type ScreenInfo struct {
	Name                  string
	Width, Height         int
	WidthMM, HeightMM     int
	WorkX, WorkY          int
	WorkWidth, WorkHeight int

	fields int
}

// HasWorkarea reports whether the client included workarea coordinates.
func (s *ScreenInfo) HasWorkarea() bool {
	return s.fields >= 10
}

// HasPhysicalSize reports whether the millimetre dimensions are usable.
func (s *ScreenInfo) HasPhysicalSize() bool {
	return s.fields >= 10 && s.WidthMM > 0 && s.HeightMM > 0
}

func parseScreenInfo(v any) (*ScreenInfo, bool) {
	seq, ok := wire.AsList(v)
	if !ok || len(seq) < 3 {
		return nil, false
	}
	info := &ScreenInfo{fields: len(seq)}
	info.Name, _ = wire.AsStr(seq[0])
	geti := func(i int) int {
		if i >= len(seq) {
			return 0
		}
		n, _ := wire.AsInt(seq[i])
		return int(n)
	}
	info.Width = geti(1)
	info.Height = geti(2)
	info.WidthMM = geti(3)
	info.HeightMM = geti(4)
	info.WorkX = geti(6)
	info.WorkY = geti(7)
	info.WorkWidth = geti(8)
	info.WorkHeight = geti(9)
	return info, true
}

// DesktopState is one client's view of its desktop: the sizes it
// reported, its monitors and virtual desktops. It is mutated only by
// packets from that client and read when negotiating the shared server
// geometry.
type DesktopState struct {
	// Size is the client root window size, zero until reported.
	Width, Height int
	// UnscaledWidth/Height differ from Width/Height when the client
	// runs with desktop scaling.
	UnscaledWidth, UnscaledHeight int
	// ServerWidth/Height is the last server size this client was told
	// about, used to suppress change notifications that only echo the
	// client's own request.
	ServerWidth, ServerHeight int

	Screens      []*ScreenInfo
	Monitors     []wire.Dict
	VRefresh     int
	Desktops     int
	DesktopNames []string
}

func (d *DesktopState) SetSize(w, h int) {
	d.Width, d.Height = w, h
}

func (d *DesktopState) SetUnscaledSize(w, h int) {
	d.UnscaledWidth, d.UnscaledHeight = w, h
}

func (d *DesktopState) SetServerSize(w, h int) {
	d.ServerWidth, d.ServerHeight = w, h
}

// SetScreens replaces the screen list from a raw decoded sequence,
// skipping entries from old or broken clients.
func (d *DesktopState) SetScreens(v any) int {
	d.Screens = nil
	seq, ok := wire.AsList(v)
	if !ok {
		return 0
	}
	for _, entry := range seq {
		if info, ok := parseScreenInfo(entry); ok {
			d.Screens = append(d.Screens, info)
		}
	}
	return len(d.Screens)
}

// SetMonitors replaces the monitor map. Both the keyed and the list
// forms are accepted.
func (d *DesktopState) SetMonitors(v any) {
	d.Monitors = nil
	if md, ok := wire.AsDict(v); ok {
		for _, key := range md.SortedKeys() {
			if sub := md.Sub(key); sub != nil {
				d.Monitors = append(d.Monitors, sub)
			}
		}
		return
	}
	if seq, ok := wire.AsList(v); ok {
		for _, entry := range seq {
			if sub, ok := wire.AsDict(entry); ok {
				d.Monitors = append(d.Monitors, sub)
			}
		}
	}
}

// SetDesktops records the virtual desktop count and names.
func (d *DesktopState) SetDesktops(count int, names []string) {
	d.Desktops = max(1, count)
	d.DesktopNames = names
}

func (d *DesktopState) String() string {
	return fmt.Sprintf("desktop %dx%d with %d screens", d.Width, d.Height, len(d.Screens))
}

// logScreens prints the screen list the way a human wants to read it.
func (d *DesktopState) logScreens() {
	for _, s := range d.Screens {
		desc := fmt.Sprintf("  %q %dx%d", s.Name, s.Width, s.Height)
		if s.WidthMM > 0 && s.HeightMM > 0 {
			desc += fmt.Sprintf(" (%dx%d mm)", s.WidthMM, s.HeightMM)
		}
		if s.HasWorkarea() {
			desc += fmt.Sprintf(" workarea: %dx%d at %d,%d", s.WorkWidth, s.WorkHeight, s.WorkX, s.WorkY)
		}
		logger.Info(desc)
	}
}
