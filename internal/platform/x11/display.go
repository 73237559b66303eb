package x11

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/seamd/seamd/internal/logger"
)

// Backend drives the display geometry through RandR and publishes the
// desktop properties window managers read.
type Backend struct {
	d *Display

	exact      bool
	sizesAdded [][2]int
}

// Backend builds the RandR-based display backend, nil without RandR.
func (d *Display) Backend() *Backend {
	if !d.randrOK {
		return nil
	}
	b := &Backend{d: d}
	// a server that can create modes on the fly can resize to exact
	// dimensions; headless servers that report no sizes at all get the
	// same treatment since RRSetScreenSize is all they have
	if d.randrMajor > 1 || (d.randrMajor == 1 && d.randrMinor >= 6) {
		b.exact = true
	} else if len(b.ScreenSizes()) == 0 {
		b.exact = true
	}
	return b
}

func (b *Backend) Name() string { return "x11" }

// RootSize queries the root window geometry, which stays accurate
// across resizes unlike the cached screen info.
func (b *Backend) RootSize() (int, int) {
	reply, err := xproto.GetGeometry(b.d.conn, xproto.Drawable(b.d.root)).Reply()
	if err != nil {
		logger.Debugf("GetGeometry failed: %v", err)
		return int(b.d.screen.WidthInPixels), int(b.d.screen.HeightInPixels)
	}
	return int(reply.Width), int(reply.Height)
}

func (b *Backend) BitDepth() int {
	return int(b.d.screen.RootDepth)
}

// ScreenSizes lists the modes the server reports. Sizes we added
// ourselves are merged in because some servers do not list them back.
func (b *Backend) ScreenSizes() [][2]int {
	reply, err := randr.GetScreenInfo(b.d.conn, b.d.root).Reply()
	if err != nil {
		logger.Debugf("GetScreenInfo failed: %v", err)
		return nil
	}
	sizes := make([][2]int, 0, len(reply.Sizes)+len(b.sizesAdded))
	for _, s := range reply.Sizes {
		sizes = append(sizes, [2]int{int(s.Width), int(s.Height)})
	}
	for _, added := range b.sizesAdded {
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

func (b *Backend) ExactResize() bool { return b.exact }

// AddScreenSize creates a new mode for the given dimensions and
// attaches it to every connected output.
func (b *Backend) AddScreenSize(w, h int) error {
	name := fmt.Sprintf("%dx%d", w, h)
	mode := randr.ModeInfo{
		Width:    uint16(w),
		Height:   uint16(h),
		DotClock: uint32(w) * uint32(h) * 60,
		Htotal:   uint16(w),
		Vtotal:   uint16(h),
		NameLen:  uint16(len(name)),
	}
	reply, err := randr.CreateMode(b.d.conn, b.d.root, mode, name).Reply()
	if err != nil {
		return fmt.Errorf("CreateMode %s: %w", name, err)
	}
	res, err := randr.GetScreenResourcesCurrent(b.d.conn, b.d.root).Reply()
	if err != nil {
		return fmt.Errorf("GetScreenResources: %w", err)
	}
	attached := 0
	for _, output := range res.Outputs {
		info, err := randr.GetOutputInfo(b.d.conn, output, res.ConfigTimestamp).Reply()
		if err != nil || info.Connection != randr.ConnectionConnected {
			continue
		}
		if err := randr.AddOutputModeChecked(b.d.conn, output, reply.Mode).Check(); err != nil {
			logger.Debugf("AddOutputMode %s: %v", name, err)
			continue
		}
		attached++
	}
	if attached == 0 {
		return fmt.Errorf("no connected output accepted mode %s", name)
	}
	b.sizesAdded = append(b.sizesAdded, [2]int{w, h})
	logger.Debugf("added screen size %s to %d outputs", name, attached)
	return nil
}

// SetScreenSize switches the display to the given dimensions: by mode
// when one matches, by RRSetScreenSize when exact resizing is on.
func (b *Backend) SetScreenSize(w, h int) error {
	info, err := randr.GetScreenInfo(b.d.conn, b.d.root).Reply()
	if err != nil {
		return fmt.Errorf("GetScreenInfo: %w", err)
	}
	sizeID := -1
	for i, s := range info.Sizes {
		if int(s.Width) == w && int(s.Height) == h {
			sizeID = i
			break
		}
	}
	if sizeID >= 0 {
		_, err = randr.SetScreenConfig(b.d.conn, b.d.root, xproto.TimeCurrentTime,
			info.ConfigTimestamp, uint16(sizeID), info.Rotation, 0).Reply()
		if err != nil {
			return fmt.Errorf("SetScreenConfig %dx%d: %w", w, h, err)
		}
	}
	if b.exact {
		wmm, hmm := b.SizeMM()
		if wmm <= 0 || hmm <= 0 {
			wmm = w * 254 / 960
			hmm = h * 254 / 960
		}
		if err := randr.SetScreenSizeChecked(b.d.conn, b.d.root,
			uint16(w), uint16(h), uint32(wmm), uint32(hmm)).Check(); err != nil {
			if sizeID < 0 {
				return fmt.Errorf("SetScreenSize %dx%d: %w", w, h, err)
			}
			logger.Debugf("SetScreenSize %dx%d: %v", w, h, err)
		}
	} else if sizeID < 0 {
		return fmt.Errorf("no mode matches %dx%d", w, h)
	}
	b.d.conn.Sync()
	return nil
}

// SizeMM reports the physical screen dimensions in millimeters.
func (b *Backend) SizeMM() (int, int) {
	return int(b.d.screen.WidthInMillimeters), int(b.d.screen.HeightInMillimeters)
}

// SetPhysicalSize records the physical dimensions to apply with the
// next resize; RandR only accepts them together with a size change.
func (b *Backend) SetPhysicalSize(wmm, hmm int) error {
	if wmm <= 0 || hmm <= 0 {
		return errors.New("invalid physical size")
	}
	b.d.screen.WidthInMillimeters = uint16(wmm)
	b.d.screen.HeightInMillimeters = uint16(hmm)
	return nil
}

// SetDesktopGeometry publishes the desktop size properties.
func (b *Backend) SetDesktopGeometry(w, h int) error {
	return ewmh.DesktopGeometrySet(b.d.xu, &ewmh.DesktopGeometry{Width: w, Height: h})
}

// SetWorkarea publishes the workarea for every desktop.
func (b *Backend) SetWorkarea(x, y, w, h int) error {
	count, err := ewmh.NumberOfDesktopsGet(b.d.xu)
	if err != nil || count == 0 {
		count = 1
	}
	areas := make([]ewmh.Workarea, count)
	for i := range areas {
		areas[i] = ewmh.Workarea{X: x, Y: y, Width: uint(w), Height: uint(h)}
	}
	return ewmh.WorkareaSet(b.d.xu, areas)
}

// SetDesktops publishes the desktop count and names.
func (b *Backend) SetDesktops(count int, names []string) error {
	if err := ewmh.NumberOfDesktopsSet(b.d.xu, uint(count)); err != nil {
		return err
	}
	if len(names) > 0 {
		if err := ewmh.DesktopNamesSet(b.d.xu, names); err != nil {
			logger.Debugf("failed to set desktop names: %v", err)
		}
	}
	return nil
}

func (b *Backend) Ungrab() {
	b.d.Ungrab()
}

// Screenshot grabs the root window as PNG.
func (b *Backend) Screenshot() (int, int, []byte, error) {
	w, h := b.RootSize()
	if w <= 0 || h <= 0 {
		return 0, 0, nil, errors.New("invalid root window size")
	}
	reply, err := xproto.GetImage(b.d.conn, xproto.ImageFormatZPixmap, xproto.Drawable(b.d.root),
		0, 0, uint16(w), uint16(h), 0xffffffff).Reply()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("GetImage: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	data := reply.Data
	// ZPixmap on a 24/32 bit visual is BGRX
	for i := 0; i+3 < len(data) && i/4 < w*h; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return 0, 0, nil, fmt.Errorf("png encode: %w", err)
	}
	return w, h, buf.Bytes(), nil
}
