package x11

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/seamd/seamd/internal/cursor"
)

// Cursors captures the display cursor through the XFIXES extension.
type Cursors struct {
	d *Display
}

var _ cursor.Capture = (*Cursors)(nil)

// Cursors returns the cursor capture, or an error when the display has
// no usable XFIXES extension.
func (d *Display) Cursors() (*Cursors, error) {
	if !d.xfixesOK {
		return nil, fmt.Errorf("the display does not support XFIXES cursor capture")
	}
	return &Cursors{d: d}, nil
}

// SelectChanges subscribes to cursor change events on the root window.
// The events surface through the display event pump.
func (c *Cursors) SelectChanges(enable bool) error {
	var mask uint32
	if enable {
		mask = xfixes.CursorNotifyMaskDisplayCursor
	}
	return xfixes.SelectCursorInputChecked(c.d.conn, c.d.root, mask).Check()
}

// CurrentImage fetches the cursor currently shown on the display.
// Native ARGB32 words become BGRA bytes, which is what X clients see on
// little-endian displays.
func (c *Cursors) CurrentImage() (*cursor.Image, error) {
	reply, err := xfixes.GetCursorImageAndName(c.d.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch the cursor image: %w", err)
	}
	w, h := int(reply.Width), int(reply.Height)
	n := min(w*h, len(reply.CursorImage))
	pixels := make([]byte, 0, n*4)
	for _, px := range reply.CursorImage[:n] {
		pixels = append(pixels, byte(px), byte(px>>8), byte(px>>16), byte(px>>24))
	}
	return cursor.NewImage(int(reply.X), int(reply.Y), w, h,
		int(reply.Xhot), int(reply.Yhot), uint64(reply.CursorSerial),
		pixels, reply.Name), nil
}

// DefaultSize reports the nominal cursor size, following the Xcursor
// resolution order: the Xcursor.size resource, then the XCURSOR_SIZE
// environment, then a size derived from the screen height.
func (c *Cursors) DefaultSize() (int, int) {
	if v := c.resourceInt("Xcursor.size"); v > 0 {
		return v, v
	}
	if v, err := strconv.Atoi(os.Getenv("XCURSOR_SIZE")); err == nil && v > 0 {
		return v, v
	}
	size := int(c.d.screen.HeightInPixels) / 48
	if size < 16 {
		size = 16
	}
	return size, size
}

// MaxSize asks the server for the largest cursor it can display.
func (c *Cursors) MaxSize() (int, int) {
	reply, err := xproto.QueryBestSize(c.d.conn, xproto.QueryShapeOfLargestCursor,
		xproto.Drawable(c.d.root), 64, 64).Reply()
	if err != nil || reply.Width == 0 || reply.Height == 0 {
		return 64, 64
	}
	return int(reply.Width), int(reply.Height)
}

// resourceInt looks a key up in the root RESOURCE_MANAGER database.
func (c *Cursors) resourceInt(key string) int {
	prop, err := c.d.Atom("RESOURCE_MANAGER")
	if err != nil {
		return 0
	}
	reply, err := xproto.GetProperty(c.d.conn, false, c.d.root, prop,
		xproto.AtomString, 0, 64*1024).Reply()
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(reply.Value), "\n") {
		if rest, ok := strings.CutPrefix(line, key+":"); ok {
			if v, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				return v
			}
		}
	}
	return 0
}
