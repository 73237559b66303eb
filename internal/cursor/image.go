package cursor

// completeFields is the number of populated fields a captured image needs
// before it can be compared against the default cursor.
const completeFields = 8

// Image is a captured pointer cursor bitmap with its hotspot and the
// XFixes serial that identifies it.
type Image struct {
	X, Y          int
	Width, Height int
	XHot, YHot    int
	Serial        uint64
	Pixels        []byte
	Name          string

	fields int
}

// NewImage builds a fully populated cursor image.
func NewImage(x, y, width, height, xhot, yhot int, serial uint64, pixels []byte, name string) *Image {
	return &Image{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
		XHot:   xhot,
		YHot:   yhot,
		Serial: serial,
		Pixels: pixels,
		Name:   name,
		fields: 9,
	}
}

func (c *Image) complete() bool {
	return c != nil && c.fields >= completeFields
}

// Slice flattens the image into the positional form used on the wire.
func (c *Image) Slice() []any {
	return []any{c.X, c.Y, c.Width, c.Height, c.XHot, c.YHot, c.Serial, c.Pixels, c.Name}
}

// Geometry describes the image without the pixel payload.
func (c *Image) Geometry() map[string]any {
	info := map[string]any{
		"x":      c.X,
		"y":      c.Y,
		"width":  c.Width,
		"height": c.Height,
		"xhot":   c.XHot,
		"yhot":   c.YHot,
		"serial": c.Serial,
	}
	if c.Name != "" {
		info["name"] = c.Name
	}
	return info
}
