package display

import (
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/wire"
)

// ProcessDesktopSize handles a desktop_size packet:
//
//	["desktop_size", width, height, screens, desktops, desktop-names,
//	 unscaled-width, unscaled-height, xdpi, ydpi, vrefresh, monitors]
//
// Everything after the size is optional; clients send as many fields as
// they know about.
func (d *Negotiator) ProcessDesktopSize(src Source, p *wire.Packet) error {
	w, err := p.U16(1)
	if err != nil {
		return err
	}
	h, err := p.U16(2)
	if err != nil {
		return err
	}
	width, height := int(w), int(h)
	ds := src.Desktop()
	ds.SetSize(width, height)
	if p.Len() >= 12 {
		ds.SetMonitors(p.Any(11))
	} else if p.Len() >= 11 {
		// fall back to the older global refresh attribute
		if v, err := p.Int(10); err == nil && v > 0 && v < 240 && int(v) != ds.VRefresh {
			ds.VRefresh = int(v)
		}
	}
	if p.Len() >= 10 {
		xdpi, err := p.U16(8)
		if err != nil {
			return err
		}
		ydpi, err := p.U16(9)
		if err != nil {
			return err
		}
		d.setDPI(int(xdpi), int(ydpi))
	}
	if p.Len() >= 8 {
		usw, err := p.U16(6)
		if err != nil {
			return err
		}
		ush, err := p.U16(7)
		if err != nil {
			return err
		}
		ds.SetUnscaledSize(int(usw), int(ush))
	}
	if p.Len() >= 6 {
		desktops, err := p.U8(4)
		if err != nil {
			return err
		}
		names, err := p.Strs(5)
		if err != nil {
			return err
		}
		ds.SetDesktops(int(desktops), names)
		d.calculateDesktops()
	}
	if p.Len() >= 4 {
		ds.SetScreens(p.Any(3))
	}
	logger.Debugf("client requesting new size: %dx%d", width, height)
	if d.backend != nil {
		d.SetScreenSize(width, height)
	}
	d.setDesktopGeometryAttributes(width, height)
	if p.Len() >= 4 {
		logger.Info("received updated display dimensions")
		logger.Infof("client display size is %dx%d", width, height)
		ds.logScreens()
		d.calculateWorkarea(width, height)
	}
	d.ApplyRefreshRate(src)
	d.updateAllSettings()
	return nil
}

// ProcessConfigureDisplay handles the attribute-dictionary form of a
// display reconfiguration.
func (d *Negotiator) ProcessConfigureDisplay(src Source, p *wire.Packet) error {
	attrs, err := p.DictAt(1)
	if err != nil {
		return err
	}
	ds := src.Desktop()
	width, height := 0, 0
	if w, h, ok := attrs.IntPair("desktop-size"); ok {
		ds.SetSize(w, h)
		width, height = w, h
	}
	if w, h, ok := attrs.IntPair("desktop-size-unscaled"); ok {
		ds.SetUnscaledSize(w, h)
	}
	// vrefresh may be overridden by the monitors data below
	if v := attrs.Int("vrefresh", 0); v > 0 && v < 240 && v != ds.VRefresh {
		ds.VRefresh = v
	}
	if monitors := attrs.Raw("monitors"); monitors != nil {
		ds.SetMonitors(monitors)
	}
	if width > 0 && height > 0 {
		logger.Debugf("client requesting new size: %dx%d", width, height)
		if d.backend != nil {
			d.SetScreenSize(width, height)
		}
		logger.Info("received updated display dimensions")
		logger.Infof("client display size is %dx%d", width, height)
		ds.logScreens()
		d.calculateWorkarea(width, height)
		d.setDesktopGeometryAttributes(width, height)
	}
	dpi := 0
	rawDPI := attrs.Raw("dpi")
	if n, ok := wire.AsInt(rawDPI); ok {
		// unprefixed legacy form
		dpi = int(n)
	}
	dpix := attrs.Int("dpi.x", dpi)
	dpiy := attrs.Int("dpi.y", dpi)
	if sub, ok := wire.AsDict(rawDPI); ok {
		dpix = sub.Int("x", dpix)
		dpiy = sub.Int("y", dpiy)
	}
	if dpix > 0 && dpiy > 0 {
		d.setDPI(dpix, dpiy)
	}
	if names := attrs.Strs("desktop-names"); len(names) > 0 {
		ds.SetDesktops(attrs.Int("desktops", len(names)), names)
		d.calculateDesktops()
	}
	if icc := attrs.Sub("icc"); len(icc) > 0 {
		// no colour management here; acknowledge and move on
		logger.Debugf("ignoring icc data: %d entries", len(icc))
	}
	d.ApplyRefreshRate(src)
	d.updateAllSettings()
	return nil
}

// ProcessServerSettings handles a client pushing its desktop settings
// for the server to mirror.
func (d *Negotiator) ProcessServerSettings(_ Source, p *wire.Packet) error {
	settings, err := p.DictAt(1)
	if err != nil {
		return err
	}
	logger.Debugf("server settings update: %d entries", len(settings))
	d.settings.Update(settings, false, d.overrides())
	return nil
}
