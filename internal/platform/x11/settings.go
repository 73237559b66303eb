package x11

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/seamd/seamd/internal/display"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/wire"
)

// Byte-order marker at the start of a settings property blob.
const (
	orderLSBFirst byte = 0
	orderMSBFirst byte = 1
)

// Settings owns the XSETTINGS manager selection for the display and the
// RESOURCE_MANAGER property on the root window.
type Settings struct {
	d      *Display
	window xproto.Window
	serial uint32
}

var _ display.SettingsSink = (*Settings)(nil)

// Settings acquires the XSETTINGS manager selection using a dedicated
// offscreen window. Settings published by a previous manager are copied
// over first so they survive the takeover.
func (d *Display) Settings() (*Settings, error) {
	selName := fmt.Sprintf("_XSETTINGS_S%d", d.conn.DefaultScreen)
	sel, err := d.Atom(selName)
	if err != nil {
		return nil, err
	}
	win, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate the manager window: %w", err)
	}
	err = xproto.CreateWindowChecked(d.conn, d.screen.RootDepth, win, d.root,
		-100, -100, 1, 1, 0, xproto.WindowClassInputOutput, d.screen.RootVisual,
		0, []uint32{}).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create the manager window: %w", err)
	}
	s := &Settings{d: d, window: win}

	owner, err := xproto.GetSelectionOwner(d.conn, sel).Reply()
	if err == nil && owner.Owner != xproto.WindowNone {
		logger.Debugf("taking over %s from window %#x", selName, owner.Owner)
		if blob, err := s.readBlob(owner.Owner); err == nil {
			if err := s.writeBlob(blob); err != nil {
				logger.Debugf("failed to copy the existing settings: %v", err)
			}
		}
	}
	if err := xproto.SetSelectionOwnerChecked(d.conn, win, sel, xproto.TimeCurrentTime).Check(); err != nil {
		return nil, fmt.Errorf("failed to acquire the %s selection: %w", selName, err)
	}
	owner, err = xproto.GetSelectionOwner(d.conn, sel).Reply()
	if err != nil || owner.Owner != win {
		return nil, fmt.Errorf("another settings manager owns %s", selName)
	}
	s.announce(sel)
	return s, nil
}

// announce tells clients started before us where to find the manager.
func (s *Settings) announce(sel xproto.Atom) {
	manager, err := s.d.Atom("MANAGER")
	if err != nil {
		return
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: s.d.root,
		Type:   manager,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(xproto.TimeCurrentTime), uint32(sel), uint32(s.window), 0, 0,
		}),
	}
	err = xproto.SendEventChecked(s.d.conn, false, s.d.root,
		xproto.EventMaskStructureNotify, string(ev.Bytes())).Check()
	if err != nil {
		logger.Debugf("failed to announce the settings manager: %v", err)
	}
}

// CurrentSettings decodes the settings currently published on the
// manager window.
func (s *Settings) CurrentSettings() (*display.SettingsBlob, error) {
	return s.readBlob(s.window)
}

// ApplySettings publishes the blob. Clients pick the change up through
// the PropertyNotify they selected on the manager window.
func (s *Settings) ApplySettings(blob *display.SettingsBlob) error {
	return s.writeBlob(blob)
}

// SetResourceManager replaces the X resource database on the root
// window.
func (s *Settings) SetResourceManager(value string) error {
	prop, err := s.d.Atom("RESOURCE_MANAGER")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(s.d.conn, xproto.PropModeReplace, s.d.root,
		prop, xproto.AtomString, 8, uint32(len(value)), []byte(value)).Check()
}

// Close destroys the manager window, dropping the selection with it.
func (s *Settings) Close() {
	xproto.DestroyWindow(s.d.conn, s.window)
}

func (s *Settings) readBlob(win xproto.Window) (*display.SettingsBlob, error) {
	prop, err := s.d.Atom("_XSETTINGS_SETTINGS")
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(s.d.conn, false, win, prop, prop, 0, 256*1024).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to read the settings property: %w", err)
	}
	if reply.Format == 0 || len(reply.Value) == 0 {
		return &display.SettingsBlob{}, nil
	}
	return decodeSettings(reply.Value)
}

func (s *Settings) writeBlob(blob *display.SettingsBlob) error {
	prop, err := s.d.Atom("_XSETTINGS_SETTINGS")
	if err != nil {
		return err
	}
	s.serial++
	data := encodeSettings(s.serial, blob.Settings)
	return xproto.ChangePropertyChecked(s.d.conn, xproto.PropModeReplace, s.window,
		prop, prop, 8, uint32(len(data)), data).Check()
}

func xsPad(n int) int { return (4 - n%4) % 4 }

// encodeSettings serializes settings into the XSETTINGS property
// format: a byte-order marker, the blob serial and the entry count,
// then one [type, name, last-change-serial, value] record per setting.
// Color values keep the protocol's red, blue, green, alpha field order.
func encodeSettings(serial uint32, settings []display.Setting) []byte {
	var order binary.ByteOrder = binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteByte(orderLSBFirst)
	buf.Write([]byte{0, 0, 0})
	binary.Write(&buf, order, serial)
	binary.Write(&buf, order, uint32(len(settings)))
	for _, st := range settings {
		buf.WriteByte(byte(st.Type))
		buf.WriteByte(0)
		binary.Write(&buf, order, uint16(len(st.Name)))
		buf.WriteString(st.Name)
		buf.Write(make([]byte, xsPad(len(st.Name))))
		binary.Write(&buf, order, st.Serial)
		switch st.Type {
		case display.SettingInteger:
			n, _ := wire.AsInt(st.Value)
			binary.Write(&buf, order, int32(n))
		case display.SettingString:
			v, _ := wire.AsStr(st.Value)
			binary.Write(&buf, order, uint32(len(v)))
			buf.WriteString(v)
			buf.Write(make([]byte, xsPad(len(v))))
		case display.SettingColor:
			var channels [4]uint16
			if seq, ok := wire.AsList(st.Value); ok {
				for i := 0; i < len(seq) && i < 4; i++ {
					n, _ := wire.AsInt(seq[i])
					channels[i] = uint16(n)
				}
			}
			for _, c := range channels {
				binary.Write(&buf, order, c)
			}
		default:
			logger.Warnf("Warning: cannot serialize setting %q of type %d", st.Name, st.Type)
		}
	}
	return buf.Bytes()
}

// decodeSettings parses a settings property blob, honouring the byte
// order it declares.
func decodeSettings(data []byte) (*display.SettingsBlob, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("settings blob too short: %d bytes", len(data))
	}
	var order binary.ByteOrder = binary.LittleEndian
	if data[0] == orderMSBFirst {
		order = binary.BigEndian
	}
	blob := &display.SettingsBlob{Serial: order.Uint32(data[4:8])}
	count := int(order.Uint32(data[8:12]))
	pos := 12
	for i := 0; i < count; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("settings blob truncated at entry %d", i)
		}
		st := display.Setting{Type: display.SettingType(data[pos])}
		nameLen := int(order.Uint16(data[pos+2 : pos+4]))
		pos += 4
		if pos+nameLen+xsPad(nameLen)+4 > len(data) {
			return nil, fmt.Errorf("settings blob truncated at entry %d", i)
		}
		st.Name = string(data[pos : pos+nameLen])
		pos += nameLen + xsPad(nameLen)
		st.Serial = order.Uint32(data[pos : pos+4])
		pos += 4
		switch st.Type {
		case display.SettingInteger:
			if pos+4 > len(data) {
				return nil, fmt.Errorf("setting %q truncated", st.Name)
			}
			st.Value = int(int32(order.Uint32(data[pos : pos+4])))
			pos += 4
		case display.SettingString:
			if pos+4 > len(data) {
				return nil, fmt.Errorf("setting %q truncated", st.Name)
			}
			vlen := int(order.Uint32(data[pos : pos+4]))
			pos += 4
			if vlen < 0 || pos+vlen > len(data) {
				return nil, fmt.Errorf("setting %q truncated", st.Name)
			}
			st.Value = string(data[pos : pos+vlen])
			pos += vlen + xsPad(vlen)
		case display.SettingColor:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("setting %q truncated", st.Name)
			}
			color := make([]any, 4)
			for j := range color {
				color[j] = int(order.Uint16(data[pos : pos+2]))
				pos += 2
			}
			st.Value = color
		default:
			return nil, fmt.Errorf("unknown setting type %d for %q", st.Type, st.Name)
		}
		blob.Settings = append(blob.Settings, st)
	}
	return blob, nil
}
