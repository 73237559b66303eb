package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/load"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/session"
	"github.com/seamd/seamd/internal/wire"
)

// screenshotGrace gives the screenshot reply time to flush before the
// one-shot requester is dropped.
const screenshotGrace = 5 * time.Second

// minClientVersion is the oldest client protocol the server accepts.
const minClientVersion = "0.1"

// handlerFunc processes one packet for a handshaked source, on the
// loop goroutine.
type handlerFunc func(src *session.Source, p *wire.Packet) error

// buildHandlers constructs the routing table once at startup. Aliases
// share the same entry.
func (s *Server) buildHandlers() map[string]handlerFunc {
	h := map[string]handlerFunc{
		"key-action": func(src *session.Source, p *wire.Packet) error {
			return s.keyboard.ProcessKeyAction(src, p)
		},
		"key-repeat": func(src *session.Source, p *wire.Packet) error {
			return s.keyboard.ProcessKeyRepeat(src, p)
		},
		"layout-changed": func(src *session.Source, p *wire.Packet) error {
			return s.keyboard.ProcessLayoutChanged(src, p)
		},
		"keymap-changed": func(src *session.Source, p *wire.Packet) error {
			return s.keyboard.ProcessKeymapChanged(src, p)
		},
		"set-keyboard-sync-enabled": func(src *session.Source, p *wire.Packet) error {
			return s.keyboard.ProcessSyncEnabled(src, p)
		},
		"desktop_size": func(src *session.Source, p *wire.Packet) error {
			return s.display.ProcessDesktopSize(src, p)
		},
		"configure-display": func(src *session.Source, p *wire.Packet) error {
			return s.display.ProcessConfigureDisplay(src, p)
		},
		"server-settings": func(src *session.Source, p *wire.Packet) error {
			return s.display.ProcessServerSettings(src, p)
		},
		"force-ungrab": func(src *session.Source, p *wire.Packet) error {
			src.UserEvent()
			return s.display.ProcessForceUngrab(src, p)
		},
		"set-cursors": func(src *session.Source, p *wire.Packet) error {
			return s.cursors.ProcessSet(src, p)
		},
		"screenshot":   s.processScreenshot,
		"info-request": s.processInfoRequest,
		"ping":         s.processPing,
		"ping_echo":    s.processPingEcho,
		"disconnect":   s.processDisconnect,
	}
	// older clients use the reversed name
	h["cursor-set"] = h["set-cursors"]
	return h
}

// processPacket routes one packet on the loop. hello is special-cased:
// it is the only packet a source may send before it has a session.
func (s *Server) processPacket(conn session.Conn, p *wire.Packet) {
	src, ok := s.sources[conn]
	if !ok {
		// the connection was dropped while this packet was queued
		return
	}
	src.PacketReceived()
	if p.Type() == "hello" {
		if err := s.processHello(src, p); err != nil {
			logger.Errorf("Error: invalid hello from %s: %v", src.ID(), err)
			src.Disconnect("invalid hello packet")
			s.dropSource(conn, src)
		}
		return
	}
	if !src.Hello() {
		logger.Warnf("Warning: %s packet from %s before hello", p.Type(), src.ID())
		src.Disconnect("protocol error: hello expected")
		s.dropSource(conn, src)
		return
	}
	handler, ok := s.handlers[p.Type()]
	if !ok {
		s.unknown[p.Type()]++
		logger.Warnf("Warning: unknown packet type %q from %s", p.Type(), src.ID())
		return
	}
	// a malformed packet is logged and dropped, never fatal
	if err := handler(src, p); err != nil {
		logger.Errorf("Error: failed to process %s packet from %s: %v", p.Type(), src.ID(), err)
	}
}

// processHello runs the handshake: record the capabilities, settle
// session contention, fan the caps out to the subsystems and answer
// with ours.
func (s *Server) processHello(src *session.Source, p *wire.Packet) error {
	caps, err := p.DictAt(1)
	if err != nil {
		return err
	}
	if verr := versionCompatCheck(caps.Str("version", "")); verr != "" {
		src.Disconnect("incompatible version: " + verr)
		s.dropBySource(src)
		return nil
	}
	shareCount := s.registry.ShareCount()
	src.SetHello(caps)
	logger.Infof("hello from %s (%s): uuid=%s ui=%v share=%v",
		src.RemoteAddr(), src.Transport(), src.UUID(), src.UIClient(), src.Share())

	if src.UIClient() {
		if shareCount > 0 {
			s.resolveContention(src)
			shareCount = len(s.registry.OtherUIClients(src.UUID()))
		}
		s.keyboard.HelloKeyboard(src, caps)
		s.display.AddClient(caps, shareCount)
		s.cursors.AddClient(caps, shareCount)
		s.display.ParseScreenInfo(src)
	}

	src.Send(wire.New("hello", s.helloCaps(src)))
	return nil
}

// resolveContention applies the share rule: an existing UI client
// survives a newcomer only when both sides asked for sharing.
func (s *Server) resolveContention(newSrc *session.Source) {
	for _, other := range s.registry.UIClients() {
		if other == newSrc {
			continue
		}
		if newSrc.Share() && other.Share() {
			logger.Infof("sharing session with %s", other.UUID())
			continue
		}
		other.Disconnect("new valid connection received, this session does not allow sharing")
		s.dropBySource(other)
	}
}

// versionCompatCheck reports why a client version cannot be accepted,
// or "" when it can. The comparison is lenient: dotted numeric parts,
// anything after the digits of a part is ignored.
func versionCompatCheck(v string) string {
	if v == "" {
		return "version not found"
	}
	if compareVersions(v, minClientVersion) < 0 {
		return fmt.Sprintf("version %s is too old, minimum is %s", v, minClientVersion)
	}
	return ""
}

func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av = numericPrefix(as[i])
		}
		if i < len(bs) {
			bv = numericPrefix(bs[i])
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}

// numericPrefix parses the leading digits of a version part, so
// "0-dev" reads as 0.
func numericPrefix(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// helloCaps builds the server side of the handshake.
func (s *Server) helloCaps(src *session.Source) wire.Dict {
	caps := wire.Dict{
		"version":      Version,
		"uuid":         s.uuid,
		"session_name": s.cfg.Server.Name,
		"start_time":   s.started.Unix(),
	}
	state := s.keyboard.State()
	caps["key_repeat"] = []int{state.RepeatDelay(), state.RepeatInterval()}
	if cfg := src.KeyboardConfig(); cfg != nil {
		caps["keyboard-sync"] = cfg.Sync
	}
	for k, v := range s.display.Caps(src) {
		caps[k] = v
	}
	if s.cursors.Enabled() {
		caps["cursor"] = s.cursors.Caps()
	}
	return caps
}

// processScreenshot serves a one-shot probe: send the screenshot, then
// drop the requester once the reply has had time to flush.
func (s *Server) processScreenshot(src *session.Source, p *wire.Packet) error {
	pkt, err := s.display.MakeScreenshotPacket()
	if err != nil {
		src.Disconnect("screenshot failed")
		s.dropBySource(src)
		return err
	}
	src.Send(pkt)
	s.loop.After(screenshotGrace, func() {
		src.Disconnect("screenshot sent")
		s.dropBySource(src)
	})
	return nil
}

func (s *Server) processInfoRequest(src *session.Source, _ *wire.Packet) error {
	src.Send(wire.New("info-response", s.collectInfo()))
	return nil
}

// processPing answers a client ping with the echoed timestamp and our
// load averages.
func (s *Server) processPing(src *session.Source, p *wire.Packet) error {
	src.ProcessPing(p.Any(1), serverLoad())
	return nil
}

func (s *Server) processPingEcho(src *session.Source, p *wire.Packet) error {
	return src.ProcessPingEcho(p)
}

// processDisconnect honors a client-initiated goodbye.
func (s *Server) processDisconnect(src *session.Source, p *wire.Packet) error {
	reason := ""
	if p.Len() > 1 {
		reason, _ = p.Str(1)
	}
	logger.Infof("client %s disconnecting: %s", src.ID(), reason)
	s.dropBySource(src)
	return nil
}

// serverLoad samples the host load averages, scaled by 1000 the way
// the protocol carries them.
func serverLoad() [3]int64 {
	avg, err := load.Avg()
	if err != nil {
		logger.Debugf("cannot read load averages: %v", err)
		return [3]int64{}
	}
	return [3]int64{
		int64(avg.Load1 * 1000),
		int64(avg.Load5 * 1000),
		int64(avg.Load15 * 1000),
	}
}
