// Package session holds the per-client connection records and the
// registry the packet loop routes through. A Source carries everything
// the server negotiated with one client: hello capabilities, keyboard
// configuration, desktop geometry, cursor delivery and ping state.
// All mutation happens on the scheduler goroutine.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/seamd/seamd/internal/cursor"
	"github.com/seamd/seamd/internal/display"
	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/wire"
)

// Conn is one client connection as the packet loop sees it. Transports
// implement it; WritePacket must be safe to call from the scheduler
// goroutine while the transport's read pump runs elsewhere.
type Conn interface {
	WritePacket(p *wire.Packet) error
	Close() error
	RemoteAddr() string
	Transport() string
}

// Source is the server-side record for one connected client.
type Source struct {
	clock scheduler.Clock
	conn  Conn

	uuid        string
	connectedAt time.Time

	caps     wire.Dict
	hello    bool
	uiClient bool
	share    bool
	username string
	hostname string

	kbConfig *keyboard.Config
	desktop  display.DesktopState

	refreshRate int

	cursors     *cursor.Sender
	wantCursors bool

	// ping bookkeeping, all in milliseconds
	lastPingEchoedTime int64
	pingLatency        int64
	clientLoad         [3]int64

	userEvents    int64
	lastUserEvent time.Time
	packets       int64

	closed bool
}

// Compile-time checks that Source satisfies the capability views the
// subsystems consume.
var (
	_ keyboard.Source = (*Source)(nil)
	_ display.Source  = (*Source)(nil)
	_ cursor.Sink     = (*Source)(nil)
)

// New wraps a freshly accepted connection. The source stays anonymous
// (no uuid, not a UI client) until SetHello runs.
func New(clock scheduler.Clock, conn Conn) *Source {
	s := &Source{
		clock:       clock,
		conn:        conn,
		connectedAt: clock.Now(),
		pingLatency: -1,
	}
	s.cursors = cursor.NewSender(clock, s.Send)
	return s
}

// SetHello records the client's capabilities and derives the session
// flags from them. A client that does not send a uuid gets one assigned
// so contention checks and info lookups still work.
func (s *Source) SetHello(caps wire.Dict) {
	s.caps = caps
	s.uuid = caps.Str("uuid", "")
	if s.uuid == "" {
		s.uuid = uuid.NewString()
		logger.Debugf("client did not supply a uuid, assigned %s", s.uuid)
	}
	s.share = caps.Bool("share", false)
	s.uiClient = caps.Bool("windows", true)
	s.wantCursors = caps.Bool("cursors", false)
	s.username = caps.Str("username", "")
	s.hostname = caps.Str("hostname", "")

	// the hello carries the client's initial desktop geometry; later
	// desktop_size packets keep it current
	if w, h, ok := caps.IntPair("desktop_size"); ok {
		s.desktop.SetSize(w, h)
	}
	if w, h, ok := caps.IntPair("desktop_size.unscaled"); ok {
		s.desktop.SetUnscaledSize(w, h)
	}
	s.desktop.SetScreens(caps.Raw("screen_sizes"))
	s.desktop.SetDesktops(caps.Int("desktops", 1), caps.Strs("desktop.names"))
	if caps.Has("monitors") {
		s.desktop.SetMonitors(caps.Raw("monitors"))
	}
	if rate := caps.Int("vrefresh", 0); rate > 0 {
		s.desktop.VRefresh = rate
	}
	s.hello = true
}

func (s *Source) UUID() string           { return s.uuid }
func (s *Source) Caps() wire.Dict        { return s.caps }
func (s *Source) Hello() bool            { return s.hello }
func (s *Source) UIClient() bool         { return s.hello && s.uiClient }
func (s *Source) Share() bool            { return s.share }
func (s *Source) WantsCursors() bool     { return s.hello && s.wantCursors }
func (s *Source) ConnectedAt() time.Time { return s.connectedAt }
func (s *Source) Username() string       { return s.username }
func (s *Source) Hostname() string       { return s.hostname }
func (s *Source) UserEvents() int64      { return s.userEvents }

func (s *Source) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}

func (s *Source) Transport() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.Transport()
}

// Send writes a packet to the client. A failed write closes the
// connection so the transport's read pump notices and unregisters the
// source.
func (s *Source) Send(p *wire.Packet) {
	if s.closed || s.conn == nil {
		return
	}
	if err := s.conn.WritePacket(p); err != nil {
		logger.Warnf("failed to send %s to %s: %v", p.Type(), s.uuid, err)
		s.Close()
	}
}

// Disconnect tells the client why it is going away, then closes.
func (s *Source) Disconnect(reason string) {
	logger.Infof("disconnecting %s: %s", s.ID(), reason)
	s.Send(wire.New("disconnect", reason))
	s.Close()
}

// Close shuts the connection down and drops any queued cursor delivery.
// Safe to call more than once.
func (s *Source) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cursors.CancelTimer()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			logger.Debugf("close %s: %v", s.ID(), err)
		}
	}
}

func (s *Source) Closed() bool { return s.closed }

// ID names the source in logs: the uuid once the handshake assigned
// one, the remote address before that.
func (s *Source) ID() string {
	if s.uuid != "" {
		return s.uuid
	}
	return s.RemoteAddr()
}

// UserEvent counts a user-triggered packet for idle bookkeeping.
func (s *Source) UserEvent() {
	s.userEvents++
	s.lastUserEvent = s.clock.Now()
}

// PacketReceived counts every packet routed to this source.
func (s *Source) PacketReceived() {
	s.packets++
}

func (s *Source) KeyboardConfig() *keyboard.Config       { return s.kbConfig }
func (s *Source) SetKeyboardConfig(cfg *keyboard.Config) { s.kbConfig = cfg }

func (s *Source) Desktop() *display.DesktopState { return &s.desktop }

func (s *Source) SetRefreshRate(rate int) { s.refreshRate = rate }
func (s *Source) RefreshRate() int        { return s.refreshRate }

// UpdatedDesktopSize notifies the client of new server geometry. The
// notification is suppressed before the handshake finishes and when the
// client already knows this size, either from the hello response or
// because its own desktop_size request caused it.
func (s *Source) UpdatedDesktopSize(rootW, rootH, maxW, maxH int) bool {
	if !s.hello {
		return false
	}
	if s.desktop.ServerWidth == rootW && s.desktop.ServerHeight == rootH {
		return false
	}
	s.desktop.SetServerSize(rootW, rootH)
	s.Send(wire.New("desktop_size", rootW, rootH, maxW, maxH))
	return true
}

// SendCursor, SendEmptyCursor and SetSendCursors delegate to the
// per-connection batching sender.
func (s *Source) SendCursor(img *cursor.Image) { s.cursors.SendCursor(img) }
func (s *Source) SendEmptyCursor()             { s.cursors.SendEmptyCursor() }
func (s *Source) SetSendCursors(enabled bool)  { s.cursors.SetSendCursors(enabled) }
func (s *Source) SendCursors() bool            { return s.cursors.SendCursors() }

// SendPing asks the client for a ping_echo carrying this timestamp.
func (s *Source) SendPing() {
	s.Send(wire.New("ping", s.clock.Now().UnixMilli()))
}

// ProcessPing answers a client ping: echo the timestamp back together
// with the server load averages and the last latency measured for this
// client.
func (s *Source) ProcessPing(echoTime any, load [3]int64) {
	s.Send(wire.New("ping_echo", echoTime, load[0], load[1], load[2], s.pingLatency))
}

// ProcessPingEcho records the answer to one of our pings: the echoed
// timestamp, the client's load averages and the latency the client
// measured for us. Our own latency is the round-trip time.
func (s *Source) ProcessPingEcho(p *wire.Packet) error {
	echoed, err := p.Int(1)
	if err != nil {
		return err
	}
	s.lastPingEchoedTime = echoed
	for i := 0; i < 3; i++ {
		if v, err := p.Int(2 + i); err == nil {
			s.clientLoad[i] = v
		}
	}
	if latency := s.clock.Now().UnixMilli() - echoed; latency >= 0 {
		s.pingLatency = latency
	}
	logger.Debugf("ping echo from %s: latency=%dms load=%v", s.uuid, s.pingLatency, s.clientLoad)
	return nil
}

// Latency returns the last round-trip time measured for this client in
// milliseconds, -1 before the first echo.
func (s *Source) Latency() int64 { return s.pingLatency }

// Info reports this source for the info subsystem.
func (s *Source) Info() map[string]any {
	now := s.clock.Now()
	info := map[string]any{
		"uuid":            s.uuid,
		"address":         s.RemoteAddr(),
		"transport":       s.Transport(),
		"ui_client":       s.uiClient,
		"share":           s.share,
		"connection_time": int64(now.Sub(s.connectedAt).Seconds()),
		"user_events":     s.userEvents,
		"packets":         s.packets,
		"cursors":         s.cursors.SendCursors(),
	}
	if s.username != "" {
		info["username"] = s.username
	}
	if s.hostname != "" {
		info["hostname"] = s.hostname
	}
	if !s.lastUserEvent.IsZero() {
		info["idle_time"] = int64(now.Sub(s.lastUserEvent).Seconds())
	}
	if s.pingLatency >= 0 {
		info["latency"] = s.pingLatency
		info["load"] = []int64{s.clientLoad[0], s.clientLoad[1], s.clientLoad[2]}
	}
	if s.refreshRate > 0 {
		info["refresh-rate"] = s.refreshRate
	}
	if d := s.desktop; d.Width > 0 && d.Height > 0 {
		info["desktop_size"] = []int{d.Width, d.Height}
	}
	return info
}
