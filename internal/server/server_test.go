package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/cursor"
	"github.com/seamd/seamd/internal/display"
	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/platform"
	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/session"
	"github.com/seamd/seamd/internal/wire"
)

type fakeConn struct {
	packets []*wire.Packet
	closed  bool
	addr    string
}

func (c *fakeConn) WritePacket(p *wire.Packet) error {
	c.packets = append(c.packets, p)
	return nil
}

func (c *fakeConn) Close() error       { c.closed = true; return nil }
func (c *fakeConn) RemoteAddr() string { return c.addr }
func (c *fakeConn) Transport() string  { return "test" }

func (c *fakeConn) lastPacket(t *testing.T) *wire.Packet {
	t.Helper()
	require.NotEmpty(t, c.packets)
	return c.packets[len(c.packets)-1]
}

func (c *fakeConn) packetTypes() []string {
	types := make([]string, len(c.packets))
	for i, p := range c.packets {
		types[i] = p.Type()
	}
	return types
}

type fakeDevice struct {
	down    map[int]bool
	cleared [][]int
	group   int
}

func (d *fakeDevice) PressKey(keycode int, press bool) error {
	if d.down == nil {
		d.down = map[int]bool{}
	}
	if press {
		d.down[keycode] = true
	} else {
		delete(d.down, keycode)
	}
	return nil
}

func (d *fakeDevice) ClearKeys(keycodes []int) {
	d.cleared = append(d.cleared, keycodes)
	for _, kc := range keycodes {
		delete(d.down, kc)
	}
}

func (d *fakeDevice) KeycodesDown() []int {
	var out []int
	for kc := range d.down {
		out = append(out, kc)
	}
	return out
}

func (d *fakeDevice) SetRepeatRate(delayMS, intervalMS int) error { return nil }

func (d *fakeDevice) LayoutGroup() int { return d.group }

func (d *fakeDevice) SetLayoutGroup(group int) error {
	d.group = group
	return nil
}

func (d *fakeDevice) CurrentModifiers() []string { return nil }

func (d *fakeDevice) SetKeymap(layout, variant, options string) error { return nil }

type fakeBackend struct {
	rootW, rootH int
	sizes        [][2]int
	ungrabbed    int
	shotErr      error
}

func (b *fakeBackend) Name() string                          { return ":1" }
func (b *fakeBackend) RootSize() (int, int)                  { return b.rootW, b.rootH }
func (b *fakeBackend) BitDepth() int                         { return 24 }
func (b *fakeBackend) ScreenSizes() [][2]int                 { return b.sizes }
func (b *fakeBackend) ExactResize() bool                     { return false }
func (b *fakeBackend) SizeMM() (int, int)                    { return 508, 285 }
func (b *fakeBackend) Ungrab()                               { b.ungrabbed++ }
func (b *fakeBackend) SetPhysicalSize(wmm, hmm int) error    { return nil }
func (b *fakeBackend) SetDesktopGeometry(w, h int) error     { return nil }
func (b *fakeBackend) SetWorkarea(x, y, w, h int) error      { return nil }
func (b *fakeBackend) SetDesktops(c int, n []string) error   { return nil }

func (b *fakeBackend) AddScreenSize(w, h int) error {
	b.sizes = append(b.sizes, [2]int{w, h})
	return nil
}

func (b *fakeBackend) SetScreenSize(w, h int) error {
	b.rootW, b.rootH = w, h
	return nil
}

func (b *fakeBackend) Screenshot() (int, int, []byte, error) {
	if b.shotErr != nil {
		return 0, 0, nil, b.shotErr
	}
	return b.rootW, b.rootH, []byte{0x89, 0x50, 0x4e, 0x47}, nil
}

// newTestServer assembles a server around fakes, without transports or
// a running loop: tests drive the loop-owned methods directly.
func newTestServer() (*Server, *fakeBackend, *fakeDevice) {
	cfg := config.DefaultConfig
	cfg.Server.Name = "test session"
	cfg.Server.MaxClients = 10

	clock := scheduler.NewManual()
	registry := session.NewRegistry()
	backend := &fakeBackend{rootW: 1024, rootH: 768, sizes: [][2]int{{1024, 768}, {1920, 1080}}}
	device := &fakeDevice{}

	s := &Server{
		cfg:      &cfg,
		loop:     scheduler.NewLoop(),
		registry: registry,
		platform: &platform.Platform{},
		uuid:     "server-uuid",
		started:  time.Now(),
		sources:  make(map[session.Conn]*session.Source),
		unknown:  make(map[string]int64),
		stopCh:   make(chan struct{}),
	}
	s.keyboard = keyboard.NewEngine(clock, device, registry)
	s.keyboard.SetSyncAllowed(cfg.Keyboard.Sync)
	s.keyboard.State().SetRepeatRate(cfg.Keyboard.RepeatDelay, cfg.Keyboard.RepeatInterval)
	s.display = display.New(clock, registry, cfg.Display)
	s.display.Setup(backend)
	s.cursors = cursor.New(registry, true)
	s.display.SetCursorSizeFunc(s.cursors.Size)
	s.handlers = s.buildHandlers()
	return s, backend, device
}

// connect registers a fresh connection the way HandleConnect would.
func connect(s *Server, addr string) *fakeConn {
	conn := &fakeConn{addr: addr}
	s.addConnection(conn)
	return conn
}

// hello completes the handshake for conn and returns its source. The
// mandatory version field is filled in unless the test sets its own.
func hello(t *testing.T, s *Server, conn *fakeConn, caps wire.Dict) *session.Source {
	t.Helper()
	if !caps.Has("version") {
		caps["version"] = Version
	}
	s.processPacket(conn, wire.New("hello", caps))
	src, ok := s.sources[conn]
	require.True(t, ok, "source dropped during hello")
	require.True(t, src.Hello())
	return src
}

func TestAddConnectionRegisters(t *testing.T) {
	s, _, _ := newTestServer()
	connect(s, "10.0.0.2:40000")
	assert.Equal(t, 1, s.registry.Count())
	assert.Len(t, s.sources, 1)
}

func TestMaxClientsDisconnectsExtra(t *testing.T) {
	s, _, _ := newTestServer()
	s.cfg.Server.MaxClients = 1

	connect(s, "10.0.0.2:40000")
	over := connect(s, "10.0.0.3:40001")

	assert.Equal(t, 1, s.registry.Count())
	assert.True(t, over.closed)
	p := over.lastPacket(t)
	assert.Equal(t, "disconnect", p.Type())
	reason, err := p.Str(1)
	require.NoError(t, err)
	assert.Equal(t, "too many connections", reason)
}

func TestRemoveConnectionDropsSource(t *testing.T) {
	s, _, _ := newTestServer()
	conn := connect(s, "10.0.0.2:40000")
	hello(t, s, conn, wire.Dict{"uuid": "c1"})

	s.removeConnection(conn, nil)
	assert.Equal(t, 0, s.registry.Count())
	assert.Empty(t, s.sources)

	// a second report for the same conn is a no-op
	s.removeConnection(conn, nil)
	assert.Equal(t, 0, s.registry.Count())
}

func TestLastUIClientReleasesKeys(t *testing.T) {
	s, _, device := newTestServer()
	conn := connect(s, "10.0.0.2:40000")
	hello(t, s, conn, wire.Dict{"uuid": "c1"})

	s.keyboard.State().HandleKey(1, true, "a", 97, 38, nil, false, false)
	require.True(t, s.keyboard.State().IsPressed(38))

	s.removeConnection(conn, nil)
	assert.False(t, s.keyboard.State().IsPressed(38))
	assert.NotEmpty(t, device.cleared)
}

func TestKeysSurviveNonUIDeparture(t *testing.T) {
	s, _, _ := newTestServer()
	ui := connect(s, "10.0.0.2:40000")
	hello(t, s, ui, wire.Dict{"uuid": "c1"})
	probe := connect(s, "10.0.0.3:40001")
	hello(t, s, probe, wire.Dict{"uuid": "c2", "windows": false})

	s.keyboard.State().HandleKey(1, true, "a", 97, 38, nil, false, false)
	s.removeConnection(probe, nil)
	assert.True(t, s.keyboard.State().IsPressed(38))
}

func TestCollectInfoNamespaces(t *testing.T) {
	s, _, _ := newTestServer()
	conn := connect(s, "10.0.0.2:40000")
	hello(t, s, conn, wire.Dict{"uuid": "c1", "share": true})

	info := s.collectInfo()
	for _, ns := range []string{"server", "keyboard", "display", "cursor", "clients"} {
		assert.Contains(t, info, ns)
	}
	srv, ok := info["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Version, srv["version"])
	assert.Equal(t, "server-uuid", srv["uuid"])
	assert.Equal(t, "test session", srv["session_name"])

	clients, ok := info["clients"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, clients["count"])
}

func TestUnknownPacketsReported(t *testing.T) {
	s, _, _ := newTestServer()
	conn := connect(s, "10.0.0.2:40000")
	hello(t, s, conn, wire.Dict{"uuid": "c1"})

	s.processPacket(conn, wire.New("no-such-type"))
	s.processPacket(conn, wire.New("no-such-type"))

	srv := s.serverInfo()
	unknown, ok := srv["unknown_packets"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(2), unknown["no-such-type"])
}

func TestSessionEntries(t *testing.T) {
	s, _, _ := newTestServer()
	conn := connect(s, "10.0.0.2:40000")
	hello(t, s, conn, wire.Dict{
		"uuid":     "c1",
		"share":    true,
		"username": "alice",
		"hostname": "laptop",
	})

	entries := s.sessionEntries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "c1", e.UUID)
	assert.Equal(t, "10.0.0.2:40000", e.Address)
	assert.Equal(t, "test", e.Transport)
	assert.True(t, e.UIClient)
	assert.True(t, e.Share)
	assert.Equal(t, "alice", e.Username)
	assert.Equal(t, "laptop", e.Hostname)
}

func TestHandleStopIdempotent(t *testing.T) {
	s, _, _ := newTestServer()
	s.HandleStop()
	s.HandleStop()
	select {
	case <-s.stopCh:
	default:
		t.Fatal("stop channel not closed")
	}
}

func TestServerShutdownNotifiesClients(t *testing.T) {
	s, _, _ := newTestServer()
	conn := connect(s, "10.0.0.2:40000")
	hello(t, s, conn, wire.Dict{"uuid": "c1"})
	s.keyboard.State().HandleKey(1, true, "a", 97, 38, nil, false, false)

	s.shutdown()

	p := conn.lastPacket(t)
	assert.Equal(t, "disconnect", p.Type())
	reason, err := p.Str(1)
	require.NoError(t, err)
	assert.Equal(t, "server shutdown", reason)
	assert.True(t, conn.closed)
	assert.Equal(t, 0, s.registry.Count())
	assert.False(t, s.keyboard.State().IsPressed(38))
}
