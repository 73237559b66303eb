// Package server assembles the subsystems into the seamd daemon. One
// scheduler goroutine owns all session state; the transports feed it
// packets and the control socket answers the local tools.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/cursor"
	"github.com/seamd/seamd/internal/display"
	"github.com/seamd/seamd/internal/ipc"
	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/network"
	"github.com/seamd/seamd/internal/platform"
	"github.com/seamd/seamd/internal/scheduler"
	"github.com/seamd/seamd/internal/session"
	"github.com/seamd/seamd/internal/wire"
)

// Version identifies this build in hello responses and info output.
const Version = "0.1.0-dev"

// controlTimeout bounds how long a control request waits for the loop.
const controlTimeout = 5 * time.Second

// Server ties the scheduler loop, the client registry and the
// keyboard, display and cursor engines together.
type Server struct {
	cfg      *config.Config
	loop     *scheduler.Loop
	registry *session.Registry

	keyboard *keyboard.Engine
	display  *display.Negotiator
	cursors  *cursor.Forwarder
	platform *platform.Platform

	transports []network.Transport
	control    *ipc.SocketServer

	uuid    string
	started time.Time

	// loop-owned state
	handlers    map[string]handlerFunc
	sources     map[session.Conn]*session.Source
	unknown     map[string]int64
	pingTimer   scheduler.Timer
	cursorTimer scheduler.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Compile-time checks for the callback surfaces the server serves.
var (
	_ network.Handler    = (*Server)(nil)
	_ ipc.CommandHandler = (*Server)(nil)
)

// New wires the subsystems from the configuration. The platform
// handles are opened here; Run starts serving.
func New(cfg *config.Config) (*Server, error) {
	plat, err := platform.Setup(cfg)
	if err != nil {
		return nil, fmt.Errorf("platform setup failed: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		loop:     scheduler.NewLoop(),
		registry: session.NewRegistry(),
		platform: plat,
		uuid:     uuid.NewString(),
		started:  time.Now(),
		sources:  make(map[session.Conn]*session.Source),
		unknown:  make(map[string]int64),
		stopCh:   make(chan struct{}),
	}

	s.keyboard = keyboard.NewEngine(s.loop, plat.Keyboard, s.registry)
	s.keyboard.SetSyncAllowed(cfg.Keyboard.Sync)
	s.keyboard.State().SetRepeatRate(cfg.Keyboard.RepeatDelay, cfg.Keyboard.RepeatInterval)
	if plat.InputMethod != nil {
		s.keyboard.SetInputMethod(plat.InputMethod)
	}

	s.display = display.New(s.loop, s.registry, cfg.Display)
	s.display.Setup(plat.Display)
	s.display.SetupSettings(plat.Settings)

	s.cursors = cursor.New(s.registry, cfg.Cursor.Enabled)
	s.cursors.Setup(plat.Cursors)
	s.display.SetCursorSizeFunc(s.cursors.Size)

	s.handlers = s.buildHandlers()

	s.transports = []network.Transport{
		network.NewSSHServer(cfg.Server.BindAddress, cfg.Server.Port,
			cfg.Server.SSHHostKeyPath, cfg.Server.SSHAuthKeysPath, s),
	}
	if cfg.Server.WebSocketPort > 0 {
		s.transports = append(s.transports,
			network.NewWSServer(cfg.Server.BindAddress, cfg.Server.WebSocketPort, s))
	}

	control, err := ipc.NewSocketServer(s)
	if err != nil {
		logger.Warnf("Warning: control socket unavailable: %v", err)
	} else {
		s.control = control
	}
	return s, nil
}

// UUID identifies this server instance for the lifetime of the
// process.
func (s *Server) UUID() string {
	return s.uuid
}

// Run serves until the context is cancelled or a stop request arrives
// on the control socket, then tears everything down.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			logger.Info("stop requested over the control socket")
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.control != nil {
		if err := s.control.Start(); err != nil {
			return fmt.Errorf("failed to start the control socket: %w", err)
		}
	}
	for _, tr := range s.transports {
		if err := tr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start transport %s: %w", tr.Addr(), err)
		}
	}

	// backend notifications arrive on the platform's event pump and
	// are replayed onto the loop
	s.platform.Listen(
		func() { s.loop.Post(s.display.ScreenChanged) },
		func(serial uint64) { s.loop.Post(func() { s.cursors.CursorChanged(serial) }) },
	)

	s.loop.Post(s.schedulePing)
	s.loop.Post(s.scheduleCursorPoll)

	logger.Infof("seamd %s ready, session %s", Version, s.uuid)
	s.loop.Run(ctx)

	s.shutdown()
	return nil
}

// schedulePing arms the next server-initiated ping round. Every
// handshaked client gets one; the echo updates its latency record.
func (s *Server) schedulePing() {
	interval := time.Duration(s.cfg.Server.PingInterval) * time.Second
	if interval <= 0 {
		return
	}
	s.pingTimer = s.loop.After(interval, func() {
		for _, src := range s.registry.Sources() {
			if src.Hello() {
				src.SendPing()
			}
		}
		s.schedulePing()
	})
}

// scheduleCursorPoll arms the fallback cursor poll, for displays that
// cannot deliver cursor change events.
func (s *Server) scheduleCursorPoll() {
	interval := time.Duration(s.cfg.Cursor.PollInterval) * time.Millisecond
	if interval <= 0 || !s.cursors.Enabled() {
		return
	}
	s.cursorTimer = s.loop.After(interval, func() {
		s.cursors.PollChanged()
		s.scheduleCursorPoll()
	})
}

// shutdown runs after the loop has drained, so it owns the state
// again: tell the clients, release held keys, restore the display and
// close the platform handles.
func (s *Server) shutdown() {
	logger.Info("server shutting down")
	for _, src := range s.registry.Sources() {
		src.Disconnect("server shutdown")
		s.registry.Remove(src)
	}
	if s.pingTimer != nil {
		s.pingTimer.Cancel()
		s.pingTimer = nil
	}
	if s.cursorTimer != nil {
		s.cursorTimer.Cancel()
		s.cursorTimer = nil
	}
	s.keyboard.Cleanup()
	s.display.Cleanup()
	s.display.Settings().Reset()
	for _, tr := range s.transports {
		tr.Stop()
	}
	if s.control != nil {
		s.control.Stop()
	}
	s.platform.Close()
}

// HandleConnect implements network.Handler; it runs on a transport
// goroutine and reposts onto the loop.
func (s *Server) HandleConnect(conn session.Conn) {
	s.loop.Post(func() { s.addConnection(conn) })
}

// HandlePacket implements network.Handler.
func (s *Server) HandlePacket(conn session.Conn, p *wire.Packet) {
	s.loop.Post(func() { s.processPacket(conn, p) })
}

// HandleDisconnect implements network.Handler.
func (s *Server) HandleDisconnect(conn session.Conn, err error) {
	s.loop.Post(func() { s.removeConnection(conn, err) })
}

// addConnection registers a fresh connection and enforces the client
// limit.
func (s *Server) addConnection(conn session.Conn) {
	src := session.New(s.loop, conn)
	s.sources[conn] = src
	s.registry.Add(src)
	logger.Infof("new %s connection from %s", conn.Transport(), conn.RemoteAddr())
	if limit := s.cfg.Server.MaxClients; limit > 0 && s.registry.Count() > limit {
		src.Disconnect("too many connections")
		s.dropSource(conn, src)
	}
}

// removeConnection unregisters a connection reported dead by its
// transport.
func (s *Server) removeConnection(conn session.Conn, err error) {
	src, ok := s.sources[conn]
	if !ok {
		// already dropped by a handler, the transport noticed later
		return
	}
	if err != nil {
		logger.Warnf("connection %s lost: %v", src.ID(), err)
	} else {
		logger.Infof("connection %s closed", src.ID())
	}
	s.dropSource(conn, src)
}

// dropSource removes one source everywhere and runs the departure
// hooks when the last UI client leaves.
func (s *Server) dropSource(conn session.Conn, src *session.Source) {
	delete(s.sources, conn)
	s.registry.Remove(src)
	wasUI := src.UIClient()
	src.Close()
	if wasUI && len(s.registry.UIClients()) == 0 {
		logger.Info("last UI client is gone")
		s.keyboard.State().ClearPressed()
		s.display.LastClientExited()
	}
}

// dropBySource finds the connection key for src; handlers that evict
// other clients only hold the source.
func (s *Server) dropBySource(src *session.Source) {
	for conn, candidate := range s.sources {
		if candidate == src {
			s.dropSource(conn, src)
			return
		}
	}
}
