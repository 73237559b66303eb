package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/session"
	"github.com/seamd/seamd/internal/wire"
)

// WSServer accepts client connections over WebSocket. Each binary
// message carries one JSON packet; the WebSocket layer provides the
// message boundaries so the payload has no length prefix.
type WSServer struct {
	bind    string
	port    int
	handler Handler

	server *http.Server
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// clients connect from anywhere, the packet handshake does the
	// real validation
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewWSServer(bind string, port int, handler Handler) *WSServer {
	return &WSServer{
		bind:    bind,
		port:    port,
		handler: handler,
		conns:   make(map[*wsConn]struct{}),
	}
}

// Start begins listening for WebSocket connections.
func (s *WSServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.bind, s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Infof("WebSocket transport listening on %s", s.Addr())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("WebSocket server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the listener down and closes every upgraded connection,
// which Shutdown alone would leave running.
func (s *WSServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = make(map[*wsConn]struct{})
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *WSServer) Addr() string {
	return fmt.Sprintf("ws://%s:%d", s.bind, s.port)
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugf("websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(wire.MaxFrameSize)
	conn := &wsConn{ws: ws}
	s.track(conn, true)
	defer s.track(conn, false)

	s.handler.HandleConnect(conn)
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.handler.HandleDisconnect(conn, wsCloseReason(err))
			return
		}
		if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
			continue
		}
		p, err := wire.Unmarshal(data)
		if err != nil {
			logger.Warnf("dropping malformed websocket message from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		s.handler.HandlePacket(conn, p)
	}
}

func (s *WSServer) track(c *wsConn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func wsCloseReason(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return closeReason(err)
}

// wsConn adapts one WebSocket connection to the packet loop.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

var _ session.Conn = (*wsConn)(nil)

func (c *wsConn) WritePacket(p *wire.Packet) error {
	data, err := wire.Marshal(p)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }
func (c *wsConn) Transport() string  { return "websocket" }
