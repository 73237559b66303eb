package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/seamd/seamd/internal/logger"
)

// CommandHandler answers control requests. Calls arrive on the control
// connection's goroutine; implementations synchronize internally.
type CommandHandler interface {
	HandleInfo() map[string]any
	HandleSessions() []SessionEntry
	HandleStop()
}

// SocketServer serves the control socket of a running server.
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    CommandHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer prepares a control socket server; Start binds it.
func NewSocketServer(handler CommandHandler) (*SocketServer, error) {
	socketPath, err := SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
	}, nil
}

// Start binds the unix socket and begins serving requests. A stale
// socket file from a previous run is replaced.
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}
	// the socket is the local owner's control channel only
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("control socket listening at %s", s.socketPath)
	return nil
}

// Stop closes the listener and removes the socket file.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.RemoveAll(s.socketPath)
	logger.Debug("control socket stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("control socket accept failed: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves requests on one control connection until the
// client goes away.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var req Request
		if err := readMessage(conn, &req); err != nil {
			logger.Debugf("control connection closed: %v", err)
			return
		}
		resp := s.handleRequest(&req)
		if err := writeMessage(conn, resp); err != nil {
			logger.Errorf("failed to send control response: %v", err)
			return
		}
	}
}

func (s *SocketServer) handleRequest(req *Request) *Response {
	logger.Debugf("control request: %s", req.Command)
	switch req.Command {
	case CommandInfo:
		return &Response{OK: true, Info: s.handler.HandleInfo()}
	case CommandSessions:
		return &Response{OK: true, Sessions: s.handler.HandleSessions()}
	case CommandStop:
		s.handler.HandleStop()
		return &Response{OK: true}
	default:
		return &Response{Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

// SocketPath names the control socket for the effective user. Under
// sudo the invoking user's name is used so their tools can find it.
func SocketPath() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return filepath.Join("/tmp", fmt.Sprintf("seamd-%s.sock", sudoUser)), nil
	}
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join("/tmp", fmt.Sprintf("seamd-%s.sock", currentUser.Username)), nil
}
