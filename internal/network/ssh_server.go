package network

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"

	"github.com/seamd/seamd/internal/config"
	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/session"
	"github.com/seamd/seamd/internal/wire"
)

// SSHServer accepts client connections over SSH. The packet stream
// runs over the session channel with the usual length-prefixed frames;
// authentication is by public key against the authorized-keys file and
// the fingerprint whitelist from the configuration.
type SSHServer struct {
	bind         string
	port         int
	hostKeyPath  string
	authKeysPath string
	handler      Handler

	server *ssh.Server

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSSHServer(bind string, port int, hostKeyPath, authKeysPath string, handler Handler) *SSHServer {
	return &SSHServer{
		bind:         bind,
		port:         port,
		hostKeyPath:  hostKeyPath,
		authKeysPath: authKeysPath,
		handler:      handler,
		stop:         make(chan struct{}),
	}
}

// Start begins listening for SSH connections.
func (s *SSHServer) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(fmt.Sprintf("%s:%d", s.bind, s.port)),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			s.loggingMiddleware(),
			s.sessionHandler(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}
	s.server = server

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Infof("SSH transport listening on %s", s.Addr())
		if err := server.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
			logger.Errorf("SSH server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the listener down and closes every active session.
func (s *SSHServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		s.wg.Wait()
	})
}

func (s *SSHServer) Addr() string {
	return fmt.Sprintf("ssh://%s:%d", s.bind, s.port)
}

// publicKeyAuth accepts keys listed in the authorized-keys file or the
// configured fingerprint whitelist. Unknown keys are only let through
// when whitelist-only mode is off.
func (s *SSHServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	addr := ctx.RemoteAddr().String()
	logger.Debugf("ssh auth attempt addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)

	if s.authorizedKey(key) {
		logger.Infof("ssh key authorized by %s: %s", s.authKeysPath, fingerprint)
		return true
	}
	if config.IsSSHKeyWhitelisted(fingerprint) {
		logger.Infof("ssh key is whitelisted: %s", fingerprint)
		return true
	}
	if config.Get().Server.SSHWhitelistOnly {
		logger.Warnf("Warning: rejected unknown ssh key %s from %s", fingerprint, addr)
		return false
	}
	logger.Infof("accepting ssh key %s from %s", fingerprint, addr)
	return true
}

// authorizedKey reports whether key appears in the authorized-keys
// file. Unparseable lines are skipped.
func (s *SSHServer) authorizedKey(key ssh.PublicKey) bool {
	data, err := os.ReadFile(s.authKeysPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Warning: cannot read %s: %v", s.authKeysPath, err)
		}
		return false
	}
	marshaled := key.Marshal()
	for len(data) > 0 {
		authorized, _, _, rest, err := gossh.ParseAuthorizedKey(data)
		if err != nil {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				break
			}
			data = data[i+1:]
			continue
		}
		if bytes.Equal(authorized.Marshal(), marshaled) {
			return true
		}
		data = rest
	}
	return false
}

func (s *SSHServer) loggingMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("ssh session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			next(sess)
			logger.Debugf("ssh session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

// sessionHandler runs the packet pump over the session channel. The
// session blocks here until the connection dies or the server stops.
func (s *SSHServer) sessionHandler() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			conn := &sshConn{sess: sess, out: newFrameBuffer(sess)}
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-s.stop:
					_ = sess.Close()
				case <-done:
				}
			}()
			pump(s.handler, conn, sess)
			_ = conn.out.Close()
		}
	}
}

// sshConn adapts one SSH session channel to the packet loop.
type sshConn struct {
	sess ssh.Session
	out  *frameBuffer
}

var _ session.Conn = (*sshConn)(nil)

func (c *sshConn) WritePacket(p *wire.Packet) error { return c.out.WritePacket(p) }

func (c *sshConn) Close() error {
	_ = c.out.Close()
	return c.sess.Close()
}

func (c *sshConn) RemoteAddr() string { return c.sess.RemoteAddr().String() }
func (c *sshConn) Transport() string  { return "ssh" }
