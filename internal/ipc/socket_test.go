package ipc

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler answers control requests with canned data.
type fakeHandler struct {
	mu       sync.Mutex
	stopped  bool
	info     map[string]any
	sessions []SessionEntry
}

func (f *fakeHandler) HandleInfo() map[string]any {
	return f.info
}

func (f *fakeHandler) HandleSessions() []SessionEntry {
	return f.sessions
}

func (f *fakeHandler) HandleStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeHandler) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func startTestSocket(t *testing.T, handler CommandHandler) (*SocketServer, *Client) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv := &SocketServer{socketPath: path, handler: handler}
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, &Client{socketPath: path, timeout: 2 * time.Second}
}

func TestControlSocketRoundTrip(t *testing.T) {
	handler := &fakeHandler{
		info: map[string]any{"server": map[string]any{"uuid": "abc"}},
		sessions: []SessionEntry{
			{UUID: "u1", Address: "10.0.0.2:51234", Transport: "ssh", UIClient: true},
		},
	}
	_, client := startTestSocket(t, handler)

	info, err := client.Info()
	require.NoError(t, err)
	assert.Contains(t, info, "server")

	sessions, err := client.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].UUID)
	assert.True(t, sessions[0].UIClient)

	require.NoError(t, client.Stop())
	assert.True(t, handler.Stopped())
}

func TestControlSocketUnknownCommand(t *testing.T) {
	_, client := startTestSocket(t, &fakeHandler{})

	_, err := client.roundTrip("reboot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestControlSocketPermissions(t *testing.T) {
	srv, _ := startTestSocket(t, &fakeHandler{})

	fi, err := os.Stat(srv.socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestControlSocketStopRemovesFile(t *testing.T) {
	srv, client := startTestSocket(t, &fakeHandler{})
	_, err := client.Sessions()
	require.NoError(t, err)

	srv.Stop()
	_, err = os.Stat(srv.socketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestClientWithoutServer(t *testing.T) {
	client := &Client{
		socketPath: filepath.Join(t.TempDir(), "absent.sock"),
		timeout:    200 * time.Millisecond,
	}
	_, err := client.Info()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach the server")
}
