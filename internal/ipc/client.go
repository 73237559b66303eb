package ipc

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/seamd/seamd/internal/logger"
)

// Client talks to a running server over its control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient locates the control socket of a running server. When the
// per-user socket is missing it falls back to the root-owned one, for
// servers started with sudo from another shell.
func NewClient() (*Client, error) {
	socketPath, err := SocketPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		rootPath := "/tmp/seamd-root.sock"
		if _, err := os.Stat(rootPath); err == nil {
			logger.Debugf("using root control socket %s", rootPath)
			socketPath = rootPath
		}
	}
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}, nil
}

// NewClientWithTimeout is NewClient with a custom request timeout.
func NewClientWithTimeout(timeout time.Duration) (*Client, error) {
	client, err := NewClient()
	if err != nil {
		return nil, err
	}
	client.timeout = timeout
	return client, nil
}

// SocketPath reports which socket the client will dial.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Close releases the client. Each request dials its own connection,
// so there is nothing persistent to tear down.
func (c *Client) Close() error {
	return nil
}

// Info fetches the full info dict from the running server.
func (c *Client) Info() (map[string]any, error) {
	resp, err := c.roundTrip(CommandInfo)
	if err != nil {
		return nil, err
	}
	return resp.Info, nil
}

// Sessions lists the connected clients.
func (c *Client) Sessions() ([]SessionEntry, error) {
	resp, err := c.roundTrip(CommandSessions)
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Stop asks the running server to shut down.
func (c *Client) Stop() error {
	_, err := c.roundTrip(CommandStop)
	return err
}

// roundTrip performs one request/response exchange on a fresh
// connection.
func (c *Client) roundTrip(command string) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("cannot reach the server at %s (is it running?): %w", c.socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeMessage(conn, &Request{Command: command}); err != nil {
		return nil, err
	}
	var resp Response
	if err := readMessage(conn, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("server error: %s", resp.Error)
	}
	return &resp, nil
}
