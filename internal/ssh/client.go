// Package ssh provides the SSH connection that carries the SFTP subsystem.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acolita/sftpfs/internal/adapters/realclock"
	"github.com/acolita/sftpfs/internal/adapters/realsshdialer"
	"github.com/acolita/sftpfs/internal/ports"
	"github.com/acolita/sftpfs/internal/sftp"
	"golang.org/x/crypto/ssh"
)

var (
	// ErrUnreachable means the TCP connection or the handshake could not complete.
	ErrUnreachable = errors.New("server unreachable")

	// ErrAuthRejected means the server refused every offered credential.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrSubsystem means the sftp subsystem could not be started.
	ErrSubsystem = errors.New("sftp subsystem unavailable")
)

// DefaultKeepaliveMaxMissed matches OpenSSH's ServerAliveCountMax.
const DefaultKeepaliveMaxMissed = 3

// Client manages the SSH connection to one SFTP server.
type Client struct {
	conn   *ssh.Client
	config *ssh.ClientConfig
	host   string
	port   int
	mu     sync.Mutex

	keepaliveInterval  time.Duration
	keepaliveMaxMissed int
	keepaliveStop      chan struct{}

	// SFTP client (lazy initialized)
	sftpClient *sftp.Client

	// Injected dependencies
	clock  ports.Clock
	dialer ports.SSHDialer
}

// ClientOptions configures SSH client behavior.
type ClientOptions struct {
	Host              string
	Port              int
	User              string
	AuthMethods       []ssh.AuthMethod
	HostKeyCallback   ssh.HostKeyCallback
	Timeout           time.Duration
	KeepaliveInterval time.Duration // Negative disables keepalives
	// KeepaliveMaxMissed is how many unanswered keepalives drop the connection.
	KeepaliveMaxMissed int
	Clock              ports.Clock
	Dialer             ports.SSHDialer
}

// DefaultClientOptions returns default client options.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Port:               22,
		Timeout:            30 * time.Second,
		KeepaliveInterval:  30 * time.Second,
		KeepaliveMaxMissed: DefaultKeepaliveMaxMissed,
	}
}

// NewClient creates a new SSH client with the given options.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if opts.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if len(opts.AuthMethods) == 0 {
		return nil, fmt.Errorf("at least one auth method is required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.KeepaliveInterval == 0 {
		opts.KeepaliveInterval = 30 * time.Second
	}
	if opts.KeepaliveMaxMissed <= 0 {
		opts.KeepaliveMaxMissed = DefaultKeepaliveMaxMissed
	}
	if opts.HostKeyCallback == nil {
		opts.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            opts.AuthMethods,
		HostKeyCallback: opts.HostKeyCallback,
		Timeout:         opts.Timeout,
	}

	clk := opts.Clock
	if clk == nil {
		clk = realclock.New()
	}
	dial := opts.Dialer
	if dial == nil {
		dial = realsshdialer.New()
	}

	return &Client{
		config:             config,
		host:               opts.Host,
		port:               opts.Port,
		keepaliveInterval:  opts.KeepaliveInterval,
		keepaliveMaxMissed: opts.KeepaliveMaxMissed,
		clock:              clk,
		dialer:             dial,
	}, nil
}

// Connect establishes the SSH connection. Failures wrap ErrUnreachable,
// ErrAuthRejected or the host key callback's error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	conn, err := c.dialer.Dial(ctx, "tcp", addr, c.config)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, classifyDialError(err))
	}

	c.conn = conn

	if c.keepaliveInterval > 0 {
		c.keepaliveStop = make(chan struct{})
		// Copy the channel reference so the goroutine never reads the struct field.
		stop := c.keepaliveStop
		go c.keepalive(stop)
	}

	return nil
}

// classifyDialError tags a dial failure with the sentinel describing its cause.
func classifyDialError(err error) error {
	switch {
	case errors.Is(err, ErrHostKeyMismatch):
		return err
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: %w", ErrAuthRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
}

// keepalive probes the server every interval. A probe still unanswered when
// the next tick fires counts as missed, as does one that fails. After
// keepaliveMaxMissed misses in a row the connection is closed, so the next
// operation fails fast instead of hanging on a dead peer.
func (c *Client) keepalive(stop <-chan struct{}) {
	ticker := c.clock.NewTicker(c.keepaliveInterval)
	defer ticker.Stop()

	// reply is non-nil while a probe is in flight.
	var reply chan error
	missed := 0

	miss := func(reason string) bool {
		missed++
		slog.Debug("keepalive missed",
			slog.String("host", c.host),
			slog.Int("missed", missed),
			slog.String("reason", reason),
		)
		return missed >= c.keepaliveMaxMissed
	}

	for {
		select {
		case <-stop:
			return

		case err := <-reply:
			reply = nil
			if err == nil {
				missed = 0
				continue
			}
			if miss(err.Error()) {
				c.dropCurrent()
				return
			}
			continue

		case <-ticker.C():
		}

		if reply != nil {
			if miss("no reply within one interval") {
				c.dropCurrent()
				return
			}
			continue
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		// SendRequest blocks until the peer replies or the connection dies.
		reply = make(chan error, 1)
		go func(conn *ssh.Client, out chan<- error) {
			_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
			out <- err
		}(conn, reply)
	}
}

// dropCurrent closes whatever connection is current after a keepalive failure.
func (c *Client) dropCurrent() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	slog.Warn("server stopped answering keepalives, dropping connection",
		slog.String("host", c.host),
		slog.Int("port", c.port),
	)
	c.drop(conn)
}

// drop closes conn if it is still the current connection.
func (c *Client) drop(conn *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	// Close the connection first; an sftp close against a dead peer waits
	// until the mux goes away.
	_ = conn.Close()
	c.conn = nil
	if c.sftpClient != nil {
		_ = c.sftpClient.Close()
		c.sftpClient = nil
	}
}

// SFTPClient returns the SFTP client, starting the subsystem on first use.
func (c *Client) SFTPClient() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	if c.sftpClient == nil {
		client := sftp.NewClient(c.conn)
		if err := client.Start(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSubsystem, err)
		}
		c.sftpClient = client
	}

	return c.sftpClient, nil
}

// Close stops the keepalive loop and closes the SFTP client and the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}

	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil {
			slog.Warn("closing sftp client",
				slog.String("host", c.host),
				slog.String("error", err.Error()),
			)
		}
		c.sftpClient = nil
	}

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Host returns the target host.
func (c *Client) Host() string {
	return c.host
}

// Port returns the target port.
func (c *Client) Port() int {
	return c.port
}
