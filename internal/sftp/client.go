// Package sftp provides a serialized SFTP client used as the driver's transport.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("sftp client is closed")

// Client wraps an SFTP client for remote filesystem operations.
// It uses an existing SSH connection and can be initialized lazily.
type Client struct {
	sshConn    *ssh.Client
	sftpClient *sftp.Client
	mu         sync.Mutex
	closed     bool
}

// NewClient creates a new SFTP client wrapper using an existing SSH connection.
// The SFTP subsystem is initialized lazily on first use or by Start.
func NewClient(sshConn *ssh.Client) *Client {
	return &Client{
		sshConn: sshConn,
	}
}

// NewClientPipe starts an SFTP session over an already established byte stream,
// for example the stdio of an sftp-server process or an in-memory pipe.
func NewClientPipe(rd io.Reader, wr io.WriteCloser) (*Client, error) {
	client, err := sftp.NewClientPipe(rd, wr)
	if err != nil {
		return nil, fmt.Errorf("create sftp client: %w", err)
	}
	return &Client{sftpClient: client}, nil
}

// Start opens the SFTP subsystem if it is not open yet.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

// connectLocked initializes the SFTP client if not already done. c.mu must be held.
func (c *Client) connectLocked() error {
	if c.closed {
		return ErrClosed
	}

	if c.sftpClient != nil {
		return nil
	}

	if c.sshConn == nil {
		return fmt.Errorf("ssh connection is nil")
	}

	client, err := sftp.NewClient(c.sshConn)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}

	c.sftpClient = client
	return nil
}

// Close closes the SFTP client. The SSH connection is left to its owner.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.sftpClient != nil {
		err := c.sftpClient.Close()
		c.sftpClient = nil
		return err
	}
	return nil
}

// IsConnected returns true if the SFTP client is connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sftpClient != nil && !c.closed
}

// call runs fn against the live SFTP client while holding the lock.
func call[T any](c *Client, fn func(*sftp.Client) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		var zero T
		return zero, err
	}
	return fn(c.sftpClient)
}

// exec is call for operations that only return an error.
func exec(c *Client, fn func(*sftp.Client) error) error {
	_, err := call(c, func(sc *sftp.Client) (struct{}, error) {
		return struct{}{}, fn(sc)
	})
	return err
}

// Stat returns file information for the given path, following symlinks.
func (c *Client) Stat(path string) (os.FileInfo, error) {
	return call(c, func(sc *sftp.Client) (os.FileInfo, error) { return sc.Stat(path) })
}

// Lstat is Stat without following symlinks.
func (c *Client) Lstat(path string) (os.FileInfo, error) {
	return call(c, func(sc *sftp.Client) (os.FileInfo, error) { return sc.Lstat(path) })
}

func (c *Client) ReadDir(path string) ([]os.FileInfo, error) {
	return call(c, func(sc *sftp.Client) ([]os.FileInfo, error) { return sc.ReadDir(path) })
}

func (c *Client) ReadLink(path string) (string, error) {
	return call(c, func(sc *sftp.Client) (string, error) { return sc.ReadLink(path) })
}

// Mkdir creates a single folder; the parent must exist.
func (c *Client) Mkdir(path string) error {
	return exec(c, func(sc *sftp.Client) error { return sc.Mkdir(path) })
}

func (c *Client) MkdirAll(path string) error {
	return exec(c, func(sc *sftp.Client) error { return sc.MkdirAll(path) })
}

// Remove deletes a file or an empty folder.
func (c *Client) Remove(path string) error {
	return exec(c, func(sc *sftp.Client) error { return sc.Remove(path) })
}

func (c *Client) RemoveDirectory(path string) error {
	return exec(c, func(sc *sftp.Client) error { return sc.RemoveDirectory(path) })
}

// Rename moves oldPath to newPath. Most servers refuse to overwrite an
// existing target.
func (c *Client) Rename(oldPath, newPath string) error {
	return exec(c, func(sc *sftp.Client) error { return sc.Rename(oldPath, newPath) })
}

func (c *Client) Chmod(path string, mode os.FileMode) error {
	return exec(c, func(sc *sftp.Client) error { return sc.Chmod(path, mode) })
}

// Open opens a file for reading. Reads on the returned file do not hold
// the client lock.
func (c *Client) Open(path string) (*sftp.File, error) {
	return call(c, func(sc *sftp.Client) (*sftp.File, error) { return sc.Open(path) })
}

// OpenFile opens a file with os.O_* flags.
func (c *Client) OpenFile(path string, flags int) (*sftp.File, error) {
	return call(c, func(sc *sftp.Client) (*sftp.File, error) { return sc.OpenFile(path, flags) })
}

// Getwd returns the server's working directory for this session.
func (c *Client) Getwd() (string, error) {
	return call(c, (*sftp.Client).Getwd)
}

// RealPath returns the canonical absolute form of path as reported by the server.
func (c *Client) RealPath(path string) (string, error) {
	return call(c, func(sc *sftp.Client) (string, error) { return sc.RealPath(path) })
}

// IsNotExist reports whether err means the remote path does not exist.
func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		return status.FxCode() == sftp.ErrSSHFxNoSuchFile
	}
	return false
}
