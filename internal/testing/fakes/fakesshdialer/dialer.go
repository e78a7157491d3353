// Package fakesshdialer provides a fake SSH dialer for testing.
package fakesshdialer

import (
	"context"
	"fmt"
	"sync"

	"github.com/acolita/sftpfs/internal/ports"
	"golang.org/x/crypto/ssh"
)

// DialFunc is the behavior of Dial.
type DialFunc func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// Dialer is a fake SSH dialer that can be configured to return errors or specific clients.
type Dialer struct {
	mu       sync.Mutex
	dialFunc DialFunc
	calls    []DialCall
}

// DialCall records a call to Dial.
type DialCall struct {
	Network string
	Addr    string
	Config  *ssh.ClientConfig
}

// New creates a new fake Dialer that returns an error by default.
func New() *Dialer {
	return &Dialer{
		dialFunc: func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
			return nil, fmt.Errorf("fakesshdialer: not configured")
		},
	}
}

// Dial records the call and delegates to the configured DialFunc.
func (d *Dialer) Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DialCall{Network: network, Addr: addr, Config: config})
	fn := d.dialFunc
	d.mu.Unlock()
	return fn(ctx, network, addr, config)
}

// Calls returns all recorded Dial calls.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DialCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// SetDialFunc sets the function called by Dial.
func (d *Dialer) SetDialFunc(fn DialFunc) {
	d.mu.Lock()
	d.dialFunc = fn
	d.mu.Unlock()
}

// SetError configures the dialer to always return the given error.
func (d *Dialer) SetError(err error) {
	d.SetDialFunc(func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return nil, err
	})
}

var _ ports.SSHDialer = (*Dialer)(nil)
