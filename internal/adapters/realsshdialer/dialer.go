// Package realsshdialer provides a real implementation of the SSHDialer port.
package realsshdialer

import (
	"context"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer implements ports.SSHDialer over a TCP connection.
type Dialer struct{}

// New creates a new Dialer.
func New() *Dialer {
	return &Dialer{}
}

// Dial connects to addr and runs the SSH handshake. The context deadline, when
// set, also bounds the handshake.
func (d *Dialer) Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	var nd net.Dialer
	if config.Timeout > 0 {
		nd.Timeout = config.Timeout
	}
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}
