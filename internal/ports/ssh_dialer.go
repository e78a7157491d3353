package ports

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// SSHDialer abstracts SSH connection establishment for testing.
type SSHDialer interface {
	// Dial establishes an authenticated SSH connection to addr.
	// The context bounds the TCP connect and the handshake.
	Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}
