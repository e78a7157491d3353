// Package mockssh provides an SSH server with an sftp subsystem for tests.
package mockssh

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Server is a mock SSH server for testing. Its sftp subsystem serves the
// local filesystem.
type Server struct {
	listener   net.Listener
	config     *ssh.ServerConfig
	hostKey    ssh.PublicKey
	addr       string
	users      map[string]string          // username -> password
	keys       map[string][]ssh.PublicKey // username -> authorized keys
	noSFTP     bool
	silent     bool
	globalReqs int
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
	conns      map[net.Conn]struct{}
	connsMu    sync.Mutex
	sftpOpened int
}

// Option configures the mock SSH server.
type Option func(*Server)

// WithUser adds a user/password pair for authentication.
func WithUser(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithAuthorizedKey lets username log in with key.
func WithAuthorizedKey(username string, key ssh.PublicKey) Option {
	return func(s *Server) {
		s.keys[username] = append(s.keys[username], key)
	}
}

// WithoutSFTP makes the server refuse the sftp subsystem.
func WithoutSFTP() Option {
	return func(s *Server) {
		s.noSFTP = true
	}
}

// WithUnansweredRequests makes the server read global requests, keepalives
// included, without ever replying, like a peer behind a dead link.
func WithUnansweredRequests() Option {
	return func(s *Server) {
		s.silent = true
	}
}

// New creates a new mock SSH server listening on a random local port.
func New(opts ...Option) (*Server, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	s := &Server{
		users: map[string]string{
			"test": "test", // Default test user
		},
		keys:    make(map[string][]ssh.PublicKey),
		hostKey: signer.PublicKey(),
		done:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			s.mu.RLock()
			expectedPass, ok := s.users[c.User()]
			s.mu.RUnlock()

			if ok && string(password) == expectedPass {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			s.mu.RLock()
			defer s.mu.RUnlock()

			for _, k := range s.keys[c.User()] {
				if bytes.Equal(k.Marshal(), key.Marshal()) {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("public key rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)
	s.config = config

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.addr = listener.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop()

	slog.Debug("mock SSH server started", slog.String("addr", s.addr))
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.addr
}

// Host returns the host part of the address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey
}

// SFTPSessions returns how many sftp subsystems have been started.
func (s *Server) SFTPSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sftpOpened
}

// Close shuts down the server and drops open connections. It is safe to call
// more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()

		s.connsMu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connsMu.Unlock()

		s.wg.Wait()
	})
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Debug("accept error", slog.String("error", err.Error()))
				continue
			}
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, netConn)
		s.connsMu.Unlock()
		netConn.Close()
	}()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		slog.Debug("SSH handshake failed", slog.String("error", err.Error()))
		return
	}
	defer sshConn.Close()

	go s.handleGlobalRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			slog.Debug("channel accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go s.handleChannel(channel, requests)
	}
}

// handleGlobalRequests answers keepalives and other global requests with
// false, or holds them when the server is silent.
func (s *Server) handleGlobalRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		s.mu.Lock()
		s.globalReqs++
		s.mu.Unlock()
		if s.silent {
			continue
		}
		if req.WantReply {
			req.Reply(false, nil)
		}
	}
}

// GlobalRequests reports how many global requests the server has received.
func (s *Server) GlobalRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalReqs
}

func (s *Server) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()
	defer channel.Close()

	for req := range requests {
		if req.Type != "subsystem" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Name string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" || s.noSFTP {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}
		if req.WantReply {
			req.Reply(true, nil)
		}

		s.mu.Lock()
		s.sftpOpened++
		s.mu.Unlock()

		go ssh.DiscardRequests(requests)
		s.serveSFTP(channel)
		return
	}
}

func (s *Server) serveSFTP(channel ssh.Channel) {
	server, err := sftp.NewServer(channel)
	if err != nil {
		slog.Debug("sftp server failed", slog.String("error", err.Error()))
		return
	}
	if err := server.Serve(); err != nil {
		slog.Debug("sftp server stopped", slog.String("error", err.Error()))
	}
	server.Close()
}
