// Package driver exposes a remote SFTP filesystem as a storage backend
// addressed by rooted identifiers.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/acolita/sftpfs/internal/adapters/realclock"
	"github.com/acolita/sftpfs/internal/adapters/realfs"
	"github.com/acolita/sftpfs/internal/adapters/realmime"
	"github.com/acolita/sftpfs/internal/ports"
	sshx "github.com/acolita/sftpfs/internal/ssh"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Session is one authenticated SFTP connection. Operations are blocking and
// must be issued one at a time.
type Session struct {
	cfg       Config
	transport Transport
	paths     PathMapper
	identity  identity

	hostKey ssh.PublicKey
	conn    *sshx.Client
	auth    *sshx.Auth

	fs    ports.FileSystem
	mime  ports.MimeResolver
	clock ports.Clock

	mu     sync.Mutex
	closed bool
}

// identity is the remote uid/gid of the login directory.
type identity struct {
	known    bool
	uid, gid uint32
}

// Option configures a Session.
type Option func(*options)

type options struct {
	dialer ports.SSHDialer
	clock  ports.Clock
	fs     ports.FileSystem
	mime   ports.MimeResolver
}

// WithDialer sets the SSH dialer.
func WithDialer(d ports.SSHDialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock sets the clock used for keepalives and backup names.
func WithClock(c ports.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithFileSystem sets the local filesystem used for key files, downloads and uploads.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithMimeResolver sets the MIME resolver used by Details.
func WithMimeResolver(r ports.MimeResolver) Option {
	return func(o *options) { o.mime = r }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = realclock.New()
	}
	if o.fs == nil {
		o.fs = realfs.New()
	}
	if o.mime == nil {
		o.mime = realmime.New()
	}
	return o
}

// Connect dials the server, authenticates, starts the sftp subsystem and
// resolves the root. Connection failures are returned as *ConnectionError.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	fail := func(err error) (*Session, error) {
		return nil, &ConnectionError{Host: cfg.Host, Port: cfg.Port, Err: err}
	}

	auth, err := sshx.BuildAuthMethods(sshx.AuthConfig{
		Method:         cfg.AuthMethod,
		Password:       cfg.Password,
		PublicKeyPath:  cfg.PublicKeyPath,
		PrivateKeyPath: cfg.PrivateKeyPath,
		Passphrase:     cfg.Passphrase,
		FS:             o.fs,
	})
	if err != nil {
		return fail(err)
	}

	verifier, err := sshx.NewHostKeyVerifier(sshx.HostKeyOptions{
		ExpectedFingerprint: cfg.ExpectedFingerprint,
		FingerprintMethod:   cfg.FingerprintMethod,
		KnownHostsPath:      cfg.KnownHostsPath,
		FS:                  o.fs,
	})
	if err != nil {
		auth.Close()
		return fail(err)
	}

	copts := sshx.DefaultClientOptions()
	copts.Host = cfg.Host
	copts.Port = cfg.Port
	copts.User = cfg.User
	copts.AuthMethods = auth.Methods
	copts.HostKeyCallback = verifier.Callback()
	copts.Timeout = cfg.Timeout
	copts.KeepaliveInterval = cfg.KeepaliveInterval
	copts.Clock = o.clock
	copts.Dialer = o.dialer

	client, err := sshx.NewClient(copts)
	if err != nil {
		auth.Close()
		return fail(err)
	}

	if err := client.Connect(ctx); err != nil {
		auth.Close()
		return fail(err)
	}

	sc, err := client.SFTPClient()
	if err != nil {
		client.Close()
		auth.Close()
		return fail(err)
	}

	s, err := newSession(cfg, sc, o)
	if err != nil {
		client.Close()
		auth.Close()
		return fail(err)
	}
	s.conn = client
	s.auth = auth
	s.hostKey = verifier.Key()

	slog.Info("sftp session established",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("user", cfg.User),
		slog.String("root", s.paths.Prefix()),
	)
	return s, nil
}

// NewSession wraps an already open transport. The session owns the
// transport and closes it on Close.
func NewSession(cfg Config, transport Transport, opts ...Option) (*Session, error) {
	return newSession(cfg.WithDefaults(), transport, buildOptions(opts))
}

func newSession(cfg Config, transport Transport, o options) (*Session, error) {
	root, err := transport.RealPath(cfg.Root)
	if err != nil {
		return nil, wrapErr("resolve root", cfg.Root, err)
	}
	info, err := transport.Stat(root)
	if err != nil {
		return nil, wrapErr("stat root", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s: %w", root, ErrNotDirectory)
	}

	s := &Session{
		cfg:       cfg,
		transport: transport,
		paths:     NewPathMapper(root),
		fs:        o.fs,
		mime:      o.mime,
		clock:     o.clock,
	}
	s.identity = loginIdentity(transport)
	return s, nil
}

// loginIdentity reads the owner of the login directory. The server does not
// report our uid, so this is the closest available stand-in.
func loginIdentity(t Transport) identity {
	wd, err := t.Getwd()
	if err != nil {
		slog.Debug("remote identity unknown", slog.String("error", err.Error()))
		return identity{}
	}
	info, err := t.Stat(wd)
	if err != nil {
		slog.Debug("remote identity unknown", slog.String("error", err.Error()))
		return identity{}
	}
	st, ok := info.Sys().(*sftp.FileStat)
	if !ok {
		return identity{}
	}
	return identity{known: true, uid: st.UID, gid: st.GID}
}

// Config returns the session's configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Paths returns the session's path mapper.
func (s *Session) Paths() PathMapper {
	return s.paths
}

// ForeignKeyFingerprint returns the uppercase hex sha1 or md5 digest of the
// server host key.
func (s *Session) ForeignKeyFingerprint(method string) (string, error) {
	if !sshx.SupportedFingerprint(method) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, method)
	}
	if s.hostKey == nil {
		return "", fmt.Errorf("fingerprint: no host key for this session")
	}
	return sshx.Fingerprint(s.hostKey, method)
}

// Close tears the session down. It is safe to call more than once; errors
// are logged, not returned.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.transport.Close(); err != nil {
		slog.Warn("closing sftp transport", slog.String("error", err.Error()))
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			slog.Warn("closing ssh connection", slog.String("error", err.Error()))
		}
	}
	if s.auth != nil {
		if err := s.auth.Close(); err != nil {
			slog.Warn("closing ssh agent", slog.String("error", err.Error()))
		}
	}

	slog.Debug("sftp session closed", slog.String("host", s.cfg.Host))
	return nil
}

// transportPath maps identifier for op, logging the call.
func (s *Session) transportPath(op, identifier string) (string, error) {
	p, err := s.paths.ToTransport(identifier)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	slog.Debug(op, slog.String("identifier", identifier))
	return p, nil
}

func isSymlink(info os.FileInfo) bool {
	return info.Mode()&os.ModeSymlink != 0
}
