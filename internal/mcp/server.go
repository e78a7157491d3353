// Package mcp exposes sftpfs sites as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/acolita/sftpfs/internal/adapters/realdialog"
	"github.com/acolita/sftpfs/internal/adapters/realfs"
	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/driver"
	"github.com/acolita/sftpfs/internal/ports"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "0.3.0"

// ConnectFunc opens a session for a resolved site.
type ConnectFunc func(ctx context.Context, cfg driver.Config) (*driver.Session, error)

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer *server.MCPServer

	// mu serializes tool calls; a driver session is not safe for concurrent use.
	mu       sync.Mutex
	config   *config.Config
	sessions map[string]*driver.Session

	configPath     string
	connect        ConnectFunc
	secrets        config.SecretStore
	fs             ports.FileSystem
	dialogProvider ports.DialogProvider
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFileSystem sets the filesystem used to read credentials from the environment.
func WithFileSystem(fs ports.FileSystem) ServerOption {
	return func(s *Server) {
		s.fs = fs
	}
}

// WithDialogProvider sets the dialog provider used by sftp_site_add.
func WithDialogProvider(dp ports.DialogProvider) ServerOption {
	return func(s *Server) {
		s.dialogProvider = dp
	}
}

// WithConfigPath sets the file sftp_site_add saves to.
func WithConfigPath(path string) ServerOption {
	return func(s *Server) {
		s.configPath = path
	}
}

// WithSecretStore sets where passwords and passphrases missing from the
// environment are looked up.
func WithSecretStore(store config.SecretStore) ServerOption {
	return func(s *Server) {
		s.secrets = store
	}
}

// WithConnectFunc replaces driver.Connect.
func WithConnectFunc(fn ConnectFunc) ServerOption {
	return func(s *Server) {
		s.connect = fn
	}
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	mcpServer := server.NewMCPServer(
		"sftpfs",
		Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:      mcpServer,
		config:         cfg,
		sessions:       make(map[string]*driver.Session),
		fs:             realfs.New(),
		dialogProvider: realdialog.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.connect == nil {
		fs := s.fs
		s.connect = func(ctx context.Context, c driver.Config) (*driver.Session, error) {
			return driver.Connect(ctx, c, driver.WithFileSystem(fs))
		}
	}

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio transport.
func (s *Server) Run() error {
	slog.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// UpdateConfig swaps in a reloaded configuration. Sessions of sites that
// were removed or redefined are closed; the rest stay open.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := config.ChangedSites(s.config, cfg)
	s.config = cfg
	for _, name := range changed.ToSlice() {
		if sess, ok := s.sessions[name]; ok {
			sess.Close()
			delete(s.sessions, name)
		}
	}
	slog.Info("configuration hot-reloaded",
		slog.Int("sites", len(cfg.Sites)),
		slog.Int("closed", changed.Cardinality()),
	)
}

// Close closes every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSessionsLocked()
	return nil
}

func (s *Server) closeSessionsLocked() {
	for name, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, name)
	}
}

// sessionLocked returns the open session for site, connecting on first use.
// An empty site selects the first configured one. s.mu must be held.
func (s *Server) sessionLocked(ctx context.Context, site string) (*driver.Session, error) {
	profile, err := s.config.Site(site)
	if err != nil {
		return nil, err
	}
	if sess, ok := s.sessions[profile.Name]; ok {
		return sess, nil
	}

	cfg, err := profile.Resolve(s.fs, s.secrets)
	if err != nil {
		return nil, err
	}

	slog.Debug("opening site", slog.String("site", profile.Name), slog.String("host", cfg.Host))
	sess, err := s.connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("site %q: %w", profile.Name, err)
	}
	s.sessions[profile.Name] = sess
	return sess, nil
}
