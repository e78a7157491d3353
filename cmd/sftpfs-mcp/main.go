// sftpfs-mcp is an MCP server exposing configured SFTP sites as tools.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/logging"
	"github.com/acolita/sftpfs/internal/mcp"
	"github.com/acolita/sftpfs/internal/security"
	flag "github.com/spf13/pflag"
)

// Version information - set at build time.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  string
		showVersion bool
		debug       bool
	)

	flag.StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("sftpfs-mcp version %s\n", mcp.Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Sanitize)

	slog.Info("starting sftpfs-mcp",
		slog.String("version", mcp.Version),
		slog.Int("sites", len(cfg.Sites)),
	)

	opts := []mcp.ServerOption{mcp.WithConfigPath(configPath)}
	if cfg.Security.UseKeyring {
		if store := security.NewKeyringStore(); store.IsEnabled() {
			opts = append(opts, mcp.WithSecretStore(store))
		} else {
			slog.Warn("keyring requested but not available")
		}
	}

	server := mcp.NewServer(cfg, opts...)

	configWatcher, watcherErr := config.NewWatcher(configPath, func(newCfg *config.Config) {
		if debug {
			newCfg.Logging.Level = "debug"
		}
		server.UpdateConfig(newCfg)
	})
	if watcherErr != nil {
		slog.Warn("config hot-reload disabled",
			slog.String("error", watcherErr.Error()),
		)
	} else {
		slog.Info("config hot-reload enabled",
			slog.String("path", configPath),
		)
	}

	shutdown := func() {
		if configWatcher != nil {
			configWatcher.Close()
		}
		server.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal")
		shutdown()
		os.Exit(0)
	}()

	if err := server.Run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		shutdown()
		os.Exit(1)
	}
	shutdown()
}
