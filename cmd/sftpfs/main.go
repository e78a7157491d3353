// sftpfs is a command line client for the SFTP sites in the sftpfs config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/acolita/sftpfs/internal/adapters/realdialog"
	"github.com/acolita/sftpfs/internal/adapters/realfs"
	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/driver"
	"github.com/acolita/sftpfs/internal/logging"
	"github.com/acolita/sftpfs/internal/mcp"
	"github.com/acolita/sftpfs/internal/ports"
	"github.com/acolita/sftpfs/internal/security"
	flag "github.com/spf13/pflag"
)

// Exit codes of the sftpfs command.
const (
	exitCodeSuccess = iota
	exitCodeUsage
	exitCodeConfig
	exitCodeConnect
	exitCodeCommand
)

// keyringStore is the part of security.KeyringStore the CLI uses.
type keyringStore interface {
	config.SecretStore
	IsEnabled() bool
	StoreServerPassword(host string, port int, user string, password []byte) error
	StoreKeyPassphrase(keyPath string, passphrase []byte) error
	DeleteServerPassword(host string, port int, user string) error
	DeleteKeyPassphrase(keyPath string) error
}

var _ keyringStore = (*security.KeyringStore)(nil)

type app struct {
	configPath string
	siteName   string
	debug      bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	fs         ports.FileSystem
	dialog     ports.DialogProvider
	connect    func(ctx context.Context, c driver.Config) (*driver.Session, error)
	newKeyring func() keyringStore

	cfg *config.Config
}

func newApp() *app {
	fs := realfs.New()
	return &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		fs:     fs,
		dialog: realdialog.New(),
		connect: func(ctx context.Context, c driver.Config) (*driver.Session, error) {
			return driver.Connect(ctx, c, driver.WithFileSystem(fs))
		},
		newKeyring: func() keyringStore { return security.NewKeyringStore() },
	}
}

func handlePanic() {
	if err := recover(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sftpfs exited unexpectedly:\n%+v\n", err)
		_, _ = fmt.Fprintln(os.Stderr, string(debug.Stack()))
		os.Exit(exitCodeCommand)
	}
}

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := newApp().run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// usageError marks bad command lines.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// connectError marks failures to open the session.
type connectError struct{ err error }

func (e *connectError) Error() string { return e.err.Error() }
func (e *connectError) Unwrap() error { return e.err }

func (a *app) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sftpfs", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.SetInterspersed(false)
	fs.StringVarP(&a.configPath, "config", "c", config.DefaultConfigPath(), "path to configuration file")
	fs.StringVarP(&a.siteName, "site", "s", "", "site profile to use (default: first site)")
	fs.BoolVar(&a.debug, "debug", false, "enable debug logging")
	showVersion := fs.Bool("version", false, "show version information")
	fs.Usage = func() { a.printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		return exitCodeUsage
	}

	if *showVersion {
		fmt.Fprintf(a.stdout, "sftpfs version %s\n", mcp.Version)
		return exitCodeSuccess
	}

	if fs.NArg() == 0 {
		fmt.Fprintln(a.stderr, "error: no command given")
		a.printUsage(fs)
		return exitCodeUsage
	}

	cmd, ok := lookupCommand(fs.Arg(0))
	if !ok {
		fmt.Fprintf(a.stderr, "error: unknown command %q\n", fs.Arg(0))
		a.printUsage(fs)
		return exitCodeUsage
	}

	cfg, err := config.Load(a.configPath, a.fs)
	if err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return exitCodeConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(a.stderr, "error: invalid configuration: %v\n", err)
		return exitCodeConfig
	}
	a.cfg = cfg

	level := "warn"
	if a.debug {
		level = "debug"
	}
	logging.Setup(level, logging.FormatText, cfg.Logging.Sanitize)

	err = cmd.run(ctx, a, fs.Args()[1:])
	var usageErr *usageError
	var connErr *connectError
	switch {
	case err == nil:
		return exitCodeSuccess
	case errors.Is(err, flag.ErrHelp):
		return exitCodeSuccess
	case errors.As(err, &usageErr):
		fmt.Fprintf(a.stderr, "error: %v\nusage: sftpfs %s %s\n", err, cmd.name, cmd.usage)
		return exitCodeUsage
	case errors.As(err, &connErr):
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return exitCodeConnect
	default:
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return exitCodeCommand
	}
}

func (a *app) printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(a.stderr, "Usage:\n  sftpfs [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(a.stderr, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(a.stderr, "\nFlags:\n")
	fs.PrintDefaults()
}

// secrets returns the keyring when the config enables it and it is usable.
func (a *app) secrets() keyringStore {
	if !a.cfg.Security.UseKeyring {
		return nil
	}
	store := a.newKeyring()
	if !store.IsEnabled() {
		return nil
	}
	return store
}

// withSession connects to the selected site, runs fn and closes the session.
func (a *app) withSession(ctx context.Context, fn func(*driver.Session) error) error {
	site, err := a.cfg.Site(a.siteName)
	if err != nil {
		if a.siteName == "" {
			return &connectError{err: errors.New("no sites configured; add one with 'sftpfs site add'")}
		}
		return &connectError{err: fmt.Errorf("site %q: %w", a.siteName, err)}
	}

	var secrets config.SecretStore
	if store := a.secrets(); store != nil {
		secrets = store
	}
	dc, err := site.Resolve(a.fs, secrets)
	if err != nil {
		return &connectError{err: err}
	}

	sess, err := a.connect(ctx, dc)
	if err != nil {
		return &connectError{err: fmt.Errorf("site %q: %w", site.Name, err)}
	}
	defer sess.Close()

	return fn(sess)
}
