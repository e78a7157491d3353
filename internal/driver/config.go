package driver

import (
	"fmt"
	"os"
	"time"

	sshx "github.com/acolita/sftpfs/internal/ssh"
)

// Authentication methods.
const (
	AuthPassword  = sshx.MethodPassword
	AuthPublicKey = sshx.MethodPublicKey
	AuthAgent     = sshx.MethodAgent
)

// RenameFallback selects what Rename does when the target already exists.
type RenameFallback string

const (
	// RenameKeep moves an existing target aside and restores it if the rename fails.
	RenameKeep RenameFallback = "keep"

	// RenameDeleteSource deletes the target first and, if the rename then
	// fails, deletes the source as well.
	RenameDeleteSource RenameFallback = "delete_source"
)

// Defaults applied by Connect and NewSession.
const (
	DefaultPort              = 22
	DefaultFileMode          = os.FileMode(0644)
	DefaultFolderMode        = os.FileMode(0755)
	DefaultRoot              = "/"
	DefaultTimeout           = 30 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
)

// Config describes one SFTP site. A session keeps its own copy.
type Config struct {
	Host string
	Port int
	User string

	AuthMethod     string // password, publickey or agent
	Password       string
	PublicKeyPath  string
	PrivateKeyPath string
	Passphrase     string

	FileMode   os.FileMode // Applied to uploaded and written files
	FolderMode os.FileMode // Applied to created folders

	// Root is the remote directory that identifier "/" maps to.
	Root string

	KnownHostsPath      string
	ExpectedFingerprint string
	FingerprintMethod   string // sha1 or md5

	Timeout           time.Duration
	KeepaliveInterval time.Duration // Negative disables keepalives

	RenameFallback RenameFallback
}

// WithDefaults returns a copy of c with zero fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.AuthMethod == "" {
		c.AuthMethod = AuthPassword
	}
	if c.FileMode == 0 {
		c.FileMode = DefaultFileMode
	}
	if c.FolderMode == 0 {
		c.FolderMode = DefaultFolderMode
	}
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.ExpectedFingerprint != "" && c.FingerprintMethod == "" {
		c.FingerprintMethod = sshx.FingerprintSHA1
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.RenameFallback == "" {
		c.RenameFallback = RenameKeep
	}
	return c
}

// Validate checks the fields Connect needs. Key files are checked when
// the auth methods are built.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.User == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}

	switch c.AuthMethod {
	case AuthPassword, AuthPublicKey, AuthAgent:
	default:
		return fmt.Errorf("%w: unknown auth method %q", ErrInvalidConfig, c.AuthMethod)
	}

	if c.ExpectedFingerprint != "" && !sshx.SupportedFingerprint(c.FingerprintMethod) {
		return fmt.Errorf("%w: fingerprint method %q", ErrInvalidConfig, c.FingerprintMethod)
	}

	switch c.RenameFallback {
	case RenameKeep, RenameDeleteSource:
	default:
		return fmt.Errorf("%w: rename fallback %q", ErrInvalidConfig, c.RenameFallback)
	}

	if c.FileMode&^os.ModePerm != 0 || c.FolderMode&^os.ModePerm != 0 {
		return fmt.Errorf("%w: modes must be permission bits only", ErrInvalidConfig)
	}
	return nil
}
