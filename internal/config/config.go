// Package config handles the sftpfs configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acolita/sftpfs/internal/ports"
	"gopkg.in/yaml.v3"
)

// ErrSiteNotFound is returned by Site when no profile matches.
var ErrSiteNotFound = errors.New("site not found")

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/sftpfs/config.yaml or ~/.config/sftpfs/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "sftpfs", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Sites    []SiteConfig   `yaml:"sites" validate:"dive"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig is a named connection profile.
type SiteConfig struct {
	Name string `yaml:"name" validate:"required"`
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User string `yaml:"user" validate:"required"`
	Root string `yaml:"root,omitempty"`

	Auth AuthConfig `yaml:"auth"`

	FileMode   string `yaml:"file_mode,omitempty" validate:"omitempty,octal_mode"`   // e.g. "0644"
	FolderMode string `yaml:"folder_mode,omitempty" validate:"omitempty,octal_mode"` // e.g. "0755"

	KnownHosts  string            `yaml:"known_hosts,omitempty"`
	Fingerprint FingerprintConfig `yaml:"fingerprint,omitempty"`

	Timeout           time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval,omitempty"` // negative disables
	RenameFallback    string        `yaml:"rename_fallback,omitempty" validate:"omitempty,oneof=keep delete_source"`
}

// AuthConfig defines authentication settings.
type AuthConfig struct {
	Method        string `yaml:"method,omitempty" validate:"omitempty,oneof=password publickey agent"`
	PasswordEnv   string `yaml:"password_env,omitempty"`   // env var containing the password
	PublicKey     string `yaml:"public_key,omitempty"`     // path to the .pub file
	PrivateKey    string `yaml:"private_key,omitempty"`    // path to the private key
	PassphraseEnv string `yaml:"passphrase_env,omitempty"` // env var containing the key passphrase
}

// FingerprintConfig pins the server host key.
type FingerprintConfig struct {
	Expected string `yaml:"expected,omitempty" validate:"omitempty,hexadecimal|contains=:"`
	Method   string `yaml:"method,omitempty" validate:"omitempty,oneof=sha1 md5"`
}

// SecurityConfig defines security settings.
type SecurityConfig struct {
	UseKeyring bool `yaml:"use_keyring"` // Use OS keyring for credential storage
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format   string `yaml:"format" validate:"omitempty,oneof=json text"`
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sanitize: true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return parse(data)
}

// parse decodes YAML config data over the defaults.
func parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating its directory.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		if err := fsys[0].MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		return fsys[0].WriteFile(path, data, 0600)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// AddSite adds a site profile.
// Returns an error if a site with the same name already exists.
func (c *Config) AddSite(site SiteConfig) error {
	for _, s := range c.Sites {
		if s.Name == site.Name {
			return fmt.Errorf("site %q already exists", site.Name)
		}
	}
	c.Sites = append(c.Sites, site)
	return nil
}

// Site returns the profile called name. An empty name selects the first site.
func (c *Config) Site(name string) (SiteConfig, error) {
	if name == "" {
		if len(c.Sites) == 0 {
			return SiteConfig{}, fmt.Errorf("%w: no sites configured", ErrSiteNotFound)
		}
		return c.Sites[0], nil
	}
	for _, s := range c.Sites {
		if s.Name == name {
			return s, nil
		}
	}
	return SiteConfig{}, fmt.Errorf("%w: %q (configured: %s)", ErrSiteNotFound, name, strings.Join(c.SiteNames(), ", "))
}

// SiteNames lists the configured profile names in file order.
func (c *Config) SiteNames() []string {
	names := make([]string, len(c.Sites))
	for i, s := range c.Sites {
		names[i] = s.Name
	}
	return names
}
