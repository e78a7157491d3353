package config

import (
	"fmt"
	"os"

	"github.com/acolita/sftpfs/internal/driver"
	"github.com/acolita/sftpfs/internal/ports"
	"github.com/acolita/sftpfs/internal/security"
)

// SecretStore supplies credentials that are not kept in environment variables.
// Missing entries yield nil and no error.
type SecretStore interface {
	ServerPassword(host string, port int, user string) ([]byte, error)
	KeyPassphrase(keyPath string) ([]byte, error)
}

var _ SecretStore = (*security.KeyringStore)(nil)

// Resolve turns the profile into a driver configuration, reading credentials
// from the environment first and then from secrets (which may be nil).
func (s SiteConfig) Resolve(fsys ports.FileSystem, secrets SecretStore) (driver.Config, error) {
	cfg := driver.Config{
		Host:                s.Host,
		Port:                s.Port,
		User:                s.User,
		AuthMethod:          s.Auth.Method,
		PublicKeyPath:       s.Auth.PublicKey,
		PrivateKeyPath:      s.Auth.PrivateKey,
		Root:                s.Root,
		KnownHostsPath:      s.KnownHosts,
		ExpectedFingerprint: s.Fingerprint.Expected,
		FingerprintMethod:   s.Fingerprint.Method,
		Timeout:             s.Timeout,
		KeepaliveInterval:   s.KeepaliveInterval,
		RenameFallback:      driver.RenameFallback(s.RenameFallback),
	}

	if s.FileMode != "" {
		m, err := parseMode(s.FileMode)
		if err != nil {
			return driver.Config{}, fmt.Errorf("site %q: file_mode: %w", s.Name, err)
		}
		cfg.FileMode = os.FileMode(m)
	}
	if s.FolderMode != "" {
		m, err := parseMode(s.FolderMode)
		if err != nil {
			return driver.Config{}, fmt.Errorf("site %q: folder_mode: %w", s.Name, err)
		}
		cfg.FolderMode = os.FileMode(m)
	}

	cfg = cfg.WithDefaults()

	switch cfg.AuthMethod {
	case driver.AuthPassword:
		password, err := lookupSecret(fsys, s.Auth.PasswordEnv, secrets, func(st SecretStore) ([]byte, error) {
			return st.ServerPassword(cfg.Host, cfg.Port, cfg.User)
		})
		if err != nil {
			return driver.Config{}, fmt.Errorf("site %q: password: %w", s.Name, err)
		}
		cfg.Password = password

	case driver.AuthPublicKey:
		passphrase, err := lookupSecret(fsys, s.Auth.PassphraseEnv, secrets, func(st SecretStore) ([]byte, error) {
			return st.KeyPassphrase(s.Auth.PrivateKey)
		})
		if err != nil {
			return driver.Config{}, fmt.Errorf("site %q: passphrase: %w", s.Name, err)
		}
		cfg.Passphrase = passphrase
	}

	return cfg, nil
}

// lookupSecret reads the named environment variable and falls back to the store.
func lookupSecret(fsys ports.FileSystem, envName string, secrets SecretStore, get func(SecretStore) ([]byte, error)) (string, error) {
	if envName != "" {
		if v := fsys.Getenv(envName); v != "" {
			return v, nil
		}
	}
	if secrets == nil {
		return "", nil
	}
	secret, err := get(secrets)
	if err != nil {
		return "", err
	}
	defer security.WipeBytes(secret)
	return string(secret), nil
}
