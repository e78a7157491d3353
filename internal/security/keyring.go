// Package security provides credential storage and handling for sftpfs.
package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name used for keyring entries.
	KeyringService = "sftpfs"
)

// ErrKeyringUnavailable is returned when the system keyring cannot be used.
var ErrKeyringUnavailable = errors.New(errKeyringNotAvailable)

// KeyringStore provides OS keyring integration for credential storage.
// It uses the system keyring (macOS Keychain, Linux Secret Service, Windows Credential Manager).
type KeyringStore struct {
	enabled bool
	mu      sync.RWMutex
}

// NewKeyringStore creates a new keyring store.
// If the system keyring is not available, the store will be disabled.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{
		enabled: true,
	}

	probe := "__sftpfs_probe__"
	if err := keyring.Set(KeyringService, probe, "probe"); err != nil {
		slog.Debug("keyring not available",
			slog.String("error", err.Error()),
		)
		ks.enabled = false
		return ks
	}
	_ = keyring.Delete(KeyringService, probe)

	slog.Debug("keyring storage enabled")
	return ks
}

// IsEnabled returns true if the keyring is available and enabled.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// SetEnabled allows enabling/disabling keyring usage.
func (ks *KeyringStore) SetEnabled(enabled bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.enabled = enabled
}

// StoreServerPassword stores the SSH password for user@host:port.
func (ks *KeyringStore) StoreServerPassword(host string, port int, user string, password []byte) error {
	return ks.store(fmt.Sprintf(keyServerFmt, user, host, port), password, "server password")
}

// ServerPassword retrieves the SSH password for user@host:port.
// A missing entry yields nil and no error.
func (ks *KeyringStore) ServerPassword(host string, port int, user string) ([]byte, error) {
	return ks.load(fmt.Sprintf(keyServerFmt, user, host, port), "server password")
}

// DeleteServerPassword removes the SSH password for user@host:port.
func (ks *KeyringStore) DeleteServerPassword(host string, port int, user string) error {
	return ks.remove(fmt.Sprintf(keyServerFmt, user, host, port), "server password")
}

// StoreKeyPassphrase stores the passphrase of the private key at keyPath.
func (ks *KeyringStore) StoreKeyPassphrase(keyPath string, passphrase []byte) error {
	return ks.store(fmt.Sprintf(keyPassphraseFmt, keyPath), passphrase, "key passphrase")
}

// KeyPassphrase retrieves the passphrase of the private key at keyPath.
// A missing entry yields nil and no error.
func (ks *KeyringStore) KeyPassphrase(keyPath string) ([]byte, error) {
	return ks.load(fmt.Sprintf(keyPassphraseFmt, keyPath), "key passphrase")
}

// DeleteKeyPassphrase removes the passphrase of the private key at keyPath.
func (ks *KeyringStore) DeleteKeyPassphrase(keyPath string) error {
	return ks.remove(fmt.Sprintf(keyPassphraseFmt, keyPath), "key passphrase")
}

func (ks *KeyringStore) store(key string, secret []byte, what string) error {
	if !ks.IsEnabled() {
		return ErrKeyringUnavailable
	}

	// Base64 keeps arbitrary bytes safe in every backend.
	encoded := base64.StdEncoding.EncodeToString(secret)
	if err := keyring.Set(KeyringService, key, encoded); err != nil {
		return fmt.Errorf("failed to store %s: %w", what, err)
	}

	slog.Debug("stored secret in keyring", slog.String("entry", key))
	return nil
}

func (ks *KeyringStore) load(key, what string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, ErrKeyringUnavailable
	}

	encoded, err := keyring.Get(KeyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}

	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return secret, nil
}

func (ks *KeyringStore) remove(key, what string) error {
	if !ks.IsEnabled() {
		return ErrKeyringUnavailable
	}

	if err := keyring.Delete(KeyringService, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	return nil
}
