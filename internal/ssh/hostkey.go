package ssh

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"sync"

	"github.com/acolita/sftpfs/internal/ports"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Fingerprint algorithms.
const (
	FingerprintSHA1 = "sha1"
	FingerprintMD5  = "md5"
)

var (
	// ErrHostKeyMismatch means the server key failed verification.
	ErrHostKeyMismatch = errors.New("host key mismatch")

	// ErrUnsupportedAlgorithm is returned for an unknown digest name.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// Fingerprint returns the uppercase hex digest of the key's wire encoding,
// without separators.
func Fingerprint(key ssh.PublicKey, method string) (string, error) {
	if key == nil {
		return "", fmt.Errorf("no host key")
	}

	blob := key.Marshal()
	switch strings.ToLower(method) {
	case FingerprintSHA1:
		sum := sha1.Sum(blob)
		return strings.ToUpper(hex.EncodeToString(sum[:])), nil
	case FingerprintMD5:
		sum := md5.Sum(blob)
		return strings.ToUpper(hex.EncodeToString(sum[:])), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, method)
	}
}

// HostKeyOptions configures host key verification.
type HostKeyOptions struct {
	// ExpectedFingerprint, when set, must equal the key's fingerprint.
	// Colons are ignored and case does not matter.
	ExpectedFingerprint string
	FingerprintMethod   string

	// KnownHostsPath, when set, names an OpenSSH known_hosts file to check against.
	KnownHostsPath string

	FS ports.FileSystem
}

// HostKeyVerifier verifies the server key during the handshake and
// remembers the key it was shown.
type HostKeyVerifier struct {
	opts       HostKeyOptions
	knownHosts ssh.HostKeyCallback

	mu  sync.Mutex
	key ssh.PublicKey
}

// NewHostKeyVerifier builds a verifier. With no options set any key is accepted.
func NewHostKeyVerifier(opts HostKeyOptions) (*HostKeyVerifier, error) {
	v := &HostKeyVerifier{opts: opts}

	if opts.ExpectedFingerprint != "" {
		if opts.FingerprintMethod == "" {
			v.opts.FingerprintMethod = FingerprintSHA1
		}
		if !SupportedFingerprint(v.opts.FingerprintMethod) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, v.opts.FingerprintMethod)
		}
	}

	if opts.KnownHostsPath != "" {
		path := opts.KnownHostsPath
		if opts.FS != nil {
			path = expandPath(opts.FS, path)
			if _, err := opts.FS.Stat(path); errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("known_hosts %s: %w", path, err)
			}
		}
		callback, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("parse known_hosts: %w", err)
		}
		v.knownHosts = callback
	}

	return v, nil
}

// Callback returns the ssh.HostKeyCallback to put in the client config.
func (v *HostKeyVerifier) Callback() ssh.HostKeyCallback {
	return v.verify
}

func (v *HostKeyVerifier) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	v.mu.Lock()
	v.key = key
	v.mu.Unlock()

	if v.opts.ExpectedFingerprint != "" {
		got, err := Fingerprint(key, v.opts.FingerprintMethod)
		if err != nil {
			return err
		}
		want := strings.ToUpper(strings.ReplaceAll(v.opts.ExpectedFingerprint, ":", ""))
		if got != want {
			return fmt.Errorf("%w: %s fingerprint %s, expected %s",
				ErrHostKeyMismatch, v.opts.FingerprintMethod, got, want)
		}
	}

	if v.knownHosts != nil {
		if err := v.knownHosts(hostname, remote, key); err != nil {
			return fmt.Errorf("%w: %w", ErrHostKeyMismatch, err)
		}
	}

	return nil
}

// Key returns the host key seen during the last handshake, or nil.
func (v *HostKeyVerifier) Key() ssh.PublicKey {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key
}

// SupportedFingerprint reports whether method names a fingerprint digest.
func SupportedFingerprint(method string) bool {
	switch strings.ToLower(method) {
	case FingerprintSHA1, FingerprintMD5:
		return true
	}
	return false
}
