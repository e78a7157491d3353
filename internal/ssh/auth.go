package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path/filepath"
	"strings"

	"github.com/acolita/sftpfs/internal/ports"
	"github.com/acolita/sftpfs/internal/security"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Authentication methods accepted in AuthConfig.Method.
const (
	MethodPassword  = "password"
	MethodPublicKey = "publickey"
	MethodAgent     = "agent"
)

var (
	// ErrAuthMaterialMissing means a configured key file or agent socket does not exist.
	ErrAuthMaterialMissing = errors.New("authentication material missing")

	// ErrKeyMismatch means the public key file does not belong to the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Method         string // password, publickey or agent
	Password       string
	PublicKeyPath  string
	PrivateKeyPath string
	Passphrase     string // Empty means the private key is not encrypted

	FS ports.FileSystem // Local disk for key files and SSH_AUTH_SOCK
}

// Auth is the result of BuildAuthMethods. Close releases the agent
// connection, if one was opened.
type Auth struct {
	Methods []ssh.AuthMethod
	closers []io.Closer
}

// Close releases resources held by the auth methods.
func (a *Auth) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// BuildAuthMethods constructs SSH auth methods from config.
func BuildAuthMethods(cfg AuthConfig) (*Auth, error) {
	if cfg.FS == nil {
		return nil, fmt.Errorf("auth config: file system is required")
	}

	switch cfg.Method {
	case MethodPassword:
		if cfg.Password == "" {
			return nil, fmt.Errorf("%w: password not set", ErrAuthMaterialMissing)
		}
		return &Auth{Methods: []ssh.AuthMethod{
			PasswordAuth(cfg.Password),
			KeyboardInteractiveAuth(cfg.Password),
		}}, nil

	case MethodPublicKey:
		keyAuth, err := publicKeyAuth(cfg)
		if err != nil {
			return nil, err
		}
		return &Auth{Methods: []ssh.AuthMethod{keyAuth}}, nil

	case MethodAgent:
		agentAuth, conn, err := sshAgentAuth(cfg.FS)
		if err != nil {
			return nil, err
		}
		return &Auth{Methods: []ssh.AuthMethod{agentAuth}, closers: []io.Closer{conn}}, nil

	default:
		return nil, fmt.Errorf("unknown auth method %q", cfg.Method)
	}
}

// sshAgentAuth returns an SSH agent auth method and the agent connection.
func sshAgentAuth(fsys ports.FileSystem) (ssh.AuthMethod, net.Conn, error) {
	socket := fsys.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, nil, fmt.Errorf("%w: SSH_AUTH_SOCK not set", ErrAuthMaterialMissing)
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, nil, fmt.Errorf("dial agent: %w", err)
	}

	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers), conn, nil
}

// publicKeyAuth loads the key pair. Both files must exist and belong together.
func publicKeyAuth(cfg AuthConfig) (ssh.AuthMethod, error) {
	pubPath := expandPath(cfg.FS, cfg.PublicKeyPath)
	privPath := expandPath(cfg.FS, cfg.PrivateKeyPath)

	for _, p := range []string{pubPath, privPath} {
		if p == "" {
			return nil, fmt.Errorf("%w: key path not configured", ErrAuthMaterialMissing)
		}
		if _, err := cfg.FS.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrAuthMaterialMissing, p)
			}
			return nil, fmt.Errorf("stat key file: %w", err)
		}
	}

	signer, err := loadSigner(cfg.FS, privPath, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	pubData, err := cfg.FS.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(pubData)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if !bytes.Equal(pub.Marshal(), signer.PublicKey().Marshal()) {
		return nil, fmt.Errorf("%w: %s", ErrKeyMismatch, pubPath)
	}

	return ssh.PublicKeys(signer), nil
}

// loadSigner parses a private key file, with the passphrase only when one is set.
func loadSigner(fsys ports.FileSystem, keyPath, passphrase string) (ssh.Signer, error) {
	keyData, err := fsys.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	defer security.WipeBytes(keyData)

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return signer, nil
}

// expandPath expands ~ to home directory.
func expandPath(fsys ports.FileSystem, path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := fsys.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// PasswordAuth returns a password auth method.
func PasswordAuth(password string) ssh.AuthMethod {
	return ssh.Password(password)
}

// KeyboardInteractiveAuth returns a keyboard-interactive auth method
// that answers every question with the password.
func KeyboardInteractiveAuth(password string) ssh.AuthMethod {
	return ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	})
}
