package driver

import (
	"errors"
	"fmt"

	sftpclient "github.com/acolita/sftpfs/internal/sftp"
	sshx "github.com/acolita/sftpfs/internal/ssh"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotDirectory      = errors.New("not a directory")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrOutsideRoot       = errors.New("path outside root")
	ErrRenameFailed      = errors.New("rename failed")
	ErrInvalidTarget     = errors.New("invalid target")
	ErrInvalidConfig     = errors.New("invalid config")

	ErrUnsupportedAlgorithm = sshx.ErrUnsupportedAlgorithm
	ErrUnreachable          = sshx.ErrUnreachable
	ErrAuthRejected         = sshx.ErrAuthRejected
	ErrAuthMaterialMissing  = sshx.ErrAuthMaterialMissing
	ErrKeyMismatch          = sshx.ErrKeyMismatch
	ErrHostKeyMismatch      = sshx.ErrHostKeyMismatch
	ErrSubsystem            = sshx.ErrSubsystem
)

// ConnectionError reports a failed Connect.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sftp connect %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransferError reports a failed download, upload or copy.
type TransferError struct {
	Op     string // download, upload or copy
	Source string
	Target string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Source, e.Target, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// wrapErr adds op and identifier context and maps "no such file" to ErrNotFound.
func wrapErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if sftpclient.IsNotExist(err) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrNotFound, err)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
