package driver

import (
	"os"

	"github.com/pkg/sftp"
)

// Transport is the remote filesystem a Session drives. It is satisfied by
// the serialized client in internal/sftp.
type Transport interface {
	Stat(path string) (os.FileInfo, error)
	Lstat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	ReadLink(path string) (string, error)
	RealPath(path string) (string, error)
	Getwd() (string, error)
	Mkdir(path string) error
	MkdirAll(path string) error
	Chmod(path string, mode os.FileMode) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Rename(oldPath, newPath string) error
	Open(path string) (*sftp.File, error)
	OpenFile(path string, flags int) (*sftp.File, error)
	Close() error
}
