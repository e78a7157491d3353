// Package realfs provides a real implementation of the FileSystem port using the os package.
package realfs

import (
	"io"
	"io/fs"
	"os"

	"github.com/acolita/sftpfs/internal/ports"
)

// FS implements ports.FileSystem on the local disk.
type FS struct{}

// New returns a new real FileSystem.
func New() *FS {
	return &FS{}
}

// Open opens the named file for reading.
func (f *FS) Open(name string) (io.ReadCloser, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Create creates or truncates the named file with perm.
func (f *FS) Create(name string, perm fs.FileMode) (io.WriteCloser, error) {
	file, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ReadFile reads the named file and returns its contents.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to the named file, creating it if necessary.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Stat returns file info for the named file.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// MkdirAll creates a directory and all parent directories.
func (f *FS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// UserHomeDir returns the current user's home directory.
func (f *FS) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// Getenv retrieves the value of the environment variable named by the key.
func (f *FS) Getenv(key string) string {
	return os.Getenv(key)
}

var _ ports.FileSystem = (*FS)(nil)
