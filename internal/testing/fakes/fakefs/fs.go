// Package fakefs provides an in-memory ports.FileSystem for tests: key files,
// config files and the local side of transfers.
package fakefs

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/acolita/sftpfs/internal/ports"
)

// Op names a FileSystem call for failure injection.
type Op string

const (
	OpOpen   Op = "open"
	OpCreate Op = "create"
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpStat   Op = "stat"
	OpMkdir  Op = "mkdir"
)

type node struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

func (n *node) isDir() bool { return n.mode.IsDir() }

type failure struct {
	op   Op
	name string
}

// FS is an in-memory filesystem. Paths are slash-separated and cleaned;
// parent folders are created implicitly by writes.
type FS struct {
	mu       sync.RWMutex
	nodes    map[string]*node
	failures map[failure]error
	homeDir  string
	env      map[string]string
}

// New returns an empty filesystem whose home directory is /home/test.
func New() *FS {
	return &FS{
		nodes:    map[string]*node{"/": {mode: fs.ModeDir | 0755, modTime: time.Now()}},
		failures: make(map[failure]error),
		homeDir:  "/home/test",
		env:      make(map[string]string),
	}
}

// Fail makes op on name return err until cleared with a nil err.
func (f *FS) Fail(op Op, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := failure{op: op, name: path.Clean(name)}
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = err
}

// failLocked returns the injected error for op on name as a PathError.
func (f *FS) failLocked(op Op, name string) error {
	if err, ok := f.failures[failure{op: op, name: name}]; ok {
		return &fs.PathError{Op: string(op), Path: name, Err: err}
	}
	return nil
}

// ReadFile returns a copy of the named file's contents.
func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.readLocked(OpRead, path.Clean(name))
}

func (f *FS) readLocked(op Op, name string) ([]byte, error) {
	if err := f.failLocked(op, name); err != nil {
		return nil, err
	}
	n, ok := f.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: string(op), Path: name, Err: fs.ErrNotExist}
	}
	if n.isDir() {
		return nil, &fs.PathError{Op: string(op), Path: name, Err: syscall.EISDIR}
	}
	return bytes.Clone(n.data), nil
}

// Open returns a reader over a snapshot of the named file.
func (f *FS) Open(name string) (io.ReadCloser, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := f.readLocked(OpOpen, path.Clean(name))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Create returns a writer whose contents land in the filesystem on Close.
// The file is not visible before then.
func (f *FS) Create(name string, perm fs.FileMode) (io.WriteCloser, error) {
	name = path.Clean(name)
	f.mu.RLock()
	err := f.failLocked(OpCreate, name)
	f.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return &pendingFile{fs: f, name: name, perm: perm}, nil
}

type pendingFile struct {
	bytes.Buffer
	fs   *FS
	name string
	perm fs.FileMode
}

func (p *pendingFile) Close() error {
	return p.fs.WriteFile(p.name, p.Bytes(), p.perm)
}

// WriteFile stores data at name, creating missing parent folders. Writing
// below a regular file fails with ENOTDIR.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = path.Clean(name)
	if err := f.failLocked(OpWrite, name); err != nil {
		return err
	}
	if n, ok := f.nodes[name]; ok && n.isDir() {
		return &fs.PathError{Op: string(OpWrite), Path: name, Err: syscall.EISDIR}
	}
	if err := f.mkdirAllLocked(path.Dir(name)); err != nil {
		return err
	}
	f.nodes[name] = &node{data: bytes.Clone(data), mode: perm.Perm(), modTime: time.Now()}
	return nil
}

func (f *FS) mkdirAllLocked(dir string) error {
	if err := f.failLocked(OpMkdir, dir); err != nil {
		return err
	}
	cur := "/"
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		n, ok := f.nodes[cur]
		switch {
		case !ok:
			f.nodes[cur] = &node{mode: fs.ModeDir | 0755, modTime: time.Now()}
		case !n.isDir():
			return &fs.PathError{Op: string(OpMkdir), Path: cur, Err: syscall.ENOTDIR}
		}
	}
	return nil
}

// Stat describes the named file or folder.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	name = path.Clean(name)
	if err := f.failLocked(OpStat, name); err != nil {
		return nil, err
	}
	n, ok := f.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: string(OpStat), Path: name, Err: fs.ErrNotExist}
	}
	return fileInfo{name: path.Base(name), size: int64(len(n.data)), mode: n.mode, modTime: n.modTime}, nil
}

// MkdirAll creates the folder and its parents.
func (f *FS) MkdirAll(dir string, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mkdirAllLocked(path.Clean(dir))
}

// UserHomeDir returns the home directory set with SetHomeDir.
func (f *FS) UserHomeDir() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.homeDir, nil
}

// Getenv returns the variable set with SetEnv.
func (f *FS) Getenv(key string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.env[key]
}

// AddFile seeds a file, bypassing injected failures.
func (f *FS) AddFile(name string, data []byte, mode fs.FileMode) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = path.Clean(name)
	cur := "/"
	for _, part := range strings.Split(strings.Trim(path.Dir(name), "/"), "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		f.nodes[cur] = &node{mode: fs.ModeDir | 0755, modTime: time.Now()}
	}
	f.nodes[name] = &node{data: bytes.Clone(data), mode: mode, modTime: time.Now()}
}

// SetHomeDir sets the directory returned by UserHomeDir.
func (f *FS) SetHomeDir(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homeDir = dir
}

// SetEnv sets a variable returned by Getenv.
func (f *FS) SetEnv(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[key] = value
}

// Files returns the paths of all regular files, sorted.
func (f *FS) Files() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var paths []string
	for p, n := range f.nodes {
		if !n.isDir() {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

type fileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi fileInfo) ModTime() time.Time { return fi.modTime }
func (fi fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi fileInfo) Sys() any           { return nil }

var _ ports.FileSystem = (*FS)(nil)
