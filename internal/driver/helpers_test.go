package driver

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	sftpclient "github.com/acolita/sftpfs/internal/sftp"
	"github.com/acolita/sftpfs/internal/testing/sftptest"
	"github.com/pkg/sftp"
)

var errInjected = errors.New("injected failure")

// recordingTransport records mutating calls and can fail renames on demand.
type recordingTransport struct {
	Transport

	mu         sync.Mutex
	calls      []string
	failRename func(oldPath, newPath string) bool
}

func (r *recordingTransport) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recordingTransport) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recordingTransport) MkdirAll(p string) error {
	r.record("mkdirall " + p)
	return r.Transport.MkdirAll(p)
}

func (r *recordingTransport) OpenFile(p string, flags int) (*sftp.File, error) {
	r.record("openfile " + p)
	return r.Transport.OpenFile(p, flags)
}

func (r *recordingTransport) Rename(oldPath, newPath string) error {
	r.record("rename " + oldPath + " " + newPath)
	if r.failRename != nil && r.failRename(oldPath, newPath) {
		return errInjected
	}
	return r.Transport.Rename(oldPath, newPath)
}

type testEnv struct {
	session   *Session
	root      string
	transport *recordingTransport
}

// newTestEnv starts an in-process SFTP server rooted at a temp dir and opens
// a session on it.
func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	srv := sftptest.Start(t)
	client, err := sftpclient.NewClientPipe(srv.ClientReader, srv.ClientWriter)
	if err != nil {
		t.Fatalf("NewClientPipe: %v", err)
	}

	rt := &recordingTransport{Transport: client}
	cfg.Root = srv.Root
	s, err := NewSession(cfg, rt, opts...)
	if err != nil {
		client.Close()
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &testEnv{session: s, root: srv.Root, transport: rt}
}

// local returns the on-disk path of identifier.
func (e *testEnv) local(identifier string) string {
	return filepath.Join(e.root, filepath.FromSlash(identifier))
}

func (e *testEnv) writeLocal(t *testing.T, identifier, content string) {
	t.Helper()
	p := e.local(identifier)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) mkdirLocal(t *testing.T, identifier string) {
	t.Helper()
	if err := os.MkdirAll(e.local(identifier), 0755); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) readLocal(t *testing.T, identifier string) string {
	t.Helper()
	data, err := os.ReadFile(e.local(identifier))
	if err != nil {
		t.Fatalf("read %s: %v", identifier, err)
	}
	return string(data)
}

func (e *testEnv) existsLocal(identifier string) bool {
	_, err := os.Lstat(e.local(identifier))
	return err == nil
}

func (e *testEnv) symlinkLocal(t *testing.T, target, identifier string) {
	t.Helper()
	if err := os.Symlink(target, e.local(identifier)); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
}
