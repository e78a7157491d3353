package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/driver"
	"github.com/acolita/sftpfs/internal/mcp"
	sftpclient "github.com/acolita/sftpfs/internal/sftp"
	"github.com/acolita/sftpfs/internal/testing/fakes/fakedialog"
	"github.com/acolita/sftpfs/internal/testing/fakes/fakefs"
	"github.com/acolita/sftpfs/internal/testing/sftptest"
	flag "github.com/spf13/pflag"
)

const testConfigPath = "/home/test/.config/sftpfs/config.yaml"

type fakeKeyring struct {
	enabled     bool
	passwords   map[string][]byte
	passphrases map[string][]byte
}

func newFakeKeyring() *fakeKeyring {
	return &fakeKeyring{
		enabled:     true,
		passwords:   make(map[string][]byte),
		passphrases: make(map[string][]byte),
	}
}

func passwordKey(host string, port int, user string) string {
	return fmt.Sprintf("%s@%s:%d", user, host, port)
}

func (k *fakeKeyring) IsEnabled() bool { return k.enabled }

func (k *fakeKeyring) StoreServerPassword(host string, port int, user string, password []byte) error {
	k.passwords[passwordKey(host, port, user)] = append([]byte(nil), password...)
	return nil
}

func (k *fakeKeyring) ServerPassword(host string, port int, user string) ([]byte, error) {
	return append([]byte(nil), k.passwords[passwordKey(host, port, user)]...), nil
}

func (k *fakeKeyring) StoreKeyPassphrase(keyPath string, passphrase []byte) error {
	k.passphrases[keyPath] = append([]byte(nil), passphrase...)
	return nil
}

func (k *fakeKeyring) KeyPassphrase(keyPath string) ([]byte, error) {
	return append([]byte(nil), k.passphrases[keyPath]...), nil
}

func (k *fakeKeyring) DeleteServerPassword(host string, port int, user string) error {
	delete(k.passwords, passwordKey(host, port, user))
	return nil
}

func (k *fakeKeyring) DeleteKeyPassphrase(keyPath string) error {
	delete(k.passphrases, keyPath)
	return nil
}

// cliEnv runs the CLI against one site, "main", served by an in-memory sftp
// server rooted at root. The pipe carries a single session, so each env runs
// at most one command that connects.
type cliEnv struct {
	app      *app
	out      *bytes.Buffer
	errOut   *bytes.Buffer
	fs       *fakefs.FS
	dialog   *fakedialog.Provider
	keyring  *fakeKeyring
	root     string
	connects int
}

func newCLI(t *testing.T, mutate ...func(*config.Config)) *cliEnv {
	t.Helper()
	backend := sftptest.Start(t)

	env := &cliEnv{
		out:     &bytes.Buffer{},
		errOut:  &bytes.Buffer{},
		fs:      fakefs.New(),
		dialog:  fakedialog.New(),
		keyring: newFakeKeyring(),
		root:    backend.Root,
	}

	cfg := config.DefaultConfig()
	cfg.Sites = []config.SiteConfig{{Name: "main", Host: "main.example.com", User: "u", Root: backend.Root}}
	for _, m := range mutate {
		m(cfg)
	}
	if err := config.Save(cfg, testConfigPath, env.fs); err != nil {
		t.Fatalf("save config: %v", err)
	}

	env.app = &app{
		stdin:  strings.NewReader(""),
		stdout: env.out,
		stderr: env.errOut,
		fs:     env.fs,
		dialog: env.dialog,
		connect: func(ctx context.Context, c driver.Config) (*driver.Session, error) {
			env.connects++
			client, err := sftpclient.NewClientPipe(backend.ClientReader, backend.ClientWriter)
			if err != nil {
				return nil, err
			}
			return driver.NewSession(c, client)
		},
		newKeyring: func() keyringStore { return env.keyring },
	}
	return env
}

func (e *cliEnv) run(args ...string) int {
	return e.app.run(context.Background(), append([]string{"--config", testConfigPath}, args...))
}

func (e *cliEnv) writeLocal(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(e.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *cliEnv) readLocal(rel string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (e *cliEnv) expectCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Fatalf("exit code = %d, want %d\nstdout: %s\nstderr: %s", got, want, e.out, e.errOut)
	}
}

func TestRun_NoCommand(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run(), exitCodeUsage)
	if !strings.Contains(env.errOut.String(), "no command given") {
		t.Errorf("stderr = %q", env.errOut)
	}
	if !strings.Contains(env.errOut.String(), "fingerprint") {
		t.Error("usage should list the commands")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("chmod", "/a"), exitCodeUsage)
	if !strings.Contains(env.errOut.String(), `unknown command "chmod"`) {
		t.Errorf("stderr = %q", env.errOut)
	}
}

func TestRun_Version(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("--version"), exitCodeSuccess)
	if !strings.Contains(env.out.String(), mcp.Version) {
		t.Errorf("stdout = %q, want version %s", env.out, mcp.Version)
	}
}

func TestRun_Help(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("--help"), exitCodeSuccess)
	env.expectCode(t, env.run("ls", "--help"), exitCodeSuccess)
	if env.connects != 0 {
		t.Errorf("connects = %d, want 0", env.connects)
	}
}

func TestRun_BadGlobalFlag(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("--bogus", "ls"), exitCodeUsage)
}

func TestRun_InvalidConfig(t *testing.T) {
	env := newCLI(t)
	env.fs.AddFile(testConfigPath, []byte("sites: [unclosed"), 0600)
	env.expectCode(t, env.run("ls"), exitCodeConfig)

	env = newCLI(t, func(c *config.Config) { c.Sites[0].User = "" })
	env.expectCode(t, env.run("ls"), exitCodeConfig)
	if !strings.Contains(env.errOut.String(), "invalid configuration") {
		t.Errorf("stderr = %q", env.errOut)
	}
}

func TestList(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "a.txt", "a")
	env.writeLocal(t, "docs/b.txt", "b")

	env.expectCode(t, env.run("ls"), exitCodeSuccess)
	want := "file /a.txt\ndir  /docs\n"
	if env.out.String() != want {
		t.Errorf("stdout = %q, want %q", env.out, want)
	}
}

func TestList_RecursiveFilesOnly(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "a.txt", "a")
	env.writeLocal(t, "docs/b.txt", "b")

	env.expectCode(t, env.run("ls", "-r", "--folders=false", "/"), exitCodeSuccess)
	want := "file /a.txt\nfile /docs/b.txt\n"
	if env.out.String() != want {
		t.Errorf("stdout = %q, want %q", env.out, want)
	}
}

func TestList_MatchJSON(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "a.txt", "a")
	env.writeLocal(t, "b.log", "b")
	env.writeLocal(t, "docs/c.txt", "c")

	env.expectCode(t, env.run("ls", "--match", "**/*.txt", "--json"), exitCodeSuccess)

	var entries []driver.DirectoryEntry
	if err := json.Unmarshal(env.out.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v\nraw: %s", err, env.out)
	}
	got := make(map[string]bool)
	for _, e := range entries {
		got[e.Identifier] = true
	}
	if !got["/a.txt"] || !got["/docs/c.txt"] || got["/b.log"] {
		t.Errorf("entries = %+v", entries)
	}
}

func TestList_MissingFolder(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("ls", "/nope"), exitCodeCommand)
}

func TestStat(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "notes.txt", "hello")

	env.expectCode(t, env.run("stat", "/notes.txt"), exitCodeSuccess)
	out := env.out.String()
	for _, want := range []string{"identifier: /notes.txt", "type:", "file", "(5 bytes)", "modified:", "access:"} {
		if !strings.Contains(out, want) {
			t.Errorf("stat output missing %q:\n%s", want, out)
		}
	}
}

func TestStat_Folder(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "docs/a.txt", "a")

	env.expectCode(t, env.run("stat", "/docs"), exitCodeSuccess)
	if !strings.Contains(env.out.String(), "folder") {
		t.Errorf("stat output = %s", env.out)
	}
	if strings.Contains(env.out.String(), "mimetype:") {
		t.Error("folders have no mimetype")
	}
}

func TestCat(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "notes.txt", "line one\nline two\n")

	env.expectCode(t, env.run("cat", "/notes.txt"), exitCodeSuccess)
	if env.out.String() != "line one\nline two\n" {
		t.Errorf("stdout = %q", env.out)
	}
}

func TestGet(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "report.csv", "a,b\n")
	local := filepath.Join(t.TempDir(), "copy.csv")

	env.expectCode(t, env.run("get", "/report.csv", local), exitCodeSuccess)
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("downloaded %q", data)
	}
	if !strings.Contains(env.out.String(), local) {
		t.Errorf("stdout = %q", env.out)
	}
}

func TestGet_RootHasNoName(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("get", "/"), exitCodeUsage)
}

func TestPut(t *testing.T) {
	env := newCLI(t)
	local := filepath.Join(t.TempDir(), "up.txt")
	if err := os.WriteFile(local, []byte("uploaded"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(env.root, "in"), 0755); err != nil {
		t.Fatal(err)
	}

	env.expectCode(t, env.run("put", local, "/in/up.txt"), exitCodeSuccess)
	if got, ok := env.readLocal("in/up.txt"); !ok || got != "uploaded" {
		t.Errorf("remote content = %q, %v", got, ok)
	}
}

func TestPut_MissingParent(t *testing.T) {
	env := newCLI(t)
	local := filepath.Join(t.TempDir(), "up.txt")
	if err := os.WriteFile(local, []byte("uploaded"), 0644); err != nil {
		t.Fatal(err)
	}

	env.expectCode(t, env.run("put", local, "/nowhere/up.txt"), exitCodeCommand)
	if _, ok := env.readLocal("nowhere/up.txt"); ok {
		t.Error("upload created a missing parent folder")
	}
}

func TestMkdir(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("mkdir", "-p", "/a/b/c"), exitCodeSuccess)

	info, err := os.Stat(filepath.Join(env.root, "a", "b", "c"))
	if err != nil || !info.IsDir() {
		t.Fatalf("folder not created: %v", err)
	}
	if strings.TrimSpace(env.out.String()) != "/a/b/c" {
		t.Errorf("stdout = %q", env.out)
	}
}

func TestMkdir_MissingParent(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("mkdir", "/a/b"), exitCodeCommand)
}

func TestRemove(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "docs/a.txt", "a")
	env.writeLocal(t, "docs/sub/b.txt", "b")

	env.expectCode(t, env.run("rm", "-r", "/docs"), exitCodeSuccess)
	if _, err := os.Stat(filepath.Join(env.root, "docs")); !os.IsNotExist(err) {
		t.Errorf("docs still present: %v", err)
	}
}

func TestRemove_Missing(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("rm", "/gone"), exitCodeCommand)

	env = newCLI(t)
	env.expectCode(t, env.run("rm", "-f", "/gone"), exitCodeSuccess)
}

func TestMove(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "old.txt", "content")

	env.expectCode(t, env.run("mv", "/old.txt", "/new.txt"), exitCodeSuccess)
	if _, ok := env.readLocal("old.txt"); ok {
		t.Error("source still present")
	}
	if got, _ := env.readLocal("new.txt"); got != "content" {
		t.Errorf("target = %q", got)
	}
}

func TestCopy(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "src/a.txt", "a")
	env.writeLocal(t, "src/deep/b.txt", "b")

	env.expectCode(t, env.run("cp", "/src", "/dst"), exitCodeSuccess)
	if got, _ := env.readLocal("dst/deep/b.txt"); got != "b" {
		t.Errorf("dst/deep/b.txt = %q", got)
	}
	if got, _ := env.readLocal("src/a.txt"); got != "a" {
		t.Error("source changed")
	}
}

func TestHash(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"hash", "/h.txt"}, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d  /h.txt\n"},
		{[]string{"hash", "--algo", "md5", "/h.txt"}, "5d41402abc4b2a76b9719d911017c592  /h.txt\n"},
	}
	for _, tt := range tests {
		env := newCLI(t)
		env.writeLocal(t, "h.txt", "hello")
		env.expectCode(t, env.run(tt.args...), exitCodeSuccess)
		if env.out.String() != tt.want {
			t.Errorf("%v: stdout = %q, want %q", tt.args, env.out, tt.want)
		}
	}

	env := newCLI(t)
	env.writeLocal(t, "h.txt", "hello")
	env.expectCode(t, env.run("hash", "-a", "crc32", "/h.txt"), exitCodeCommand)
}

func TestPerms(t *testing.T) {
	env := newCLI(t)
	env.writeLocal(t, "a.txt", "a")

	env.expectCode(t, env.run("perms", "/a.txt"), exitCodeSuccess)
	if !strings.HasPrefix(env.out.String(), "r") {
		t.Errorf("stdout = %q, want readable", env.out)
	}
}

func TestFormatPerms(t *testing.T) {
	tests := []struct {
		p    driver.Permissions
		want string
	}{
		{driver.Permissions{}, "--"},
		{driver.Permissions{Readable: true}, "r-"},
		{driver.Permissions{Writable: true}, "-w"},
		{driver.Permissions{Readable: true, Writable: true}, "rw"},
	}
	for _, tt := range tests {
		if got := formatPerms(tt.p); got != tt.want {
			t.Errorf("formatPerms(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestFingerprint_NoHostKey(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("fingerprint"), exitCodeCommand)
}

func TestUsageErrors_DoNotConnect(t *testing.T) {
	cases := [][]string{
		{"stat"},
		{"mv", "/a"},
		{"put", "only-one"},
		{"fingerprint", "extra"},
		{"ls", "/a", "/b"},
		{"mkdir", "--bogus", "/a"},
	}
	for _, args := range cases {
		env := newCLI(t)
		env.expectCode(t, env.run(args...), exitCodeUsage)
		if env.connects != 0 {
			t.Errorf("%v: connects = %d, want 0", args, env.connects)
		}
		if !strings.Contains(env.errOut.String(), "usage: sftpfs "+args[0]) {
			t.Errorf("%v: stderr = %q", args, env.errOut)
		}
	}
}

func TestSiteSelection(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("--site", "nope", "stat", "/a"), exitCodeConnect)
	if !strings.Contains(env.errOut.String(), `site "nope"`) {
		t.Errorf("stderr = %q", env.errOut)
	}

	env = newCLI(t, func(c *config.Config) { c.Sites = nil })
	env.expectCode(t, env.run("ls"), exitCodeConnect)
	if !strings.Contains(env.errOut.String(), "no sites configured") {
		t.Errorf("stderr = %q", env.errOut)
	}
}

func TestConnectFailure(t *testing.T) {
	env := newCLI(t)
	env.app.connect = func(context.Context, driver.Config) (*driver.Session, error) {
		return nil, &driver.ConnectionError{Host: "main.example.com", Port: 22, Err: driver.ErrAuthRejected}
	}
	env.expectCode(t, env.run("ls"), exitCodeConnect)
}

func TestKeyringSuppliesPassword(t *testing.T) {
	env := newCLI(t, func(c *config.Config) { c.Security.UseKeyring = true })
	env.keyring.StoreServerPassword("main.example.com", 22, "u", []byte("from-keyring"))

	var got driver.Config
	env.app.connect = func(_ context.Context, c driver.Config) (*driver.Session, error) {
		got = c
		return nil, errors.New("stop here")
	}
	env.expectCode(t, env.run("ls"), exitCodeConnect)
	if got.Password != "from-keyring" {
		t.Errorf("Password = %q, want from-keyring", got.Password)
	}

	env = newCLI(t)
	env.keyring.StoreServerPassword("main.example.com", 22, "u", []byte("from-keyring"))
	env.app.connect = func(_ context.Context, c driver.Config) (*driver.Session, error) {
		got = c
		return nil, errors.New("stop here")
	}
	env.run("ls")
	if got.Password != "" {
		t.Errorf("keyring consulted while disabled: %q", got.Password)
	}
}

func TestSites(t *testing.T) {
	env := newCLI(t, func(c *config.Config) {
		c.Sites = append(c.Sites, config.SiteConfig{
			Name: "backup", Host: "backup.example.com", Port: 2222, User: "b",
			Auth: config.AuthConfig{Method: "agent"},
		})
	})

	env.expectCode(t, env.run("sites"), exitCodeSuccess)
	out := env.out.String()
	for _, want := range []string{"main.example.com:22", "backup.example.com:2222", "agent", "password"} {
		if !strings.Contains(out, want) {
			t.Errorf("sites output missing %q:\n%s", want, out)
		}
	}
	if env.connects != 0 {
		t.Errorf("connects = %d, want 0", env.connects)
	}
}

func TestSiteAdd(t *testing.T) {
	env := newCLI(t)
	env.dialog.Result = config.SiteConfig{
		Name: "media", Host: "media.example.com", Port: 22, User: "m", Root: "/srv",
		Auth: config.AuthConfig{Method: "password", PasswordEnv: "MEDIA_PASSWORD"},
	}.FormData()
	env.dialog.Result.Confirmed = true

	env.expectCode(t, env.run("site", "add", "media", "media.example.com", "--port", "2200"), exitCodeSuccess)

	prefill := env.dialog.ReceivedPrefill
	if prefill.Name != "media" || prefill.Host != "media.example.com" || prefill.Port != 2200 {
		t.Errorf("prefill = %+v", prefill)
	}
	if prefill.AuthMethod != "password" || prefill.Root != "/" {
		t.Errorf("prefill defaults = %+v", prefill)
	}

	saved, err := config.Load(testConfigPath, env.fs)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	site, err := saved.Site("media")
	if err != nil {
		t.Fatalf("Site(media): %v", err)
	}
	if site.Root != "/srv" || site.Auth.PasswordEnv != "MEDIA_PASSWORD" {
		t.Errorf("saved site = %+v", site)
	}
	if len(saved.Sites) != 2 {
		t.Errorf("sites = %d, want 2", len(saved.Sites))
	}
}

func TestSiteAdd_CancelledOrRejected(t *testing.T) {
	env := newCLI(t)
	env.dialog.Result = config.SiteConfig{Name: "media", Host: "h", User: "u"}.FormData()
	env.expectCode(t, env.run("site", "add"), exitCodeSuccess)
	if !strings.Contains(env.errOut.String(), "cancelled") {
		t.Errorf("stderr = %q", env.errOut)
	}

	env = newCLI(t)
	env.dialog.Result = config.SiteConfig{Name: "main", Host: "h", User: "u"}.FormData()
	env.dialog.Result.Confirmed = true
	env.expectCode(t, env.run("site", "add"), exitCodeCommand)

	env = newCLI(t)
	env.dialog.Err = errors.New("no tty")
	env.expectCode(t, env.run("site", "add"), exitCodeCommand)

	env = newCLI(t)
	env.expectCode(t, env.run("site", "remove"), exitCodeUsage)
	if env.dialog.Called {
		t.Error("dialog shown for unknown subcommand")
	}
}

func TestKeyringSetPassword(t *testing.T) {
	env := newCLI(t)
	env.app.stdin = strings.NewReader("s3cret\n")

	env.expectCode(t, env.run("keyring", "set-password", "--stdin"), exitCodeSuccess)
	if got := string(env.keyring.passwords[passwordKey("main.example.com", 22, "u")]); got != "s3cret" {
		t.Errorf("stored password = %q", got)
	}
	if !strings.Contains(env.errOut.String(), "use_keyring is off") {
		t.Errorf("stderr = %q, want a use_keyring note", env.errOut)
	}
}

func TestKeyringSetPassphrase_Prompt(t *testing.T) {
	env := newCLI(t, func(c *config.Config) {
		c.Security.UseKeyring = true
		c.Sites[0].Auth = config.AuthConfig{Method: "publickey", PublicKey: "/k/id.pub", PrivateKey: "/k/id"}
	})
	env.dialog.Secret = "phrase"

	env.expectCode(t, env.run("keyring", "set-passphrase"), exitCodeSuccess)
	if got := string(env.keyring.passphrases["/k/id"]); got != "phrase" {
		t.Errorf("stored passphrase = %q", got)
	}
	if len(env.dialog.Prompts) != 1 || !strings.Contains(env.dialog.Prompts[0], "/k/id") {
		t.Errorf("prompts = %v", env.dialog.Prompts)
	}
	if env.errOut.Len() != 0 {
		t.Errorf("stderr = %q", env.errOut)
	}
}

func TestKeyring_Errors(t *testing.T) {
	env := newCLI(t)
	env.expectCode(t, env.run("keyring", "set-passphrase", "--stdin"), exitCodeCommand)
	if !strings.Contains(env.errOut.String(), "no private_key") {
		t.Errorf("stderr = %q", env.errOut)
	}

	env = newCLI(t)
	env.keyring.enabled = false
	env.expectCode(t, env.run("keyring", "set-password"), exitCodeCommand)

	env = newCLI(t)
	env.expectCode(t, env.run("keyring", "set-password", "--stdin"), exitCodeCommand)

	env = newCLI(t)
	env.expectCode(t, env.run("keyring", "list"), exitCodeUsage)
	env.expectCode(t, env.run("keyring"), exitCodeUsage)

	env = newCLI(t)
	env.dialog.SecretErr = errors.New("no tty")
	env.expectCode(t, env.run("keyring", "set-password"), exitCodeCommand)
	if len(env.keyring.passwords) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestKeyringDelete(t *testing.T) {
	env := newCLI(t, func(c *config.Config) {
		c.Sites[0].Auth = config.AuthConfig{Method: "publickey", PublicKey: "/k/id.pub", PrivateKey: "/k/id"}
	})
	env.keyring.StoreServerPassword("main.example.com", 22, "u", []byte("pw"))
	env.keyring.StoreKeyPassphrase("/k/id", []byte("phrase"))

	env.expectCode(t, env.run("keyring", "delete-password"), exitCodeSuccess)
	if _, ok := env.keyring.passwords[passwordKey("main.example.com", 22, "u")]; ok {
		t.Error("password still stored")
	}
	env.expectCode(t, env.run("keyring", "delete-passphrase"), exitCodeSuccess)
	if _, ok := env.keyring.passphrases["/k/id"]; ok {
		t.Error("passphrase still stored")
	}
	if !strings.Contains(env.out.String(), `deleted passphrase for site "main"`) {
		t.Errorf("stdout = %q", env.out)
	}

	env.expectCode(t, env.run("keyring", "delete-password", "--stdin"), exitCodeUsage)
	env.expectCode(t, env.run("keyring", "delete-token"), exitCodeUsage)
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args     []string
		min, max int
		wantErr  bool
	}{
		{[]string{}, 0, 1, false},
		{[]string{"a"}, 1, 1, false},
		{[]string{"a", "b", "c"}, 1, -1, false},
		{[]string{}, 1, -1, true},
		{[]string{"a", "b"}, 1, 1, true},
		{[]string{"a", "b", "c"}, 0, 2, true},
		{[]string{"--nope"}, 0, 0, true},
	}
	for _, tt := range tests {
		fs := flag.NewFlagSet("t", flag.ContinueOnError)
		fs.SetOutput(&bytes.Buffer{})
		_, err := parseArgs(fs, tt.args, tt.min, tt.max)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArgs(%v, %d, %d) err = %v, wantErr %v", tt.args, tt.min, tt.max, err, tt.wantErr)
		}
		var ue *usageError
		if err != nil && !errors.As(err, &ue) {
			t.Errorf("parseArgs(%v) error %T is not a usage error", tt.args, err)
		}
	}
}
