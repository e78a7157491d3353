package ssh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/acolita/sftpfs/internal/testing/fakes/fakeclock"
	"github.com/acolita/sftpfs/internal/testing/fakes/fakesshdialer"
	"github.com/acolita/sftpfs/internal/testing/mockssh"
	gossh "golang.org/x/crypto/ssh"
)

func startMock(t *testing.T, opts ...mockssh.Option) *mockssh.Server {
	t.Helper()
	srv, err := mockssh.New(opts...)
	if err != nil {
		t.Fatalf("mockssh.New: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func mockOptions(srv *mockssh.Server, password string) ClientOptions {
	return ClientOptions{
		Host:              srv.Host(),
		Port:              srv.Port(),
		User:              "test",
		AuthMethods:       []gossh.AuthMethod{PasswordAuth(password)},
		Timeout:           5 * time.Second,
		KeepaliveInterval: -1,
	}
}

func TestNewClient_Validation(t *testing.T) {
	auth := []gossh.AuthMethod{PasswordAuth("x")}
	tests := []struct {
		name string
		opts ClientOptions
	}{
		{"no host", ClientOptions{User: "u", AuthMethods: auth}},
		{"no user", ClientOptions{Host: "h", AuthMethods: auth}},
		{"no auth", ClientOptions{Host: "h", User: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(ClientOptions{Host: "h", User: "u", AuthMethods: []gossh.AuthMethod{PasswordAuth("x")}})
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultClientOptions()
	if c.Port() != def.Port {
		t.Errorf("Port() = %d, want %d", c.Port(), def.Port)
	}
	if c.keepaliveMaxMissed != def.KeepaliveMaxMissed {
		t.Errorf("keepaliveMaxMissed = %d, want %d", c.keepaliveMaxMissed, def.KeepaliveMaxMissed)
	}
	if c.keepaliveInterval != def.KeepaliveInterval {
		t.Errorf("keepaliveInterval = %v, want %v", c.keepaliveInterval, def.KeepaliveInterval)
	}
	if c.config.Timeout != def.Timeout {
		t.Errorf("Timeout = %v, want %v", c.config.Timeout, def.Timeout)
	}
	if c.Host() != "h" || c.IsConnected() {
		t.Errorf("Host() = %q, IsConnected() = %v", c.Host(), c.IsConnected())
	}
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"refused", errors.New("dial tcp: connection refused"), ErrUnreachable},
		{"auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), ErrAuthRejected},
		{"host key", fmt.Errorf("ssh: handshake failed: %w", ErrHostKeyMismatch), ErrHostKeyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDialError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyDialError = %v, want %v", got, tt.want)
			}
			if !errors.Is(got, tt.err) && !errors.Is(tt.err, got) {
				t.Errorf("classifyDialError lost the cause %v", tt.err)
			}
		})
	}
}

func TestClient_ConnectAndSFTP(t *testing.T) {
	srv := startMock(t)
	c, err := NewClient(mockOptions(srv, "test"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	// A second Connect is a no-op.
	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("second Connect: %v", err)
	}

	first, err := c.SFTPClient()
	if err != nil {
		t.Fatalf("SFTPClient: %v", err)
	}
	second, err := c.SFTPClient()
	if err != nil || second != first {
		t.Errorf("SFTPClient not reused: %v", err)
	}
	if srv.SFTPSessions() != 1 {
		t.Errorf("SFTPSessions() = %d, want 1", srv.SFTPSessions())
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if _, err := c.SFTPClient(); err == nil {
		t.Error("SFTPClient after Close should fail")
	}
}

func TestClient_ConnectWrongPassword(t *testing.T) {
	srv := startMock(t)
	c, err := NewClient(mockOptions(srv, "wrong"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAuthRejected) {
		t.Errorf("error = %v, want ErrAuthRejected", err)
	}
}

func TestClient_ConnectHostKeyRejected(t *testing.T) {
	srv := startMock(t)
	v, err := NewHostKeyVerifier(HostKeyOptions{ExpectedFingerprint: "0000"})
	if err != nil {
		t.Fatal(err)
	}
	opts := mockOptions(srv, "test")
	opts.HostKeyCallback = v.Callback()

	c, err := NewClient(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrHostKeyMismatch) {
		t.Errorf("error = %v, want ErrHostKeyMismatch", err)
	}
	if v.Key() == nil {
		t.Error("verifier did not record the server key")
	}
}

func TestClient_SFTPUnavailable(t *testing.T) {
	srv := startMock(t, mockssh.WithoutSFTP())
	c, err := NewClient(mockOptions(srv, "test"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := c.SFTPClient(); !errors.Is(err, ErrSubsystem) {
		t.Errorf("error = %v, want ErrSubsystem", err)
	}
}

func TestClient_DialerError(t *testing.T) {
	dialer := fakesshdialer.New()
	dialer.SetError(errors.New("no route to host"))

	c, err := NewClient(ClientOptions{
		Host:        "10.0.0.1",
		Port:        2200,
		User:        "u",
		AuthMethods: []gossh.AuthMethod{PasswordAuth("x")},
		Dialer:      dialer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}

	calls := dialer.Calls()
	if len(calls) != 1 || calls[0].Network != "tcp" || calls[0].Addr != "10.0.0.1:"+strconv.Itoa(2200) {
		t.Errorf("calls = %+v", calls)
	}
}

func TestClient_KeepaliveFiresAndStops(t *testing.T) {
	srv := startMock(t)
	clk := fakeclock.New(time.Unix(0, 0))
	opts := mockOptions(srv, "test")
	opts.KeepaliveInterval = 10 * time.Second
	opts.Clock = clk

	c, err := NewClient(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(clk.Tickers()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	tickers := clk.Tickers()
	if len(tickers) != 1 {
		t.Fatalf("tickers = %d, want 1", len(tickers))
	}

	clk.Advance(10 * time.Second)
	clk.Advance(10 * time.Second)

	c.Close()
	for !tickers[0].Stopped() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !tickers[0].Stopped() {
		t.Error("keepalive ticker not stopped after Close")
	}
}

func TestClient_KeepaliveDropsDeadConnection(t *testing.T) {
	srv := startMock(t)
	clk := fakeclock.New(time.Unix(0, 0))
	opts := mockOptions(srv, "test")
	opts.KeepaliveInterval = 10 * time.Second
	opts.KeepaliveMaxMissed = 2
	opts.Clock = clk

	c, err := NewClient(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(clk.Tickers()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(clk.Tickers()) != 1 {
		t.Fatalf("tickers = %d, want 1", len(clk.Tickers()))
	}

	// A live server answers, so the connection survives a tick.
	clk.Advance(10 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if !c.IsConnected() {
		t.Fatal("connection dropped while the server was answering")
	}

	srv.Close()
	for c.IsConnected() && time.Now().Before(deadline) {
		clk.Advance(10 * time.Second)
		time.Sleep(20 * time.Millisecond)
	}
	if c.IsConnected() {
		t.Fatal("IsConnected() = true after the server went away")
	}
	if _, err := c.SFTPClient(); err == nil {
		t.Error("SFTPClient() after drop: want error")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close after drop: %v", err)
	}
}

func TestClient_KeepaliveDropsUnresponsivePeer(t *testing.T) {
	srv := startMock(t, mockssh.WithUnansweredRequests())
	clk := fakeclock.New(time.Unix(0, 0))
	opts := mockOptions(srv, "test")
	opts.KeepaliveInterval = 10 * time.Second
	opts.KeepaliveMaxMissed = 2
	opts.Clock = clk

	c, err := NewClient(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(clk.Tickers()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(clk.Tickers()) != 1 {
		t.Fatalf("tickers = %d, want 1", len(clk.Tickers()))
	}

	// The first probe is sent and held by the server.
	clk.Advance(10 * time.Second)
	for srv.GlobalRequests() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.GlobalRequests() == 0 {
		t.Fatal("no keepalive reached the server")
	}
	if !c.IsConnected() {
		t.Fatal("connection dropped before any interval passed without a reply")
	}

	for c.IsConnected() && time.Now().Before(deadline) {
		clk.Advance(10 * time.Second)
		time.Sleep(20 * time.Millisecond)
	}
	if c.IsConnected() {
		t.Fatal("IsConnected() = true while the peer never answers keepalives")
	}
	if n := srv.GlobalRequests(); n != 1 {
		t.Errorf("server saw %d keepalives, want 1 (no probe is sent while one is pending)", n)
	}
}
