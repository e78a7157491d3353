package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/driver"
	sftpclient "github.com/acolita/sftpfs/internal/sftp"
	"github.com/acolita/sftpfs/internal/testing/fakes/fakedialog"
	"github.com/acolita/sftpfs/internal/testing/fakes/fakefs"
	"github.com/acolita/sftpfs/internal/testing/mockssh"
	"github.com/acolita/sftpfs/internal/testing/sftptest"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func makeRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(mcpgo.TextContent); ok {
		return tc.Text
	}
	return ""
}

func decodeResult(t *testing.T, result *mcpgo.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}
	if err := json.Unmarshal([]byte(resultText(result)), v); err != nil {
		t.Fatalf("decode result: %v\nraw: %s", err, resultText(result))
	}
}

// pipeServer is a Server with one site, "main", whose session runs over an
// in-memory sftp server rooted at root. The pipe carries a single session.
type pipeServer struct {
	*Server
	root     string
	connects int
}

func newPipeServer(t *testing.T) *pipeServer {
	t.Helper()
	backend := sftptest.Start(t)

	cfg := config.DefaultConfig()
	cfg.Sites = []config.SiteConfig{{Name: "main", Host: "main.example.com", User: "u", Root: backend.Root}}

	ps := &pipeServer{root: backend.Root}
	ps.Server = NewServer(cfg,
		WithFileSystem(fakefs.New()),
		WithDialogProvider(fakedialog.New()),
		WithConnectFunc(func(ctx context.Context, c driver.Config) (*driver.Session, error) {
			ps.connects++
			client, err := sftpclient.NewClientPipe(backend.ClientReader, backend.ClientWriter)
			if err != nil {
				return nil, err
			}
			return driver.NewSession(c, client)
		}),
	)
	t.Cleanup(func() { ps.Close() })
	return ps
}

func (ps *pipeServer) writeLocal(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(ps.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (ps *pipeServer) readLocal(t *testing.T, rel string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ps.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func call(t *testing.T, handler func(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error), args map[string]any) *mcpgo.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := handler(ctx, makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func startSSH(t *testing.T) *mockssh.Server {
	t.Helper()
	srv, err := mockssh.New()
	if err != nil {
		t.Fatalf("mockssh.New: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}
