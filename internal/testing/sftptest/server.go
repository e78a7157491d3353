// Package sftptest runs an in-process SFTP server over in-memory pipes for tests.
package sftptest

import (
	"io"
	"testing"

	"github.com/pkg/sftp"
)

// pipeConn joins the two halves of a pipe pair into an io.ReadWriteCloser.
type pipeConn struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p *pipeConn) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Server is a running SFTP server serving the local filesystem.
type Server struct {
	// Root is a fresh temporary directory the test may use as the remote base.
	Root string

	// ClientReader and ClientWriter are the client side of the connection.
	ClientReader io.Reader
	ClientWriter io.WriteCloser

	server *sftp.Server
	done   chan struct{}
}

// Start launches a server and registers its shutdown with t.Cleanup.
// The server sees the real filesystem, so tests address files under Root.
func Start(t *testing.T) *Server {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	server, err := sftp.NewServer(&pipeConn{
		Reader:  serverReader,
		Writer:  serverWriter,
		closers: []io.Closer{serverReader, serverWriter},
	})
	if err != nil {
		t.Fatalf("sftp.NewServer: %v", err)
	}

	s := &Server{
		Root:         t.TempDir(),
		ClientReader: clientReader,
		ClientWriter: clientWriter,
		server:       server,
		done:         make(chan struct{}),
	}

	// Serve returns on EOF but leaves its writer open, and the client's
	// receive loop only exits once it reads EOF.
	go func() {
		defer close(s.done)
		_ = server.Serve()
		_ = serverWriter.Close()
	}()

	t.Cleanup(s.Close)
	return s
}

// Close stops the server and waits for its loop to exit.
func (s *Server) Close() {
	_ = s.ClientWriter.Close()
	_ = s.server.Close()
	<-s.done
}
