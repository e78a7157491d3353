package ports

import "io"

// MimeResolver looks up the MIME type of a remote file.
// head yields the leading bytes of the file content; name is its base name.
type MimeResolver interface {
	Resolve(name string, head io.Reader) string
}
