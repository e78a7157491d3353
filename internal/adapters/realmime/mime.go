// Package realmime resolves MIME types by content sniffing with an extension fallback.
package realmime

import (
	"io"
	"mime"
	"path"

	"github.com/acolita/sftpfs/internal/ports"
	"github.com/gabriel-vasile/mimetype"
)

// ReadLimit is how many leading bytes Resolve inspects.
const ReadLimit = 3072

// Resolver implements ports.MimeResolver with gabriel-vasile/mimetype.
type Resolver struct{}

// New returns a new Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve sniffs head. When the content is not recognized, the file
// extension decides; an unknown extension yields application/octet-stream.
func (r *Resolver) Resolve(name string, head io.Reader) string {
	byExt := mime.TypeByExtension(path.Ext(name))

	if head == nil {
		return byExt
	}

	detected, err := mimetype.DetectReader(io.LimitReader(head, ReadLimit))
	if err != nil {
		return byExt
	}
	if detected.Is("application/octet-stream") && byExt != "" {
		return byExt
	}
	return detected.String()
}

var _ ports.MimeResolver = (*Resolver)(nil)
