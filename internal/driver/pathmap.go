package driver

import (
	"fmt"
	"path"
	"strings"
)

// PathMapper converts identifiers to transport paths and back.
// The zero value maps identifiers to themselves.
type PathMapper struct {
	prefix string
}

// NewPathMapper returns a mapper for the resolved remote root.
// A trailing slash is dropped and "/" becomes the empty prefix.
func NewPathMapper(root string) PathMapper {
	return PathMapper{prefix: strings.TrimRight(root, "/")}
}

// Prefix returns the prefix prepended to identifiers.
func (m PathMapper) Prefix() string {
	return m.prefix
}

// ToTransport returns prefix + identifier.
func (m PathMapper) ToTransport(identifier string) (string, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return "", err
	}
	return m.prefix + identifier, nil
}

// FromTransport strips the prefix from p. An empty remainder is "/".
func (m PathMapper) FromTransport(p string) (string, error) {
	if !strings.HasPrefix(p, m.prefix) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	rest := p[len(m.prefix):]
	if rest == "" {
		return "/", nil
	}
	if rest[0] != '/' {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return rest, nil
}

// ValidateIdentifier accepts rooted, slash-separated identifiers without ".." segments.
func ValidateIdentifier(identifier string) error {
	if !strings.HasPrefix(identifier, "/") {
		return fmt.Errorf("%w: %q is not rooted", ErrInvalidIdentifier, identifier)
	}
	for _, seg := range strings.Split(identifier, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q contains '..'", ErrInvalidIdentifier, identifier)
		}
	}
	return nil
}

// Canonical validates identifier and returns it without trailing slashes,
// "." segments or repeated separators.
func Canonical(identifier string) (string, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return "", err
	}
	return path.Clean(identifier), nil
}
