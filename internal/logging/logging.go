// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"

	set "github.com/deckarep/golang-set/v2"
)

// Output formats accepted by Setup.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Redacted replaces the value of a sensitive attribute.
const Redacted = "[REDACTED]"

// secretStems mark a key as sensitive wherever they appear in it.
var secretStems = []string{"password", "passwd", "passphrase", "secret", "token", "credential"}

// secretWords mark a key as sensitive only as a whole word, so "keepalive"
// and "keyboard" pass while "key" and "ssh_key" do not.
var secretWords = set.NewSet("key", "auth", "pin")

// publicNames contain a secret word but carry no secret.
var publicNames = set.NewSet("public_key", "host_key", "auth_method", "key_path", "key_type")

// IsSensitive reports whether an attribute named key may hold a credential.
func IsSensitive(key string) bool {
	words := keyWords(key)
	if publicNames.Contains(strings.Join(words, "_")) {
		return false
	}
	for _, w := range words {
		if secretWords.Contains(w) {
			return true
		}
		for _, stem := range secretStems {
			if strings.Contains(w, stem) {
				return true
			}
		}
	}
	return false
}

// keyWords lowercases key and splits it on punctuation and camel case.
func keyWords(key string) []string {
	var b strings.Builder
	var prev rune
	for _, r := range key {
		if unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return strings.FieldsFunc(b.String(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func redact(a slog.Attr) slog.Attr {
	if IsSensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: v}
	}
	return slog.Attr{Key: a.Key, Value: slog.GroupValue(redactAll(v.Group())...)}
}

func redactAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redact(a)
	}
	return out
}

// SanitizingHandler replaces the values of sensitive attributes before
// passing records on. Groups and LogValuer values are inspected too.
type SanitizingHandler struct {
	inner    slog.Handler
	sanitize bool
}

// NewSanitizingHandler wraps inner. With sanitize off records pass unchanged.
func NewSanitizingHandler(inner slog.Handler, sanitize bool) *SanitizingHandler {
	return &SanitizingHandler{inner: inner, sanitize: sanitize}
}

// Enabled implements slog.Handler.
func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.sanitize {
		return h.inner.Handle(ctx, r)
	}
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redact(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.sanitize {
		attrs = redactAll(attrs)
	}
	return &SanitizingHandler{inner: h.inner.WithAttrs(attrs), sanitize: h.sanitize}
}

// WithGroup implements slog.Handler.
func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{inner: h.inner.WithGroup(name), sanitize: h.sanitize}
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(w io.Writer, level, format string, sanitize bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var inner slog.Handler
	if strings.EqualFold(format, FormatText) {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}
	return NewSanitizingHandler(inner, sanitize)
}

// Setup installs the default logger on stderr. Stdout stays free for
// command output and the MCP stdio transport.
func Setup(level, format string, sanitize bool) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, level, format, sanitize)))
}
