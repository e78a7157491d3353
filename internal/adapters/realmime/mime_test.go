package realmime

import (
	"bytes"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name     string
		file     string
		head     []byte
		wantPref string
	}{
		{"png by content", "image.bin", png, "image/png"},
		{"text by content", "notes", []byte("hello world\n"), "text/plain"},
		{"pdf by content", "doc", []byte("%PDF-1.4\n"), "application/pdf"},
		{"binary falls back to extension", "archive.zip.part.json", []byte{0x00, 0x01, 0x02, 0xfe}, "application/json"},
		{"binary without extension", "blob", []byte{0x00, 0x01, 0x02, 0xfe}, "application/octet-stream"},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.file, bytes.NewReader(tt.head))
			if !strings.HasPrefix(got, tt.wantPref) {
				t.Errorf("Resolve(%q) = %q, want prefix %q", tt.file, got, tt.wantPref)
			}
		})
	}
}

func TestResolve_NilHead(t *testing.T) {
	got := New().Resolve("page.html", nil)
	if !strings.HasPrefix(got, "text/html") {
		t.Errorf("Resolve(nil head) = %q, want text/html", got)
	}
}
