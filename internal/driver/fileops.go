package driver

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"strings"

	"github.com/acolita/sftpfs/internal/adapters/realmime"
	sftpclient "github.com/acolita/sftpfs/internal/sftp"
	"github.com/pkg/sftp"
)

// Kind selects the node type Exists looks for.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Permissions reports what the session user may do with a node.
type Permissions struct {
	Readable bool `json:"r"`
	Writable bool `json:"w"`
}

// FileDetails is the metadata returned by Details. Times are unix seconds.
// SFTP v3 has no change time; CTime repeats MTime.
type FileDetails struct {
	Size     int64  `json:"size"`
	ATime    int64  `json:"atime"`
	MTime    int64  `json:"mtime"`
	CTime    int64  `json:"ctime"`
	MimeType string `json:"mimetype"`
}

const createFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC

// Exists reports whether a node of the given kind exists at identifier.
// Symbolic links are followed.
func (s *Session) Exists(identifier string, kind Kind) (bool, error) {
	p, err := s.transportPath("exists", identifier)
	if err != nil {
		return false, err
	}

	info, err := s.transport.Stat(p)
	if err != nil {
		if sftpclient.IsNotExist(err) {
			return false, nil
		}
		return false, wrapErr("exists", identifier, err)
	}

	switch kind {
	case KindFile:
		return info.Mode().IsRegular(), nil
	case KindFolder:
		return info.IsDir(), nil
	default:
		return false, nil
	}
}

// Permissions probes read and write access. Files are opened for reading and
// for writing without truncation. Folders are listed for read access; write
// access is derived from the mode bits and the session's remote identity.
func (s *Session) Permissions(identifier string) (Permissions, error) {
	p, err := s.transportPath("permissions", identifier)
	if err != nil {
		return Permissions{}, err
	}

	info, err := s.transport.Stat(p)
	if err != nil {
		return Permissions{}, wrapErr("permissions", identifier, err)
	}

	var perms Permissions
	if info.IsDir() {
		_, err := s.transport.ReadDir(p)
		perms.Readable = err == nil
		perms.Writable = s.modeAllows(info, 02)
		return perms, nil
	}

	if f, err := s.transport.Open(p); err == nil {
		perms.Readable = true
		f.Close()
	}
	if f, err := s.transport.OpenFile(p, os.O_WRONLY); err == nil {
		perms.Writable = true
		f.Close()
	}
	return perms, nil
}

// modeAllows checks one rwx bit (4, 2 or 1) against the owner, group or
// other class that applies to the session identity.
func (s *Session) modeAllows(info os.FileInfo, bit os.FileMode) bool {
	perm := info.Mode().Perm()
	st, ok := info.Sys().(*sftp.FileStat)
	if !ok || !s.identity.known {
		return perm&(bit<<6) != 0
	}
	switch {
	case s.identity.uid == 0:
		return true
	case st.UID == s.identity.uid:
		return perm&(bit<<6) != 0
	case st.GID == s.identity.gid:
		return perm&(bit<<3) != 0
	default:
		return perm&bit != 0
	}
}

// CreateFolder creates the folder at identifier, and its parents when
// recursive is set, then applies FolderMode. It returns identifier.
func (s *Session) CreateFolder(identifier string, recursive bool) (string, error) {
	p, err := s.transportPath("create folder", identifier)
	if err != nil {
		return "", err
	}
	if err := s.mkdir(p, recursive); err != nil {
		return "", wrapErr("create folder", identifier, err)
	}
	return identifier, nil
}

func (s *Session) mkdir(p string, recursive bool) error {
	var err error
	if recursive {
		err = s.transport.MkdirAll(p)
	} else {
		err = s.transport.Mkdir(p)
	}
	if err != nil {
		return err
	}
	return s.transport.Chmod(p, s.cfg.FolderMode)
}

// Details returns size, times and MIME type. Folders have no MIME type.
func (s *Session) Details(identifier string) (FileDetails, error) {
	p, err := s.transportPath("details", identifier)
	if err != nil {
		return FileDetails{}, err
	}

	info, err := s.transport.Stat(p)
	if err != nil {
		return FileDetails{}, wrapErr("details", identifier, err)
	}

	d := FileDetails{
		Size:  info.Size(),
		MTime: info.ModTime().Unix(),
	}
	d.ATime = d.MTime
	if st, ok := info.Sys().(*sftp.FileStat); ok {
		d.ATime = int64(st.Atime)
		d.MTime = int64(st.Mtime)
	}
	d.CTime = d.MTime

	if !info.IsDir() {
		d.MimeType = s.mimeType(p)
	}
	return d, nil
}

func (s *Session) mimeType(p string) string {
	f, err := s.transport.Open(p)
	if err != nil {
		return s.mime.Resolve(path.Base(p), nil)
	}
	defer f.Close()
	return s.mime.Resolve(path.Base(p), io.LimitReader(f, realmime.ReadLimit))
}

// Hash returns the lowercase hex digest of the file content. Supported
// algorithms are sha1, md5 and sha256.
func (s *Session) Hash(identifier, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}

	p, err := s.transportPath("hash", identifier)
	if err != nil {
		return "", err
	}

	f, err := s.transport.Open(p)
	if err != nil {
		return "", wrapErr("hash", identifier, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", wrapErr("hash", identifier, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("hash: %w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// DownloadFile copies the remote file to localTarget and returns localTarget.
func (s *Session) DownloadFile(identifier, localTarget string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &TransferError{Op: "download", Source: identifier, Target: localTarget, Err: err}
	}

	p, err := s.transportPath("download", identifier)
	if err != nil {
		return fail(err)
	}

	src, err := s.transport.Open(p)
	if err != nil {
		return fail(wrapErr("open", identifier, err))
	}
	defer src.Close()

	dst, err := s.fs.Create(localTarget, s.cfg.FileMode)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		return fail(err)
	}
	return localTarget, nil
}

// UploadFile copies localSource to identifier, replacing any existing
// file, and applies FileMode.
func (s *Session) UploadFile(localSource, identifier string) error {
	fail := func(err error) error {
		return &TransferError{Op: "upload", Source: localSource, Target: identifier, Err: err}
	}

	p, err := s.transportPath("upload", identifier)
	if err != nil {
		return fail(err)
	}

	src, err := s.fs.Open(localSource)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	if err := s.writeStream(p, src); err != nil {
		return fail(wrapErr("write", identifier, err))
	}
	return nil
}

// writeStream creates or truncates p, copies r into it and applies FileMode.
func (s *Session) writeStream(p string, r io.Reader) error {
	dst, err := s.transport.OpenFile(p, createFlags)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return s.transport.Chmod(p, s.cfg.FileMode)
}

// DumpFile streams the file content into w and returns the byte count.
func (s *Session) DumpFile(identifier string, w io.Writer) (int64, error) {
	p, err := s.transportPath("dump", identifier)
	if err != nil {
		return 0, err
	}

	f, err := s.transport.Open(p)
	if err != nil {
		return 0, wrapErr("dump", identifier, err)
	}
	defer f.Close()

	n, err := f.WriteTo(w)
	if err != nil {
		return n, wrapErr("dump", identifier, err)
	}
	return n, nil
}

// ReadFile returns the whole file content.
func (s *Session) ReadFile(identifier string) ([]byte, error) {
	p, err := s.transportPath("read", identifier)
	if err != nil {
		return nil, err
	}

	f, err := s.transport.Open(p)
	if err != nil {
		return nil, wrapErr("read", identifier, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, wrapErr("read", identifier, err)
	}
	return data, nil
}

// WriteFile replaces the file content and applies FileMode.
func (s *Session) WriteFile(identifier string, data []byte) error {
	p, err := s.transportPath("write", identifier)
	if err != nil {
		return err
	}
	if err := s.writeStream(p, bytes.NewReader(data)); err != nil {
		return wrapErr("write", identifier, err)
	}
	return nil
}

// Delete removes the node at identifier. Folders must be empty unless
// recursive is set, in which case their contents are removed deepest first
// without following symbolic links. A missing node yields false and ErrNotFound;
// the site root itself is refused with ErrInvalidTarget.
func (s *Session) Delete(identifier string, recursive bool) (bool, error) {
	identifier, err := Canonical(identifier)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	if identifier == "/" {
		return false, fmt.Errorf("delete /: %w: the site root cannot be deleted", ErrInvalidTarget)
	}

	p, err := s.transportPath("delete", identifier)
	if err != nil {
		return false, err
	}

	info, err := s.transport.Lstat(p)
	if err != nil {
		return false, wrapErr("delete", identifier, err)
	}

	if info.IsDir() {
		if recursive {
			if err := s.removeContents(p); err != nil {
				return false, wrapErr("delete", identifier, err)
			}
		}
		err = s.transport.RemoveDirectory(p)
	} else {
		err = s.transport.Remove(p)
	}
	if err != nil {
		return false, wrapErr("delete", identifier, err)
	}
	return true, nil
}

// removeAll deletes p whatever its type. A missing p is not an error.
func (s *Session) removeAll(p string) error {
	info, err := s.transport.Lstat(p)
	if err != nil {
		if sftpclient.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return s.transport.Remove(p)
	}
	if err := s.removeContents(p); err != nil {
		return err
	}
	return s.transport.RemoveDirectory(p)
}

func (s *Session) removeContents(dir string) error {
	infos, err := s.transport.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, info := range infos {
		child := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := s.removeContents(child); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := s.transport.RemoveDirectory(child); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := s.transport.Remove(child); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
