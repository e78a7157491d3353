package driver

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	sftpclient "github.com/acolita/sftpfs/internal/sftp"
	"github.com/bmatcuk/doublestar/v4"
	set "github.com/deckarep/golang-set/v2"
)

// maxSymlinkHops bounds symlink resolution, as ELOOP does on Linux.
const maxSymlinkHops = 40

// ScanOptions selects what ScanDirectory returns.
type ScanOptions struct {
	Files     bool
	Folders   bool
	Recursive bool
}

// DefaultScanOptions lists files and folders, non-recursively.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{Files: true, Folders: true}
}

// ScanDirectory lists the folder at identifier. Children of each folder are
// sorted by name; with Recursive, a folder's own children come first and
// each subfolder's listing follows in order. Symbolic links are followed and
// dangling links are skipped. A folder reached again through a link cycle is
// listed but not expanded.
func (s *Session) ScanDirectory(identifier string, opts ScanOptions) (*Listing, error) {
	dir, err := s.transportPath("scan", identifier)
	if err != nil {
		return nil, err
	}

	info, err := s.transport.Stat(dir)
	if err != nil {
		return nil, wrapErr("scan", identifier, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %s: %w", identifier, ErrNotDirectory)
	}

	canon, err := s.resolve(dir)
	if err != nil {
		return nil, wrapErr("scan", identifier, err)
	}

	ancestors := set.NewThreadUnsafeSet(canon)
	listing := NewListing()
	if err := s.scanDir(dir, canon, opts, ancestors, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

type pendingFolder struct {
	dir   string
	canon string
}

func (s *Session) scanDir(dir, canon string, opts ScanOptions, ancestors set.Set[string], out *Listing) error {
	infos, err := s.transport.ReadDir(dir)
	if err != nil {
		return wrapErr("read dir", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var folders []pendingFolder
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}

		child := path.Join(dir, name)
		childCanon := path.Join(canon, name)
		node := info

		if isSymlink(info) {
			target, err := s.transport.Stat(child)
			if err != nil {
				if sftpclient.IsNotExist(err) {
					slog.Debug("skipping dangling symlink", slog.String("path", child))
					continue
				}
				return wrapErr("stat", child, err)
			}
			node = target
			if node.IsDir() {
				if childCanon, err = s.resolve(child); err != nil {
					return wrapErr("resolve", child, err)
				}
			}
		}

		isDir := node.IsDir()
		if !isDir && !node.Mode().IsRegular() {
			slog.Debug("skipping special file", slog.String("path", child), slog.String("mode", node.Mode().String()))
			continue
		}

		id, err := s.paths.FromTransport(child)
		if err != nil {
			return err
		}

		if isDir {
			if opts.Folders {
				out.Add(DirectoryEntry{Identifier: id, Type: EntryDir})
			}
			folders = append(folders, pendingFolder{dir: child, canon: childCanon})
		} else if opts.Files {
			out.Add(DirectoryEntry{Identifier: id, Type: EntryFile})
		}
	}

	if !opts.Recursive {
		return nil
	}

	for _, f := range folders {
		if ancestors.Contains(f.canon) {
			slog.Debug("not expanding symlink cycle", slog.String("path", f.dir))
			continue
		}
		ancestors.Add(f.canon)
		err := s.scanDir(f.dir, f.canon, opts, ancestors, out)
		ancestors.Remove(f.canon)
		if err != nil {
			return err
		}
	}
	return nil
}

// resolve returns the physical path of p with every symbolic link expanded.
func (s *Session) resolve(p string) (string, error) {
	abs, err := s.transport.RealPath(p)
	if err != nil {
		return "", err
	}

	pending := strings.Split(abs, "/")
	cur := "/"
	hops := 0
	for len(pending) > 0 {
		comp := pending[0]
		pending = pending[1:]

		switch comp {
		case "", ".":
			continue
		case "..":
			cur = path.Dir(cur)
			continue
		}

		next := path.Join(cur, comp)
		info, err := s.transport.Lstat(next)
		if err != nil {
			return "", err
		}
		if !isSymlink(info) {
			cur = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("resolve %s: too many levels of symbolic links", p)
		}
		target, err := s.transport.ReadLink(next)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(target, "/") {
			cur = "/"
		}
		pending = append(strings.Split(target, "/"), pending...)
	}
	return cur, nil
}

// Glob scans identifier recursively and keeps the entries whose path
// relative to identifier matches the doublestar pattern.
func (s *Session) Glob(identifier, pattern string) (*Listing, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("glob %q: %w", pattern, doublestar.ErrBadPattern)
	}

	all, err := s.ScanDirectory(identifier, ScanOptions{Files: true, Folders: true, Recursive: true})
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(path.Clean(identifier), "/") + "/"
	matched := NewListing()
	for _, e := range all.Entries() {
		rel := strings.TrimPrefix(e.Identifier, base)
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if ok {
			matched.Add(e)
		}
	}
	return matched, nil
}
