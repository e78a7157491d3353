package driver

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	sftpclient "github.com/acolita/sftpfs/internal/sftp"
)

// Rename moves oldIdentifier to newIdentifier, replacing whatever is there.
// What happens when the move fails depends on Config.RenameFallback.
func (s *Session) Rename(oldIdentifier, newIdentifier string) error {
	oldIdentifier, newIdentifier, err := canonicalPair(oldIdentifier, newIdentifier)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if oldIdentifier == "/" || newIdentifier == "/" {
		return fmt.Errorf("rename %s to %s: %w: the site root cannot be moved", oldIdentifier, newIdentifier, ErrInvalidTarget)
	}

	oldPath, err := s.transportPath("rename", oldIdentifier)
	if err != nil {
		return err
	}
	newPath, err := s.paths.ToTransport(newIdentifier)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	if _, err := s.transport.Lstat(oldPath); err != nil {
		return wrapErr("rename", oldIdentifier, err)
	}
	if oldPath == newPath {
		return nil
	}

	if s.cfg.RenameFallback == RenameDeleteSource {
		return s.renameDeleteSource(oldIdentifier, newIdentifier, oldPath, newPath)
	}
	return s.renameKeep(oldIdentifier, newIdentifier, oldPath, newPath)
}

// renameKeep moves an existing target aside first and puts it back if the
// rename fails, so neither side changes on failure.
func (s *Session) renameKeep(oldID, newID, oldPath, newPath string) error {
	backup := ""
	if _, err := s.transport.Lstat(newPath); err == nil {
		backup, err = s.backupName(newPath)
		if err != nil {
			return fmt.Errorf("rename %s to %s: %w: %w", oldID, newID, ErrRenameFailed, err)
		}
		if err := s.transport.Rename(newPath, backup); err != nil {
			return fmt.Errorf("rename %s to %s: move target aside: %w: %w", oldID, newID, ErrRenameFailed, err)
		}
	} else if !sftpclient.IsNotExist(err) {
		return wrapErr("rename", newID, err)
	}

	if err := s.transport.Rename(oldPath, newPath); err != nil {
		if backup != "" {
			if rerr := s.transport.Rename(backup, newPath); rerr != nil {
				slog.Warn("could not restore rename target",
					slog.String("backup", backup),
					slog.String("target", newPath),
					slog.String("error", rerr.Error()),
				)
			}
		}
		return fmt.Errorf("rename %s to %s: %w: %w", oldID, newID, ErrRenameFailed, err)
	}

	if backup != "" {
		if err := s.removeAll(backup); err != nil {
			slog.Warn("could not remove rename backup",
				slog.String("backup", backup),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// renameDeleteSource deletes the target, renames, and deletes the source
// when the rename fails.
func (s *Session) renameDeleteSource(oldID, newID, oldPath, newPath string) error {
	if err := s.removeAll(newPath); err != nil {
		return wrapErr("rename: delete target", newID, err)
	}

	if err := s.transport.Rename(oldPath, newPath); err != nil {
		if derr := s.removeAll(oldPath); derr != nil {
			slog.Warn("could not delete rename source",
				slog.String("source", oldPath),
				slog.String("error", derr.Error()),
			)
		}
		return fmt.Errorf("rename %s to %s: %w: %w", oldID, newID, ErrRenameFailed, err)
	}
	return nil
}

// backupName picks an unused sibling name for p.
func (s *Session) backupName(p string) (string, error) {
	dir, base := path.Split(p)
	stamp := s.clock.Now().UnixNano()
	for i := 0; i < 100; i++ {
		candidate := fmt.Sprintf("%s.%s.sftpfs-%d-%d", dir, base, stamp, i)
		if _, err := s.transport.Lstat(candidate); sftpclient.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free backup name for %s", p)
}

// Copy copies source to target on the server. A folder is copied with its
// whole tree; target is created if needed and its subtree is built in scan
// order, so parents exist before their children. There is no rollback.
func (s *Session) Copy(source, target string) error {
	source, target, err := canonicalPair(source, target)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	srcPath, err := s.transportPath("copy", source)
	if err != nil {
		return err
	}
	tgtPath, err := s.paths.ToTransport(target)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	info, err := s.transport.Stat(srcPath)
	if err != nil {
		return wrapErr("copy", source, err)
	}
	if !info.IsDir() {
		return s.copyFile(source, target, srcPath, tgtPath)
	}

	srcRoot, tgtRoot := source, target
	if tgtRoot == srcRoot || strings.HasPrefix(tgtRoot, strings.TrimRight(srcRoot, "/")+"/") {
		return fmt.Errorf("copy %s to %s: %w: target is inside source", source, target, ErrInvalidTarget)
	}

	if err := s.mkdir(tgtPath, true); err != nil {
		return wrapErr("copy: create folder", target, err)
	}

	listing, err := s.ScanDirectory(srcRoot, ScanOptions{Files: true, Folders: true, Recursive: true})
	if err != nil {
		return err
	}

	for _, e := range listing.Entries() {
		dest := rebase(e.Identifier, srcRoot, tgtRoot)
		if e.IsDir() {
			if _, err := s.CreateFolder(dest, true); err != nil {
				return err
			}
			continue
		}
		from, err := s.paths.ToTransport(e.Identifier)
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		to, err := s.paths.ToTransport(dest)
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		if err := s.copyFile(e.Identifier, dest, from, to); err != nil {
			return err
		}
	}
	return nil
}

func canonicalPair(a, b string) (string, string, error) {
	a, err := Canonical(a)
	if err != nil {
		return "", "", err
	}
	b, err = Canonical(b)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

// rebase swaps the leading from prefix of identifier for to.
func rebase(identifier, from, to string) string {
	rest := strings.TrimPrefix(identifier, from)
	if to == "/" {
		return rest
	}
	return to + rest
}

func (s *Session) copyFile(source, target, srcPath, tgtPath string) error {
	fail := func(err error) error {
		return &TransferError{Op: "copy", Source: source, Target: target, Err: err}
	}

	src, err := s.transport.Open(srcPath)
	if err != nil {
		return fail(wrapErr("open", source, err))
	}
	defer src.Close()

	if err := s.writeStream(tgtPath, src); err != nil {
		return fail(wrapErr("write", target, err))
	}
	return nil
}
