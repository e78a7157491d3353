package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/driver"
	"github.com/acolita/sftpfs/internal/security"
	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"ls", "[-r] [--files] [--folders] [--match pattern] [--json] [identifier]", "list a folder", runList},
		{"stat", "<identifier>", "show size, times, type and access of a node", runStat},
		{"cat", "<identifier>", "write a remote file to stdout", runCat},
		{"get", "<identifier> [local-path]", "download a remote file", runGet},
		{"put", "<local-path> <identifier>", "upload a local file", runPut},
		{"mkdir", "[-p] <identifier>", "create a folder", runMkdir},
		{"rm", "[-r] [-f] <identifier>", "delete a file or folder", runRemove},
		{"mv", "<old> <new>", "rename or move a node", runMove},
		{"cp", "<source> <target>", "copy a file or folder", runCopy},
		{"hash", "[--algo sha1|md5|sha256] <identifier>", "print the digest of a remote file", runHash},
		{"perms", "<identifier>", "show whether the node is readable and writable", runPerms},
		{"fingerprint", "[--algo sha1|md5]", "print the server host key fingerprint", runFingerprint},
		{"sites", "", "list configured sites", runSites},
		{"site", "add [name] [host] [user]", "add a site profile interactively", runSite},
		{"keyring", "set-password|set-passphrase [--stdin] | delete-password|delete-passphrase", "manage site secrets in the OS keyring", runKeyring},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// newFlagSet returns a flag set for a subcommand. Parse errors and help are
// reported through parseArgs.
func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parseArgs parses args into fs and checks the positional argument count.
// max < 0 means unbounded.
func parseArgs(fs *flag.FlagSet, args []string, min, max int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, usagef("%v", err)
	}
	rest := fs.Args()
	if len(rest) < min || (max >= 0 && len(rest) > max) {
		switch {
		case min == max:
			return nil, usagef("expected %d argument(s), got %d", min, len(rest))
		case max < 0:
			return nil, usagef("expected at least %d argument(s), got %d", min, len(rest))
		default:
			return nil, usagef("expected %d to %d arguments, got %d", min, max, len(rest))
		}
	}
	return rest, nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("ls")
	opts := driver.DefaultScanOptions()
	fs.BoolVarP(&opts.Recursive, "recursive", "r", false, "descend into subfolders")
	fs.BoolVar(&opts.Files, "files", true, "include files")
	fs.BoolVar(&opts.Folders, "folders", true, "include folders")
	match := fs.StringP("match", "m", "", "doublestar pattern relative to the folder (implies a recursive walk)")
	asJSON := fs.Bool("json", false, "print the listing as JSON")

	rest, err := parseArgs(fs, args, 0, 1)
	if err != nil {
		return err
	}
	id := "/"
	if len(rest) == 1 {
		id = rest[0]
	}

	return a.withSession(ctx, func(s *driver.Session) error {
		var listing *driver.Listing
		if *match != "" {
			listing, err = s.Glob(id, *match)
		} else {
			listing, err = s.ScanDirectory(id, opts)
		}
		if err != nil {
			return err
		}

		if *asJSON {
			data, err := json.MarshalIndent(listing, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(data))
			return nil
		}
		for _, e := range listing.Entries() {
			fmt.Fprintf(a.stdout, "%-4s %s\n", e.Type, e.Identifier)
		}
		return nil
	})
}

func runStat(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("stat"), args, 1, 1)
	if err != nil {
		return err
	}
	id := rest[0]

	return a.withSession(ctx, func(s *driver.Session) error {
		d, err := s.Details(id)
		if err != nil {
			return err
		}
		isDir, err := s.Exists(id, driver.KindFolder)
		if err != nil {
			return err
		}
		perms, err := s.Permissions(id)
		if err != nil {
			return err
		}

		kind := driver.KindFile
		if isDir {
			kind = driver.KindFolder
		}
		mtime := time.Unix(d.MTime, 0)

		w := tabwriter.NewWriter(a.stdout, 0, 0, 1, ' ', 0)
		fmt.Fprintf(w, "identifier:\t%s\n", id)
		fmt.Fprintf(w, "type:\t%s\n", kind)
		fmt.Fprintf(w, "size:\t%s (%d bytes)\n", humanize.Bytes(uint64(d.Size)), d.Size)
		fmt.Fprintf(w, "modified:\t%s (%s)\n", mtime.Format(time.RFC3339), humanize.Time(mtime))
		fmt.Fprintf(w, "accessed:\t%s\n", time.Unix(d.ATime, 0).Format(time.RFC3339))
		if d.MimeType != "" {
			fmt.Fprintf(w, "mimetype:\t%s\n", d.MimeType)
		}
		fmt.Fprintf(w, "access:\t%s\n", formatPerms(perms))
		return w.Flush()
	})
}

func formatPerms(p driver.Permissions) string {
	b := []byte("--")
	if p.Readable {
		b[0] = 'r'
	}
	if p.Writable {
		b[1] = 'w'
	}
	return string(b)
}

func runCat(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("cat"), args, 1, 1)
	if err != nil {
		return err
	}
	return a.withSession(ctx, func(s *driver.Session) error {
		_, err := s.DumpFile(rest[0], a.stdout)
		return err
	})
}

func runGet(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("get"), args, 1, 2)
	if err != nil {
		return err
	}
	id := rest[0]
	local := path.Base(id)
	if len(rest) == 2 {
		local = rest[1]
	}
	if local == "/" || local == "." {
		return usagef("cannot derive a local name from %q", id)
	}

	return a.withSession(ctx, func(s *driver.Session) error {
		target, err := s.DownloadFile(id, local)
		if err != nil {
			return err
		}
		if info, err := a.fs.Stat(target); err == nil {
			fmt.Fprintf(a.stdout, "%s -> %s (%s)\n", id, target, humanize.Bytes(uint64(info.Size())))
		} else {
			fmt.Fprintf(a.stdout, "%s -> %s\n", id, target)
		}
		return nil
	})
}

func runPut(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("put"), args, 2, 2)
	if err != nil {
		return err
	}
	local, id := rest[0], rest[1]

	return a.withSession(ctx, func(s *driver.Session) error {
		if err := s.UploadFile(local, id); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s -> %s\n", local, id)
		return nil
	})
}

func runMkdir(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("mkdir")
	parents := fs.BoolP("parents", "p", false, "create missing parent folders")
	rest, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}

	return a.withSession(ctx, func(s *driver.Session) error {
		id, err := s.CreateFolder(rest[0], *parents)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, id)
		return nil
	})
}

func runRemove(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("rm")
	recursive := fs.BoolP("recursive", "r", false, "delete folders with their contents")
	force := fs.BoolP("force", "f", false, "ignore a missing node")
	rest, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}

	return a.withSession(ctx, func(s *driver.Session) error {
		_, err := s.Delete(rest[0], *recursive)
		if *force && errors.Is(err, driver.ErrNotFound) {
			return nil
		}
		return err
	})
}

func runMove(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("mv"), args, 2, 2)
	if err != nil {
		return err
	}
	return a.withSession(ctx, func(s *driver.Session) error {
		return s.Rename(rest[0], rest[1])
	})
}

func runCopy(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("cp"), args, 2, 2)
	if err != nil {
		return err
	}
	return a.withSession(ctx, func(s *driver.Session) error {
		return s.Copy(rest[0], rest[1])
	})
}

func runHash(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("hash")
	algo := fs.StringP("algo", "a", "sha1", "digest algorithm: sha1, md5 or sha256")
	rest, err := parseArgs(fs, args, 1, 1)
	if err != nil {
		return err
	}

	return a.withSession(ctx, func(s *driver.Session) error {
		sum, err := s.Hash(rest[0], *algo)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s  %s\n", sum, rest[0])
		return nil
	})
}

func runPerms(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(a.newFlagSet("perms"), args, 1, 1)
	if err != nil {
		return err
	}
	return a.withSession(ctx, func(s *driver.Session) error {
		p, err := s.Permissions(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s %s\n", formatPerms(p), rest[0])
		return nil
	})
}

func runFingerprint(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("fingerprint")
	algo := fs.StringP("algo", "a", "sha1", "digest algorithm: sha1 or md5")
	if _, err := parseArgs(fs, args, 0, 0); err != nil {
		return err
	}
	return a.withSession(ctx, func(s *driver.Session) error {
		fp, err := s.ForeignKeyFingerprint(*algo)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, fp)
		return nil
	})
}

func runSites(_ context.Context, a *app, args []string) error {
	if _, err := parseArgs(a.newFlagSet("sites"), args, 0, 0); err != nil {
		return err
	}
	if len(a.cfg.Sites) == 0 {
		fmt.Fprintln(a.stderr, "no sites configured")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tUSER\tROOT\tAUTH")
	for _, site := range a.cfg.Sites {
		port := site.Port
		if port == 0 {
			port = driver.DefaultPort
		}
		root := site.Root
		if root == "" {
			root = driver.DefaultRoot
		}
		auth := site.Auth.Method
		if auth == "" {
			auth = driver.AuthPassword
		}
		fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\t%s\n", site.Name, site.Host, port, site.User, root, auth)
	}
	return w.Flush()
}

func runSite(_ context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return usagef("unknown site subcommand")
	}

	fs := a.newFlagSet("site add")
	port := fs.IntP("port", "p", driver.DefaultPort, "SSH port")
	root := fs.String("root", driver.DefaultRoot, "remote folder exposed as '/'")
	auth := fs.String("auth", driver.AuthPassword, "authentication method: password, publickey or agent")
	privateKey := fs.String("private-key", "", "private key path for publickey auth")
	rest, err := parseArgs(fs, args[1:], 0, 3)
	if err != nil {
		return err
	}

	prefill := config.SiteConfig{
		Port: *port,
		Root: *root,
		Auth: config.AuthConfig{Method: *auth, PrivateKey: *privateKey},
	}.FormData()
	for i, v := range rest {
		switch i {
		case 0:
			prefill.Name = v
		case 1:
			prefill.Host = v
		case 2:
			prefill.User = v
		}
	}
	if prefill.PrivateKey != "" {
		prefill.PublicKey = prefill.PrivateKey + ".pub"
	}

	result, err := a.dialog.SiteConfigForm(prefill)
	if err != nil {
		return fmt.Errorf("site form: %w", err)
	}
	if !result.Confirmed {
		fmt.Fprintln(a.stderr, "cancelled")
		return nil
	}

	site := config.SiteFromForm(result)
	updated := *a.cfg
	updated.Sites = append([]config.SiteConfig(nil), a.cfg.Sites...)
	if err := updated.AddSite(site); err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := config.Save(&updated, a.configPath, a.fs); err != nil {
		return err
	}
	a.cfg = &updated

	fmt.Fprintf(a.stdout, "site %q saved to %s\n", site.Name, a.configPath)
	return nil
}

func runKeyring(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usagef("missing keyring subcommand")
	}
	sub := args[0]
	action, what, ok := strings.Cut(sub, "-")
	if !ok || (action != "set" && action != "delete") || (what != "password" && what != "passphrase") {
		return usagef("unknown keyring subcommand %q", sub)
	}

	fs := a.newFlagSet("keyring " + sub)
	fromStdin := fs.Bool("stdin", false, "read the secret from the first line of stdin")
	if _, err := parseArgs(fs, args[1:], 0, 0); err != nil {
		return err
	}
	if action == "delete" && *fromStdin {
		return usagef("--stdin only applies to set-%s", what)
	}

	site, err := a.cfg.Site(a.siteName)
	if err != nil {
		return fmt.Errorf("site %q: %w", a.siteName, err)
	}
	if what == "passphrase" && site.Auth.PrivateKey == "" {
		return fmt.Errorf("site %q has no private_key configured", site.Name)
	}
	port := site.Port
	if port == 0 {
		port = driver.DefaultPort
	}

	store := a.newKeyring()
	if !store.IsEnabled() {
		return security.ErrKeyringUnavailable
	}

	if action == "delete" {
		if what == "password" {
			err = store.DeleteServerPassword(site.Host, port, site.User)
		} else {
			err = store.DeleteKeyPassphrase(site.Auth.PrivateKey)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted %s for site %q\n", what, site.Name)
		return nil
	}

	title := fmt.Sprintf("Password for %s@%s", site.User, site.Host)
	if what == "passphrase" {
		title = fmt.Sprintf("Passphrase for %s", site.Auth.PrivateKey)
	}
	secret, err := a.readSecret(title, *fromStdin)
	if err != nil {
		return err
	}
	defer security.WipeBytes(secret)

	if what == "password" {
		err = store.StoreServerPassword(site.Host, port, site.User, secret)
	} else {
		err = store.StoreKeyPassphrase(site.Auth.PrivateKey, secret)
	}
	if err != nil {
		return err
	}

	if !a.cfg.Security.UseKeyring {
		fmt.Fprintln(a.stderr, "note: security.use_keyring is off; the stored secret is not used until it is enabled")
	}
	fmt.Fprintf(a.stdout, "stored %s for site %q\n", what, site.Name)
	return nil
}

func (a *app) readSecret(title string, fromStdin bool) ([]byte, error) {
	if fromStdin {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if err != nil {
				return nil, fmt.Errorf("read secret: %w", err)
			}
			return nil, errors.New("read secret: empty input")
		}
		return []byte(line), nil
	}

	secret, err := a.dialog.SecretPrompt(title)
	if err != nil {
		return nil, fmt.Errorf("secret prompt: %w", err)
	}
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	return []byte(secret), nil
}
