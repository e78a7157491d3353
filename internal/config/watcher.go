package config

import (
	"crypto/sha256"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	set "github.com/deckarep/golang-set/v2"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes on disk. Bursts of events
// (editors that truncate, write and rename) are coalesced into one reload,
// and a file whose bytes did not change is not reloaded.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)

	mu     sync.Mutex
	config *Config
	digest [sha256.Size]byte
	timer  *time.Timer

	fsw       *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads path and starts watching its directory. onChange runs on
// the watcher goroutine after every successful reload; unreadable or invalid
// files are logged and the previous config stays current.
func NewWatcher(path string, onChange func(*Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, digest, err := w.read()
	if err != nil {
		return nil, err
	}
	w.config, w.digest = cfg, digest

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The directory is watched so that files replaced by rename are still seen.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	go w.watch()
	return w, nil
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), [sha256.Size]byte{}, nil
	}
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}

func (w *Watcher) watch() {
	name := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, digest, err := w.read()
	if err != nil {
		slog.Error("failed to reload config",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	unchanged := digest == w.digest
	w.mu.Unlock()
	if unchanged {
		slog.Debug("config file touched without changes", slog.String("path", w.path))
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config after reload",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	w.config, w.digest = cfg, digest
	w.mu.Unlock()

	slog.Info("config reloaded",
		slog.String("path", w.path),
		slog.Int("sites", len(cfg.Sites)),
	)

	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}

// ChangedSites returns the names of the sites in prev that next removes or
// redefines. Sites only added by next are not included.
func ChangedSites(prev, next *Config) set.Set[string] {
	changed := set.NewSet[string]()
	if prev == nil {
		return changed
	}
	nextByName := make(map[string]SiteConfig, len(next.Sites))
	for _, s := range next.Sites {
		nextByName[s.Name] = s
	}
	for _, s := range prev.Sites {
		if n, ok := nextByName[s.Name]; !ok || n != s {
			changed.Add(s.Name)
		}
	}
	return changed
}
