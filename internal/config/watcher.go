package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// DefaultWatchInterval is the polling interval of a [Watcher].
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps the config at path current. It polls the file and can be
// asked to reload on demand (on SIGHUP, for example). Every accepted change
// is reported to the onChange callback with the previous and the new config;
// invalid files are logged and ignored.
type Watcher struct {
	path     string
	fs       afero.Fs
	interval time.Duration
	onChange func(old, new *Config)

	// reload serialises Reload calls so onChange sees changes in order.
	reload sync.Mutex

	mu      sync.Mutex
	current *Config
	state   fileState

	done     chan struct{}
	stopOnce sync.Once
}

// fileState identifies a version of the watched file.
type fileState struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchFs sets the filesystem the file is read from. The default is the
// OS filesystem.
func WithWatchFs(fsys afero.Fs) WatcherOption {
	return func(w *Watcher) { w.fs = fsys }
}

// NewWatcher loads the config at path and starts polling it. The initial load
// must succeed. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		fs:       afero.NewOsFs(),
		interval: DefaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.state = cfg, st

	go w.poll()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Reload re-reads the file immediately. It reports whether a new config was
// accepted; a file whose content did not change is not a change. On error
// the current config is kept.
func (w *Watcher) Reload() (bool, error) {
	w.reload.Lock()
	defer w.reload.Unlock()

	cfg, st, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if st.sum == w.state.sum {
		w.state = st
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.state = cfg, st
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if !w.touched() {
				continue
			}
			if _, err := w.Reload(); err != nil {
				slog.Warn("config: ignoring invalid update", "path", w.path, "err", err)
				w.markSeen()
			}
		}
	}
}

// touched is the cheap pre-check of the poll loop: only a new modification
// time or size triggers a full read.
func (w *Watcher) touched() bool {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.state.modTime) || info.Size() != w.state.size
}

// markSeen records the file's current modification time and size so a
// rejected version is not re-read on every tick.
func (w *Watcher) markSeen() {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.state.modTime, w.state.size = info.ModTime(), info.Size()
	w.mu.Unlock()
}

// read loads and validates the file and returns it with its state.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := afero.ReadFile(w.fs, w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{
		modTime: info.ModTime(),
		size:    int64(len(data)),
		sum:     sha256.Sum256(data),
	}, nil
}
