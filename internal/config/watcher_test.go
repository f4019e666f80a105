package config_test

import (
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/wakegate/internal/config"
)

const (
	watcherPath = "/etc/wakegate/config.yaml"

	watcherValidYAML = `
server:
  log_level: info
session:
  wake_words: [hello]
  sleep_words: [goodbye]
`

	watcherUpdatedYAML = `
server:
  log_level: debug
session:
  wake_words: [hello]
  sleep_words: [goodbye]
`

	watcherInvalidYAML = `
server:
  log_level: bananas
`
)

// writeConfig writes content and moves the mtime forward so the watcher's
// quick check always sees a change.
func writeConfig(t *testing.T, fs afero.Fs, content string, mtime time.Time) {
	t.Helper()
	if err := afero.WriteFile(fs, watcherPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.Chtimes(watcherPath, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func newWatchedFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, watcherValidYAML, time.Unix(1_700_000_000, 0))
	return fs
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	fs := newWatchedFs(t)

	w, err := config.NewWatcher(watcherPath, nil, config.WithWatchFs(fs), config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log level = %q, want info", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	if _, err := config.NewWatcher(watcherPath, nil, config.WithWatchFs(fs)); err == nil {
		t.Fatal("expected error for missing file")
	}

	writeConfig(t, fs, watcherInvalidYAML, time.Now())
	if _, err := config.NewWatcher(watcherPath, nil, config.WithWatchFs(fs)); err == nil {
		t.Fatal("expected error for invalid file")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	fs := newWatchedFs(t)

	var (
		mu       sync.Mutex
		oldLevel config.LogLevel
		newLevel config.LogLevel
	)
	changed := make(chan struct{}, 1)
	w, err := config.NewWatcher(watcherPath, func(old, new *config.Config) {
		mu.Lock()
		oldLevel, newLevel = old.Server.LogLevel, new.Server.LogLevel
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, config.WithWatchFs(fs), config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, fs, watcherUpdatedYAML, time.Unix(1_700_000_100, 0))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not called")
	}

	mu.Lock()
	defer mu.Unlock()
	if oldLevel != config.LogInfo || newLevel != config.LogDebug {
		t.Errorf("onChange(%q, %q), want (info, debug)", oldLevel, newLevel)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() not updated")
	}
}

func TestWatcher_KeepsConfigOnInvalidUpdate(t *testing.T) {
	t.Parallel()
	fs := newWatchedFs(t)

	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(watcherPath, func(_, _ *config.Config) {
		called <- struct{}{}
	}, config.WithWatchFs(fs), config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, fs, watcherInvalidYAML, time.Unix(1_700_000_100, 0))

	select {
	case <-called:
		t.Fatal("onChange called for invalid config")
	case <-time.After(150 * time.Millisecond):
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("invalid update replaced the current config")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	fs := newWatchedFs(t)

	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(watcherPath, func(_, _ *config.Config) {
		called <- struct{}{}
	}, config.WithWatchFs(fs), config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	touched := time.Unix(1_700_000_200, 0)
	if err := fs.Chtimes(watcherPath, touched, touched); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Fatal("onChange called although content is unchanged")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := config.NewWatcher(watcherPath, nil, config.WithWatchFs(newWatchedFs(t)))
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	fs := newWatchedFs(t)

	var calls []config.LogLevel
	w, err := config.NewWatcher(watcherPath, func(_, new *config.Config) {
		calls = append(calls, new.Server.LogLevel)
	}, config.WithWatchFs(fs), config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if changed, err := w.Reload(); err != nil || changed {
		t.Fatalf("Reload of unchanged file = (%v, %v), want (false, nil)", changed, err)
	}

	// Same mtime, new content: only an explicit reload can see it.
	writeConfig(t, fs, watcherUpdatedYAML, time.Unix(1_700_000_000, 0))
	if changed, err := w.Reload(); err != nil || !changed {
		t.Fatalf("Reload = (%v, %v), want (true, nil)", changed, err)
	}
	if len(calls) != 1 || calls[0] != config.LogDebug {
		t.Errorf("onChange calls = %v, want [debug]", calls)
	}

	writeConfig(t, fs, watcherInvalidYAML, time.Unix(1_700_000_300, 0))
	if _, err := w.Reload(); err == nil {
		t.Fatal("Reload accepted an invalid file")
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Error("failed reload replaced the current config")
	}
}
