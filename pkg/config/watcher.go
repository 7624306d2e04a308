package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the configuration file and invokes a callback with the
// freshly loaded configuration whenever it changes. Changes are debounced so
// editors that write in multiple syscalls trigger one reload.
//
// Only the caller decides which sections are hot-reloadable; marketscope
// applies limit-policy changes at runtime and ignores the rest until restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a configuration file watcher.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     path,
		watcher:  fsw,
		logger:   slog.Default().With("component", "config.watcher"),
		debounce: 200 * time.Millisecond,
	}, nil
}

// Watch blocks until ctx is cancelled, invoking onReload with each
// successfully reloaded configuration. A reload that fails to parse or
// validate is logged and skipped; the previous configuration stays active.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info("config watcher started", "path", w.path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)

		case <-reload:
			cfg, err := LoadConfigWithEnvOverrides(w.path)
			if err != nil {
				w.logger.Error("config reload rejected, keeping previous configuration", "error", err)
				continue
			}
			w.logger.Info("configuration reloaded", "path", w.path)
			onReload(cfg)
		}
	}
}
