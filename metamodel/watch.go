package metamodel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	logger   *slog.Logger
}

// WithDebounce sets how long Watch waits for further writes before
// reloading. Default is 100ms.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) { c.debounce = d }
}

// WithWatchLogger sets the logger reload failures are reported to.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(c *watchConfig) { c.logger = l }
}

// Watch reloads the model file at path whenever it changes and passes every
// successfully linked Model to fn. A file that fails to load is logged and
// skipped; the previously delivered Model stays valid. Watch blocks until
// ctx is done.
func Watch(ctx context.Context, path string, fn func(*Model), opts ...WatchOption) error {
	cfg := watchConfig{debounce: 100 * time.Millisecond, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("metamodel: watch: %w", err)
	}
	defer w.Close()
	// Editors replace files on save, so the directory is watched.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("metamodel: watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("metamodel: watch %s: %w", path, err)
	}
	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(cfg.debounce)
			reload = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			cfg.logger.WarnContext(ctx, "model watcher error", "path", path, "error", err)
		case <-reload:
			reload = nil
			m, err := LoadFile(abs)
			if err != nil {
				cfg.logger.ErrorContext(ctx, "model reload failed", "path", path, "error", err)
				continue
			}
			cfg.logger.InfoContext(ctx, "model reloaded", "path", path,
				"entities", len(m.Entities()), "transfers", len(m.Transfers()))
			fn(m)
		}
	}
}
