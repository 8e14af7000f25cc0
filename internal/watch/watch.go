// Package watch triggers incremental sync runs when the source database
// changes on disk.
//
// SQLite under WAL touches the -wal and -shm sidecars far more often than
// the main file, so the watcher monitors the parent directory and filters
// by basename prefix. Bursts of writes are debounced into one sync run.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SyncFunc runs one incremental sync. The watcher logs a returned error
// and keeps watching; only a canceled context stops it.
type SyncFunc func(ctx context.Context) error

// Options tune the watcher.
type Options struct {
	// Debounce is how long the source must stay quiet before a sync
	// fires. Zero means DefaultDebounce.
	Debounce time.Duration

	// Interval forces a periodic sync even without file events, catching
	// writers that bypass the watched path (NFS, container mounts).
	// Zero disables it.
	Interval time.Duration
}

const DefaultDebounce = 2 * time.Second

// Watcher drives sync runs off filesystem events on the source database.
type Watcher struct {
	path string
	run  SyncFunc
	opts Options
}

// New creates a watcher for the database at path.
func New(path string, run SyncFunc, opts Options) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch: source path is required")
	}
	if run == nil {
		return nil, fmt.Errorf("watch: sync function is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	return &Watcher{path: abs, run: run, opts: opts}, nil
}

// Run watches until ctx is canceled. It returns ctx.Err() on cancellation
// and any watcher setup error immediately.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}

	slog.Info("watch_start",
		slog.String("path", w.path),
		slog.Duration("debounce", w.opts.Debounce))

	// The debounce timer starts stopped and is reset on every relevant
	// event; when it fires, one sync covers the whole burst.
	debounce := time.NewTimer(w.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	var tick <-chan time.Time
	if w.opts.Interval > 0 {
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			debounce.Reset(w.opts.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))

		case <-debounce.C:
			w.sync(ctx)

		case <-tick:
			w.sync(ctx)
		}
	}
}

// relevant reports whether the event touches the source database or one of
// its WAL sidecars.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), filepath.Base(w.path))
}

func (w *Watcher) sync(ctx context.Context) {
	start := time.Now()
	if err := w.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("watch_sync_failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return
	}
	slog.Info("watch_sync_complete", slog.Duration("duration", time.Since(start)))
}
