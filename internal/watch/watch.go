// Package watch re-runs a verification when one of its input files changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change.
const DefaultDebounce = 500 * time.Millisecond

// Func performs one verification.
type Func func(ctx context.Context) error

// Watcher watches input files and calls its Func once per burst of changes.
// Calls never overlap.
type Watcher struct {
	Debounce time.Duration

	watcher *fsnotify.Watcher
	files   map[string]bool
	run     Func
	log     *slog.Logger
}

// New watches the existing files among paths. Their directories are
// watched so that editors replacing a file by rename are still seen.
func New(paths []string, run Func, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create file watcher: %w", err)
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch: watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}
	if len(files) == 0 {
		watcher.Close()
		return nil, fmt.Errorf("watch: no local input files to watch")
	}

	return &Watcher{
		Debounce: DefaultDebounce,
		watcher:  watcher,
		files:    files,
		run:      run,
		log:      logger,
	}, nil
}

// Files returns the number of watched files.
func (w *Watcher) Files() int { return len(w.files) }

// Run watches until ctx is cancelled. Errors from the verification are
// logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.log.Debug("input changed", "file", event.Name, "op", event.Op.String())
				timer.Reset(w.Debounce)
			}

		case <-timer.C:
			w.log.Info("inputs changed, verifying")
			if err := w.run(ctx); err != nil {
				w.log.Error("verification failed", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}
