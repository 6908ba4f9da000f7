// Package watch triggers rebuilds when a file-backed record store changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentic-research/filetree/internal/logging"
)

// DefaultDebounce groups the burst of events a single write produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange once a watched file has been quiet for Debounce.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnChange func(ctx context.Context) error
}

// New returns a Watcher for path with the default debounce.
func New(path string, onChange func(ctx context.Context) error) *Watcher {
	return &Watcher{Path: path, Debounce: DefaultDebounce, OnChange: onChange}
}

// relevant reports whether name is the store file or one of its SQLite
// journals. The shared-memory index is touched by readers too and is
// ignored.
func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(w.Path)
	switch filepath.Base(name) {
	case base, base + "-wal", base + "-journal":
		return true
	}
	return false
}

// Run watches until ctx is cancelled. The directory is watched rather than
// the file so that atomic replacements are seen. A failing OnChange is
// logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logging.Info("watching record store", logging.String("path", w.Path))

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev.Name) || !ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			logging.Debug("record store changed", logging.String("event", ev.String()))
			timer.Reset(debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", logging.Err(err))

		case <-timer.C:
			if err := w.OnChange(ctx); err != nil {
				logging.Error("rebuild after change failed", logging.Err(err))
			}
		}
	}
}
