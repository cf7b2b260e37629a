package blacklist

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Set whenever its backing YAML file changes on disk.
// The directory is watched rather than the file so editors that save via
// rename are picked up.
type Watcher struct {
	path         string
	set          *Set
	skipDefaults bool
	debounce     time.Duration
	onReload     func(Snapshot)
	logger       *slog.Logger
}

// NewWatcher creates a Watcher. onReload may be nil.
func NewWatcher(path string, set *Set, skipDefaults bool, onReload func(Snapshot)) *Watcher {
	return &Watcher{
		path:         filepath.Clean(path),
		set:          set,
		skipDefaults: skipDefaults,
		debounce:     200 * time.Millisecond,
		onReload:     onReload,
		logger:       slog.Default().With("component", "blacklist-watcher", "path", path),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching blacklist file")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fs watcher error", "error", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	f, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("blacklist reload failed, keeping previous lists", "error", err)
		return
	}
	subjects, terms := f.Subjects, f.Terms
	if !w.skipDefaults {
		ds, dt := Defaults()
		subjects = append(ds, subjects...)
		terms = append(dt, terms...)
	}
	w.set.Replace(subjects, terms)
	snap := w.set.Snapshot()
	w.logger.Info("blacklist reloaded",
		"subjects", snap.Len(Subjects),
		"terms", snap.Len(Terms),
		"version", snap.Version,
	)
	if w.onReload != nil {
		w.onReload(snap)
	}
}
