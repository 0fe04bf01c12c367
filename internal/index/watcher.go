package index

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/memo/internal/apperr"
	"github.com/starford/memo/internal/naming"
	"github.com/starford/memo/internal/storage"
)

// Watcher event kinds.
const (
	// EventMissing: a file owned by an index record disappeared.
	EventMissing = "missing"
	// EventOrphan: a content file with no index record appeared.
	EventOrphan = "orphan"
)

// EventCallback is called when the watcher observes the two substrates
// drifting apart. id is zero for orphans.
type EventCallback func(kind string, id int64, path string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the documents directory and reports
// inconsistencies until ctx is cancelled. It never mutates the index: a
// vanished file leaves its record in place and a stray file is only
// reported, each orphan once.
//
// Creates are checked after a short debounce so that a file written by the
// repository has time to receive its index row.
func Watch(ctx context.Context, db NoteIndex, store storage.Provider, dir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	reported := make(map[string]struct{})

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reportOrphans(db, store, dir, reported, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isContentFile(ev.Name) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				scheduleReconcile()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(reported, ev.Name)
				id, lookupErr := db.IDByPath(ev.Name)
				if lookupErr != nil {
					if !errors.Is(lookupErr, apperr.ErrNotFound) {
						logger.Warn("watcher: lookup failed", slog.String("path", ev.Name), slog.String("error", lookupErr.Error()))
					}
					continue
				}
				logger.Warn("watcher: indexed file vanished",
					slog.Int64("id", id),
					slog.String("path", ev.Name))
				if cb != nil {
					cb(EventMissing, id, ev.Name)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reportOrphans lists content files and reports those without an index row
// that were not reported before.
func reportOrphans(db NoteIndex, store storage.Provider, dir string, reported map[string]struct{}, logger *slog.Logger, cb EventCallback) {
	paths, err := db.AllPaths()
	if err != nil {
		logger.Warn("reconcile: all paths failed", slog.String("error", err.Error()))
		return
	}
	files, err := store.List(dir, "*"+naming.Ext)
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	for _, f := range files {
		if _, ok := paths[f]; ok {
			continue
		}
		if _, ok := reported[f]; ok {
			continue
		}
		reported[f] = struct{}{}
		logger.Warn("reconcile: orphan file", slog.String("path", f))
		if cb != nil {
			cb(EventOrphan, 0, f)
		}
	}
}

func isContentFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, naming.Ext) && !strings.HasPrefix(base, storage.TempPrefix)
}
