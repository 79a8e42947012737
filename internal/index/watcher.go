package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, file string)

// Watch starts an fsnotify watcher on the workspace root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful index mutation.
//
// Pages live directly in the root, so subdirectories are not watched.
// Rename events trigger a debounced reconciliation pass that drops stale
// entries and indexes files that appeared under a new name.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

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
			reconcile(db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			file := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != filepath.Clean(root) ||
				strings.HasPrefix(file, ".") || !strings.HasSuffix(file, markdown.Ext) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(file)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("file", file), slog.String("error", readErr.Error()))
					continue
				}
				cs := storage.Checksum(data)
				if old, _ := db.GetChecksum(file); old == cs {
					continue
				}
				if idxErr := IndexFile(db, storage.PageFile{Path: file, Checksum: cs, UpdatedAt: time.Now()}, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("file", file), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("file", file), slog.String("op", kind))
				if cb != nil {
					cb(kind, file)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeletePage(file); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("file", file), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("file", file))
				if cb != nil {
					cb("deleted", file)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old name only; the new name
				// arrives as a separate Create.
				if delErr := db.DeletePage(file); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("file", file), slog.String("error", delErr.Error()))
				} else if cb != nil {
					cb("deleted", file)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes index entries without a file on disk and indexes
// files whose checksum differs from the stored one.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	files, err := store.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]storage.PageFile, len(files))
	for _, f := range files {
		disk[f.Path] = f
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeletePage(p); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("file", p))
				if cb != nil {
					cb("deleted", p)
				}
			}
		}
	}

	for p, f := range disk {
		if checksums[p] == f.Checksum {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			continue
		}
		if idxErr := IndexFile(db, f, data); idxErr == nil {
			logger.Debug("reconcile: indexed", slog.String("file", p))
			if cb != nil {
				cb("created", p)
			}
		}
	}
}
