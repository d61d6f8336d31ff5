package mediasync

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/aprobridge/internal/bridge"
	"github.com/starford/aprobridge/internal/checksum"
	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the media directory and processes
// file change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful index mutation.
//
// Rename events trigger a debounced reconciliation pass that forgets
// entries whose files no longer exist and registers any that appeared.
func Watch(ctx context.Context, exec bridge.Submitter, idx collection.MediaIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(store.Root()); err != nil {
		return err
	}
	logger.Info("media watcher: started", slog.String("root", store.Root()))

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
			logger.Info("media watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(exec, idx, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if storage.Ignored(name) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(name)
				if readErr != nil {
					// Directories and files already gone land here.
					logger.Debug("media watcher: read skipped", slog.String("file", name), slog.String("error", readErr.Error()))
					continue
				}
				sum := checksum.Sum(data)
				if err := bridge.Do(exec, func() error { return idx.RegisterMedia(name, sum) }); err != nil {
					logger.Warn("media watcher: register failed", slog.String("file", name), slog.String("error", err.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "added"
				}
				logger.Debug("media watcher: registered", slog.String("file", name), slog.String("op", kind))
				if cb != nil {
					cb(kind, name)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the old name only; the new name
				// arrives as a Create if it stays in the directory.
				if err := bridge.Do(exec, func() error { return idx.ForgetMedia(name) }); err != nil {
					logger.Warn("media watcher: forget failed", slog.String("file", name), slog.String("error", err.Error()))
				} else {
					logger.Debug("media watcher: forgot", slog.String("file", name))
					if cb != nil {
						cb("removed", name)
					}
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("media watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile reruns the full directory sync, reporting changes through cb.
func reconcile(exec bridge.Submitter, idx collection.MediaIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	files, err := store.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	err = bridge.Do(exec, func() error {
		checksums, err := idx.MediaChecksums()
		if err != nil {
			return err
		}
		apply(idx, files, checksums, logger, cb)
		return nil
	})
	if err != nil {
		logger.Warn("reconcile: failed", slog.String("error", err.Error()))
	}
}
