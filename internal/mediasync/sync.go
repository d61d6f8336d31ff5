// Package mediasync keeps the collection's media index in step with the
// files in the media directory. Index mutations always run on the
// main-thread executor.
package mediasync

import (
	"log/slog"

	"github.com/starford/aprobridge/internal/bridge"
	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "added", "updated", "removed".
type EventCallback func(kind string, name string)

// Sync walks the media directory and brings the index up to date:
//   - new/changed files are registered with their checksum
//   - files removed from disk are forgotten
//
// The directory is read on the calling goroutine; the index diff is applied
// in one main-thread call.
func Sync(exec bridge.Submitter, idx collection.MediaIndex, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List()
	if err != nil {
		return err
	}
	return bridge.Do(exec, func() error {
		checksums, err := idx.MediaChecksums()
		if err != nil {
			return err
		}
		apply(idx, files, checksums, logger, nil)
		return nil
	})
}

// apply registers changed files and forgets stale entries. Per-file
// failures are logged and skipped.
func apply(idx collection.MediaIndex, files []storage.MediaFile, checksums map[string]string, logger *slog.Logger, cb EventCallback) {
	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Name] = struct{}{}

		old, known := checksums[f.Name]
		if old == f.Checksum {
			continue
		}
		if err := idx.RegisterMedia(f.Name, f.Checksum); err != nil {
			logger.Warn("sync: register failed", slog.String("file", f.Name), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: registered", slog.String("file", f.Name))
		if cb != nil {
			if known {
				cb("updated", f.Name)
			} else {
				cb("added", f.Name)
			}
		}
	}

	// Remove stale entries.
	for name := range checksums {
		if _, ok := disk[name]; ok {
			continue
		}
		if err := idx.ForgetMedia(name); err != nil {
			logger.Warn("sync: forget failed", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("file", name))
		if cb != nil {
			cb("removed", name)
		}
	}
}
