// Package testutil provides shared test helpers for setting up collections,
// media directories and executors.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/mainthread"
	"github.com/starford/aprobridge/internal/storage"
)

// TestMedia creates a temporary media directory with a storage.Provider.
func TestMedia(t *testing.T) (string, storage.Provider) {
	t.Helper()
	mediaDir := t.TempDir()
	store, err := storage.NewFS(mediaDir)
	if err != nil {
		t.Fatal(err)
	}
	return mediaDir, store
}

// TestCollection creates a temporary SQLite collection with its own media
// directory. Both are cleaned up automatically.
func TestCollection(t *testing.T) (*collection.DB, storage.Provider) {
	t.Helper()
	dbFile, err := os.CreateTemp("", "apro-bridge-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	_, media := TestMedia(t)
	db, err := collection.Open(dbFile.Name(), media)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, media
}

// TestExecutor starts a main-thread executor that is closed on cleanup.
func TestExecutor(t *testing.T) *mainthread.Executor {
	t.Helper()
	exec := mainthread.New(0, nil)
	t.Cleanup(exec.Close)
	return exec
}
