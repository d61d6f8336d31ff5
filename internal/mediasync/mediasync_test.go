package mediasync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/aprobridge/internal/bridge"
	"github.com/starford/aprobridge/internal/checksum"
	"github.com/starford/aprobridge/internal/collection"
	"github.com/starford/aprobridge/internal/mainthread"
	"github.com/starford/aprobridge/internal/storage"
	"github.com/starford/aprobridge/internal/testutil"
)

type env struct {
	exec  *mainthread.Executor
	db    *collection.DB
	store storage.Provider
	dir   string
}

func newEnv(t *testing.T) env {
	t.Helper()
	db, store := testutil.TestCollection(t)
	return env{exec: testutil.TestExecutor(t), db: db, store: store, dir: store.Root()}
}

func (e env) checksums(t *testing.T) map[string]string {
	t.Helper()
	m, err := bridge.RunAndWait(e.exec, e.db.MediaChecksums).Unwrap()
	require.NoError(t, err)
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSyncRegistersAndForgets(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "a.png"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, bridge.Do(e.exec, func() error { return e.db.RegisterMedia("gone.mp3", "old") }))

	require.NoError(t, Sync(e.exec, e.db, e.store, quietLogger()))

	assert.Equal(t, map[string]string{"a.png": checksum.Sum([]byte("aaa"))}, e.checksums(t))
}

func TestApplyReportsKinds(t *testing.T) {
	e := newEnv(t)
	var events []string
	cb := func(kind, name string) { events = append(events, kind+":"+name) }

	files := []storage.MediaFile{
		{Name: "new.png", Checksum: "n"},
		{Name: "changed.png", Checksum: "c2"},
		{Name: "same.png", Checksum: "s"},
	}
	old := map[string]string{"changed.png": "c1", "same.png": "s", "stale.png": "x"}

	require.NoError(t, bridge.Do(e.exec, func() error {
		apply(e.db, files, old, quietLogger(), cb)
		return nil
	}))
	assert.ElementsMatch(t, []string{"added:new.png", "updated:changed.png", "removed:stale.png"}, events)
}

func TestWatcherTracksFiles(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, e.exec, e.db, e.store, quietLogger(), func(kind, name string) {
			mu.Lock()
			events = append(events, kind+":"+name)
			mu.Unlock()
		})
	}()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(e.dir, "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("sound"), 0o644))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return e.checksums(t)["clip.mp3"] == checksum.Sum([]byte("sound"))
	}, "new file not registered by watcher")

	require.NoError(t, os.Remove(path))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.checksums(t)["clip.mp3"]
		return !ok
	}, "removed file still registered")

	mu.Lock()
	assert.Contains(t, events, "added:clip.mp3")
	assert.Contains(t, events, "removed:clip.mp3")
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherReconcilesRename(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, e.exec, e.db, e.store, quietLogger(), nil) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "old.jpg"), []byte("img"), 0o644))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.checksums(t)["old.jpg"]
		return ok
	}, "file not registered")

	require.NoError(t, os.Rename(filepath.Join(e.dir, "old.jpg"), filepath.Join(e.dir, "new.jpg")))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		m := e.checksums(t)
		_, oldOK := m["old.jpg"]
		_, newOK := m["new.jpg"]
		return !oldOK && newOK
	}, "rename not reconciled")
}
