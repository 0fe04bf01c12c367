package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/memo/internal/models"
	"github.com/starford/memo/internal/storage"
)

// watcherTestEnv sets up a documents dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store, testDB(t)
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

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind string, _ int64, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+filepath.Base(path))
	r.mu.Unlock()
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func (r *recorder) count(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.events {
		if got == e {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatcher_IndexedFileRemoved(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	path := filepath.Join(dir, "memo-a.txt")
	_ = store.Write(path, "hello")
	if _, err := db.Insert(models.Record{FilePath: path, DateAdded: base, DateModified: base}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, db, store, dir, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(path)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("missing:memo-a.txt")
	}, "expected missing:memo-a.txt callback")

	// The record itself is left alone.
	if _, err := db.GetPath(1); err != nil {
		t.Errorf("record should survive: %v", err)
	}
}

func TestWatcher_OrphanReportedOnce(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, db, store, dir, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("orphan:stray.txt")
	}, "expected orphan:stray.txt callback")

	_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("y"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("orphan:other.txt")
	}, "expected orphan:other.txt callback")

	if n := rec.count("orphan:stray.txt"); n != 1 {
		t.Errorf("stray.txt reported %d times, want 1", n)
	}
}

func TestWatcher_IndexedCreateIsNotOrphan(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, db, store, dir, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "memo-b.txt")
	_ = store.Write(path, "indexed")
	_, _ = db.Insert(models.Record{FilePath: path, DateAdded: base, DateModified: base})
	_ = os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("m"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("orphan:marker.txt")
	}, "expected orphan:marker.txt callback")

	if rec.has("orphan:memo-b.txt") {
		t.Error("indexed file reported as orphan")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, db, store, dir, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644)
	time.Sleep(500 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("unexpected events: %v", rec.events)
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, db, store, dir, quietLogger(), nil) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
