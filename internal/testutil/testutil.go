// Package testutil provides shared test helpers for setting up documents
// directories, index databases and repositories.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/memo/internal/index"
	"github.com/starford/memo/internal/memo"
	"github.com/starford/memo/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "memo-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDocs creates a temporary documents directory with a storage.FS.
func TestDocs(t *testing.T) (string, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}

// TestRepository wires a repository over a fresh documents dir and database.
func TestRepository(t *testing.T, opts ...memo.Option) *memo.Repository {
	t.Helper()
	dir, store := TestDocs(t)
	opts = append([]memo.Option{memo.WithLogger(DiscardLogger())}, opts...)
	repo, err := memo.NewRepository(memo.Config{Dir: dir, Prefix: "memo"}, store, TestDB(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return repo
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
