package index

import (
	"time"

	"github.com/starford/memo/internal/models"
)

// NoteIndex defines the interface for memo metadata operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	Insert(rec models.Record) (int64, error)
	Touch(id int64, modified time.Time, title string) error
	Get(id int64) (models.Record, error)
	GetPath(id int64) (string, error)
	IDByPath(path string) (int64, error)
	List() ([]models.Record, error)
	Delete(id int64) error
	AllPaths() (map[string]int64, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
