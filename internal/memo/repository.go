// Package memo keeps note content files and the metadata index consistent.
// Repository is the only writer of both and the only place a handle is
// turned into a file path.
package memo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/starford/memo/internal/apperr"
	"github.com/starford/memo/internal/index"
	"github.com/starford/memo/internal/models"
	"github.com/starford/memo/internal/naming"
	"github.com/starford/memo/internal/storage"
)

// TitleLength is the number of characters of content kept as the title.
const TitleLength = 10

// Change event kinds passed to the EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Config locates content files.
type Config struct {
	Dir    string // documents directory
	Prefix string // file name prefix
}

// Messages are the placeholder texts Load returns in place of content.
type Messages struct {
	FileNotFound string
	ReadFailed   string
}

// DefaultMessages returns the built-in placeholder texts.
func DefaultMessages() Messages {
	return Messages{
		FileNotFound: "The memo file could not be found.",
		ReadFailed:   "The memo file could not be read.",
	}
}

// EventCallback is invoked after every successful mutation with the record
// as stored. For deletes it is the record as it was before removal.
type EventCallback func(kind string, rec models.Record)

// Repository orchestrates storage and index operations.
type Repository struct {
	cfg    Config
	store  storage.Provider
	db     index.NoteIndex
	msgs   Messages
	now    func() time.Time
	logger *slog.Logger
	notify EventCallback
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithMessages sets the placeholder texts. Empty fields keep the defaults.
func WithMessages(m Messages) Option {
	return func(r *Repository) {
		if m.FileNotFound != "" {
			r.msgs.FileNotFound = m.FileNotFound
		}
		if m.ReadFailed != "" {
			r.msgs.ReadFailed = m.ReadFailed
		}
	}
}

// WithEventCallback registers cb for change notifications.
func WithEventCallback(cb EventCallback) Option {
	return func(r *Repository) { r.notify = cb }
}

// NewRepository creates a repository writing under cfg.Dir.
func NewRepository(cfg Config, store storage.Provider, db index.NoteIndex, opts ...Option) (*Repository, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("memo: resolve dir: %w", err)
	}
	cfg.Dir = dir
	if cfg.Prefix == "" {
		cfg.Prefix = naming.DefaultPrefix
	}
	r := &Repository{
		cfg:    cfg,
		store:  store,
		db:     db,
		msgs:   DefaultMessages(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the absolute documents directory.
func (r *Repository) Dir() string {
	return r.cfg.Dir
}

// Title returns the first TitleLength characters of content.
// The result is always a byte prefix of content; an invalid UTF-8 byte
// counts as one character and is kept as is.
func Title(content string) string {
	n := 0
	for i := range content {
		if n == TitleLength {
			return content[:i]
		}
		n++
	}
	return content
}

// Create stores content in a new file and indexes it.
//
// When the file was written but the index insert fails, the file is left on
// disk as an orphan and ErrIndexWriteFailure is returned; Audit finds it.
func (r *Repository) Create(_ context.Context, content string) (models.Handle, error) {
	if err := r.store.EnsureDir(r.cfg.Dir); err != nil {
		return models.Handle{}, fmt.Errorf("%w: %w", apperr.ErrDirectoryUnavailable, err)
	}

	now := r.now()
	name, err := naming.Unique(r.cfg.Prefix, now, func(name string) (bool, error) {
		return r.taken(filepath.Join(r.cfg.Dir, name))
	})
	if err != nil {
		if errors.Is(err, naming.ErrExhausted) {
			return models.Handle{}, fmt.Errorf("%w: %w", apperr.ErrWriteFailure, err)
		}
		return models.Handle{}, fmt.Errorf("%w: %w", apperr.ErrIndexWriteFailure, err)
	}
	path := filepath.Join(r.cfg.Dir, name)

	if err := r.store.Write(path, content); err != nil {
		return models.Handle{}, fmt.Errorf("%w: %w", apperr.ErrWriteFailure, err)
	}

	id, err := r.db.Insert(models.Record{
		Title:        Title(content),
		FilePath:     path,
		DateAdded:    now,
		DateModified: now,
	})
	if err != nil {
		r.logger.Warn("memo: content saved without index record",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return models.Handle{}, fmt.Errorf("%w: %w", apperr.ErrIndexWriteFailure, err)
	}

	h := models.HandleFromID(id)
	r.logger.Debug("memo: created", slog.String("handle", h.String()), slog.String("path", path))
	r.emit(EventCreated, models.Record{
		ID:           id,
		Title:        Title(content),
		FilePath:     path,
		DateAdded:    now,
		DateModified: now,
	})
	return h, nil
}

// taken reports whether path is used on disk or claimed by a record.
// A failed index lookup is returned, never treated as a claim.
func (r *Repository) taken(path string) (bool, error) {
	if r.store.Exists(path) {
		return true, nil
	}
	_, err := r.db.IDByPath(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Update replaces the content of the note behind h and refreshes its title
// and modification time. A failed write leaves the index untouched.
func (r *Repository) Update(_ context.Context, h models.Handle, content string) error {
	path, err := r.path(h)
	if err != nil {
		return err
	}
	if err := r.store.Write(path, content); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrWriteFailure, err)
	}
	if err := r.db.Touch(h.ID(), r.now(), Title(content)); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrIndexWriteFailure, err)
	}
	if r.notify != nil {
		rec, err := r.db.Get(h.ID())
		if err != nil {
			// The change is committed; notify with what is known.
			rec = models.Record{ID: h.ID(), Title: Title(content), FilePath: path}
		}
		r.emit(EventUpdated, rec)
	}
	return nil
}

// Load returns the content of the note behind h. A nil handle yields empty
// content. On failure the returned string is a displayable placeholder and
// the error carries ErrUnknownHandle, ErrFileNotFound or ErrReadFailure.
func (r *Repository) Load(_ context.Context, h *models.Handle) (string, error) {
	if h == nil {
		return "", nil
	}
	path, err := r.path(*h)
	if err != nil {
		if errors.Is(err, apperr.ErrUnknownHandle) {
			return r.msgs.FileNotFound, err
		}
		return r.msgs.ReadFailed, fmt.Errorf("%w: %w", apperr.ErrReadFailure, err)
	}
	content, err := r.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.msgs.FileNotFound, fmt.Errorf("%w: %w", apperr.ErrFileNotFound, err)
		}
		return r.msgs.ReadFailed, fmt.Errorf("%w: %w", apperr.ErrReadFailure, err)
	}
	return content, nil
}

// List returns every record, most recently modified first.
func (r *Repository) List(_ context.Context) ([]models.Record, error) {
	return r.db.List()
}

// Get returns the index record behind h.
func (r *Repository) Get(_ context.Context, h models.Handle) (models.Record, error) {
	rec, err := r.db.Get(h.ID())
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Record{}, fmt.Errorf("%w: %s", apperr.ErrUnknownHandle, h)
	}
	return rec, err
}

// Delete removes the record behind h, then its file. If the file cannot be
// removed it stays behind as an orphan and the error is returned.
func (r *Repository) Delete(ctx context.Context, h models.Handle) error {
	rec, err := r.Get(ctx, h)
	if err != nil {
		return err
	}
	path := rec.FilePath
	if err := r.db.Delete(h.ID()); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: %s", apperr.ErrUnknownHandle, h)
		}
		return fmt.Errorf("%w: %w", apperr.ErrIndexWriteFailure, err)
	}
	r.emit(EventDeleted, rec)
	if err := r.store.Delete(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("memo: record deleted but file kept",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (r *Repository) path(h models.Handle) (string, error) {
	if h.IsZero() {
		return "", fmt.Errorf("%w: empty handle", apperr.ErrUnknownHandle)
	}
	p, err := r.db.GetPath(h.ID())
	if errors.Is(err, apperr.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", apperr.ErrUnknownHandle, h)
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

func (r *Repository) emit(kind string, rec models.Record) {
	if r.notify != nil {
		r.notify(kind, rec)
	}
}
