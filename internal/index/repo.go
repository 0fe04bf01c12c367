package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/memo/internal/apperr"
	"github.com/starford/memo/internal/models"
)

const selectColumns = `SELECT id, title, file_path, date_added, date_modified FROM memos`

// Insert stores rec under a fresh id and returns it. rec.ID is ignored.
func (db *DB) Insert(rec models.Record) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO memos (title, file_path, date_added, date_modified)
		VALUES (?, ?, ?, ?)
	`, rec.Title, rec.FilePath, rec.DateAdded.UnixMilli(), rec.DateModified.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("index: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: insert id: %w", err)
	}
	return id, nil
}

// Touch records a successful content write: it sets the title and moves
// date_modified forward. The stored value is at least one millisecond past
// the previous one, so it strictly increases even when the clock does not.
func (db *DB) Touch(id int64, modified time.Time, title string) error {
	res, err := db.conn.Exec(`
		UPDATE memos
		SET title = ?, date_modified = MAX(?, date_modified + 1)
		WHERE id = ?
	`, title, modified.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("index: touch %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// Get returns the record for id.
func (db *DB) Get(id int64) (models.Record, error) {
	row := db.conn.QueryRow(selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("index: memo %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("index: get %d: %w", id, err)
	}
	return rec, nil
}

// GetPath returns the stored file path for id.
func (db *DB) GetPath(id int64) (string, error) {
	var p string
	err := db.conn.QueryRow(`SELECT file_path FROM memos WHERE id = ?`, id).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: memo %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("index: get path %d: %w", id, err)
	}
	return p, nil
}

// IDByPath returns the id of the record owning path.
func (db *DB) IDByPath(path string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM memos WHERE file_path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("index: path %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("index: lookup path: %w", err)
	}
	return id, nil
}

// List returns every record, most recently modified first. Records modified
// at the same instant keep insertion order. The slice is fully materialised
// before returning.
func (db *DB) List() ([]models.Record, error) {
	rows, err := db.conn.Query(selectColumns + ` ORDER BY date_modified DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	out := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("index: list scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes the record for id.
func (db *DB) Delete(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM memos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// AllPaths returns every indexed file path mapped to its id.
func (db *DB) AllPaths() (map[string]int64, error) {
	rows, err := db.conn.Query(`SELECT id, file_path FROM memos`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, err
		}
		out[p] = id
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.Record, error) {
	var rec models.Record
	var added, modified int64
	if err := s.Scan(&rec.ID, &rec.Title, &rec.FilePath, &added, &modified); err != nil {
		return models.Record{}, err
	}
	rec.DateAdded = time.UnixMilli(added)
	rec.DateModified = time.UnixMilli(modified)
	return rec, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("index: memo %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
