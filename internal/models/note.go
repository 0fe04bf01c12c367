// Package models defines the domain types for memo.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one row of the note index.
type Record struct {
	ID           int64
	Title        string
	FilePath     string
	DateAdded    time.Time
	DateModified time.Time
}

// Handle returns the opaque handle addressing the record.
func (r Record) Handle() Handle {
	return Handle{id: r.ID}
}

// Handle addresses a note without exposing where its content lives.
// The zero value addresses nothing.
type Handle struct {
	id int64
}

const handlePrefix = "memo:"

// HandleFromID wraps an index identifier.
func HandleFromID(id int64) Handle {
	return Handle{id: id}
}

// ParseHandle reads back a value produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(s), handlePrefix)
	if !ok {
		return Handle{}, fmt.Errorf("handle %q: missing %q prefix", s, handlePrefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Handle{}, fmt.Errorf("handle %q: invalid identifier", s)
	}
	return Handle{id: id}, nil
}

// ID returns the index identifier behind the handle.
func (h Handle) ID() int64 { return h.id }

// IsZero reports whether h addresses nothing.
func (h Handle) IsZero() bool { return h.id == 0 }

func (h Handle) String() string {
	return handlePrefix + strconv.FormatInt(h.id, 10)
}
