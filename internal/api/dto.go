package api

import (
	"time"

	"github.com/starford/memo/internal/models"
)

// Content status values reported with a memo body.
const (
	StatusOK           = "ok"
	StatusFileNotFound = "file_not_found"
	StatusReadFailed   = "read_failed"
)

// ContentRequest is the request body for creating or updating a memo.
type ContentRequest struct {
	Content *string `json:"content" example:"Buy milk"`
}

// MemoItem is a lightweight item in a list response.
type MemoItem struct {
	Handle       string    `json:"handle" example:"memo:12"`
	Title        string    `json:"title" example:"Buy milk"`
	DateAdded    time.Time `json:"date_added"`
	DateModified time.Time `json:"date_modified"`
}

// MemoDetail is a memo with its content. When the content file is missing or
// unreadable, Content holds a placeholder and Status says why.
type MemoDetail struct {
	MemoItem
	Content string `json:"content"`
	Status  string `json:"status" example:"ok"`
}

// MemoListResponse wraps memo listings.
type MemoListResponse struct {
	Memos []MemoItem `json:"memos"`
	Total int        `json:"total" example:"42"`
}

// AuditResponse lists inconsistencies between files and the index.
type AuditResponse struct {
	Orphans []string   `json:"orphans"`
	Broken  []MemoItem `json:"broken"`
}

func toItem(r models.Record) MemoItem {
	return MemoItem{
		Handle:       r.Handle().String(),
		Title:        r.Title,
		DateAdded:    r.DateAdded,
		DateModified: r.DateModified,
	}
}

func toItems(recs []models.Record) []MemoItem {
	out := make([]MemoItem, len(recs))
	for i, r := range recs {
		out[i] = toItem(r)
	}
	return out
}
