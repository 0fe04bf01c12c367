package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/memo/internal/apperr"
	"github.com/starford/memo/internal/checksum"
	"github.com/starford/memo/internal/memo"
	"github.com/starford/memo/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	repo *memo.Repository
}

// NewHandler creates a new Handler.
func NewHandler(repo *memo.Repository) *Handler {
	return &Handler{repo: repo}
}

func handleParam(w http.ResponseWriter, r *http.Request) (models.Handle, bool) {
	h, err := models.ParseHandle(chi.URLParam(r, "handle"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid handle"))
		return models.Handle{}, false
	}
	return h, true
}

// writeRepoError maps repository error kinds to HTTP responses.
func writeRepoError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, apperr.ErrUnknownHandle):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrDirectoryUnavailable):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("storage directory unavailable"))
	case errors.Is(err, apperr.ErrWriteFailure):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("save failed"))
	case errors.Is(err, apperr.ErrIndexWriteFailure):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("content saved but not indexed"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListMemos handles GET /api/memos.
func (h *Handler) ListMemos(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.List(r.Context())
	if err != nil {
		writeRepoError(w, err, "list memos")
		return
	}
	writeJSON(w, http.StatusOK, MemoListResponse{Memos: toItems(recs), Total: len(recs)})
}

// CreateMemo handles POST /api/memos.
func (h *Handler) CreateMemo(w http.ResponseWriter, r *http.Request) {
	content, ok := decodeContent(w, r)
	if !ok {
		return
	}
	handle, err := h.repo.Create(r.Context(), content)
	if err != nil {
		writeRepoError(w, err, "create memo")
		return
	}
	rec, err := h.repo.Get(r.Context(), handle)
	if err != nil {
		writeRepoError(w, err, "create memo")
		return
	}
	writeJSON(w, http.StatusCreated, toItem(rec))
}

// GetMemo handles GET /api/memos/{handle}.
//
// A record whose file is gone or unreadable still answers 200 with a
// placeholder body; only an unknown handle is a 404.
func (h *Handler) GetMemo(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	rec, err := h.repo.Get(r.Context(), handle)
	if err != nil {
		writeRepoError(w, err, "get memo")
		return
	}
	content, err := h.repo.Load(r.Context(), &handle)
	status := StatusOK
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrFileNotFound):
		status = StatusFileNotFound
	case errors.Is(err, apperr.ErrReadFailure):
		status = StatusReadFailed
		slog.Warn("memo read failed", slog.String("handle", handle.String()), slog.String("error", err.Error()))
	default:
		writeRepoError(w, err, "get memo")
		return
	}
	if status == StatusOK {
		etag := checksum.ETag(content)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, MemoDetail{MemoItem: toItem(rec), Content: content, Status: status})
}

// UpdateMemo handles PUT /api/memos/{handle}.
func (h *Handler) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	content, ok := decodeContent(w, r)
	if !ok {
		return
	}
	if err := h.repo.Update(r.Context(), handle, content); err != nil {
		writeRepoError(w, err, "update memo")
		return
	}
	rec, err := h.repo.Get(r.Context(), handle)
	if err != nil {
		writeRepoError(w, err, "update memo")
		return
	}
	writeJSON(w, http.StatusOK, toItem(rec))
}

// DeleteMemo handles DELETE /api/memos/{handle}.
func (h *Handler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), handle); err != nil {
		writeRepoError(w, err, "delete memo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audit handles GET /api/audit.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	rep, err := h.repo.Audit(r.Context())
	if err != nil {
		writeRepoError(w, err, "audit")
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Orphans: rep.Orphans, Broken: toItems(rep.Broken)})
}
