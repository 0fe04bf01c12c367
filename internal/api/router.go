package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/memo/internal/memo"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(repo *memo.Repository, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(repo)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/memos", h.ListMemos)
	r.Post("/memos", h.CreateMemo)
	r.Get("/memos/{handle}", h.GetMemo)
	r.Put("/memos/{handle}", h.UpdateMemo)
	r.Delete("/memos/{handle}", h.DeleteMemo)

	r.Get("/audit", h.Audit)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
