package api

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/phillpas/ktm/internal/domain/library"
)

// LibraryDependencies exposes the loaded template library.
type LibraryDependencies interface {
	LibrarySummary(ctx context.Context) library.Summary
	RenderProfiles(ctx context.Context, w io.Writer, limit int) error
}

// LibraryHandler serves library inspection endpoints.
type LibraryHandler struct {
	deps LibraryDependencies
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(deps LibraryDependencies) *LibraryHandler {
	return &LibraryHandler{deps: deps}
}

// HandleSummary handles GET /library.
func (h *LibraryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.LibrarySummary(r.Context()))
}

// HandleProfiles handles GET /library/profiles?limit=N, an HTML chart of
// template velocity profiles.
func (h *LibraryHandler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	const op = "api.library_profiles"
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var buf bytes.Buffer
	if err := h.deps.RenderProfiles(r.Context(), &buf, limit); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
