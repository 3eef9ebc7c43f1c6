// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phillpas/ktm/internal/adapters/repository"
	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/predictor"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	LibraryDependencies
	StatsProvider
}

// Server wires HTTP routes for the prediction API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	libraryHandler  *LibraryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		libraryHandler:  NewLibraryHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /library", MetricsMiddleware(s.libraryHandler.HandleSummary, "library"))
	mux.HandleFunc("GET /library/profiles", MetricsMiddleware(s.libraryHandler.HandleProfiles, "library_profiles"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleDelete, "session"))
	mux.HandleFunc("POST /sessions/{id}/points", MetricsMiddleware(s.sessionsHandler.HandleAddPoints, "session_points"))
	mux.HandleFunc("GET /sessions/{id}/prediction", MetricsMiddleware(s.sessionsHandler.HandlePredict, "session_prediction"))
	mux.HandleFunc("POST /sessions/{id}/clear", MetricsMiddleware(s.sessionsHandler.HandleClear, "session_clear"))
	mux.HandleFunc("POST /sessions/{id}/complete", MetricsMiddleware(s.sessionsHandler.HandleComplete, "session_complete"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.code = code
	}
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain sentinels to a status and code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrTooManySessions):
		writeError(w, http.StatusTooManyRequests, "too_many_sessions", err)
	case errors.Is(err, predictor.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_data", err)
	case errors.Is(err, library.ErrEmptyLibrary):
		writeError(w, http.StatusInternalServerError, "empty_library", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
