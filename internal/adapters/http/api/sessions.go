package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/phillpas/ktm/internal/adapters/repository"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/predictor"
)

// SessionDependencies drives live prediction sessions.
type SessionDependencies interface {
	CreateSession(ctx context.Context) (string, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) []repository.Info

	// AddPoints feeds pointer samples in order and reports how many passed
	// admission and how many the movement now holds.
	AddPoints(ctx context.Context, id string, pts []model.TimedPoint) (accepted, total int, err error)

	// Predict predicts the endpoint. An empty mode uses the service default.
	Predict(ctx context.Context, id string, mode model.Mode) (predictor.Prediction, error)

	// ClearSession drops the movement and returns the new sequence number.
	ClearSession(ctx context.Context, id string) (int, error)

	// CompleteTrial stamps the click and target on the movement's trace,
	// persists trace and movement, and clears the session. recordedID is
	// -1 when the movement was not recorded.
	CompleteTrial(ctx context.Context, id string, click, target model.Point, isError bool) (rows []predictor.TraceRow, recordedID int, err error)
}

// SessionsHandler handles /sessions requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type timedPointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T *int64  `json:"t"`
}

type pointsRequest struct {
	Points []timedPointJSON `json:"points"`
}

func (p pointsRequest) validate() ([]model.TimedPoint, error) {
	if len(p.Points) == 0 {
		return nil, errors.New("missing points")
	}
	out := make([]model.TimedPoint, len(p.Points))
	for i, pt := range p.Points {
		if pt.T == nil {
			return nil, errors.New("missing t")
		}
		out[i] = model.TimedPoint{X: pt.X, Y: pt.Y, T: *pt.T}
	}
	return out, nil
}

type completeRequest struct {
	Click   *pointJSON `json:"click"`
	Target  pointJSON  `json:"target"`
	IsError bool       `json:"is_error"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

type sessionInfoResponse struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	LastActive time.Time `json:"last_active"`
	NumPoints  int       `json:"num_points"`
	Sequence   int       `json:"sequence"`
}

type pointsResponse struct {
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	NumPoints int `json:"num_points"`
}

type predictionResponse struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Time        float64 `json:"time"`
	Distance    float64 `json:"distance"`
	WinnerID    int     `json:"winner_id"`
	WinnerIndex int     `json:"winner_index"`
	Score       float64 `json:"score"`
	NumPoints   int     `json:"num_points"`
}

type clearResponse struct {
	Sequence int `json:"sequence"`
}

type completeResponse struct {
	Predictions int  `json:"predictions"`
	Recorded    bool `json:"recorded"`
	RecordedID  *int `json:"recorded_id,omitempty"`
}

func sessionID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", errors.New("missing session id")
	}
	return id, nil
}

// HandleCreate handles POST /sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := h.deps.CreateSession(r.Context())
	if err != nil {
		writeDomainError(w, NewKind("api.create_session", err))
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id})
}

// HandleList handles GET /sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos := h.deps.ListSessions(r.Context())
	out := make([]sessionInfoResponse, len(infos))
	for i, in := range infos {
		out[i] = sessionInfoResponse{
			ID:         in.ID,
			Created:    in.Created,
			LastActive: in.LastActive,
			NumPoints:  in.NumPoints,
			Sequence:   in.Sequence,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_session"
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.DeleteSession(r.Context(), id); err != nil {
		writeDomainError(w, NewKind(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddPoints handles POST /sessions/{id}/points.
func (h *SessionsHandler) HandleAddPoints(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_points"
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req pointsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	pts, err := req.validate()
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	accepted, total, err := h.deps.AddPoints(r.Context(), id, pts)
	if err != nil {
		writeDomainError(w, NewKind(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{
		Accepted:  accepted,
		Rejected:  len(pts) - accepted,
		NumPoints: total,
	})
}

// HandlePredict handles GET /sessions/{id}/prediction?mode=1d|2d.
func (h *SessionsHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var mode model.Mode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		if mode, err = model.ParseMode(raw); err != nil {
			writeDomainError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	p, err := h.deps.Predict(r.Context(), id, mode)
	if err != nil {
		writeDomainError(w, NewKind(op, err))
		return
	}
	writeJSON(w, http.StatusOK, predictionResponse{
		X:           p.Point.X,
		Y:           p.Point.Y,
		Time:        p.Time,
		Distance:    p.Distance,
		WinnerID:    p.WinnerID,
		WinnerIndex: p.WinnerIndex,
		Score:       p.Score,
		NumPoints:   p.NumPoints,
	})
}

// HandleClear handles POST /sessions/{id}/clear.
func (h *SessionsHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear"
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	seq, err := h.deps.ClearSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, NewKind(op, err))
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Sequence: seq})
}

// HandleComplete handles POST /sessions/{id}/complete.
func (h *SessionsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete"
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Click == nil {
		writeDomainError(w, WrapKind(op, ErrBadRequest, errors.New("missing click")))
		return
	}

	click := model.Point{X: req.Click.X, Y: req.Click.Y}
	target := model.Point{X: req.Target.X, Y: req.Target.Y}
	rows, recordedID, err := h.deps.CompleteTrial(r.Context(), id, click, target, req.IsError)
	if err != nil {
		writeDomainError(w, NewKind(op, err))
		return
	}
	resp := completeResponse{Predictions: len(rows)}
	if recordedID >= 0 {
		resp.Recorded = true
		resp.RecordedID = &recordedID
	}
	writeJSON(w, http.StatusOK, resp)
}
