package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phillpas/ktm/internal/domain/model"
)

// HTTPClient talks to the prediction API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type timedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type pointsRequest struct {
	Points []timedPoint `json:"points"`
}

type pointsResponse struct {
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	NumPoints int `json:"num_points"`
}

type predictionResponse struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Time      float64 `json:"time"`
	Distance  float64 `json:"distance"`
	WinnerID  int     `json:"winner_id"`
	NumPoints int     `json:"num_points"`
}

type completeRequest struct {
	Click   point `json:"click"`
	Target  point `json:"target"`
	IsError bool  `json:"is_error"`
}

type completeResponse struct {
	Predictions int  `json:"predictions"`
	Recorded    bool `json:"recorded"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Message)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return &StatusError{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Health checks that the service answers on /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateSession opens a prediction session and returns its id.
func (c *HTTPClient) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DeleteSession closes a session.
func (c *HTTPClient) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
}

// AddPoint sends one sample and returns the session's point count.
func (c *HTTPClient) AddPoint(ctx context.Context, id string, pt model.TimedPoint) (pointsResponse, error) {
	var out pointsResponse
	err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/points",
		pointsRequest{Points: []timedPoint{{X: pt.X, Y: pt.Y, T: pt.T}}}, &out)
	return out, err
}

// Predict asks for the current endpoint prediction.
func (c *HTTPClient) Predict(ctx context.Context, id, mode string) (predictionResponse, error) {
	path := "/sessions/" + id + "/prediction"
	if mode != "" {
		path += "?mode=" + mode
	}
	var out predictionResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Clear drops the session's movement without completing the trial.
func (c *HTTPClient) Clear(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+id+"/clear", nil, nil)
}

// Complete ends the trial with the click and target.
func (c *HTTPClient) Complete(ctx context.Context, id string, click, target model.Point, isError bool) (completeResponse, error) {
	var out completeResponse
	err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/complete", completeRequest{
		Click:   point{X: click.X, Y: click.Y},
		Target:  point{X: target.X, Y: target.Y},
		IsError: isError,
	}, &out)
	return out, err
}
