// Package repository holds live prediction sessions.
package repository

import (
	"context"
	"time"
)

// Info describes a session without exposing its predictor.
type Info struct {
	ID         string
	Created    time.Time
	LastActive time.Time
	NumPoints  int
	Sequence   int
}

// Store provides access to live sessions.
type Store interface {
	// Create starts a new session with an empty predictor.
	// Returns ErrTooManySessions when the store is full.
	Create(ctx context.Context) (*Session, error)

	// Get returns the session with the given id.
	// Returns ErrSessionNotFound if it is unknown or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete drops a session. Returns ErrSessionNotFound if it is unknown.
	Delete(ctx context.Context, id string) error

	// List returns every live session ordered by creation time.
	List(ctx context.Context) []Info

	// Count returns the number of live sessions.
	Count(ctx context.Context) int

	// Close releases background work such as idle eviction.
	Close() error
}
