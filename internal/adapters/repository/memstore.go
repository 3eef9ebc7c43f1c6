package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phillpas/ktm/internal/domain/predictor"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/pkg/metrics"
)

// Session is one client's movement in progress. The predictor is only
// reachable through Do, which serialises access.
type Session struct {
	id      string
	created time.Time

	mu         sync.Mutex
	lastActive time.Time
	pred       *predictor.Predictor
	now        func() time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Do runs fn with exclusive access to the session's predictor.
func (s *Session) Do(fn func(p *predictor.Predictor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
	return fn(s.pred)
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		Created:    s.created,
		LastActive: s.lastActive,
		NumPoints:  s.pred.NumPoints(),
		Sequence:   s.pred.Sequence(),
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// MemoryStore keeps sessions in a map guarded by a RWMutex.
type MemoryStore struct {
	cfg template.Config

	mu       sync.RWMutex
	sessions map[string]*Session

	maxSessions   int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose sessions predict with cfg. When an
// idle timeout is set, a sweeper runs until ctx ends or Close is called.
func NewMemoryStore(ctx context.Context, cfg template.Config, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		cfg:           cfg,
		sessions:      make(map[string]*Session),
		sweepInterval: time.Minute,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.idleTimeout > 0 {
		s.startSweeper(ctx)
	}
	metrics.UpdateActiveSessions(0)
	return s
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep evicts sessions idle for longer than the idle timeout and returns
// how many were dropped.
func (s *MemoryStore) Sweep() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	metrics.UpdateActiveSessions(len(s.sessions))
	return n
}

// Close stops the sweeper.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	now := s.now()
	sess := &Session{
		id:         uuid.NewString(),
		created:    now,
		lastActive: now,
		pred:       predictor.New(s.cfg),
		now:        s.now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		metrics.RecordErrorByComponent("repository", "too_many_sessions")
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.maxSessions)
	}
	s.sessions[sess.id] = sess
	metrics.UpdateActiveSessions(len(s.sessions))
	return sess, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	metrics.UpdateActiveSessions(len(s.sessions))
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Info) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
