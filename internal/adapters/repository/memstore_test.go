package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/predictor"
	"github.com/phillpas/ktm/internal/domain/template"
)

var testConfig = template.Config{Hertz: 20, KernelStdDev: 2}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx, testConfig)
	defer store.Close()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(sess.ID()); err != nil {
		t.Errorf("expected a uuid session id, got %q", sess.ID())
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	got, err := store.Get(ctx, sess.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != sess {
		t.Error("expected Get to return the created session")
	}

	if err := store.Delete(ctx, sess.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Delete(ctx, sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_SessionPredictor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx, testConfig)
	defer store.Close()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = sess.Do(func(p *predictor.Predictor) error {
		if p.Config() != testConfig {
			t.Errorf("expected predictor config %+v, got %+v", testConfig, p.Config())
		}
		p.AddPoint(model.TimedPoint{X: 0, T: 0})
		p.AddPoint(model.TimedPoint{X: 10, T: 50})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info := sess.Info()
	if info.NumPoints != 2 {
		t.Errorf("expected 2 points, got %d", info.NumPoints)
	}

	boom := errors.New("boom")
	if err := sess.Do(func(*predictor.Predictor) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected Do to return fn's error, got %v", err)
	}
}

func TestMemoryStore_MaxSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx, testConfig, WithMaxSessions(2))
	defer store.Close()

	for i := 0; i < 2; i++ {
		if _, err := store.Create(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := store.Create(ctx); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}
}

func TestMemoryStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store := NewMemoryStore(ctx, testConfig, WithClock(clock.Now))
	defer store.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := store.Create(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, sess.ID())
		clock.Advance(time.Second)
	}

	list := store.List(ctx)
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	for i, info := range list {
		if info.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], info.ID)
		}
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store := NewMemoryStore(ctx, testConfig,
		WithClock(clock.Now),
		WithIdleTimeout(time.Minute),
		WithSweepInterval(time.Hour),
	)
	defer store.Close()

	idle, _ := store.Create(ctx)
	busy, _ := store.Create(ctx)

	clock.Advance(45 * time.Second)
	_ = busy.Do(func(*predictor.Predictor) error { return nil })
	clock.Advance(30 * time.Second)

	if n := store.Sweep(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if _, err := store.Get(ctx, idle.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected idle session to be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, busy.ID()); err != nil {
		t.Errorf("expected busy session to survive, got %v", err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx, testConfig)
	defer store.Close()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const goroutines = 8
	const perGoroutine = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ts int64
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = sess.Do(func(p *predictor.Predictor) error {
					mu.Lock()
					ts += 10
					pt := model.TimedPoint{X: float64(ts), T: ts}
					mu.Unlock()
					p.AddPoint(pt)
					return nil
				})
				_, _ = store.Create(ctx)
				_ = store.List(ctx)
			}
		}()
	}
	wg.Wait()

	if n := sess.Info().NumPoints; n != goroutines*perGoroutine {
		t.Errorf("expected %d points, got %d", goroutines*perGoroutine, n)
	}
	if count := store.Count(ctx); count != 1+goroutines*perGoroutine {
		t.Errorf("expected %d sessions, got %d", 1+goroutines*perGoroutine, count)
	}
}
