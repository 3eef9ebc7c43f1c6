package queue

import (
	"context"
	"testing"
	"time"

	"github.com/phillpas/ktm/internal/domain/library"
)

func job(seq int) Job {
	return library.Job{Seq: seq, Exclude: -1, MinPrefix: 2}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job(1)) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.Seq != 1 {
		t.Errorf("expected job 1, got %d", got.Seq)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithBufferSize(8))
	ctx := context.Background()

	if !q.Enqueue(ctx, job(1)) || !q.Enqueue(ctx, job(2)) {
		t.Fatal("expected enqueue to succeed")
	}

	if q.Enqueue(ctx, job(3)) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_BufferNeverBelowCapacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4), WithBufferSize(1))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if !q.Enqueue(ctx, job(i)) {
			t.Fatalf("expected enqueue %d to succeed", i)
		}
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(16))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producers := 4
	perProducer := 50

	done := make(chan bool, producers)
	for i := 0; i < producers; i++ {
		go func(id int) {
			for j := 0; j < perProducer; j++ {
				for !q.Enqueue(ctx, job(id*perProducer+j)) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan int, producers*perProducer)
	for i := 0; i < 2; i++ {
		go func() {
			for j := range q.Dequeue(ctx) {
				consumed <- j.Seq
			}
		}()
	}

	for i := 0; i < producers; i++ {
		<-done
	}

	seen := make(map[int]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < producers*perProducer {
		select {
		case s := <-consumed:
			if seen[s] {
				t.Fatalf("job %d delivered twice", s)
			}
			seen[s] = true
		case <-timeout:
			t.Fatalf("consumed %d of %d jobs", len(seen), producers*perProducer)
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, job(1)) || !q.Enqueue(ctx, job(2)) {
		t.Fatal("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, job(3)) {
		t.Error("expected enqueue to fail after closing")
	}

	// queued jobs are still delivered before the channel closes
	var drained []int
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case j, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained jobs, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, j.Seq)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}

func TestWithPlan(t *testing.T) {
	q := NewInMemoryQueue(WithPlan(3))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !q.Enqueue(ctx, Job{Seq: i}) {
			t.Fatalf("job %d rejected", i)
		}
	}
	if q.Enqueue(ctx, Job{Seq: 3}) {
		t.Fatal("enqueue beyond the plan should fail")
	}

	empty := NewInMemoryQueue(WithPlan(0))
	if !empty.Enqueue(ctx, Job{}) {
		t.Fatal("an empty plan still holds one job")
	}
}
