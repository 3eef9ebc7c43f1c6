package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/phillpas/ktm/internal/adapters/mq/queue"
	"github.com/phillpas/ktm/internal/adapters/mq/worker"
	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/template"
	logging "github.com/phillpas/ktm/pkg/logger"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan worker.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan worker.Job, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan worker.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(job worker.Job) { //nolint:gocritic // hugeParam
	mq.jobs <- job
}

type mockRunner struct {
	mu     sync.Mutex
	errors map[int]error
	calls  int
}

func newMockRunner() *mockRunner {
	return &mockRunner{errors: make(map[int]error)}
}

func (mr *mockRunner) RunJob(ctx context.Context, job worker.Job) ([]library.Row, error) { //nolint:gocritic // hugeParam
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.calls++
	if err, ok := mr.errors[job.Seq]; ok {
		return nil, err
	}
	return []library.Row{
		{Seq: job.Seq, NumPoints: 3, InTarget: true},
		{Seq: job.Seq, NumPoints: 2},
	}, nil
}

func (mr *mockRunner) setError(seq int, err error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.errors[seq] = err
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init(logging.WithOutput(&discard{}))

		q := newMockQueue()
		runner := newMockRunner()
		sink := worker.NewCollector()

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, runner, sink, worker.WithName("test-worker"))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And when processing a job", func() {
				q.add(worker.Job{Seq: 0})
				_ = q.Close()

				convey.Convey("Then its rows reach the sink in prefix order", func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
					defer shutdownCancel()
					convey.So(waitFor(func() bool {
						rows, _ := sink.Result()
						return len(rows) == 2
					}), convey.ShouldBeTrue)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)

					rows, err := sink.Result()
					convey.So(err, convey.ShouldBeNil)
					convey.So(rows[0].NumPoints, convey.ShouldEqual, 2)
					convey.So(rows[1].NumPoints, convey.ShouldEqual, 3)
				})
			})

			convey.Convey("And when the runner fails", func() {
				boom := errors.New("boom")
				runner.setError(1, boom)
				q.add(worker.Job{Seq: 1})

				convey.Convey("Then the sink reports the error", func() {
					convey.So(waitFor(func() bool {
						_, err := sink.Result()
						return err != nil
					}), convey.ShouldBeTrue)
					_, err := sink.Result()
					convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, runner, sink)
			ctx, cancel := context.WithCancel(context.Background())

			go w.Run(ctx)
			cancel()

			convey.Convey("Then the worker stops", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init(logging.WithOutput(&discard{}))

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, newMockQueue(), newMockRunner(), nil)

			convey.Convey("Then it uses at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		convey.Convey("When draining a closed queue", func() {
			q := newMockQueue()
			runner := newMockRunner()
			sink := worker.NewCollector()
			pool := worker.NewPool(3, q, runner, sink)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)
			for i := 0; i < 5; i++ {
				q.add(worker.Job{Seq: 4 - i})
			}
			_ = q.Close()

			convey.Convey("Then every job is processed and rows come back sorted", func() {
				waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
				defer waitCancel()
				convey.So(pool.Wait(waitCtx), convey.ShouldBeNil)
				convey.So(pool.Processed(), convey.ShouldEqual, 5)

				rows, err := sink.Result()
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(rows), convey.ShouldEqual, 10)
				for i, r := range rows {
					convey.So(r.Seq, convey.ShouldEqual, i/2)
					convey.So(r.NumPoints, convey.ShouldEqual, 2+i%2)
				}
			})
		})

		convey.Convey("When shutting down", func() {
			q := newMockQueue()
			pool := worker.NewPool(2, q, newMockRunner(), nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			err := pool.Shutdown(context.Background())

			convey.Convey("Then it closes the queue and returns", func() {
				convey.So(err, convey.ShouldBeNil)
				_, open := <-q.jobs
				convey.So(open, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When stopping", func() {
			pool := worker.NewPool(2, newMockQueue(), newMockRunner(), nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			pool.Stop()

			convey.Convey("Then waiting returns at once", func() {
				waitCtx, waitCancel := context.WithTimeout(ctx, 100*time.Millisecond)
				defer waitCancel()
				convey.So(pool.Wait(waitCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPoolMatchesSequentialEvaluation(t *testing.T) {
	convey.Convey("Given a library and an in-memory queue", t, func() {
		_ = logging.Init(logging.WithOutput(&discard{}))
		ctx := context.Background()

		cfg := template.Config{Hertz: 20, KernelStdDev: 2}
		tpls := make([]*template.Template, 8)
		for i := range tpls {
			pts := make([]model.TimedPoint, 15)
			for j := range pts {
				pts[j] = model.TimedPoint{X: float64(j) * float64(i+1), T: int64(j) * 50}
			}
			tpl, err := template.New(i+1, pts, cfg)
			convey.So(err, convey.ShouldBeNil)
			tpls[i] = tpl
		}
		lib, err := library.New(tpls, library.WithSeed(3))
		convey.So(err, convey.ShouldBeNil)

		opts := library.EvaluateOptions{Fraction: 0.5, MinPrefix: 2, Cumulative: true}

		convey.Convey("When the pool evaluates the planned jobs", func() {
			jobs, err := lib.Plan(opts)
			convey.So(err, convey.ShouldBeNil)

			q := queue.NewInMemoryQueue(queue.WithCapacity(len(jobs)))
			sink := worker.NewCollector()
			pool := worker.NewPool(4, q, lib, sink)
			pool.Start(ctx)
			for _, j := range jobs {
				convey.So(q.Enqueue(ctx, j), convey.ShouldBeTrue)
			}
			_ = q.Close()
			convey.So(pool.Wait(ctx), convey.ShouldBeNil)

			parallel, err := sink.Result()
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the rows equal a sequential run", func() {
				var sequential []library.Row
				for _, j := range jobs {
					rows, err := lib.RunJob(ctx, j)
					convey.So(err, convey.ShouldBeNil)
					sequential = append(sequential, rows...)
				}
				convey.So(parallel, convey.ShouldResemble, sequential)
			})
		})
	})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// blockingRunner waits for its context to end.
type blockingRunner struct{}

func (blockingRunner) RunJob(ctx context.Context, _ worker.Job) ([]library.Row, error) { //nolint:gocritic // hugeParam
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestJobTimeout(t *testing.T) {
	convey.Convey("Given a pool whose workers bound each job", t, func() {
		_ = logging.Init(logging.WithOutput(&discard{}))

		q := queue.NewInMemoryQueue(queue.WithPlan(1))
		sink := worker.NewCollector()
		pool := worker.NewPool(1, q, blockingRunner{}, sink, worker.WithJobTimeout(20*time.Millisecond))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pool.Start(ctx)
		convey.So(q.Enqueue(ctx, worker.Job{Seq: 0}), convey.ShouldBeTrue)
		_ = q.Close()

		convey.Convey("Then a stuck candidate fails with a deadline error", func() {
			convey.So(pool.Wait(ctx), convey.ShouldBeNil)
			convey.So(pool.Processed(), convey.ShouldEqual, 1)
			_, err := sink.Result()
			convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
		})
	})
}
