// Package worker runs evaluation jobs pulled off a queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/pkg/logger"
	"github.com/phillpas/ktm/pkg/metrics"
)

// Default worker configuration constants.
const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = library.Job

// Runner evaluates one candidate. *library.Library satisfies it.
type Runner interface {
	RunJob(ctx context.Context, job Job) ([]library.Row, error)
}

// Sink receives the outcome of every job. It is called from several
// goroutines at once.
type Sink interface {
	Collect(ctx context.Context, job Job, rows []library.Row, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	sink   Sink
	name   string

	jobTimeout time.Duration

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		runner:   runner,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := w.runner.RunJob(ctx, job)
	metrics.RecordEvaluationDuration(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.RecordErrorByComponent("worker", "evaluation_error")
		w.logger.Error(ctx, "evaluation failed for candidate",
			logger.Int("seq", job.Seq),
			logger.Error(err),
		)
		err = fmt.Errorf("candidate %d: %w", candidateID(job), err)
	} else {
		for i := range rows {
			metrics.RecordEvaluationRow(rows[i].InTarget)
		}
		w.logger.Debug(ctx, "candidate evaluated",
			logger.Int("seq", job.Seq),
			logger.Int("rows", len(rows)),
		)
	}

	if w.sink != nil {
		w.sink.Collect(ctx, job, rows, err)
	}
}

func candidateID(job Job) int { //nolint:gocritic // hugeParam
	if job.Candidate == nil {
		return -1
	}
	return job.Candidate.ID()
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. A count below one uses one worker per
// CPU. opts apply to every worker; names are assigned by the pool.
func NewPool(workerCount int, queue Queue, runner Runner, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	counted := &countingSink{next: sink, count: &pool.processed}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			runner,
			counted,
			append(opts, WithName("worker-"+strconv.Itoa(i)))...,
		)
	}

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs finished so far.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained.
func (p *Pool) Wait(ctx context.Context) error {
	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.logger.Debug(ctx, "pool drained", logger.Int64("processed", p.Processed()))
	return nil
}

// Stop signals every worker and waits a bounded time for each.
func (p *Pool) Stop() {
	for _, worker := range p.workers {
		worker.stop()
	}

	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue, stops the workers and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for _, worker := range p.workers {
		worker.stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}

type countingSink struct {
	next  Sink
	count *atomic.Int64
}

func (s *countingSink) Collect(ctx context.Context, job Job, rows []library.Row, err error) { //nolint:gocritic // hugeParam
	s.count.Add(1)
	if s.next != nil {
		s.next.Collect(ctx, job, rows, err)
	}
}

// Collector is a Sink that keeps every row and the first error.
type Collector struct {
	mu   sync.Mutex
	rows []library.Row
	err  error
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect implements Sink.
func (c *Collector) Collect(_ context.Context, _ Job, rows []library.Row, err error) { //nolint:gocritic // hugeParam
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return
	}
	c.rows = append(c.rows, rows...)
}

// Result returns the collected rows ordered by candidate then prefix length,
// or the first error seen.
func (c *Collector) Result() ([]library.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	rows := make([]library.Row, len(c.rows))
	copy(rows, c.rows)
	library.SortRows(rows)
	return rows, nil
}
