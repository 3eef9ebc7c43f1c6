package service

import (
	"context"
	"fmt"
	"time"

	"github.com/phillpas/ktm/internal/adapters/mq/queue"
	"github.com/phillpas/ktm/internal/adapters/mq/worker"
	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/pkg/logger"
)

// Evaluate scores candidates concurrently. With against nil it runs
// leave-one-out over lib; otherwise every template of against is scored
// against lib. Rows come back ordered by candidate then prefix length.
// workerOpts apply to every pool worker, e.g. worker.WithJobTimeout.
func Evaluate(
	ctx context.Context,
	lib, against *library.Library,
	opts library.EvaluateOptions,
	workers int,
	workerOpts ...worker.Option,
) ([]library.Row, error) {
	var (
		jobs []library.Job
		err  error
	)
	if against == nil {
		jobs, err = lib.Plan(opts)
	} else {
		jobs, err = lib.PlanAgainst(against, opts)
	}
	if err != nil {
		return nil, err
	}

	log := logger.Get().Named("evaluate")
	start := time.Now()
	log.Info(ctx, "evaluation started",
		logger.Int("candidates", len(jobs)),
		logger.Int("templates", lib.Len()),
		logger.Int("workers", workers),
	)

	var q queue.Queue = queue.NewInMemoryQueue(queue.WithPlan(len(jobs)))
	collector := worker.NewCollector()
	pool := worker.NewPool(workers, q, lib, collector, workerOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx)

	for _, job := range jobs {
		if !q.Enqueue(runCtx, job) {
			cancel()
			_ = pool.Shutdown(ctx)
			return nil, fmt.Errorf("candidate %d: %w", job.Candidate.ID(), queue.ErrRejected)
		}
	}
	_ = q.Close()

	if err := pool.Wait(ctx); err != nil {
		cancel()
		pool.Stop()
		return nil, err
	}
	rows, err := collector.Result()
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "evaluation finished",
		logger.Int("rows", len(rows)),
		logger.Int64("processed", pool.Processed()),
		logger.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}

// EvaluateOptions returns the configured evaluation options: leave-one-out
// when against is false, scoring another log otherwise.
func (s *Service) EvaluateOptions(against bool) library.EvaluateOptions {
	opts := library.DefaultEvaluateOptions()
	if against {
		opts = library.DefaultAgainstOptions()
	}
	if s.evalFraction > 0 {
		opts.Fraction = s.evalFraction
	}
	if s.evalMinPrefix > 0 {
		opts.MinPrefix = s.evalMinPrefix
	}
	return opts
}

// Evaluate runs Evaluate over the loaded library with the configured worker count.
func (s *Service) Evaluate(ctx context.Context, against *library.Library, opts library.EvaluateOptions) ([]library.Row, error) {
	lib := s.Library()
	if lib == nil {
		return nil, ErrNotStarted
	}
	return Evaluate(ctx, lib, against, opts, s.workerCount)
}
