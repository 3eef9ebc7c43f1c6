// Package replay drives a running prediction service with a recorded
// movement log, reproducing the live loop of points, predictions and a
// final click for every path.
package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/phillpas/ktm/internal/adapters/logfile"
	"github.com/phillpas/ktm/internal/adapters/report"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/predictor"
	"github.com/phillpas/ktm/pkg/logger"
)

// ErrAllFailed is returned when no path could be replayed.
var ErrAllFailed = errors.New("every path failed")

type pathResult struct {
	rows     []predictor.TraceRow
	points   int
	rejected int
	err      error
}

// Run replays every path of the configured log and returns statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("replay")

	log.Info(ctx, "starting replay",
		logger.String("baseURL", config.BaseURL),
		logger.String("log", config.LogPath),
		logger.Int("workers", config.Workers),
		logger.Float64("speed", config.Speed),
		logger.String("timeout", config.Timeout.String()))

	paths, err := logfile.ReadFile(config.LogPath)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	client := newHTTPClient(config.BaseURL, config.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	results := replayPaths(ctx, client, config, paths)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		rows   []predictor.TraceRow
		errs2D []float64
	)
	for i, res := range results {
		stats.Paths++
		stats.Points += res.points
		stats.Rejected += res.rejected
		if res.err != nil {
			stats.Failed++
			log.Warn(ctx, "path failed", logger.Int("path", paths[i].ID), logger.Error(res.err))
			continue
		}
		stats.Predictions += len(res.rows)
		rows = append(rows, res.rows...)
		for _, r := range res.rows {
			errs2D = append(errs2D, model.Distance(r.Predicted, r.Actual))
		}
		if n := len(res.rows); n > 0 && model.Distance(res.rows[n-1].Predicted, paths[i].Target) <= config.HitRadius {
			stats.FinalHits++
		}
	}
	switch {
	case len(errs2D) > 1:
		stats.MeanError2D, stats.StdError2D = stat.MeanStdDev(errs2D, nil)
	case len(errs2D) == 1:
		stats.MeanError2D = errs2D[0]
	}

	if config.TracePath != "" {
		if err := writeTrace(config.TracePath, rows); err != nil {
			return stats, err
		}
		log.Info(ctx, "trace written", logger.String("path", config.TracePath), logger.Int("rows", len(rows)))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if stats.Paths > 0 && stats.Failed == stats.Paths {
		return stats, ErrAllFailed
	}
	return stats, nil
}

// replayPaths fans paths out to workers, one session per worker.
func replayPaths(ctx context.Context, client *HTTPClient, config *Config, paths []logfile.Path) []pathResult {
	log := logger.Get().Named("replay")
	results := make([]pathResult, len(paths))
	workers := max(1, config.Workers)

	var done atomic.Int64
	indexes := make(chan int, workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			id, err := client.CreateSession(ctx)
			if err != nil {
				for i := range indexes {
					results[i].err = fmt.Errorf("create session: %w", err)
				}
				return
			}
			defer func() {
				if err := client.DeleteSession(context.Background(), id); err != nil {
					log.Debug(ctx, "delete session failed", logger.String("session", id), logger.Error(err))
				}
			}()

			for i := range indexes {
				results[i] = replayPath(ctx, client, config, id, paths[i])
				if results[i].err != nil {
					// drop the partial movement so the next path starts clean
					_ = client.Clear(ctx, id)
				}
				n := done.Add(1)
				if config.Verbose {
					log.Info(ctx, "path replayed",
						logger.Int("worker", workerID),
						logger.Int("path", paths[i].ID),
						logger.Int("predictions", len(results[i].rows)),
						logger.Int64("done", n),
						logger.Int("total", len(paths)))
				}
			}
		}(w)
	}

	go func() {
		defer close(indexes)
		for i := range paths {
			select {
			case <-ctx.Done():
				return
			case indexes <- i:
			}
		}
	}()

	wg.Wait()
	return results
}

// replayPath streams one path into session id, predicting after every
// point once two are held, then completes the trial at the path's last point.
func replayPath(ctx context.Context, client *HTTPClient, config *Config, id string, path logfile.Path) pathResult {
	var res pathResult
	var latest model.TimedPoint
	for i, pt := range path.Points {
		if i > 0 && config.Speed > 0 {
			delay := time.Duration(float64(pt.T-path.Points[i-1].T)/config.Speed) * time.Millisecond
			if err := sleep(ctx, delay); err != nil {
				res.err = err
				return res
			}
		}

		added, err := client.AddPoint(ctx, id, pt)
		if err != nil {
			res.err = fmt.Errorf("add point %d: %w", i, err)
			return res
		}
		res.points++
		res.rejected += added.Rejected
		if added.Accepted > 0 {
			latest = pt
		}
		if added.NumPoints < 2 || added.Accepted == 0 {
			continue
		}

		pred, err := client.Predict(ctx, id, config.Mode)
		if err != nil {
			res.err = fmt.Errorf("predict at %d points: %w", added.NumPoints, err)
			return res
		}
		res.rows = append(res.rows, predictor.TraceRow{
			NumPoints: pred.NumPoints,
			WinnerID:  pred.WinnerID,
			Raw:       latest.Pos(),
			Time:      pred.Time,
			Predicted: model.Point{X: pred.X, Y: pred.Y},
			Distance:  pred.Distance,
		})
	}

	click := path.Points[len(path.Points)-1].Pos()
	if _, err := client.Complete(ctx, id, click, path.Target, path.IsError); err != nil {
		res.err = fmt.Errorf("complete: %w", err)
		return res
	}
	for i := range res.rows {
		res.rows[i].Actual = click
		res.rows[i].Target = path.Target
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func writeTrace(path string, rows []predictor.TraceRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	if err := report.WriteTrace(f, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}

// displayFinalStats logs the final replay statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var hitRate, pointsPerSecond float64
	if ok := stats.Paths - stats.Failed; ok > 0 {
		hitRate = float64(stats.FinalHits) / float64(ok)
	}
	if stats.Duration > 0 {
		pointsPerSecond = float64(stats.Points) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("paths", stats.Paths),
		logger.Int("points", stats.Points),
		logger.Int("rejected", stats.Rejected),
		logger.Int("predictions", stats.Predictions),
		logger.Int("failed", stats.Failed),
		logger.Int("finalHits", stats.FinalHits),
		logger.Float64("hitRate", hitRate),
		logger.Float64("meanError2D", stats.MeanError2D),
		logger.Float64("stdError2D", stats.StdError2D),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("pointsPerSecond", pointsPerSecond))
}
