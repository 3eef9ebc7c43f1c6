// Package service provides the core service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/phillpas/ktm/internal/adapters/logfile"
	"github.com/phillpas/ktm/internal/adapters/report"
	"github.com/phillpas/ktm/internal/adapters/repository"
	"github.com/phillpas/ktm/internal/config"
	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/predictor"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/pkg/logger"
	"github.com/phillpas/ktm/pkg/metrics"
)

// ErrNotStarted is returned by every operation before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for live endpoint prediction.
type Service struct {
	mu sync.RWMutex

	// Core components
	lib      *library.Library
	sessions repository.Store
	recorder *logfile.Recorder
	trace    *report.TraceWriter

	// Configuration
	libraryPath   string
	librarySize   int
	templateCfg   template.Config
	mode          model.Mode
	hitRadius     float64
	trimOvershoot bool
	seed          int64
	maxSessions   int
	idleTimeout   time.Duration
	tracePath     string
	recordingPath string
	workerCount   int
	evalFraction  float64
	evalMinPrefix int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLibrary uses lib instead of loading one from disk.
func WithLibrary(lib *library.Library) Option {
	return func(s *Service) {
		s.lib = lib
	}
}

// WithLibraryPath sets the movement log the library is built from.
func WithLibraryPath(path string) Option {
	return func(s *Service) {
		s.libraryPath = path
	}
}

// WithLibrarySize randomly trims the loaded library to n templates.
func WithLibrarySize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.librarySize = n
		}
	}
}

// WithTemplateConfig sets resampling and smoothing for the library and sessions.
func WithTemplateConfig(cfg template.Config) Option {
	return func(s *Service) {
		if cfg.Hertz > 0 {
			s.templateCfg = cfg
		}
	}
}

// WithMode sets the default projection mode.
func WithMode(mode model.Mode) Option {
	return func(s *Service) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithHitRadius sets the library's in-target radius.
func WithHitRadius(r float64) Option {
	return func(s *Service) {
		if r > 0 {
			s.hitRadius = r
		}
	}
}

// WithTrimOvershoot builds template profiles from the productive prefix only.
func WithTrimOvershoot(trim bool) Option {
	return func(s *Service) {
		s.trimOvershoot = trim
	}
}

// WithSeed seeds library trimming.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxSessions = n
		}
	}
}

// WithSessionIdleTimeout evicts sessions idle for longer than d.
func WithSessionIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

// WithTracePath appends completed prediction traces to path.
func WithTracePath(path string) Option {
	return func(s *Service) {
		s.tracePath = path
	}
}

// WithRecordingPath appends completed movements to the movement log at path.
func WithRecordingPath(path string) Option {
	return func(s *Service) {
		s.recordingPath = path
	}
}

// WithWorkerCount sets the number of evaluation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithEvaluation sets the leave-one-out candidate fraction and the shortest
// evaluated prefix. Zero values keep the library defaults.
func WithEvaluation(fraction float64, minPrefix int) Option {
	return func(s *Service) {
		if fraction > 0 && fraction <= 1 {
			s.evalFraction = fraction
		}
		if minPrefix >= 0 {
			s.evalMinPrefix = minPrefix
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// FromConfig maps a loaded configuration onto options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithLibraryPath(cfg.LibraryPath),
		WithLibrarySize(cfg.LibrarySize),
		WithTemplateConfig(template.Config{Hertz: cfg.Hertz, KernelStdDev: cfg.KernelStdDev}),
		WithMode(cfg.ParsedMode()),
		WithHitRadius(cfg.HitRadius),
		WithTrimOvershoot(cfg.TrimOvershoot),
		WithSeed(cfg.Seed),
		WithMaxSessions(cfg.MaxSessions),
		WithSessionIdleTimeout(cfg.SessionIdleTimeout),
		WithTracePath(cfg.TracePath),
		WithRecordingPath(cfg.RecordingPath),
		WithWorkerCount(cfg.EvaluationWorkers),
		WithEvaluation(cfg.EvaluationFraction, cfg.EvaluationMinPrefix),
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		templateCfg: template.DefaultConfig(),
		mode:        model.Mode2D,
		hitRadius:   library.DefaultHitRadius,
		maxSessions: 1024,
		idleTimeout: 30 * time.Minute,
		workerCount: runtime.NumCPU(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the library and opens the session store and output files.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting prediction service...")

	if s.lib == nil {
		lib, err := library.LoadSized(ctx, s.libraryPath, s.librarySize,
			library.WithConfig(s.templateCfg),
			library.WithMode(s.mode),
			library.WithHitRadius(s.hitRadius),
			library.WithTrimOvershoot(s.trimOvershoot),
			library.WithSeed(s.seed),
			library.WithLogger(s.logger.Named("library")),
		)
		metrics.RecordLibraryLoad(err == nil)
		if err != nil {
			return fmt.Errorf("load library: %w", err)
		}
		s.lib = lib
	}
	s.templateCfg = s.lib.Config()
	sum := s.lib.Summary()
	metrics.UpdateLibrary(sum.Templates, sum.Overshoots)

	if s.tracePath != "" {
		tw, err := report.OpenTraceWriter(s.tracePath)
		if err != nil {
			return err
		}
		s.trace = tw
	}
	if s.recordingPath != "" {
		rec, err := logfile.OpenRecorder(s.recordingPath)
		if err != nil {
			s.closeFiles()
			return err
		}
		s.recorder = rec
	}

	s.sessions = repository.NewMemoryStore(ctx, s.templateCfg,
		repository.WithMaxSessions(s.maxSessions),
		repository.WithIdleTimeout(s.idleTimeout),
	)

	s.started = true
	s.logger.Info(ctx, "prediction service started",
		logger.Int("templates", sum.Templates),
		logger.Int("overshoots", sum.Overshoots),
		logger.Int("hertz", s.templateCfg.Hertz),
		logger.Int("kernelStdDev", s.templateCfg.KernelStdDev),
		logger.String("mode", s.mode.String()),
		logger.String("tracePath", s.tracePath),
		logger.String("recordingPath", s.recordingPath),
	)

	return nil
}

// Stop closes the session store and output files.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping prediction service...")

	if s.sessions != nil {
		_ = s.sessions.Close()
	}
	s.closeFiles()

	s.started = false
	s.logger.Info(context.Background(), "prediction service stopped")
}

func (s *Service) closeFiles() {
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			s.logger.Error(context.Background(), "closing trace failed", logger.Error(err))
		}
		s.trace = nil
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Error(context.Background(), "closing recording failed", logger.Error(err))
		}
		s.recorder = nil
	}
}

// Library returns the loaded library, or nil before Start.
func (s *Service) Library() *library.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lib
}

func (s *Service) store() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.sessions, nil
}

func (s *Service) session(ctx context.Context, id string) (*repository.Session, error) {
	st, err := s.store()
	if err != nil {
		return nil, err
	}
	return st.Get(ctx, id)
}

// CreateSession starts a live prediction session.
func (s *Service) CreateSession(ctx context.Context) (string, error) {
	st, err := s.store()
	if err != nil {
		return "", err
	}
	sess, err := st.Create(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Debug(ctx, "session created", logger.String("session", sess.ID()))
	return sess.ID(), nil
}

// DeleteSession drops a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	st, err := s.store()
	if err != nil {
		return err
	}
	return st.Delete(ctx, id)
}

// ListSessions describes every live session.
func (s *Service) ListSessions(ctx context.Context) []repository.Info {
	st, err := s.store()
	if err != nil {
		return nil
	}
	return st.List(ctx)
}

// AddPoints feeds samples to the session's predictor in order.
func (s *Service) AddPoints(ctx context.Context, id string, pts []model.TimedPoint) (int, int, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	accepted, total := 0, 0
	_ = sess.Do(func(p *predictor.Predictor) error {
		for _, pt := range pts {
			ok := p.AddPoint(pt)
			metrics.RecordPoint(ok)
			if ok {
				accepted++
			}
		}
		total = p.NumPoints()
		return nil
	})
	return accepted, total, nil
}

// Predict predicts the endpoint of the session's movement. An empty mode
// uses the configured one.
func (s *Service) Predict(ctx context.Context, id string, mode model.Mode) (predictor.Prediction, error) {
	if mode == "" {
		mode = s.mode
	}
	sess, err := s.session(ctx, id)
	if err != nil {
		return predictor.Prediction{}, err
	}
	lib := s.Library()

	var pred predictor.Prediction
	err = sess.Do(func(p *predictor.Predictor) error {
		start := time.Now()
		var perr error
		pred, perr = p.Predict(lib, mode)
		metrics.RecordNearestNeighborLatency(float64(time.Since(start).Microseconds()) / 1000)
		return perr
	})
	metrics.RecordPrediction(mode.String(), predictionOutcome(err))
	if err != nil {
		return predictor.Prediction{}, err
	}
	s.logger.Debug(ctx, "prediction",
		logger.String("session", id),
		logger.Int("numPoints", pred.NumPoints),
		logger.Int("winnerID", pred.WinnerID),
		logger.Float64("distance", pred.Distance),
	)
	return pred, nil
}

func predictionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, predictor.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, predictor.ErrIncompatibleLibrary):
		return "incompatible_library"
	case errors.Is(err, library.ErrEmptyLibrary):
		return "empty_library"
	default:
		return "error"
	}
}

// ClearSession drops the session's movement and returns the new sequence.
func (s *Service) ClearSession(ctx context.Context, id string) (int, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return 0, err
	}
	seq := 0
	_ = sess.Do(func(p *predictor.Predictor) error {
		p.Clear()
		seq = p.Sequence()
		return nil
	})
	return seq, nil
}

// CompleteTrial stamps click and target on the movement's trace, appends
// the trace and the movement to their files when configured, and clears
// the session for the next trial.
func (s *Service) CompleteTrial(ctx context.Context, id string, click, target model.Point, isError bool) ([]predictor.TraceRow, int, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, -1, err
	}

	var rows []predictor.TraceRow
	var pts []model.TimedPoint
	_ = sess.Do(func(p *predictor.Predictor) error {
		rows = p.CompleteTrial(click, target)
		pts = p.Points()
		p.Clear()
		return nil
	})
	metrics.RecordTrialCompleted()

	s.mu.RLock()
	trace, recorder := s.trace, s.recorder
	s.mu.RUnlock()

	if trace != nil && len(rows) > 0 {
		if err := trace.Append(rows); err != nil {
			metrics.RecordErrorByComponent("service", "trace_write")
			return rows, -1, err
		}
	}

	recordedID := -1
	if recorder != nil && len(pts) >= 2 {
		recordedID, err = recorder.Record(logfile.Path{IsError: isError, Target: target, Points: pts})
		if err != nil {
			metrics.RecordErrorByComponent("service", "recording_write")
			return rows, -1, err
		}
	}

	s.logger.Debug(ctx, "trial completed",
		logger.String("session", id),
		logger.Int("predictions", len(rows)),
		logger.Int("points", len(pts)),
		logger.Int("recordedID", recordedID),
	)
	return rows, recordedID, nil
}

// LibrarySummary describes the loaded library.
func (s *Service) LibrarySummary(_ context.Context) library.Summary {
	lib := s.Library()
	if lib == nil {
		return library.Summary{}
	}
	return lib.Summary()
}

// RenderProfiles writes the velocity profile chart of the loaded library.
func (s *Service) RenderProfiles(_ context.Context, w io.Writer, limit int) error {
	lib := s.Library()
	if lib == nil {
		return ErrNotStarted
	}
	return report.RenderProfiles(w, lib, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"mode":         s.mode.String(),
		"hertz":        s.templateCfg.Hertz,
		"kernelStdDev": s.templateCfg.KernelStdDev,
		"maxSessions":  s.maxSessions,
		"workerCount":  s.workerCount,
	}

	if s.started {
		active := s.sessions.Count(context.Background())
		stats["activeSessions"] = active
		stats["templates"] = s.lib.Len()
		metrics.UpdateActiveSessions(active)
	}

	return stats
}
