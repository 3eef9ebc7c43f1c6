// Package library holds an ordered set of templates loaded from a movement
// log, the nearest-neighbour search over them and the offline evaluation
// harness.
package library

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/phillpas/ktm/internal/adapters/logfile"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/pkg/logger"
)

// Library is read-only after construction and safe for concurrent searches.
type Library struct {
	templates []*template.Template
	cfg       template.Config
	cfgSet    bool
	kernel    []float64

	mode          model.Mode
	hitRadius     float64
	trimOvershoot bool
	seed          int64

	logger logger.Logger
}

// Match is the result of a nearest-neighbour search.
type Match struct {
	Template *template.Template
	Index    int
	Score    float64
}

// Summary describes a library at a glance.
type Summary struct {
	Templates    int     `json:"templates"`
	Overshoots   int     `json:"overshoots"`
	Errors       int     `json:"errors"`
	MeanDistance float64 `json:"mean_distance"`
	MeanDuration float64 `json:"mean_duration"`
	Hertz        int     `json:"hertz"`
	KernelStdDev int     `json:"kernel_std_dev"`
	Mode         string  `json:"mode"`
}

func newLibrary(opts []Option) *Library {
	l := &Library{
		cfg:       template.DefaultConfig(),
		mode:      model.Mode2D,
		hitRadius: DefaultHitRadius,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// New builds a library from templates. Without WithConfig the first
// template's config is adopted; every template must share it.
func New(templates []*template.Template, opts ...Option) (*Library, error) {
	l := newLibrary(opts)
	if !l.cfgSet && len(templates) > 0 {
		l.cfg = templates[0].Config()
	}
	for _, t := range templates {
		if t.Config() != l.cfg {
			return nil, fmt.Errorf("%w: template %d has %+v, library has %+v", ErrConfigMismatch, t.ID(), t.Config(), l.cfg)
		}
	}
	l.templates = append([]*template.Template(nil), templates...)
	l.kernel = l.cfg.Kernel()
	return l, nil
}

// Load reads the movement log at path and builds one template per path id.
// Any unusable row or path fails the whole load.
func Load(ctx context.Context, path string, opts ...Option) (*Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := newLibrary(opts)

	paths, err := logfile.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var topts []template.Option
	if l.trimOvershoot {
		topts = append(topts, template.WithTrimOvershoot())
	}
	l.templates = make([]*template.Template, 0, len(paths))
	for _, p := range paths {
		t, err := template.New(p.ID, p.Points, l.cfg,
			append(topts, template.WithError(p.IsError), template.WithTarget(p.Target))...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", path, ErrMalformedLog, err)
		}
		l.templates = append(l.templates, t)
	}
	l.kernel = l.cfg.Kernel()

	s := l.Summary()
	l.logger.Info(ctx, "library loaded",
		logger.String("path", path),
		logger.Int("templates", s.Templates),
		logger.Int("overshoots", s.Overshoots),
		logger.Int("errors", s.Errors),
		logger.Int("hertz", l.cfg.Hertz),
		logger.Int("kernel_std_dev", l.cfg.KernelStdDev),
	)
	return l, nil
}

// LoadSized loads the log, then removes random templates until size remain.
// A size of zero or one not smaller than the library keeps everything.
func LoadSized(ctx context.Context, path string, size int, opts ...Option) (*Library, error) {
	l, err := Load(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	if size <= 0 || size >= len(l.templates) {
		return l, nil
	}
	rng := l.rand()
	for len(l.templates) > size {
		i := rng.Intn(len(l.templates))
		l.templates = append(l.templates[:i], l.templates[i+1:]...)
	}
	l.logger.Info(ctx, "library trimmed", logger.Int("templates", len(l.templates)))
	return l, nil
}

func (l *Library) rand() *rand.Rand {
	seed := l.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)) //nolint:gosec // sampling, not security
}

func (l *Library) Len() int                    { return len(l.templates) }
func (l *Library) Config() template.Config     { return l.cfg }
func (l *Library) Mode() model.Mode            { return l.mode }
func (l *Library) HitRadius() float64          { return l.hitRadius }
func (l *Library) Kernel() []float64           { return l.kernel }
func (l *Library) At(i int) *template.Template { return l.templates[i] }

// Templates returns the templates in library order.
func (l *Library) Templates() []*template.Template {
	return append([]*template.Template(nil), l.templates...)
}

// NearestNeighbor scores every template against an already smoothed query
// profile and returns the lowest. Ties go to the lower index.
func (l *Library) NearestNeighbor(query []model.VelocitySample) (Match, error) {
	return l.nearest(query, -1)
}

func (l *Library) nearest(query []model.VelocitySample, exclude int) (Match, error) {
	best := Match{Index: -1, Score: math.Inf(1)}
	for i, t := range l.templates {
		if i == exclude {
			continue
		}
		s := template.Score(query, t.Velocity(), l.kernel)
		if best.Index < 0 || s < best.Score {
			best = Match{Template: t, Index: i, Score: s}
		}
	}
	if best.Index < 0 {
		return Match{}, ErrEmptyLibrary
	}
	return best, nil
}

// Summary counts templates and averages their distance and duration.
func (l *Library) Summary() Summary {
	s := Summary{
		Templates:    len(l.templates),
		Hertz:        l.cfg.Hertz,
		KernelStdDev: l.cfg.KernelStdDev,
		Mode:         l.mode.String(),
	}
	if len(l.templates) == 0 {
		return s
	}
	dist := make([]float64, len(l.templates))
	dur := make([]float64, len(l.templates))
	for i, t := range l.templates {
		if t.IsOvershoot() {
			s.Overshoots++
		}
		if t.IsError() {
			s.Errors++
		}
		dist[i] = t.Distance()
		dur[i] = t.Duration()
	}
	s.MeanDistance = stat.Mean(dist, nil)
	s.MeanDuration = stat.Mean(dur, nil)
	return s
}
