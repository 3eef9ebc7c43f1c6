// Package template models one recorded movement and its velocity profile.
//
// A Template is immutable once built. Per-query state lives in View and
// Comparison values so templates can be compared from many goroutines.
package template

import (
	"fmt"

	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/series"
)

// Config is the resampling and smoothing setup shared by a library.
type Config struct {
	Hertz        int
	KernelStdDev int
}

// DefaultConfig matches the rate and smoothing used for live prediction.
func DefaultConfig() Config {
	return Config{Hertz: 20, KernelStdDev: 7}
}

// Kernel builds the Gaussian kernel for this config.
func (c Config) Kernel() []float64 {
	return series.GaussianKernel(c.KernelStdDev)
}

// Template is a completed movement used as a matching reference.
type Template struct {
	id       int
	cfg      Config
	kernel   []float64
	raw      []model.TimedPoint
	velocity []model.VelocitySample
	distance float64
	isError  bool
	target   model.Point

	productive    int
	trimOvershoot bool
}

// New builds a template from a recorded movement. Points failing the
// admission rule are dropped before anything is derived.
func New(id int, points []model.TimedPoint, cfg Config, opts ...Option) (*Template, error) {
	raw := model.AdmitAll(points)
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: path %d has %d usable points", ErrInsufficientPoints, id, len(raw))
	}

	t := &Template{
		id:     id,
		cfg:    cfg,
		kernel: cfg.Kernel(),
		raw:    raw,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.productive = productiveLen(raw)
	t.distance = model.StraightLineDistance(raw)

	profileFrom := raw
	if t.trimOvershoot {
		profileFrom = raw[:t.productive]
	}
	t.velocity = series.VelocityProfile(profileFrom, cfg.Hertz)
	return t, nil
}

// productiveLen counts the leading points that keep receding from the start.
// The first two points always count.
func productiveLen(raw []model.TimedPoint) int {
	if len(raw) <= 2 {
		return len(raw)
	}
	start := raw[0].Pos()
	n := 2
	for n < len(raw) && model.Distance(raw[n].Pos(), start) >= model.Distance(raw[n-1].Pos(), start) {
		n++
	}
	return n
}

func (t *Template) ID() int                 { return t.id }
func (t *Template) Config() Config          { return t.cfg }
func (t *Template) Distance() float64       { return t.distance }
func (t *Template) IsError() bool           { return t.isError }
func (t *Template) Target() model.Point     { return t.target }
func (t *Template) NumPoints() int          { return len(t.raw) }
func (t *Template) Start() model.TimedPoint { return t.raw[0] }
func (t *Template) End() model.TimedPoint   { return t.raw[len(t.raw)-1] }

// RawPoints returns a copy of the admitted points.
func (t *Template) RawPoints() []model.TimedPoint {
	return append([]model.TimedPoint(nil), t.raw...)
}

// Velocity returns the resampled velocity profile. Callers must not modify it.
func (t *Template) Velocity() []model.VelocitySample { return t.velocity }

// IsOvershoot reports whether the movement came back toward its start.
func (t *Template) IsOvershoot() bool { return t.productive < len(t.raw) }

// FilteredTail returns the points from the first move back toward the start.
func (t *Template) FilteredTail() []model.TimedPoint {
	return append([]model.TimedPoint(nil), t.raw[t.productive:]...)
}

// Duration is the time covered by the velocity profile.
func (t *Template) Duration() float64 {
	if len(t.velocity) == 0 {
		return 0
	}
	return t.velocity[len(t.velocity)-1].T
}

// ProfilePoints is the number of raw points the velocity profile is built
// from: the productive prefix when overshoots are trimmed, else all of them.
func (t *Template) ProfilePoints() int {
	if t.trimOvershoot {
		return t.productive
	}
	return len(t.raw)
}

// Prefix views the movement as of its first n raw points. n is clamped to
// [0, ProfilePoints], so a full-length prefix reproduces the template's own
// profile.
func (t *Template) Prefix(n int) View {
	n = max(0, min(n, t.ProfilePoints()))
	raw := t.raw[:n]
	vel := series.VelocityProfile(raw, t.cfg.Hertz)
	return View{
		tmpl:     t,
		n:        n,
		smoothed: series.Smooth(vel, t.kernel),
		distance: model.StraightLineDistance(raw),
	}
}
