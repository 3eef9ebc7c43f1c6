// Package predictor is the live counterpart of a template: it accumulates a
// movement one sample at a time and predicts where it will end.
//
// A Predictor is not safe for concurrent use; callers serialise access.
package predictor

import (
	"fmt"

	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/series"
	"github.com/phillpas/ktm/internal/domain/template"
)

// Prediction is one predicted endpoint.
type Prediction struct {
	Point model.Point
	// Time is the timestamp of the latest resampled velocity sample.
	Time float64
	// Distance is the winning template's length; negative in 1D when moving toward -x.
	Distance    float64
	WinnerID    int
	WinnerIndex int
	Score       float64
	NumPoints   int
}

// TraceRow records a prediction and, once the trial ends, what happened.
type TraceRow struct {
	Seq       int
	NumPoints int
	WinnerID  int
	Raw       model.Point
	Time      float64
	Predicted model.Point
	Distance  float64
	Actual    model.Point
	Target    model.Point
}

// Predictor holds the movement in progress.
type Predictor struct {
	cfg    template.Config
	kernel []float64

	raw      []model.TimedPoint
	smoothed []model.VelocitySample
	distance float64

	seq   int
	trace []TraceRow
}

// New creates a predictor that resamples and smooths like libraries built with cfg.
func New(cfg template.Config) *Predictor {
	return &Predictor{cfg: cfg, kernel: cfg.Kernel()}
}

// AddPoint appends pt if it passes the admission rule and recomputes the
// profile over the whole movement. It reports whether pt was kept.
func (p *Predictor) AddPoint(pt model.TimedPoint) bool {
	if n := len(p.raw); n > 0 && !model.Admit(p.raw[n-1], pt) {
		return false
	}
	p.raw = append(p.raw, pt)
	p.smoothed = series.Smooth(series.VelocityProfile(p.raw, p.cfg.Hertz), p.kernel)
	p.distance = model.StraightLineDistance(p.raw)
	return true
}

func (p *Predictor) Config() template.Config { return p.cfg }
func (p *Predictor) NumPoints() int          { return len(p.raw) }
func (p *Predictor) Distance() float64       { return p.distance }

// Sequence counts how many times the predictor has been cleared.
func (p *Predictor) Sequence() int { return p.seq }

// Points returns a copy of the accepted points.
func (p *Predictor) Points() []model.TimedPoint {
	return append([]model.TimedPoint(nil), p.raw...)
}

// Smoothed returns the current smoothed profile. Callers must not modify it.
func (p *Predictor) Smoothed() []model.VelocitySample { return p.smoothed }

// Predict finds the nearest template in lib and projects its length from
// the first point, in the direction mode selects.
func (p *Predictor) Predict(lib *library.Library, mode model.Mode) (Prediction, error) {
	if len(p.raw) < 2 {
		return Prediction{}, fmt.Errorf("%w: have %d", ErrInsufficientData, len(p.raw))
	}
	if lib.Config() != p.cfg {
		return Prediction{}, fmt.Errorf("%w: library %+v, predictor %+v", ErrIncompatibleLibrary, lib.Config(), p.cfg)
	}
	m, err := lib.NearestNeighbor(p.smoothed)
	if err != nil {
		return Prediction{}, err
	}

	start, latest := p.raw[0].Pos(), p.raw[len(p.raw)-1].Pos()
	point, dist := model.Project(mode, start, latest, m.Template.Distance())
	pr := Prediction{
		Point:       point,
		Time:        p.elapsed(),
		Distance:    dist,
		WinnerID:    m.Template.ID(),
		WinnerIndex: m.Index,
		Score:       m.Score,
		NumPoints:   len(p.raw),
	}
	p.trace = append(p.trace, TraceRow{
		Seq:       p.seq,
		NumPoints: pr.NumPoints,
		WinnerID:  pr.WinnerID,
		Raw:       latest,
		Time:      pr.Time,
		Predicted: pr.Point,
		Distance:  pr.Distance,
	})
	return pr, nil
}

// Predict1D predicts along the x axis.
func (p *Predictor) Predict1D(lib *library.Library) (Prediction, error) {
	return p.Predict(lib, model.Mode1D)
}

// Predict2D predicts along the chord from the first to the latest point.
func (p *Predictor) Predict2D(lib *library.Library) (Prediction, error) {
	return p.Predict(lib, model.Mode2D)
}

func (p *Predictor) elapsed() float64 {
	if len(p.smoothed) == 0 {
		return 0
	}
	return p.smoothed[len(p.smoothed)-1].T
}

// Trace returns the predictions made since the last Clear.
func (p *Predictor) Trace() []TraceRow {
	return append([]TraceRow(nil), p.trace...)
}

// CompleteTrial stamps the click and target centre on every trace row of the
// current movement and returns them.
func (p *Predictor) CompleteTrial(click, target model.Point) []TraceRow {
	for i := range p.trace {
		p.trace[i].Actual = click
		p.trace[i].Target = target
	}
	return p.Trace()
}

// Clear drops the movement and its trace and starts the next sequence.
func (p *Predictor) Clear() {
	p.raw = nil
	p.smoothed = nil
	p.distance = 0
	p.trace = nil
	p.seq++
}
