package template

import (
	"math"

	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/series"
)

// View is a template seen as of its first N raw points.
type View struct {
	tmpl     *Template
	n        int
	smoothed []model.VelocitySample
	distance float64
}

// Comparison is the outcome of scoring a View against another template.
type Comparison struct {
	// Score is the mean absolute speed difference; lower is closer.
	Score float64
	// PctTime is the prefix duration over the full duration.
	PctTime float64
	// PctDistance is the prefix straight-line distance over the full one.
	PctDistance float64
	// Elapsed is the timestamp of the prefix's last velocity sample.
	Elapsed float64
}

func (v View) Template() *Template { return v.tmpl }
func (v View) NumPoints() int      { return v.n }

// Smoothed returns the smoothed prefix profile. Callers must not modify it.
func (v View) Smoothed() []model.VelocitySample { return v.smoothed }

// Last returns the most recent raw point in the prefix.
func (v View) Last() model.TimedPoint {
	if v.n == 0 {
		return v.tmpl.raw[0]
	}
	return v.tmpl.raw[v.n-1]
}

// Elapsed is the timestamp of the last prefix velocity sample.
func (v View) Elapsed() float64 {
	if len(v.smoothed) == 0 {
		return 0
	}
	return v.smoothed[len(v.smoothed)-1].T
}

// CompareTo scores this prefix against other.
func (v View) CompareTo(other *Template) Comparison {
	return Comparison{
		Score:       Score(v.smoothed, other.velocity, v.tmpl.kernel),
		PctTime:     ratio(v.Elapsed(), v.tmpl.Duration()),
		PctDistance: ratio(v.distance, v.tmpl.distance),
		Elapsed:     v.Elapsed(),
	}
}

// Score compares an already smoothed query profile with a reference profile.
// The reference is cut to the query's length, never extended, and smoothed
// with kernel. Overlapping samples add their absolute difference; query
// samples past the end of the reference add their own value. The sum is
// divided by the query length. An empty query scores 0.
func Score(query, reference []model.VelocitySample, kernel []float64) float64 {
	if len(query) == 0 {
		return 0
	}
	ref := reference[:min(len(reference), len(query))]
	refSmoothed := series.Smooth(ref, kernel)

	var sum float64
	for i, q := range query {
		if i < len(refSmoothed) {
			sum += math.Abs(q.V - refSmoothed[i].V)
		} else {
			sum += q.V
		}
	}
	return sum / float64(len(query))
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
