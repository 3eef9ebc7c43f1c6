// Package series holds the pure time-series transforms behind template
// matching: temporal resampling, finite-difference velocity and Gaussian
// smoothing. Nothing here keeps state.
package series

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/phillpas/ktm/internal/domain/model"
)

// Sample is a resampled position. T is relative to the first input sample.
type Sample struct {
	X float64
	Y float64
	T float64
}

// Resample places points on a fixed grid of 1000/hz time units starting at
// the first timestamp, interpolating linearly between the bracketing inputs.
// The grid holds floor(duration*hz/1000)+1 samples. It returns nil for fewer
// than two points or a non-positive rate.
func Resample(points []model.TimedPoint, hz int) []Sample {
	if len(points) < 2 || hz <= 0 {
		return nil
	}
	t0 := points[0].T
	duration := points[len(points)-1].T - t0
	if duration < 0 {
		return nil
	}
	count := int(duration*int64(hz)/1000) + 1
	step := 1000.0 / float64(hz)

	out := make([]Sample, 0, count)
	j := 0
	for i := 0; i < count; i++ {
		t := float64(i) * step
		// advance to the segment [j, j+1] containing t
		for j < len(points)-2 && float64(points[j+1].T-t0) < t {
			j++
		}
		a, b := points[j], points[j+1]
		ta, tb := float64(a.T-t0), float64(b.T-t0)
		if tb <= ta {
			out = append(out, Sample{X: b.X, Y: b.Y, T: t})
			continue
		}
		f := (t - ta) / (tb - ta)
		f = math.Max(0, math.Min(1, f))
		out = append(out, Sample{
			X: a.X + f*(b.X-a.X),
			Y: a.Y + f*(b.Y-a.Y),
			T: t,
		})
	}
	return out
}

// Derivative returns the speed between consecutive samples, one element
// shorter than the input. Element i carries samples[i].T.
func Derivative(samples []Sample) []model.VelocitySample {
	if len(samples) < 2 {
		return nil
	}
	out := make([]model.VelocitySample, len(samples)-1)
	for i := 0; i < len(samples)-1; i++ {
		a, b := samples[i], samples[i+1]
		dt := b.T - a.T
		v := 0.0
		if dt > 0 {
			v = math.Hypot(b.X-a.X, b.Y-a.Y) / dt
		}
		out[i] = model.VelocitySample{T: a.T, V: v}
	}
	return out
}

// VelocityProfile resamples points at hz and differentiates the result.
func VelocityProfile(points []model.TimedPoint, hz int) []model.VelocitySample {
	return Derivative(Resample(points, hz))
}

// GaussianKernel returns a normalised kernel of length 6*stdDev+1.
// A non-positive stdDev yields the identity kernel [1].
func GaussianKernel(stdDev int) []float64 {
	if stdDev <= 0 {
		return []float64{1}
	}
	half := 3 * stdDev
	k := make([]float64, 2*half+1)
	s2 := 2 * float64(stdDev) * float64(stdDev)
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-x * x / s2)
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Filter convolves values with a centred kernel. Samples beyond either end
// are taken as the nearest edge sample, so the output keeps the input length.
func Filter(values, kernel []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	half := len(kernel) / 2
	last := len(values) - 1
	out := make([]float64, len(values))
	for i := range values {
		var acc float64
		for j, w := range kernel {
			idx := i + j - half
			if idx < 0 {
				idx = 0
			} else if idx > last {
				idx = last
			}
			acc += w * values[idx]
		}
		out[i] = acc
	}
	return out
}

// Smooth filters the speeds of a profile and keeps its timestamps.
func Smooth(profile []model.VelocitySample, kernel []float64) []model.VelocitySample {
	if len(profile) == 0 {
		return nil
	}
	vs := make([]float64, len(profile))
	for i, s := range profile {
		vs[i] = s.V
	}
	vs = Filter(vs, kernel)
	out := make([]model.VelocitySample, len(profile))
	for i, s := range profile {
		out[i] = model.VelocitySample{T: s.T, V: vs[i]}
	}
	return out
}
