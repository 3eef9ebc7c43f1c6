// Package model contains domain models passed between layers.
package model

import "math"

// MinMoveDistance is the smallest displacement from the previously accepted
// sample for a new pointer sample to be kept.
const MinMoveDistance = 1.0

// TimedPoint is a pointer sample. T is in the recording's native unit (ms).
type TimedPoint struct {
	X float64
	Y float64
	T int64
}

// Point is a position without a timestamp.
type Point struct {
	X float64
	Y float64
}

// VelocitySample is a resampled time/speed pair.
type VelocitySample struct {
	T float64
	V float64
}

// Pos drops the timestamp.
func (p TimedPoint) Pos() Point { return Point{X: p.X, Y: p.Y} }

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Angle returns the direction from a to b in radians, in (-pi, pi].
func Angle(a, b Point) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// Admit reports whether next should follow prev in a movement: it must be
// strictly later and at least MinMoveDistance away.
func Admit(prev, next TimedPoint) bool {
	return next.T > prev.T && Distance(prev.Pos(), next.Pos()) >= MinMoveDistance
}

// AdmitAll applies Admit over points in order, always keeping the first.
func AdmitAll(points []TimedPoint) []TimedPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]TimedPoint, 0, len(points))
	out = append(out, points[0])
	for _, p := range points[1:] {
		if Admit(out[len(out)-1], p) {
			out = append(out, p)
		}
	}
	return out
}

// StraightLineDistance is the distance between the first and last point.
// It is 0 for fewer than two points.
func StraightLineDistance(points []TimedPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	return Distance(points[0].Pos(), points[len(points)-1].Pos())
}
