package model

import "math"

// Project places an endpoint distance units from start in the direction of
// travel seen so far. In 1D the distance runs along x and is negated when
// latest is left of start; the returned distance carries that sign. In 2D it
// runs along the chord from start to latest.
func Project(mode Mode, start, latest Point, distance float64) (Point, float64) {
	if mode == Mode1D {
		if latest.X < start.X {
			distance = -distance
		}
		return Point{X: start.X + distance, Y: start.Y}, distance
	}
	a := Angle(start, latest)
	return Point{
		X: start.X + math.Cos(a)*distance,
		Y: start.Y + math.Sin(a)*distance,
	}, distance
}
