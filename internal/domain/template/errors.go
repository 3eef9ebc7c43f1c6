package template

import "errors"

// ErrInsufficientPoints is returned when fewer than two points survive admission.
var ErrInsufficientPoints = errors.New("template needs at least two points")
