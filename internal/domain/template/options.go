package template

import "github.com/phillpas/ktm/internal/domain/model"

// Option configures a Template.
type Option func(*Template)

// WithError marks the recording as a miss.
func WithError(isError bool) Option {
	return func(t *Template) {
		t.isError = isError
	}
}

// WithTarget sets the centre of the target the movement aimed at.
func WithTarget(center model.Point) Option {
	return func(t *Template) {
		t.target = center
	}
}

// WithTrimOvershoot builds the velocity profile from the productive prefix
// only, leaving the overshoot tail out of matching. Prefixes stop at the
// productive prefix too.
func WithTrimOvershoot() Option {
	return func(t *Template) {
		t.trimOvershoot = true
	}
}
