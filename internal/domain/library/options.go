package library

import (
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/pkg/logger"
)

// Default library settings.
const (
	DefaultHitRadius = 16.0
)

// Option applies a configuration option to the Library.
type Option func(*Library)

// WithConfig sets the resampling rate and smoothing every template must share.
func WithConfig(cfg template.Config) Option {
	return func(l *Library) {
		l.cfg = cfg
		l.cfgSet = true
	}
}

// WithMode sets how evaluation projects predicted endpoints.
func WithMode(mode model.Mode) Option {
	return func(l *Library) {
		if mode != "" {
			l.mode = mode
		}
	}
}

// WithHitRadius sets the error under which a prediction counts as in target.
func WithHitRadius(r float64) Option {
	return func(l *Library) {
		if r > 0 {
			l.hitRadius = r
		}
	}
}

// WithSeed makes random trimming and candidate sampling repeatable. 0 seeds from the clock.
func WithSeed(seed int64) Option {
	return func(l *Library) {
		l.seed = seed
	}
}

// WithTrimOvershoot drops overshoot tails from loaded template profiles.
func WithTrimOvershoot(trim bool) Option {
	return func(l *Library) {
		l.trimOvershoot = trim
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Library) {
		if lg != nil {
			l.logger = lg
		}
	}
}
