// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and KTM_* environment variables on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"
	"time"

	"github.com/phillpas/ktm/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// LibraryPath is the movement log the template library is built from.
	LibraryPath string `koanf:"library_path"`

	// LibrarySize randomly trims the library to this many templates. 0 keeps all.
	LibrarySize int `koanf:"library_size"`

	// Mode selects 1d or 2d endpoint projection.
	Mode string `koanf:"mode"`

	// Hertz is the resampling rate shared by templates and live sessions.
	Hertz int `koanf:"hertz"`

	// KernelStdDev is the Gaussian smoothing standard deviation in samples.
	KernelStdDev int `koanf:"kernel_std_dev"`

	// HitRadius is the in-target radius used when scoring evaluations.
	HitRadius float64 `koanf:"hit_radius"`

	// TrimOvershoot builds template profiles from the productive prefix only.
	TrimOvershoot bool `koanf:"trim_overshoot"`

	// TracePath receives completed live prediction traces. Empty disables it.
	TracePath string `koanf:"trace_path"`

	// RecordingPath receives completed live movements as a movement log. Empty disables it.
	RecordingPath string `koanf:"recording_path"`

	// MaxSessions caps concurrent live sessions.
	MaxSessions int `koanf:"max_sessions"`

	// SessionIdleTimeout evicts sessions nobody touched for this long, e.g. "30m". 0 keeps them.
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`

	// EvaluationWorkers sets the number of evaluation workers.
	EvaluationWorkers int `koanf:"evaluation_workers"`

	// EvaluationFraction is the share of the library drawn as evaluation candidates.
	EvaluationFraction float64 `koanf:"evaluation_fraction"`

	// EvaluationMinPrefix is the shortest prefix evaluated per candidate.
	// 0 uses 4 for leave-one-out and 2 against another log.
	EvaluationMinPrefix int `koanf:"evaluation_min_prefix"`

	// Seed drives library trimming and candidate sampling. 0 picks a time-based seed.
	Seed int64 `koanf:"seed"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		LibraryPath:        "Log_2D.csv",
		Mode:               string(model.Mode2D),
		Hertz:              20,
		KernelStdDev:       7,
		HitRadius:          16,
		MaxSessions:        1024,
		SessionIdleTimeout: 30 * time.Minute,
		EvaluationWorkers:  runtime.NumCPU(),
		EvaluationFraction: 0.1,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr", "must not be empty")
	case c.Hertz <= 0:
		return invalid("hertz", "must be positive, got %d", c.Hertz)
	case c.KernelStdDev < 0:
		return invalid("kernel_std_dev", "must not be negative, got %d", c.KernelStdDev)
	case c.HitRadius <= 0:
		return invalid("hit_radius", "must be positive, got %g", c.HitRadius)
	case c.SessionIdleTimeout < 0:
		return invalid("session_idle_timeout", "must not be negative, got %s", c.SessionIdleTimeout)
	case c.LibrarySize < 0:
		return invalid("library_size", "must not be negative, got %d", c.LibrarySize)
	case c.EvaluationFraction <= 0 || c.EvaluationFraction > 1:
		return invalid("evaluation_fraction", "must be in (0, 1], got %g", c.EvaluationFraction)
	case c.EvaluationMinPrefix < 0:
		return invalid("evaluation_min_prefix", "must not be negative, got %d", c.EvaluationMinPrefix)
	}
	if _, err := model.ParseMode(c.Mode); err != nil {
		return invalid("mode", "%v", err)
	}
	return nil
}

// ParsedMode returns Mode as a model.Mode. Call Validate first.
func (c *Config) ParsedMode() model.Mode {
	m, err := model.ParseMode(c.Mode)
	if err != nil {
		return model.Mode2D
	}
	return m
}
