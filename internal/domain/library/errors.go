package library

import (
	"errors"

	"github.com/phillpas/ktm/internal/adapters/logfile"
)

// Sentinel error kinds for this package.
var (
	// ErrMalformedLog is returned when the movement log cannot be turned into templates.
	ErrMalformedLog = logfile.ErrMalformedLog
	// ErrEmptyLibrary is returned when a search has no template to pick.
	ErrEmptyLibrary = errors.New("template library is empty")
	// ErrConfigMismatch is returned when templates were built with different rates or smoothing.
	ErrConfigMismatch = errors.New("template configs differ")
	// ErrNoCandidates is returned when evaluation has nothing to evaluate.
	ErrNoCandidates = errors.New("no evaluation candidates")
)
