package predictor

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrInsufficientData means fewer than two points have been accepted.
	ErrInsufficientData = errors.New("insufficient data: need at least two points")
	// ErrIncompatibleLibrary means the library resamples or smooths differently.
	ErrIncompatibleLibrary = errors.New("library config does not match predictor")
)
