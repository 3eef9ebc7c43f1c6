package model

import "errors"

// ErrInvalidMode is returned for a mode other than 1d or 2d.
var ErrInvalidMode = errors.New("invalid mode")
