package logfile

import "errors"

// ErrMalformedLog marks an unreadable movement log. Nothing from the file is used.
var ErrMalformedLog = errors.New("malformed movement log")
