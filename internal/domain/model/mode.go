package model

import (
	"fmt"
	"strings"
)

// Mode selects how a predicted distance is projected to an endpoint.
type Mode string

const (
	// Mode1D projects the distance along the x axis, signed by the direction of travel.
	Mode1D Mode = "1d"
	// Mode2D projects the distance along the chord from the first to the latest point.
	Mode2D Mode = "2d"
)

// ParseMode parses "1d" or "2d" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Mode1D:
		return Mode1D, nil
	case Mode2D:
		return Mode2D, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) String() string { return string(m) }
