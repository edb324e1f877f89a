package control

import "errors"

var (
	// ErrInvalidConfiguration is returned for a window below 1, a
	// non-positive tolerance, a negative step or a non-finite gain.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrIndexOutOfRange is returned by Get for an index outside [0,Dimensions).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNotConfigured is returned when an error sample arrives before Configure.
	ErrNotConfigured = errors.New("controller not configured")
)
