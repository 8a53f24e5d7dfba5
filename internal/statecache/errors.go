package statecache

import "errors"

// Domain errors for the state mirror.
var (
	// ErrDisabled is returned by Connect when redis is disabled in config.
	ErrDisabled = errors.New("statecache: redis is disabled")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("statecache: connection failed")
)
