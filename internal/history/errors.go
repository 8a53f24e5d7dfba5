package history

import "errors"

// Domain errors for history storage.
var (
	// ErrAccessoryRequired is returned when a query names no accessory.
	ErrAccessoryRequired = errors.New("history: accessory name is required")

	// ErrInvalidRetention is returned when a prune window is not positive.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
