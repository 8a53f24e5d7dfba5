package sensor

import "errors"

var (
	// ErrPending is returned by asynchronous sources after a query was
	// issued. The reading arrives later through Monitor.Deliver.
	ErrPending = errors.New("sensor: reading requested, awaiting delivery")

	// ErrInactive is returned when the source device is not reachable.
	ErrInactive = errors.New("sensor: source device inactive")

	// ErrNoValue is returned when a source produced nothing usable.
	ErrNoValue = errors.New("sensor: no value available")

	// ErrInvalidIdentifier is returned for message-bus values with an
	// identifier outside unknown, temperature, humidity, battery and combined.
	ErrInvalidIdentifier = errors.New("sensor: unexpected value identifier")
)
