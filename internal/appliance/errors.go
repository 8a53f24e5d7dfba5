package appliance

import "errors"

var (
	// ErrUnknownType is returned for an accessory type with no state machine.
	ErrUnknownType = errors.New("appliance: unknown accessory type")

	// ErrInvalidConfig is returned when an accessory configuration fails
	// validation.
	ErrInvalidConfig = errors.New("appliance: invalid configuration")

	// ErrMissingCode is returned when a code needed for a reachable state is
	// not configured.
	ErrMissingCode = errors.New("appliance: missing code")

	// ErrUnknownCharacteristic is returned by Get and Set for a
	// characteristic the accessory does not expose.
	ErrUnknownCharacteristic = errors.New("appliance: unknown characteristic")

	// ErrReadOnly is returned by Set for a characteristic without a setter.
	ErrReadOnly = errors.New("appliance: characteristic is read-only")

	// ErrInvalidValue is returned when a value has the wrong type.
	ErrInvalidValue = errors.New("appliance: invalid value")

	// ErrOutOfRange is returned when a value lies outside the configured
	// limits. State is left unchanged.
	ErrOutOfRange = errors.New("appliance: value out of range")

	// ErrUnsupportedMode is returned when a mode is disabled by
	// configuration.
	ErrUnsupportedMode = errors.New("appliance: unsupported mode")

	// ErrNotFound is returned by the manager for an unknown accessory name.
	ErrNotFound = errors.New("appliance: accessory not found")

	// ErrDuplicateName is returned when two accessories share a name.
	ErrDuplicateName = errors.New("appliance: duplicate accessory name")
)
