package broadlink

import "errors"

// Domain errors for the Broadlink transport.
var (
	// ErrInvalidMAC is returned when a host MAC address cannot be parsed.
	ErrInvalidMAC = errors.New("broadlink: invalid MAC address")

	// ErrDuplicateHost is returned when two hosts share a MAC or address.
	ErrDuplicateHost = errors.New("broadlink: duplicate host")

	// ErrUnknownHost is returned when no configured device matches a host.
	ErrUnknownHost = errors.New("broadlink: unknown host")

	// ErrNoDevices is returned when the default device is requested but no
	// hosts are configured.
	ErrNoDevices = errors.New("broadlink: no devices configured")

	// ErrNoActiveDevice is reported by Alive when no device has sent a
	// heartbeat within the health timeout.
	ErrNoActiveDevice = errors.New("broadlink: no active device")

	// ErrInvalidCode is returned when a code is not valid hex data.
	ErrInvalidCode = errors.New("broadlink: invalid code")

	// ErrNotConnected is returned when the MQTT client is offline.
	ErrNotConnected = errors.New("broadlink: not connected to broker")
)
