// Package logging builds the bridge's slog loggers.
//
// Records carry the service name and build version. The configured level
// accepts trace below debug; trace records print as TRACE.
//
//	logging:
//	  level: "info"      # trace, debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Accessories may narrow the service level with the legacy logLevel
// setting through WithAccessoryLevel. They can never widen it: an
// accessory at debug under an info service still logs nothing below info.
//
//	acLog := logger.WithAccessoryLevel("warning").With("accessory", "Lounge AC")
//
// Codes are hex blobs, not secrets, and are logged at debug. Broker
// passwords and the API signing key are never logged.
package logging
