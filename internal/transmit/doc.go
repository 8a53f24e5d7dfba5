// Package transmit sends pre-recorded IR/RF codes to a hardware transport
// with the pacing rules of a code table.
//
// A Payload is either a bare code, sent immediately, or a sequence of steps.
// Each step repeats its code SendCount times with Interval seconds between
// repeats and then waits Pause seconds. Starting a sequence cancels the
// accessory's previous in-flight sequence; the cancelled sequence stops at its
// current wait and skips the remaining steps without reporting an error.
//
// Transport failures are logged and never abort the caller.
package transmit
