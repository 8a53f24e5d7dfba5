// Package delay provides cancellable waits for paced signal transmission
// and appliance timers.
//
// Every wait resolves normally after its duration or ends early with an
// error wrapping ErrCancelled. Cancellation is an expected outcome: callers
// check it with IsCancelled and stop quietly instead of reporting a failure.
//
// A Slot holds the single outstanding operation for one purpose (the
// in-flight transmission of an accessory, its auto-off timer, its ping grace
// timer). Starting a new operation on a slot cancels the previous one first,
// which gives last-write-wins semantics per purpose.
package delay
