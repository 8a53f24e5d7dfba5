// Package sensor gathers temperature and humidity readings for appliances.
//
// A Monitor serves concurrent value requests from a single Source. Requests
// that arrive while a read is in flight are queued and resolved together by
// the next reading, so N concurrent requests cost one hardware query. Sources
// are either synchronous (files, 1-Wire probes, values cached from the
// message bus) or asynchronous: the hardware device answers a query later
// through Monitor.Deliver.
//
// Readings that cannot be obtained never fail a request: waiters receive the
// last known value, or 0 when nothing has been read yet.
package sensor
