// Package codes resolves which pre-recorded signal to send for a state
// transition.
//
// A code table is the "data" section of an accessory's configuration. Each
// entry is a bare code, a sequence of paced steps, or a nested table keyed by
// state. Table keys follow a fixed naming scheme ("on", "off", "heat22",
// "temperature24", "fanSpeed50", "swingOn", "rotationSpeed75", ...), and the
// order of keys is preserved from the configuration file because some
// lookups break ties by file order.
//
// All lookups in this package are pure functions of the table and the state
// passed in; none of them transmit.
package codes
