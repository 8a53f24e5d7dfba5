package transmit

import "errors"

// ErrNoSender is reported when a pipeline has no transport attached.
var ErrNoSender = errors.New("transmit: no sender configured")
