package reachability

import (
	"context"
	"time"
)

// Watch probes address every interval until ctx ends and passes each result
// to fn. The first probe runs immediately.
func Watch(ctx context.Context, p Prober, address string, interval time.Duration, fn func(up bool)) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		up := p.Probe(probeCtx, address)
		cancel()

		if ctx.Err() != nil {
			return
		}
		fn(up)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
