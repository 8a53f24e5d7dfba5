package delay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is wrapped by every error returned from a wait that was cut short.
var ErrCancelled = errors.New("delay: cancelled")

// SleepFunc waits for d or until ctx ends. Tests substitute their own.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d. It returns nil when the full duration elapsed and an
// error wrapping ErrCancelled when ctx ended first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// IsCancelled reports whether err came from a cancelled wait.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Seconds converts a configuration value in seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
