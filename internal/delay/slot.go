package delay

import (
	"context"
	"sync"
	"time"
)

// Slot tracks at most one outstanding operation for a single purpose.
//
// The zero value is ready to use. A Slot must not be copied after first use.
type Slot struct {
	// Sleep overrides the wait used by After. Nil means Sleep.
	Sleep SleepFunc

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Begin cancels whatever the slot currently holds and starts a new operation.
//
// The returned context is cancelled by a later Begin, by Cancel, or when
// parent ends. release must be called when the operation finishes; a stale
// release never clears a newer operation.
func (s *Slot) Begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Cancel aborts the outstanding operation, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}

// Active reports whether an operation is outstanding.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// After arms a one-shot timer that runs fn once d has elapsed, replacing any
// timer or operation already held by the slot. fn is not called if the timer
// is cancelled first. The slot is released before fn runs, so fn may start a
// new operation on the same slot.
func (s *Slot) After(d time.Duration, fn func()) {
	ctx, release := s.Begin(context.Background())
	sleep := s.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	go func() {
		err := sleep(ctx, d)
		if err == nil {
			err = ctx.Err()
		}
		release()
		if err != nil {
			return
		}
		fn()
	}()
}
