package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPollTimeout = 10 * time.Second

// Callback receives the value that resolved a request.
type Callback func(value float64)

// Logger is the subset of logging used by monitors.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Recorder stores readings for history. Zero readings are never recorded.
type Recorder interface {
	RecordReading(accessory string, kind Kind, value float64)
}

// Observer is notified of delivered readings and queue depth.
type Observer interface {
	ObserveReading(accessory string, kind Kind, value float64)
	ObservePending(accessory string, kind Kind, n int)
}

// Options configures a Monitor.
type Options struct {
	// Name is the owning accessory, used in logs, history and metrics.
	Name string
	Kind Kind

	Source Source

	// Offset is added to every reading of Kind before it is stored.
	Offset float64

	// Pseudo, when set, answers every request immediately without
	// touching the source.
	Pseudo *float64

	// PollTimeout bounds how long an unanswered asynchronous query blocks
	// new queries. Zero means 10s.
	PollTimeout time.Duration

	// OnReading runs once per delivered reading, after all waiters have
	// been resolved. It is not called for fallback values.
	OnReading func(Reading)

	Recorder Recorder
	Observer Observer
	Logger   Logger

	// Now overrides time.Now.
	Now func() time.Time
}

// Monitor coalesces value requests onto single source reads.
type Monitor struct {
	name        string
	kind        Kind
	source      Source
	offset      float64
	pseudo      *float64
	pollTimeout time.Duration
	onReading   func(Reading)
	recorder    Recorder
	observer    Observer
	logger      Logger
	now         func() time.Time

	mu       sync.Mutex
	pending  map[string]Callback
	last     *float64
	reading  Reading
	inflight bool
	polledAt time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(opts Options) *Monitor {
	m := &Monitor{
		name:        opts.Name,
		kind:        opts.Kind,
		source:      opts.Source,
		offset:      opts.Offset,
		pseudo:      opts.Pseudo,
		pollTimeout: opts.PollTimeout,
		onReading:   opts.OnReading,
		recorder:    opts.Recorder,
		observer:    opts.Observer,
		logger:      opts.Logger,
		now:         opts.Now,
		pending:     make(map[string]Callback),
	}
	if m.kind == "" {
		m.kind = KindTemperature
	}
	if m.pollTimeout <= 0 {
		m.pollTimeout = defaultPollTimeout
	}
	if m.logger == nil {
		m.logger = nopLogger{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Kind returns the quantity tracked by the monitor.
func (m *Monitor) Kind() Kind {
	return m.kind
}

// Request registers cb to receive the next value.
//
// With a pseudo value cb runs before Request returns. Otherwise, when a
// request is already waiting and a previous value is known, the waiting
// requests are answered with that value first so a lost reading cannot
// stall them. A source read is started unless one is already in flight.
func (m *Monitor) Request(ctx context.Context, cb Callback) {
	if m.pseudo != nil {
		cb(*m.pseudo)
		return
	}

	m.mu.Lock()
	var stale map[string]Callback
	var staleValue float64
	if len(m.pending) > 0 && m.last != nil {
		stale = m.pending
		staleValue = *m.last
		m.pending = make(map[string]Callback)
	}

	m.pending[uuid.NewString()] = cb
	depth := len(m.pending)

	now := m.now()
	poll := !m.inflight || now.Sub(m.polledAt) > m.pollTimeout
	if poll {
		m.inflight = true
		m.polledAt = now
	}
	m.mu.Unlock()

	m.observePending(depth)

	if len(stale) > 0 {
		m.logger.Debug("answering queued requests with last value", "accessory", m.name, "kind", m.kind, "count", len(stale))
		for _, c := range stale {
			c(staleValue)
		}
	}

	if poll {
		m.poll(ctx)
	}
}

// Read requests a value and waits for it. When ctx ends first the last
// known value is returned, so Read always produces a value.
func (m *Monitor) Read(ctx context.Context) float64 {
	ch := make(chan float64, 1)
	m.Request(ctx, func(v float64) { ch <- v })

	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		v, _ := m.Last()
		return v
	}
}

// Deliver resolves every waiting request with r. It reports false when no
// request was waiting or r does not carry the monitor's kind; r is then
// ignored.
func (m *Monitor) Deliver(r Reading) bool {
	raw, ok := r.Value(m.kind)
	if !ok {
		return false
	}

	value := raw + m.offset
	r = r.with(m.kind, value)

	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		m.logger.Debug("ignoring unrequested reading", "accessory", m.name, "kind", m.kind)
		return false
	}
	m.last = &value
	m.reading = r
	m.inflight = false
	queue := m.pending
	m.pending = make(map[string]Callback)
	m.mu.Unlock()

	m.observePending(0)
	if m.observer != nil {
		m.observer.ObserveReading(m.name, m.kind, value)
	}
	if m.recorder != nil && value != 0 {
		m.recorder.RecordReading(m.name, m.kind, value)
	}

	for _, cb := range queue {
		cb(value)
	}

	if m.onReading != nil {
		m.onReading(r)
	}
	return true
}

// Last returns the last delivered value.
func (m *Monitor) Last() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return 0, false
	}
	return *m.last, true
}

// LastReading returns the full last delivered reading.
func (m *Monitor) LastReading() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reading
}

// Pending returns the number of waiting requests.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Run requests a value immediately and then every interval until ctx ends,
// passing each value to refresh.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, refresh Callback) {
	m.Request(ctx, refresh)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Request(ctx, refresh)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	if m.source == nil {
		m.fallback()
		return
	}

	r, err := m.source.Poll(ctx)
	if err == nil {
		if _, ok := r.Value(m.kind); !ok {
			err = ErrNoValue
		}
	}

	switch {
	case err == nil:
		m.Deliver(r)
	case errors.Is(err, ErrPending):
		m.logger.Debug("requested reading from device", "accessory", m.name, "kind", m.kind)
	case errors.Is(err, ErrInactive):
		m.logger.Debug("device inactive, using last value", "accessory", m.name, "kind", m.kind)
		m.fallback()
	default:
		m.logger.Warn("sensor read failed, using last value", "accessory", m.name, "kind", m.kind, "error", err)
		m.fallback()
	}
}

// fallback answers every waiting request with the last value, or 0.
func (m *Monitor) fallback() {
	m.mu.Lock()
	var value float64
	if m.last != nil {
		value = *m.last
	}
	m.inflight = false
	queue := m.pending
	m.pending = make(map[string]Callback)
	m.mu.Unlock()

	m.observePending(0)
	for _, cb := range queue {
		cb(value)
	}
}

func (m *Monitor) observePending(n int) {
	if m.observer != nil {
		m.observer.ObservePending(m.name, m.kind, n)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
