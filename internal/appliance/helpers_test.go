package appliance

import (
	"context"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-irbridge/internal/codes"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// fakeTransport records every code sent and hands out a single fake device.
type fakeTransport struct {
	mu     sync.Mutex
	codes  []string
	device *fakeDevice
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{device: &fakeDevice{active: true}}
}

func (f *fakeTransport) Send(_ context.Context, _ string, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeTransport) Device(string) (Device, error) {
	return f.device, nil
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.codes))
	copy(out, f.codes)
	return out
}

func (f *fakeTransport) clear() {
	f.mu.Lock()
	f.codes = nil
	f.mu.Unlock()
}

type fakeDevice struct {
	mu          sync.Mutex
	active      bool
	checks      int
	subscribers []func(sensor.Reading)
}

func (d *fakeDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *fakeDevice) CheckTemperature(context.Context) error {
	d.mu.Lock()
	d.checks++
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) CheckHumidity(context.Context) error {
	return d.CheckTemperature(context.Background())
}

func (d *fakeDevice) Subscribe(fn func(sensor.Reading)) func() {
	d.mu.Lock()
	d.subscribers = append(d.subscribers, fn)
	d.mu.Unlock()
	return func() {}
}

// recordingNotifier keeps the last refreshed value per characteristic.
type recordingNotifier struct {
	mu   sync.Mutex
	last map[string]any
	n    int
}

func (r *recordingNotifier) Refresh(_, characteristic string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = make(map[string]any)
	}
	r.last[characteristic] = value
	r.n++
}

func (r *recordingNotifier) value(characteristic string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.last[characteristic]
	return v, ok
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// instantSleep returns at once unless ctx is already done.
func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type testEnv struct {
	transport *fakeTransport
	notifier  *recordingNotifier
	clock     *fixedClock
	deps      Deps
}

func newTestEnv() *testEnv {
	env := &testEnv{
		transport: newFakeTransport(),
		notifier:  &recordingNotifier{},
		clock:     &fixedClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	env.deps = Deps{
		Transport: env.transport,
		Notifier:  env.notifier,
		Sleep:     instantSleep,
		Now:       env.clock.Now,
	}
	return env
}

// decodeConfig fills a typed configuration from YAML.
func decodeConfig(t *testing.T, src string, into any) {
	t.Helper()
	if err := yaml.Unmarshal([]byte(src), into); err != nil {
		t.Fatalf("decoding config: %v", err)
	}
}

func table(t *testing.T, src string) *codes.Entry {
	t.Helper()
	e, err := codes.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parsing table: %v", err)
	}
	return e
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func set(t *testing.T, acc Accessory, characteristic string, value any) {
	t.Helper()
	if err := acc.Set(context.Background(), characteristic, value); err != nil {
		t.Fatalf("Set(%s, %v): %v", characteristic, value, err)
	}
}
