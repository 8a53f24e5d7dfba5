package transmit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-irbridge/internal/delay"
)

type recordingSender struct {
	mu    sync.Mutex
	codes []string
	hosts []string
	err   error
}

func (s *recordingSender) Send(_ context.Context, host, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	s.hosts = append(s.hosts, host)
	return s.err
}

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errors.Join(delay.ErrCancelled, err)
	}
	return nil
}

func (r *recordingSleep) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

type countingObserver struct {
	mu       sync.Mutex
	ok, fail int
}

func (o *countingObserver) ObserveTransmit(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.fail++
		return
	}
	o.ok++
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

func TestPipeline_BareCode(t *testing.T) {
	sender := &recordingSender{}
	sleeper := &recordingSleep{}
	p := New(Options{Name: "tv", Host: "aa:bb", Sender: sender, Sleep: sleeper.sleep})

	p.Send(context.Background(), Code("2600ab"))

	if got := sender.sent(); !equalStrings(got, []string{"2600ab"}) {
		t.Errorf("sent = %v, want [2600ab]", got)
	}
	if sender.hosts[0] != "aa:bb" {
		t.Errorf("host = %q, want aa:bb", sender.hosts[0])
	}
	if sleeper.total() != 0 {
		t.Errorf("bare code waited %v", sleeper.total())
	}
}

func TestPipeline_EmptyPayloadIsNoop(t *testing.T) {
	sender := &recordingSender{}
	p := New(Options{Sender: sender})

	p.Send(context.Background(), Payload{})

	if len(sender.sent()) != 0 {
		t.Errorf("empty payload sent %v", sender.sent())
	}
}

func TestPipeline_SequencePacing(t *testing.T) {
	tests := []struct {
		name      string
		steps     []Step
		wantCodes []string
		wantWait  time.Duration
	}{
		{
			name:      "single step no repeat",
			steps:     []Step{{Code: "a"}},
			wantCodes: []string{"a"},
			wantWait:  0,
		},
		{
			name:      "repeats use default interval",
			steps:     []Step{{Code: "a", SendCount: 3}},
			wantCodes: []string{"a", "a", "a"},
			wantWait:  200 * time.Millisecond,
		},
		{
			name:      "explicit interval and pause",
			steps:     []Step{{Code: "a", SendCount: 2, Interval: 0.5, Pause: 1}, {Code: "b"}},
			wantCodes: []string{"a", "a", "b"},
			wantWait:  1500 * time.Millisecond,
		},
		{
			name:      "pause on every step",
			steps:     []Step{{Code: "a", Pause: 0.3}, {Code: "b", Pause: 0.2}},
			wantCodes: []string{"a", "b"},
			wantWait:  500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			sleeper := &recordingSleep{}
			p := New(Options{Name: "fan", Sender: sender, Sleep: sleeper.sleep})
			payload := Sequence(tt.steps...)

			p.Send(context.Background(), payload)

			if got := sender.sent(); !equalStrings(got, tt.wantCodes) {
				t.Errorf("sent = %v, want %v", got, tt.wantCodes)
			}
			if got := sleeper.total(); got != tt.wantWait {
				t.Errorf("waited %v, want %v", got, tt.wantWait)
			}
			if got := payload.Suspension(); got != tt.wantWait {
				t.Errorf("Suspension() = %v, want %v", got, tt.wantWait)
			}
			if p.Busy() {
				t.Error("Busy() = true after sequence completed")
			}
		})
	}
}

func TestPipeline_NewSequenceCancelsPrevious(t *testing.T) {
	sender := &recordingSender{}
	p := New(Options{Name: "ac", Sender: sender})

	done := make(chan struct{})
	go func() {
		p.Send(context.Background(), Sequence(Step{Code: "first", Pause: 60}, Step{Code: "never"}))
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(sender.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	p.Send(context.Background(), Sequence(Step{Code: "second"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first sequence was not cancelled")
	}

	got := sender.sent()
	if !equalStrings(got, []string{"first", "second"}) {
		t.Errorf("sent = %v, want [first second]", got)
	}
}

func TestPipeline_Reset(t *testing.T) {
	sender := &recordingSender{}
	p := New(Options{Sender: sender})

	done := make(chan struct{})
	go func() {
		p.Send(context.Background(), Sequence(Step{Code: "a", SendCount: 2, Interval: 60}))
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(sender.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Reset()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reset() did not cancel the sequence")
	}
	if got := sender.sent(); !equalStrings(got, []string{"a"}) {
		t.Errorf("sent = %v, want [a]", got)
	}
}

func TestPipeline_TransportErrorDoesNotAbort(t *testing.T) {
	sender := &recordingSender{err: errors.New("device offline")}
	obs := &countingObserver{}
	p := New(Options{Sender: sender, Observer: obs, Sleep: (&recordingSleep{}).sleep})

	p.Send(context.Background(), Sequence(Step{Code: "a"}, Step{Code: "b"}))

	if got := sender.sent(); !equalStrings(got, []string{"a", "b"}) {
		t.Errorf("sent = %v, want [a b]", got)
	}
	if obs.fail != 2 || obs.ok != 0 {
		t.Errorf("observer ok=%d fail=%d, want ok=0 fail=2", obs.ok, obs.fail)
	}
}

func TestPipeline_NoSender(t *testing.T) {
	obs := &countingObserver{}
	p := New(Options{Observer: obs})

	p.Send(context.Background(), Code("a"))

	if obs.fail != 1 {
		t.Errorf("observer fail = %d, want 1", obs.fail)
	}
}

func TestPrepend(t *testing.T) {
	tests := []struct {
		name  string
		first Payload
		rest  Payload
		want  []Step
	}{
		{
			name:  "bare codes",
			first: Code("on"),
			rest:  Code("cool22"),
			want:  []Step{{Code: "on", Pause: 1}, {Code: "cool22"}},
		},
		{
			name:  "sequence first keeps its steps",
			first: Sequence(Step{Code: "on1", Pause: 0.2}, Step{Code: "on2"}),
			rest:  Code("heat"),
			want:  []Step{{Code: "on1", Pause: 0.2}, {Code: "on2", Pause: 1}, {Code: "heat"}},
		},
		{
			name:  "empty first",
			first: Payload{},
			rest:  Code("heat"),
			want:  []Step{{Code: "heat"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prepend(tt.first, 1, tt.rest).AsSteps()
			if len(got) != len(tt.want) {
				t.Fatalf("Prepend() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("step %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPayload_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantCode  string
		wantSteps int
		wantErr   bool
	}{
		{name: "scalar", src: `2600abcd`, wantCode: "2600abcd"},
		{name: "sequence", src: "- data: aa\n  sendCount: 2\n- data: bb\n  pause: 0.5\n", wantSteps: 2},
		{name: "data mapping", src: "data: cc\npseudo-mode: heat\n", wantCode: "cc"},
		{name: "mapping without data", src: "foo: bar\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			err := yaml.Unmarshal([]byte(tt.src), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", p.Code, tt.wantCode)
			}
			if len(p.Steps) != tt.wantSteps {
				t.Errorf("len(Steps) = %d, want %d", len(p.Steps), tt.wantSteps)
			}
		})
	}
}
