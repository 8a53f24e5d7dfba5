package daemon

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Binary: "/usr/local/bin/broadlink-gateway"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RestartDelay", s.cfg.RestartDelay, defaultRestartDelay},
		{"MaxRestartDelay", s.cfg.MaxRestartDelay, defaultMaxRestartDelay},
		{"StableAfter", s.cfg.StableAfter, defaultStableAfter},
		{"GracefulTimeout", s.cfg.GracefulTimeout, defaultGracefulTimeout},
		{"CheckInterval", s.cfg.CheckInterval, defaultCheckInterval},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if s.cfg.Name != "/usr/local/bin/broadlink-gateway" {
		t.Errorf("Name = %q, want the binary path", s.cfg.Name)
	}
	if s.Stats().State != StateStopped {
		t.Errorf("State = %q, want %q", s.Stats().State, StateStopped)
	}
}

func TestNew_RequiresBinary(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoBinary) {
		t.Errorf("New() error = %v, want ErrNoBinary", err)
	}
}

func TestBackoff(t *testing.T) {
	s, err := New(Config{
		Binary:          "/bin/true",
		RestartDelay:    time.Second,
		MaxRestartDelay: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := s.backoff(tt.failures); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestSupervisor_StartAndStop(t *testing.T) {
	s, err := New(Config{
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	stats := s.Stats()
	if stats.State != StateRunning || stats.PID == 0 {
		t.Errorf("Stats() = %+v, want running with a pid", stats)
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	s.Stop()

	if got := s.Stats().State; got != StateStopped {
		t.Errorf("State after Stop() = %q, want %q", got, StateStopped)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("HealthCheck() after Stop() = %v, want ErrNotRunning", err)
	}

	// Stop is idempotent.
	s.Stop()
}

func TestSupervisor_StartWithInvalidBinary(t *testing.T) {
	s, err := New(Config{Binary: "/nonexistent/broadlink-gateway"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}
	if got := s.Stats().State; got != StateGivenUp {
		t.Errorf("State = %q, want %q", got, StateGivenUp)
	}
	if err := s.HealthCheck(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("HealthCheck() = %v, want ErrNotRunning", err)
	}
}

func TestSupervisor_GivesUpAfterMaxRestarts(t *testing.T) {
	s, err := New(Config{
		Binary:       "/bin/false",
		RestartDelay: 10 * time.Millisecond,
		MaxRestarts:  2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().State != StateGivenUp && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	stats := s.Stats()
	if stats.State != StateGivenUp {
		t.Fatalf("State = %q, want %q", stats.State, StateGivenUp)
	}
	if stats.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", stats.Restarts)
	}
	if stats.LastError == "" {
		t.Error("LastError is empty after failed runs")
	}
	s.Stop()
}

func TestSupervisor_LivenessKillsChild(t *testing.T) {
	s, err := New(Config{
		Binary:        "/bin/sleep",
		Args:          []string{"60"},
		RestartDelay:  time.Hour,
		CheckInterval: 10 * time.Millisecond,
		Liveness: func(context.Context) error {
			return errors.New("no heartbeat")
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().State != StateBackoff && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.Stats().State; got != StateBackoff {
		t.Fatalf("State = %q, want %q after failed liveness", got, StateBackoff)
	}
	s.Stop()
}
