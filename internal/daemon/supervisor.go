package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the supervisor's view of the child process.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateBackoff State = "backoff"
	StateGivenUp State = "given_up"
)

// Defaults applied by New for zero values.
const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableAfter     = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second
	defaultCheckInterval   = 30 * time.Second

	// livenessFailureLimit consecutive failed checks kill the child.
	livenessFailureLimit = 3

	// livenessTimeout bounds one liveness check.
	livenessTimeout = 5 * time.Second
)

var (
	// ErrNoBinary is returned by New without a binary path.
	ErrNoBinary = errors.New("daemon: binary is required")

	// ErrAlreadyRunning is returned by Start on a running supervisor.
	ErrAlreadyRunning = errors.New("daemon: already running")

	// ErrNotRunning is reported by HealthCheck while the child is down.
	ErrNotRunning = errors.New("daemon: gateway daemon is not running")
)

// Config configures the supervised gateway daemon.
type Config struct {
	// Name labels log records. Defaults to the binary path.
	Name string

	Binary string
	Args   []string

	// Env is appended to the service environment.
	Env []string

	// RestartDelay is the first restart wait; it doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableAfter resets the backoff once the child has run this long.
	StableAfter time.Duration

	// MaxRestarts gives up after this many consecutive failures. Zero
	// restarts forever.
	MaxRestarts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration

	// Liveness reports whether the daemon is doing its job. Nil treats a
	// running process as alive.
	Liveness      func(ctx context.Context) error
	CheckInterval time.Duration
}

// Logger is the logging interface used by the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Supervisor runs the gateway daemon and keeps it running.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	started   time.Time
	failures  int
	restarts  int
	lastError error
	cancel    context.CancelFunc
	done      chan struct{}
}

// Stats is a snapshot for health reporting.
type Stats struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// New validates cfg and applies defaults.
//
// Parameters:
//   - cfg: Daemon configuration; Binary is required
//
// Returns:
//   - *Supervisor: Supervisor ready to start
//   - error: ErrNoBinary
func New(cfg Config) (*Supervisor, error) {
	if cfg.Binary == "" {
		return nil, ErrNoBinary
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = defaultStableAfter
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	return &Supervisor{cfg: cfg, logger: nopLogger{}, state: StateStopped}, nil
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the daemon. A binary that cannot be started is reported
// here; later exits are handled by restarting.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	cmd, err := s.spawn()
	if err != nil {
		cancel()
		s.mu.Lock()
		s.state = StateGivenUp
		s.lastError = err
		close(s.done)
		s.done = nil
		s.mu.Unlock()
		return err
	}

	go s.supervise(runCtx, cmd)
	return nil
}

// Stop terminates the daemon: SIGTERM to its process group, then SIGKILL
// after GracefulTimeout. It returns once supervision has ended.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	done, cancel, cmd := s.done, s.cancel, s.cmd
	s.mu.Unlock()
	if done == nil {
		return
	}

	cancel()
	if cmd != nil && cmd.Process != nil {
		s.signal(cmd, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(s.cfg.GracefulTimeout):
			s.logger.Warn("gateway daemon ignored SIGTERM, killing", "name", s.cfg.Name)
			s.signal(cmd, syscall.SIGKILL)
			<-done
		}
	} else {
		<-done
	}

	s.mu.Lock()
	s.state = StateStopped
	s.done = nil
	s.mu.Unlock()
	s.logger.Info("gateway daemon stopped", "name", s.cfg.Name)
}

// HealthCheck reports ErrNotRunning unless the child is up.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		if s.lastError != nil {
			return fmt.Errorf("%w: %v", ErrNotRunning, s.lastError)
		}
		return ErrNotRunning
	}
	return nil
}

// Stats returns the current supervision state.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Name: s.cfg.Name, State: s.state, Restarts: s.restarts}
	if s.cmd != nil && s.cmd.Process != nil && s.state == StateRunning {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.started)
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// spawn starts one child in its own process group.
func (s *Supervisor) spawn() (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from service configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	go s.relay("stdout", stdout)
	go s.relay("stderr", stderr)

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.Info("gateway daemon started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// relay logs the child's output line by line.
func (s *Supervisor) relay(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("gateway daemon output", "name", s.cfg.Name, "stream", stream, "line", scanner.Text())
	}
}

// supervise waits for the child and restarts it until ctx ends or the
// restart budget is spent.
func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd) {
	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		err := s.wait(ctx, cmd)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		ranFor := time.Since(s.started)
		if ranFor >= s.cfg.StableAfter {
			s.failures = 0
		}
		s.failures++
		failures := s.failures
		s.lastError = err
		s.state = StateBackoff
		s.mu.Unlock()

		s.logger.Warn("gateway daemon exited", "name", s.cfg.Name, "error", err, "ran_for", ranFor)

		if s.cfg.MaxRestarts > 0 && failures > s.cfg.MaxRestarts {
			s.logger.Error("gateway daemon keeps failing, giving up", "name", s.cfg.Name, "failures", failures)
			s.mu.Lock()
			s.state = StateGivenUp
			s.mu.Unlock()
			return
		}

		delay := s.backoff(failures)
		s.logger.Info("restarting gateway daemon", "name", s.cfg.Name, "attempt", failures, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		next, spawnErr := s.spawn()
		for spawnErr != nil {
			s.mu.Lock()
			s.failures++
			failures = s.failures
			s.lastError = spawnErr
			s.mu.Unlock()
			s.logger.Error("gateway daemon restart failed", "name", s.cfg.Name, "error", spawnErr)

			if s.cfg.MaxRestarts > 0 && failures > s.cfg.MaxRestarts {
				s.mu.Lock()
				s.state = StateGivenUp
				s.mu.Unlock()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff(failures)):
			}
			next, spawnErr = s.spawn()
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		cmd = next
	}
}

// wait returns when the child exits. Repeated liveness failures kill it.
func (s *Supervisor) wait(ctx context.Context, cmd *exec.Cmd) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if s.cfg.Liveness == nil {
		select {
		case err := <-exited:
			return err
		case <-ctx.Done():
			return <-exited
		}
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	failed := 0
	for {
		select {
		case err := <-exited:
			return err
		case <-ctx.Done():
			return <-exited
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, livenessTimeout)
			err := s.cfg.Liveness(checkCtx)
			cancel()
			if err == nil {
				failed = 0
				continue
			}
			failed++
			s.logger.Warn("gateway daemon liveness check failed", "name", s.cfg.Name, "error", err, "consecutive", failed)
			if failed >= livenessFailureLimit {
				s.signal(cmd, syscall.SIGKILL)
				<-exited
				return fmt.Errorf("killed after %d failed liveness checks: %w", failed, err)
			}
		}
	}
}

// backoff returns RestartDelay doubled per previous failure, capped at
// MaxRestartDelay.
func (s *Supervisor) backoff(failures int) time.Duration {
	delay := s.cfg.RestartDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= s.cfg.MaxRestartDelay {
			return s.cfg.MaxRestartDelay
		}
	}
	return delay
}

func (s *Supervisor) signal(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	// Negative pid signals the whole process group.
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("signalling gateway daemon failed", "name", s.cfg.Name, "signal", sig.String(), "error", err)
	}
}
