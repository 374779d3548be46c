package process

import (
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

// State is the lifecycle state of a Child.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateBackoff State = "backoff"
	StateExited  State = "exited"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = time.Minute
	defaultStopTimeout     = 10 * time.Second
	defaultHealthInterval  = 30 * time.Second
	defaultHealthFailures  = 3
	healthCheckTimeout     = 5 * time.Second
)

// Spec describes a child process and how to supervise it.
type Spec struct {
	// Name identifies the child in logs and stats.
	Name string

	Path string
	Args []string

	// Env is appended to the supervisor's environment.
	Env []string

	// Stdout and Stderr default to the supervisor's own.
	Stdout io.Writer
	Stderr io.Writer

	// RestartDelay is the first backoff delay. It doubles after each
	// consecutive failure up to MaxRestartDelay, and resets once a child
	// has stayed up for MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestarts limits restarts. 0 means unlimited.
	MaxRestarts int

	// StopTimeout is how long a child gets after SIGTERM before SIGKILL.
	StopTimeout time.Duration

	// Health is polled every HealthInterval while the child runs. After
	// HealthFailures consecutive errors the child is killed and restarted.
	// Nil disables health checks.
	Health         func(ctx context.Context) error
	HealthInterval time.Duration
	HealthFailures int
}

func (s *Spec) applyDefaults() {
	if s.Stdout == nil {
		s.Stdout = os.Stdout
	}
	if s.Stderr == nil {
		s.Stderr = os.Stderr
	}
	if s.RestartDelay <= 0 {
		s.RestartDelay = defaultRestartDelay
	}
	if s.MaxRestartDelay <= 0 {
		s.MaxRestartDelay = defaultMaxRestartDelay
	}
	s.MaxRestartDelay = max(s.MaxRestartDelay, s.RestartDelay)
	if s.StopTimeout <= 0 {
		s.StopTimeout = defaultStopTimeout
	}
	if s.HealthInterval <= 0 {
		s.HealthInterval = defaultHealthInterval
	}
	if s.HealthFailures <= 0 {
		s.HealthFailures = defaultHealthFailures
	}
}

// Logger is the logging interface used by Child.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Child supervises one command. Stats is safe to call while Run is active.
type Child struct {
	spec   Spec
	logger Logger

	mu       sync.RWMutex
	state    State
	pid      int
	started  time.Time
	restarts int
	lastErr  error
}

// New creates a Child. Zero-valued Spec fields take their defaults.
func New(spec Spec) *Child {
	spec.applyDefaults()
	return &Child{spec: spec, logger: noopLogger{}, state: StateIdle}
}

// SetLogger sets the logger. Passing nil restores the no-op logger.
func (c *Child) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Run starts the child and keeps it running until ctx is cancelled, in
// which case it returns nil once the child is gone. It returns an error
// wrapping ErrGaveUp when MaxRestarts is exhausted.
func (c *Child) Run(ctx context.Context) error {
	delay := c.spec.RestartDelay

	for {
		began := time.Now()
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			c.setState(StateExited)
			c.logger.Info("child stopped", "name", c.spec.Name)
			return nil
		}

		c.mu.Lock()
		c.lastErr = err
		c.pid = 0
		restarts := c.restarts
		c.mu.Unlock()

		if c.spec.MaxRestarts > 0 && restarts >= c.spec.MaxRestarts {
			c.setState(StateExited)
			c.logger.Error("child failed, restart limit reached", "name", c.spec.Name, "restarts", restarts, "error", err)
			return fmt.Errorf("%w: %s after %d restarts: %w", ErrGaveUp, c.spec.Name, restarts, err)
		}

		if time.Since(began) >= c.spec.MaxRestartDelay {
			delay = c.spec.RestartDelay
		}
		c.setState(StateBackoff)
		c.logger.Warn("child exited, restarting", "name", c.spec.Name, "error", err, "delay", delay.String())

		select {
		case <-ctx.Done():
			c.setState(StateExited)
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, c.spec.MaxRestartDelay)

		c.mu.Lock()
		c.restarts++
		c.mu.Unlock()
	}
}

func (c *Child) runOnce(ctx context.Context) error {
	cmd := exec.Command(c.spec.Path, c.spec.Args...) //nolint:gosec // path and args come from the supervisor, not user input
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), c.spec.Env...)
	cmd.Stdout = c.spec.Stdout
	cmd.Stderr = c.spec.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.spec.Name, err)
	}
	pid := cmd.Process.Pid

	c.mu.Lock()
	c.state = StateRunning
	c.pid = pid
	c.started = time.Now()
	c.mu.Unlock()
	c.logger.Info("child started", "name", c.spec.Name, "pid", pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var healthTick <-chan time.Time
	if c.spec.Health != nil {
		ticker := time.NewTicker(c.spec.HealthInterval)
		defer ticker.Stop()
		healthTick = ticker.C
	}

	failures := 0
	for {
		select {
		case err := <-exited:
			if err == nil {
				return ErrUnexpectedExit
			}
			return err

		case <-ctx.Done():
			c.stop(pid, exited)
			return ctx.Err()

		case <-healthTick:
			err := c.checkHealth(ctx)
			if err == nil {
				if failures > 0 {
					c.logger.Info("child healthy again", "name", c.spec.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			c.logger.Warn("child health check failed", "name", c.spec.Name, "failures", failures, "error", err)
			if failures >= c.spec.HealthFailures {
				signalGroup(pid, syscall.SIGKILL)
				<-exited
				return fmt.Errorf("%w: %d failed checks: %w", ErrUnhealthy, failures, err)
			}
		}
	}
}

func (c *Child) checkHealth(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return c.spec.Health(checkCtx)
}

// stop sends SIGTERM to the child's group and escalates to SIGKILL after
// StopTimeout. It returns once the child has been reaped.
func (c *Child) stop(pid int, exited <-chan error) {
	c.logger.Info("stopping child", "name", c.spec.Name, "pid", pid)
	signalGroup(pid, syscall.SIGTERM)

	select {
	case <-exited:
		return
	case <-time.After(c.spec.StopTimeout):
		c.logger.Warn("child ignored SIGTERM, killing", "name", c.spec.Name, "timeout", c.spec.StopTimeout.String())
	}

	signalGroup(pid, syscall.SIGKILL)
	<-exited
}

// signalGroup signals every process in the group led by pid. A group that
// has already gone is not an error.
func signalGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = syscall.Kill(pid, sig)
	}
}

func (c *Child) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Stats is a snapshot of a child's supervision state.
type Stats struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns the current supervision state.
func (c *Child) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Name:     c.spec.Name,
		State:    c.state,
		PID:      c.pid,
		Restarts: c.restarts,
	}
	if c.state == StateRunning {
		s.Uptime = time.Since(c.started)
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
