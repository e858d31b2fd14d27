package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
)

// Status represents the current state of the supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableThreshold = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second

	// exitConfig is EX_CONFIG from sysexits.h.
	exitConfig = 78

	maxOutputLine = 16 * 1024
)

// RecoverableError is implemented by exit errors that know whether a
// restart can help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart could succeed after err. Errors
// that do not say otherwise are recoverable.
func IsRecoverable(err error) bool {
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// exitError classifies a daemon exit by its status code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) IsRecoverable() bool { return e.code != exitConfig }

func classifyExit(err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() >= 0 {
		return &exitError{code: ee.ExitCode(), err: err}
	}
	return err
}

// Config holds the settings of the supervised process.
type Config struct {
	// Name identifies the process in logs. Defaults to the binary name.
	Name   string
	Binary string
	Args   []string

	// Env is appended to the gateway's environment.
	Env []string

	RestartOnFailure bool

	// RestartDelay is the first back-off step; each further failure
	// doubles it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the back-off to
	// start over.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	OnStart   func()
	OnStop    func(err error)
	OnRestart func(attempt int)
}

// FromDaemonConfig converts the driver.daemon configuration section.
func FromDaemonConfig(cfg config.DaemonConfig) Config {
	return Config{
		Name:               filepath.Base(cfg.Binary),
		Binary:             cfg.Binary,
		Args:               cfg.Args,
		RestartOnFailure:   cfg.RestartOnFailure,
		RestartDelay:       time.Duration(cfg.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one child process and keeps it alive.
type Supervisor struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	stopCh        chan struct{}
	done          chan struct{}
}

// New creates a supervisor, filling unset durations with defaults.
func New(cfg Config) *Supervisor {
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Binary)
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
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Supervisor{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the process and begins supervising it. The first launch
// is synchronous so a missing binary is reported here.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusStopped && s.status != StatusFailed {
		s.mu.Unlock()
		return fmt.Errorf("process %s is already running", s.config.Name)
	}
	s.status = StatusStarting
	s.stopRequested = false
	s.restartCount = 0
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	inst, err := s.launch()
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastError = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(ctx, inst)
	return nil
}

// instance is one launched copy of the process.
type instance struct {
	cmd    *exec.Cmd
	output sync.WaitGroup
}

// wait returns once the output is drained and the process has exited.
func (i *instance) wait() error {
	i.output.Wait()
	return i.cmd.Wait()
}

// launch starts one instance of the process in its own process group.
func (s *Supervisor) launch() (*instance, error) {
	s.logger.Info("starting process", "name", s.config.Name, "binary", s.config.Binary, "args", s.config.Args)

	cmd := exec.Command(s.config.Binary, s.config.Args...) //nolint:gosec // Binary comes from the operator's configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.config.Env != nil {
		cmd.Env = append(os.Environ(), s.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.config.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	inst := &instance{cmd: cmd}
	inst.output.Add(2)
	go s.forward("stdout", stdout, &inst.output)
	go s.forward("stderr", stderr, &inst.output)

	s.logger.Info("process started", "name", s.config.Name, "pid", cmd.Process.Pid)
	if s.config.OnStart != nil {
		s.config.OnStart()
	}
	return inst, nil
}

// forward logs the process output line by line. stderr is logged at Info
// since daemons commonly write their normal log there.
func (s *Supervisor) forward(stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), maxOutputLine)
	for scanner.Scan() {
		if stream == "stderr" {
			s.logger.Info("process output", "name", s.config.Name, "stream", stream, "line", scanner.Text())
		} else {
			s.logger.Debug("process output", "name", s.config.Name, "stream", stream, "line", scanner.Text())
		}
	}
	// Keep draining so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// supervise waits for each run to end and decides whether to restart.
func (s *Supervisor) supervise(ctx context.Context, inst *instance) {
	defer close(s.done)

	for {
		err := classifyExit(inst.wait())

		s.mu.Lock()
		stopRequested := s.stopRequested
		ran := time.Since(s.startTime)
		s.mu.Unlock()

		if stopRequested {
			s.setStopped(nil)
			s.logger.Info("process stopped as requested", "name", s.config.Name)
			return
		}

		s.logger.Warn("process exited unexpectedly", "name", s.config.Name, "error", err, "ran_for", ran)
		s.mu.Lock()
		s.lastError = err
		s.status = StatusFailed
		if ran >= s.config.StableThreshold {
			s.restartCount = 0
		}
		s.mu.Unlock()
		if s.config.OnStop != nil {
			s.config.OnStop(err)
		}

		next, ok := s.restart(ctx, err)
		if !ok {
			return
		}
		inst = next
	}
}

// restart waits out the back-off and relaunches, retrying failed launches
// within the same attempt budget.
func (s *Supervisor) restart(ctx context.Context, cause error) (*instance, bool) {
	if !s.config.RestartOnFailure {
		s.logger.Info("restart disabled, not restarting", "name", s.config.Name)
		return nil, false
	}
	if !IsRecoverable(cause) {
		s.logger.Error("process cannot start with its configuration, not restarting",
			"name", s.config.Name, "error", cause)
		return nil, false
	}

	for {
		s.mu.Lock()
		s.restartCount++
		attempt := s.restartCount
		s.status = StatusBackoff
		s.mu.Unlock()

		if s.config.MaxRestartAttempts > 0 && attempt > s.config.MaxRestartAttempts {
			s.logger.Error("max restart attempts reached", "name", s.config.Name, "attempts", attempt-1)
			s.setFailed()
			return nil, false
		}

		delay := s.calculateBackoffDelay(attempt)
		s.logger.Info("restarting process", "name", s.config.Name, "attempt", attempt, "delay", delay)
		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, not restarting", "name", s.config.Name)
			s.setStopped(ctx.Err())
			return nil, false
		case <-s.stopCh:
			s.setStopped(nil)
			return nil, false
		case <-time.After(delay):
		}

		inst, err := s.launch()
		if err == nil {
			return inst, true
		}
		s.logger.Error("failed to restart process", "name", s.config.Name, "error", err)
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
	}
}

// calculateBackoffDelay returns RestartDelay doubled for each attempt
// after the first, capped at MaxRestartDelay.
func (s *Supervisor) calculateBackoffDelay(attempt int) time.Duration {
	delay := s.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.config.MaxRestartDelay {
			return s.config.MaxRestartDelay
		}
	}
	return delay
}

func (s *Supervisor) setStopped(err error) {
	s.mu.Lock()
	s.status = StatusStopped
	if err != nil {
		s.lastError = err
	}
	s.mu.Unlock()
	if s.config.OnStop != nil && err == nil {
		s.config.OnStop(nil)
	}
}

func (s *Supervisor) setFailed() {
	s.mu.Lock()
	s.status = StatusFailed
	s.mu.Unlock()
}

// Stop terminates the process group with SIGTERM, escalating to SIGKILL
// after GracefulTimeout, and ends supervision.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.done == nil || s.stopRequested {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	close(s.stopCh)
	cmd := s.cmd
	status := s.status
	done := s.done
	s.mu.Unlock()

	if status != StatusRunning || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping process", "name", s.config.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM to process group", "name", s.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.config.GracefulTimeout):
		s.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", s.config.Name, "timeout", s.config.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", s.config.Name, err)
	}
	<-done
	s.logger.Info("process killed", "name", s.config.Name)
	return nil
}

// Status returns the current state of the process.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats is a snapshot of the supervised process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Name:         s.config.Name,
		Status:       s.status,
		RestartCount: s.restartCount,
	}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}
