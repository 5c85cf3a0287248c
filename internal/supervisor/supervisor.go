package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-overlord/internal/relay"
)

var (
	// ErrAlreadyLaunched is returned by Run when a supervision loop is
	// already active for the record.
	ErrAlreadyLaunched = errors.New("supervision loop already active for record")

	// ErrRestartBudgetExhausted is returned by Run when the record has used
	// its whole restart budget.
	ErrRestartBudgetExhausted = errors.New("restart budget exhausted")
)

// defaultStopGrace is how long a child gets after SIGTERM before SIGKILL.
const defaultStopGrace = 5 * time.Second

// drainTimeout bounds how long we wait for the relay pumps to finish reading
// pipe data after the process exits.
const drainTimeout = 5 * time.Second

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the record's state changes.
	OnStateChange func(rec *Record, oldState, newState State)

	// OnStart is called when the process starts.
	OnStart func(rec *Record, pid int)

	// OnExit is called when the process exits. exitStatus is nil for
	// signal-terminated runs.
	OnExit func(rec *Record, exitStatus *int, uptime time.Duration)

	// OnRestart is called before a restart attempt.
	OnRestart func(rec *Record, attempt int, delay time.Duration)
}

// Supervisor owns one record's full OS process lifecycle: spawning, waiting,
// stdio relay, restart decisions, and terminal failure. It runs as a single
// goroutine via Run.
type Supervisor struct {
	rec       *Record
	logger    *slog.Logger
	callbacks Callbacks
	stopGrace time.Duration
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Record    *Record
	Logger    *slog.Logger
	Callbacks Callbacks

	// StopGrace is how long the child gets after SIGTERM on cancellation
	// before it is killed. Defaults to 5s.
	StopGrace time.Duration
}

// New creates a new Supervisor for the given record.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	return &Supervisor{
		rec:       cfg.Record,
		logger:    logger,
		callbacks: cfg.Callbacks,
		stopGrace: grace,
	}
}

// Record returns the supervised record.
func (s *Supervisor) Record() *Record {
	return s.rec
}

// Run starts the supervision loop. It blocks until one of:
//   - the context is cancelled (record returns to Stopped),
//   - the restart budget is exhausted (record Failed),
//   - spawning or observing the process fails at the OS level (record Failed).
//
// Run is idempotent-safe: a second concurrent call on the same record returns
// ErrAlreadyLaunched instead of starting a competing loop.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.rec.beginLaunch() {
		return ErrAlreadyLaunched
	}
	defer s.rec.endLaunch()

	s.logger.Debug("supervisor_starting", "process", s.rec.Name(), "id", s.rec.ID())

	for {
		select {
		case <-ctx.Done():
			s.transition(s.rec.setStopped(), StateStopped)
			s.logger.Debug("supervisor_stopped",
				"process", s.rec.Name(),
				"reason", "context_cancelled",
			)
			return ctx.Err()
		default:
		}

		exitStatus, uptime, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.transition(s.rec.setStopped(), StateStopped)
			return ctx.Err()
		}
		if err != nil {
			// Spawn failure or a failure to observe the process. Both are
			// unconditionally fatal, regardless of remaining budget.
			s.transition(s.rec.fail(err), StateFailed)
			s.logger.Error("process_failed",
				"process", s.rec.Name(),
				"error", err,
			)
			return err
		}

		s.rec.recordExit(exitStatus)
		if s.callbacks.OnExit != nil {
			s.callbacks.OnExit(s.rec, exitStatus, uptime)
		}

		// Every exit consumes budget, a clean zero included. There is no
		// "succeeded, stop" terminal state.
		if s.rec.budgetExhausted() {
			s.transition(s.rec.fail(ErrRestartBudgetExhausted), StateFailed)
			snap := s.rec.Snapshot()
			s.logger.Warn("max_restarts_reached",
				"process", s.rec.Name(),
				"restarts", snap.RestartCount,
				"max", snap.MaxRestarts,
			)
			return ErrRestartBudgetExhausted
		}

		s.transition(s.rec.markRestarting(), StateRestarting)

		snap := s.rec.Snapshot()
		delay := s.rec.Spec().RestartDelay
		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(s.rec, snap.RestartCount, delay)
		}
		s.logger.Info("process_restart_scheduled",
			"process", s.rec.Name(),
			"attempt", snap.RestartCount,
			"delay", delay.String(),
		)

		select {
		case <-ctx.Done():
			s.transition(s.rec.setStopped(), StateStopped)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce spawns the process, relays its stdio, and waits for it to exit.
// Returns the exit status (nil for signal termination), the uptime, and a
// fatal error if the process could not be spawned or observed.
func (s *Supervisor) runOnce(ctx context.Context) (exitStatus *int, uptime time.Duration, err error) {
	s.transition(s.rec.setStarting(), StateStarting)

	spec := s.rec.Spec()
	cmd := buildCommand(spec)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.logger.Error("failed_to_start_process",
			"process", spec.Name,
			"path", spec.Path,
			"error", err,
		)
		return nil, 0, fmt.Errorf("spawn %s: %w", spec.Path, err)
	}

	pid := cmd.Process.Pid
	s.transition(s.rec.setRunning(pid), StateRunning)

	s.logger.Info("process_started",
		"process", spec.Name,
		"pid", pid,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.rec, pid)
	}

	// Relay stdio for this run. The output pumps end at pipe EOF; the stdin
	// pump ends when the run is over.
	rl := s.rec.Relay()
	runCtx, endRun := context.WithCancel(context.Background())
	defer endRun()

	var pumps relay.PumpGroup
	pumps.Go(func() { rl.PumpStdout(stdout) })
	pumps.Go(func() { rl.PumpStderr(stderr) })
	go rl.PumpStdin(runCtx, stdin)

	// Terminate the child if the supervisor is cancelled mid-run.
	waited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.terminate(cmd)
		case <-waited:
		}
	}()

	waitErr := cmd.Wait()
	close(waited)
	uptime = time.Since(start)
	endRun()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if !pumps.Wait(drainCtx) {
		s.logger.Warn("relay_drain_timeout",
			"process", spec.Name,
			"timeout", drainTimeout.String(),
		)
	}

	exitStatus, obsErr := classifyExit(waitErr)
	if obsErr != nil {
		return nil, uptime, fmt.Errorf("wait for %s: %w", spec.Name, obsErr)
	}

	if exitStatus == nil {
		s.logger.Warn("process_killed_by_signal",
			"process", spec.Name,
			"pid", pid,
			"uptime", uptime.String(),
		)
	} else {
		s.logger.Info("process_exited",
			"process", spec.Name,
			"pid", pid,
			"exit_code", *exitStatus,
			"uptime", uptime.String(),
		)
	}

	return exitStatus, uptime, nil
}

// terminate stops the child: SIGTERM to the process group, SIGKILL after the
// grace period if it is still around.
func (s *Supervisor) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if pgid, err := syscall.Getpgid(pid); err == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		cmd.Process.Signal(syscall.SIGTERM)
	}

	timer := time.NewTimer(s.stopGrace)
	defer timer.Stop()
	<-timer.C

	// Still alive? Signal 0 probes liveness without side effects.
	if err := cmd.Process.Signal(syscall.Signal(0)); err == nil {
		s.logger.Warn("force_killing_process",
			"process", s.rec.Name(),
			"pid", pid,
		)
		if pgid, err := syscall.Getpgid(pid); err == nil {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			cmd.Process.Kill()
		}
	}
}

// transition fires the state-change callback when a transition happened.
func (s *Supervisor) transition(from, to State) {
	if s.callbacks.OnStateChange != nil && from != to {
		s.callbacks.OnStateChange(s.rec, from, to)
	}
}

// buildCommand constructs the OS invocation for a spec. Args[0] is the
// conventional program name and is excluded from the invocation. The child
// gets its own process group so termination reaches its descendants.
func buildCommand(spec Spec) *exec.Cmd {
	var args []string
	if len(spec.Args) > 1 {
		args = spec.Args[1:]
	}
	cmd := exec.Command(spec.Path, args...)
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

// classifyExit turns a Wait() result into an exit status.
//
// A nil status with nil error means the run was terminated by a signal and
// produced no exit code - for retry purposes that is treated like any other
// exit. A non-nil error means the supervisor failed to observe the process
// at all, which is fatal.
func classifyExit(waitErr error) (exitStatus *int, obsErr error) {
	if waitErr == nil {
		code := 0
		return &code, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return nil, nil
			}
			code := status.ExitStatus()
			return &code, nil
		}
		code := exitErr.ExitCode()
		return &code, nil
	}

	return nil, waitErr
}
