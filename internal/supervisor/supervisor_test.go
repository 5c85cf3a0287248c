package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runInBackground(t *testing.T, s *Supervisor, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()
	return errCh
}

func TestDefine_NoSideEffects(t *testing.T) {
	rec := Define(Spec{
		Name:        "ls",
		Path:        "ls",
		Args:        []string{"ls", "-la"},
		Cwd:         "/",
		MaxRestarts: DefaultMaxRestarts,
	})

	snap := rec.Snapshot()
	if snap.State != StateStopped {
		t.Errorf("state = %s, want stopped", snap.State)
	}
	if snap.RestartCount != 0 {
		t.Errorf("restartCount = %d, want 0", snap.RestartCount)
	}
	if snap.ExitStatus != nil {
		t.Errorf("exitStatus = %v, want nil", *snap.ExitStatus)
	}
	if snap.PID != 0 {
		t.Errorf("pid = %d, want 0", snap.PID)
	}

	// A never-launched record stays put.
	time.Sleep(100 * time.Millisecond)
	snap = rec.Snapshot()
	if snap.State != StateStopped || snap.RestartCount != 0 || snap.ExitStatus != nil {
		t.Errorf("never-launched record changed: %+v", snap)
	}
}

func TestFromArgv_Defaults(t *testing.T) {
	rec := FromArgv([]string{"ls", "-la"}, "/", 0)
	if rec == nil {
		t.Fatal("FromArgv returned nil")
	}

	spec := rec.Spec()
	if spec.Name != "ls" || spec.Path != "ls" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.MaxRestarts != DefaultMaxRestarts {
		t.Errorf("MaxRestarts = %d, want %d", spec.MaxRestarts, DefaultMaxRestarts)
	}

	if FromArgv(nil, "", 0) != nil {
		t.Error("FromArgv(nil) should return nil")
	}
}

func TestRun_RestartsUntilBudgetExhausted(t *testing.T) {
	const delay = 300 * time.Millisecond
	const maxRestarts = 2

	rec := Define(Spec{
		Name:         "ls",
		Path:         "ls",
		Args:         []string{"ls", "-la"},
		Cwd:          "/",
		RestartDelay: delay,
		MaxRestarts:  maxRestarts,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())

	// Mid-delay after the first quick exit: one unit of budget consumed,
	// clean exit recorded, waiting out the restart delay.
	time.Sleep(delay / 2)
	snap := rec.Snapshot()
	if snap.State != StateRestarting {
		t.Errorf("state = %s, want restarting", snap.State)
	}
	if snap.RestartCount != 1 {
		t.Errorf("restartCount = %d, want 1", snap.RestartCount)
	}
	if snap.ExitStatus == nil || *snap.ExitStatus != 0 {
		t.Errorf("exitStatus = %v, want 0", snap.ExitStatus)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRestartBudgetExhausted) {
			t.Errorf("Run returned %v, want ErrRestartBudgetExhausted", err)
		}
	case <-time.After(time.Duration(maxRestarts+2) * delay):
		t.Fatal("supervisor did not fail within budget window")
	}

	snap = rec.Snapshot()
	if snap.State != StateFailed {
		t.Errorf("state = %s, want failed", snap.State)
	}
	if snap.RestartCount != maxRestarts {
		t.Errorf("restartCount = %d, want %d", snap.RestartCount, maxRestarts)
	}
}

func TestRun_ZeroBudgetNoRetries(t *testing.T) {
	rec := Define(Spec{
		Name:        "false",
		Path:        "false",
		Args:        []string{"false"},
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRestartBudgetExhausted) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not terminate")
	}

	snap := rec.Snapshot()
	if snap.ExitStatus == nil || *snap.ExitStatus != 1 {
		t.Errorf("exitStatus = %v, want 1", snap.ExitStatus)
	}
	if snap.State != StateFailed {
		t.Errorf("state = %s, want failed", snap.State)
	}
	if snap.RestartCount != 0 {
		t.Errorf("restartCount = %d, want 0", snap.RestartCount)
	}
}

func TestRun_StdoutRelayed(t *testing.T) {
	rec := Define(Spec{
		Name:        "echo",
		Path:        "echo",
		Args:        []string{"echo", "test"},
		Cwd:         "/",
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	runInBackground(t, s, context.Background())

	select {
	case line := <-rec.Relay().Stdout():
		if line != "test" {
			t.Errorf("stdout line = %q, want %q", line, "test")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stdout line relayed")
	}
}

func TestRun_StderrRelayed(t *testing.T) {
	rec := Define(Spec{
		Name:        "bash",
		Path:        "bash",
		Args:        []string{"bash", "-c", "echo oops >&2"},
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	runInBackground(t, s, context.Background())

	select {
	case line := <-rec.Relay().Stderr():
		if line != "oops" {
			t.Errorf("stderr line = %q, want %q", line, "oops")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stderr line relayed")
	}
}

func TestRun_StdinFlushed(t *testing.T) {
	// head -n1 echoes back the first line it receives, then exits.
	rec := Define(Spec{
		Name:        "head",
		Path:        "head",
		Args:        []string{"head", "-n1"},
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	runInBackground(t, s, context.Background())

	rec.Relay().Stdin() <- "ping\n"

	select {
	case line := <-rec.Relay().Stdout():
		if line != "ping" {
			t.Errorf("echoed line = %q, want %q", line, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stdin input was not written through")
	}
}

func TestRun_SpawnFailureIsFailedNotPanic(t *testing.T) {
	rec := Define(Spec{
		Name:        "nonexistent",
		Path:        "/nonexistent/definitely-not-a-binary",
		Args:        []string{"nonexistent"},
		MaxRestarts: 3,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected spawn error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not terminate")
	}

	snap := rec.Snapshot()
	if snap.State != StateFailed {
		t.Errorf("state = %s, want failed", snap.State)
	}
	if snap.Err == nil {
		t.Error("failure cause not recorded")
	}
	// Spawn failure is fatal, not a retried exit.
	if snap.RestartCount != 0 {
		t.Errorf("restartCount = %d, want 0", snap.RestartCount)
	}
}

func TestRun_ExitCodeRecorded(t *testing.T) {
	rec := Define(Spec{
		Name:        "bash",
		Path:        "bash",
		Args:        []string{"bash", "-c", "exit 42"},
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())
	<-errCh

	snap := rec.Snapshot()
	if snap.ExitStatus == nil || *snap.ExitStatus != 42 {
		t.Errorf("exitStatus = %v, want 42", snap.ExitStatus)
	}
}

func TestRun_SignalExitHasNoCode(t *testing.T) {
	rec := Define(Spec{
		Name:        "bash",
		Path:        "bash",
		Args:        []string{"bash", "-c", "kill -TERM $$"},
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())

	select {
	case err := <-errCh:
		// Signal exits still consume budget like any other exit.
		if !errors.Is(err, ErrRestartBudgetExhausted) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not terminate")
	}

	snap := rec.Snapshot()
	if snap.ExitStatus != nil {
		t.Errorf("exitStatus = %v, want nil for signal exit", *snap.ExitStatus)
	}
	if snap.State != StateFailed {
		t.Errorf("state = %s, want failed", snap.State)
	}
}

func TestRun_SecondLaunchRejected(t *testing.T) {
	rec := Define(Spec{
		Name:         "sleep",
		Path:         "sleep",
		Args:         []string{"sleep", "5"},
		RestartDelay: time.Second,
		MaxRestarts:  1,
	})
	s := New(Config{Record: rec, Logger: testLogger(), StopGrace: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := runInBackground(t, s, ctx)

	// Give the first loop time to claim the record.
	waitForState(t, rec, StateRunning, 2*time.Second)

	if err := New(Config{Record: rec, Logger: testLogger()}).Run(ctx); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("second Run returned %v, want ErrAlreadyLaunched", err)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled supervisor did not return")
	}
}

func TestRun_CancelStopsChild(t *testing.T) {
	rec := Define(Spec{
		Name:        "sleep",
		Path:        "sleep",
		Args:        []string{"sleep", "60"},
		MaxRestarts: 5,
	})
	s := New(Config{Record: rec, Logger: testLogger(), StopGrace: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runInBackground(t, s, ctx)

	waitForState(t, rec, StateRunning, 2*time.Second)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}

	snap := rec.Snapshot()
	if snap.State != StateStopped {
		t.Errorf("state = %s, want stopped after cancel", snap.State)
	}
	if snap.PID != 0 {
		t.Errorf("pid = %d, want 0 after stop", snap.PID)
	}
}

func TestRun_FailedIsTerminal(t *testing.T) {
	rec := Define(Spec{
		Name:        "false",
		Path:        "false",
		Args:        []string{"false"},
		MaxRestarts: 0,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())
	<-errCh

	first := rec.Snapshot()
	if first.State != StateFailed {
		t.Fatalf("state = %s, want failed", first.State)
	}

	// Observe repeatedly: nothing changes after Failed.
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		snap := rec.Snapshot()
		if snap.State != StateFailed || snap.RestartCount != first.RestartCount {
			t.Fatalf("failed record mutated: %+v", snap)
		}
	}
}

func TestRun_InvariantBudgetNeverExceeded(t *testing.T) {
	const maxRestarts = 3
	rec := Define(Spec{
		Name:         "true",
		Path:         "true",
		Args:         []string{"true"},
		RestartDelay: 20 * time.Millisecond,
		MaxRestarts:  maxRestarts,
	})
	s := New(Config{Record: rec, Logger: testLogger()})

	errCh := runInBackground(t, s, context.Background())

	done := false
	for !done {
		select {
		case <-errCh:
			done = true
		default:
			if snap := rec.Snapshot(); snap.RestartCount > maxRestarts {
				t.Fatalf("restartCount %d exceeds budget %d", snap.RestartCount, maxRestarts)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	if snap := rec.Snapshot(); snap.RestartCount != maxRestarts {
		t.Errorf("final restartCount = %d, want %d", snap.RestartCount, maxRestarts)
	}
}

func TestRun_Callbacks(t *testing.T) {
	var mu sync.Mutex
	var transitions []State
	var starts, exits, restarts int

	rec := Define(Spec{
		Name:         "true",
		Path:         "true",
		Args:         []string{"true"},
		RestartDelay: 10 * time.Millisecond,
		MaxRestarts:  1,
	})
	s := New(Config{
		Record: rec,
		Logger: testLogger(),
		Callbacks: Callbacks{
			OnStateChange: func(_ *Record, _, to State) {
				mu.Lock()
				transitions = append(transitions, to)
				mu.Unlock()
			},
			OnStart: func(_ *Record, pid int) {
				mu.Lock()
				starts++
				mu.Unlock()
				if pid <= 0 {
					t.Errorf("OnStart pid = %d", pid)
				}
			},
			OnExit: func(_ *Record, status *int, _ time.Duration) {
				mu.Lock()
				exits++
				mu.Unlock()
				if status == nil || *status != 0 {
					t.Errorf("OnExit status = %v, want 0", status)
				}
			},
			OnRestart: func(_ *Record, attempt int, _ time.Duration) {
				mu.Lock()
				restarts++
				mu.Unlock()
				if attempt != 1 {
					t.Errorf("OnRestart attempt = %d, want 1", attempt)
				}
			},
		},
	})

	errCh := runInBackground(t, s, context.Background())
	<-errCh

	mu.Lock()
	defer mu.Unlock()
	if starts != 2 {
		t.Errorf("starts = %d, want 2 (initial + one restart)", starts)
	}
	if exits != 2 {
		t.Errorf("exits = %d, want 2", exits)
	}
	if restarts != 1 {
		t.Errorf("restarts = %d, want 1", restarts)
	}
	if len(transitions) == 0 || transitions[len(transitions)-1] != StateFailed {
		t.Errorf("transitions = %v, want trailing failed", transitions)
	}
}

func TestClassifyExit_NilError(t *testing.T) {
	status, err := classifyExit(nil)
	if err != nil {
		t.Fatalf("unexpected observation error: %v", err)
	}
	if status == nil || *status != 0 {
		t.Errorf("status = %v, want 0", status)
	}
}

func TestClassifyExit_ObservationError(t *testing.T) {
	observed := errors.New("waitid: no child processes")
	status, err := classifyExit(observed)
	if err == nil {
		t.Fatal("expected observation error to be fatal")
	}
	if status != nil {
		t.Errorf("status = %v, want nil", *status)
	}
}

// waitForState polls the record until it reaches the wanted state.
func waitForState(t *testing.T, rec *Record, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if rec.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("record never reached state %s (currently %s)", want, rec.State())
}
