package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-overlord/internal/relay"
)

// DefaultMaxRestarts is the retry budget applied by FromArgv and by config
// loading when no explicit budget is given.
const DefaultMaxRestarts = 5

// Spec is the static definition of a supervised process.
type Spec struct {
	// Name is the display name. By convention it equals Args[0].
	Name string

	// Path is the executable to spawn.
	Path string

	// Args is the full argument vector. Args[0] is the conventional program
	// name and is not passed to the OS invocation; only Args[1:] is.
	Args []string

	// Cwd is an optional working directory override. Empty means inherit.
	Cwd string

	// RestartDelay is the fixed pause between a completed run and the next
	// spawn attempt. No backoff, no jitter.
	RestartDelay time.Duration

	// MaxRestarts is the retry budget: the number of restarts allowed before
	// the record fails terminally. Zero means no retries at all.
	MaxRestarts int

	// RelayBuffer is the per-stream relay channel capacity in lines.
	// Non-positive means relay.DefaultBufferSize.
	RelayBuffer int
}

// Record is the persistent description plus live status of one supervised
// process. It is shared between its supervision loop (the sole mutator of
// lifecycle fields) and any external reader; all access goes through the
// internal mutex. Readers use Snapshot.
type Record struct {
	id    uuid.UUID
	spec  Spec
	relay *relay.Relay

	mu           sync.Mutex
	state        State
	pid          int
	exitStatus   *int
	restartCount int
	lastErr      error
	startTime    time.Time

	// launched guards against a second competing supervision loop.
	launched atomic.Bool
}

// Define constructs a Record in the Stopped state. Pure construction: no
// process is spawned and no goroutine is started.
func Define(spec Spec) *Record {
	if spec.Name == "" && len(spec.Args) > 0 {
		spec.Name = spec.Args[0]
	}
	return &Record{
		id:    uuid.New(),
		spec:  spec,
		relay: relay.New(spec.RelayBuffer),
		state: StateStopped,
	}
}

// FromArgv builds a Record from a raw argument vector, using argv[0] as both
// the display name and the executable path, with the default restart budget.
func FromArgv(argv []string, cwd string, restartDelay time.Duration) *Record {
	if len(argv) == 0 {
		return nil
	}
	return Define(Spec{
		Name:         argv[0],
		Path:         argv[0],
		Args:         argv,
		Cwd:          cwd,
		RestartDelay: restartDelay,
		MaxRestarts:  DefaultMaxRestarts,
	})
}

// ID returns the record's unique identifier.
func (r *Record) ID() uuid.UUID {
	return r.id
}

// Name returns the record's display name.
func (r *Record) Name() string {
	return r.spec.Name
}

// Spec returns a copy of the record's static definition.
func (r *Record) Spec() Spec {
	return r.spec
}

// Relay returns the record's stdio relay. The relay and its channels are
// stable for the record's whole lifetime, across restarts.
func (r *Record) Relay() *relay.Relay {
	return r.relay
}

// Snapshot is a consistent point-in-time copy of a record's live status.
type Snapshot struct {
	ID           uuid.UUID
	Name         string
	State        State
	PID          int
	ExitStatus   *int
	RestartCount int
	MaxRestarts  int
	Uptime       time.Duration
	Err          error
}

// Snapshot returns a consistent copy of the record's live status. Safe to
// call from any goroutine.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ID:           r.id,
		Name:         r.spec.Name,
		State:        r.state,
		PID:          r.pid,
		RestartCount: r.restartCount,
		MaxRestarts:  r.spec.MaxRestarts,
		Err:          r.lastErr,
	}
	if r.exitStatus != nil {
		code := *r.exitStatus
		snap.ExitStatus = &code
	}
	if r.state == StateRunning {
		snap.Uptime = time.Since(r.startTime)
	}
	return snap
}

// State returns the record's current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// beginLaunch claims the single supervision slot for this record.
// Returns false if a loop is already running.
func (r *Record) beginLaunch() bool {
	return r.launched.CompareAndSwap(false, true)
}

// endLaunch releases the supervision slot.
func (r *Record) endLaunch() {
	r.launched.Store(false)
}

// setStarting transitions the record into StateStarting.
func (r *Record) setStarting() (old State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old = r.state
	r.state = StateStarting
	return old
}

// setRunning records a successful spawn. The pid is set for exactly as long
// as the process is known to be alive.
func (r *Record) setRunning(pid int) (old State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old = r.state
	r.state = StateRunning
	r.pid = pid
	r.startTime = time.Now()
	return old
}

// recordExit stores the observed exit status and clears the pid. A nil code
// means the process was terminated by a signal and produced no exit code.
func (r *Record) recordExit(code *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pid = 0
	if code != nil {
		c := *code
		r.exitStatus = &c
	} else {
		r.exitStatus = nil
	}
}

// budgetExhausted reports whether a restart would exceed the budget.
func (r *Record) budgetExhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restartCount >= r.spec.MaxRestarts
}

// markRestarting consumes one unit of restart budget and transitions to
// StateRestarting. Callers must have checked budgetExhausted first, which
// keeps restartCount <= MaxRestarts at all times.
func (r *Record) markRestarting() (old State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old = r.state
	r.restartCount++
	r.state = StateRestarting
	return old
}

// fail transitions the record into the terminal Failed state, recording the
// cause. pid is cleared: a failed record has no live process.
func (r *Record) fail(err error) (old State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old = r.state
	r.state = StateFailed
	r.pid = 0
	r.lastErr = err
	return old
}

// setStopped returns the record to StateStopped after a cancelled launch.
// No-op once the record has failed: Failed is terminal.
func (r *Record) setStopped() (old State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old = r.state
	if r.state == StateFailed {
		return old
	}
	r.state = StateStopped
	r.pid = 0
	return old
}
