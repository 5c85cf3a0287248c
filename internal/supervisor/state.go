// Package supervisor manages the lifecycle of individual supervised processes.
package supervisor

// State represents the current lifecycle state of a supervised process.
type State int

const (
	// StateStopped is the initial state before the process has been launched.
	StateStopped State = iota

	// StateStarting indicates the process is being spawned.
	StateStarting

	// StateRunning indicates the process is actively running.
	StateRunning

	// StateRestarting indicates the process exited and is waiting out the
	// restart delay before the next attempt.
	StateRestarting

	// StateFailed indicates the process is permanently stopped. Terminal.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true if the state represents an active process
// (either running or in the process of starting/restarting).
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateRestarting
}

// IsTerminal returns true if the state is a terminal state.
// StateFailed is the sole terminal state: once observed, no lifecycle field
// of the record changes again.
func (s State) IsTerminal() bool {
	return s == StateFailed
}

// AllStates lists every lifecycle state, in order. Used by the metrics
// collector to zero-initialize per-state gauges.
var AllStates = []State{StateStopped, StateStarting, StateRunning, StateRestarting, StateFailed}
