package lifecycle

import "time"

// State is the lifecycle state of the gateway service as a whole.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when the service state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Manager manages the service state machine.
type Manager interface {
	// State returns the current state.
	State() State

	// CanStart returns true if the service may be started.
	CanStart() bool

	// CanStop returns true if the service may be stopped.
	CanStop() bool

	// TransitionTo moves to newState, or returns an error if the move is not allowed.
	TransitionTo(newState State, reason string) error

	// WaitWithTimeout waits for all workers to finish.
	// Returns ErrShutdownTimeout if the timeout expires first.
	WaitWithTimeout(timeout time.Duration) error

	// AddWorker increments the worker count.
	AddWorker()

	// WorkerDone decrements the worker count.
	WorkerDone()
}
