package shardline

import "github.com/bft-labs/shardline/pkg/lifecycle"

// State is the lifecycle state of a Shardline instance.
type State = lifecycle.State

// Lifecycle states.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// Errors returned by Start and Stop.
var (
	ErrAlreadyRunning  = lifecycle.ErrAlreadyRunning
	ErrNotRunning      = lifecycle.ErrNotRunning
	ErrShutdownTimeout = lifecycle.ErrShutdownTimeout
)
