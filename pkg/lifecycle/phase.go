package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/shardline/pkg/protocol"
)

// Phase is the connection phase of a shard.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseIdentifying
	PhaseResuming
	PhaseReady
	PhaseReconnecting
	PhaseClosed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "Connecting"
	case PhaseIdentifying:
		return "Identifying"
	case PhaseResuming:
		return "Resuming"
	case PhaseReady:
		return "Ready"
	case PhaseReconnecting:
		return "Reconnecting"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// PhaseState is a phase together with the data that is only meaningful in
// that phase. The concrete types below are the only implementations.
type PhaseState interface {
	Phase() Phase
	phaseState()
}

// Connecting is dialing the transport.
type Connecting struct {
	// Attempt counts dials since the last Ready, starting at 1.
	Attempt int
	URL     string
}

// Identifying has sent Identify and awaits Ready.
type Identifying struct {
	Identify protocol.Identify
}

// Resuming has sent Resume and awaits Resumed.
type Resuming struct {
	Resume protocol.Resume
}

// Ready is normal operation.
type Ready struct {
	SessionID string
	Since     time.Time
	Resumed   bool
}

// Reconnecting is tearing down the transport before dialing again.
type Reconnecting struct {
	Cause error
	// Invalidate is set when the session must not be resumed.
	Invalidate bool
}

// Closed is terminal.
type Closed struct {
	// Err is nil for a requested shutdown.
	Err error
}

func (Connecting) Phase() Phase   { return PhaseConnecting }
func (Identifying) Phase() Phase  { return PhaseIdentifying }
func (Resuming) Phase() Phase     { return PhaseResuming }
func (Ready) Phase() Phase        { return PhaseReady }
func (Reconnecting) Phase() Phase { return PhaseReconnecting }
func (Closed) Phase() Phase       { return PhaseClosed }

func (Connecting) phaseState()   {}
func (Identifying) phaseState()  {}
func (Resuming) phaseState()     {}
func (Ready) phaseState()        {}
func (Reconnecting) phaseState() {}
func (Closed) phaseState()       {}

// ErrInvalidTransition is returned for a transition the machine does not allow.
var ErrInvalidTransition = errors.New("invalid phase transition")

var phaseTransitions = map[Phase][]Phase{
	PhaseConnecting:   {PhaseIdentifying, PhaseResuming, PhaseReconnecting, PhaseClosed},
	PhaseIdentifying:  {PhaseReady, PhaseReconnecting, PhaseClosed},
	PhaseResuming:     {PhaseReady, PhaseIdentifying, PhaseReconnecting, PhaseClosed},
	PhaseReady:        {PhaseReconnecting, PhaseClosed},
	PhaseReconnecting: {PhaseConnecting, PhaseClosed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// PhaseChangeFunc observes phase changes. It is called outside the
// machine's lock, in transition order.
type PhaseChangeFunc func(previous, current PhaseState)

// Machine holds the phase of one shard connection. Transitions are made
// by the connection's run loop only; readers may observe it concurrently.
type Machine struct {
	mu       sync.RWMutex
	current  PhaseState
	onChange PhaseChangeFunc
}

// NewMachine creates a machine in the Connecting phase.
func NewMachine(onChange PhaseChangeFunc) *Machine {
	return &Machine{current: Connecting{Attempt: 1}, onChange: onChange}
}

// Current returns the current phase and its data.
func (m *Machine) Current() PhaseState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.Current().Phase()
}

// Transition moves to next if the transition is allowed.
func (m *Machine) Transition(next PhaseState) error {
	m.mu.Lock()
	prev := m.current
	if !CanTransition(prev.Phase(), next.Phase()) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Phase(), next.Phase())
	}
	m.current = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(prev, next)
	}
	return nil
}
