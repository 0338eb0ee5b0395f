package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/shardline/pkg/log"
)

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	previous State
	current  State
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func TestNewManager(t *testing.T) {
	m := NewManager(log.NoopLogger{}, nil)
	if m.State() != StateStopped {
		t.Errorf("initial state = %v, want StateStopped", m.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarting, "Starting"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateCrashed, "Crashed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestManager_TransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"stopped to starting", StateStopped, StateStarting},
		{"starting to running", StateStarting, StateRunning},
		{"starting to stopping", StateStarting, StateStopping},
		{"starting to crashed", StateStarting, StateCrashed},
		{"running to stopping", StateRunning, StateStopping},
		{"running to crashed", StateRunning, StateCrashed},
		{"stopping to stopped", StateStopping, StateStopped},
		{"stopping to crashed", StateStopping, StateCrashed},
		{"crashed to starting", StateCrashed, StateStarting},
		{"crashed to stopping", StateCrashed, StateStopping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(log.NoopLogger{}, nil)
			m.state = tt.from

			if err := m.TransitionTo(tt.to, "test"); err != nil {
				t.Fatalf("TransitionTo() error = %v", err)
			}
			if m.State() != tt.to {
				t.Errorf("state = %v after transition, want %v", m.State(), tt.to)
			}
		})
	}
}

func TestManager_TransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr error
	}{
		{"stopped to running", StateStopped, StateRunning, ErrNotRunning},
		{"stopped to stopping", StateStopped, StateStopping, ErrNotRunning},
		{"starting to stopped", StateStarting, StateStopped, ErrAlreadyRunning},
		{"running to starting", StateRunning, StateStarting, ErrAlreadyRunning},
		{"running to stopped", StateRunning, StateStopped, ErrAlreadyRunning},
		{"stopping to running", StateStopping, StateRunning, ErrAlreadyRunning},
		{"stopping to starting", StateStopping, StateStarting, ErrAlreadyRunning},
		{"crashed to running", StateCrashed, StateRunning, ErrNotRunning},
		{"crashed to stopped", StateCrashed, StateStopped, ErrNotRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(log.NoopLogger{}, nil)
			m.state = tt.from

			err := m.TransitionTo(tt.to, "test")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("TransitionTo() error = %v, want %v", err, tt.wantErr)
			}
			if m.State() != tt.from {
				t.Errorf("state changed to %v on invalid transition, want %v", m.State(), tt.from)
			}
		})
	}
}

func TestManager_TransitionTo_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	m := NewManager(log.NoopLogger{}, emitter)

	_ = m.TransitionTo(StateStarting, "start test")
	_ = m.TransitionTo(StateRunning, "running test")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].previous != StateStopped || events[0].current != StateStarting {
		t.Errorf("event 0: got %v->%v, want Stopped->Starting", events[0].previous, events[0].current)
	}
	if events[1].reason != "running test" {
		t.Errorf("event 1 reason = %q", events[1].reason)
	}
}

func TestManager_CanStartAndStop(t *testing.T) {
	tests := []struct {
		state     State
		wantStart bool
		wantStop  bool
	}{
		{StateStopped, true, false},
		{StateStarting, false, true},
		{StateRunning, false, true},
		{StateStopping, false, false},
		{StateCrashed, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			m := NewManager(log.NoopLogger{}, nil)
			m.state = tt.state

			if got := m.CanStart(); got != tt.wantStart {
				t.Errorf("CanStart() = %v, want %v", got, tt.wantStart)
			}
			if got := m.CanStop(); got != tt.wantStop {
				t.Errorf("CanStop() = %v, want %v", got, tt.wantStop)
			}
		})
	}
}

func TestManager_SetCancel_And_Cancel(t *testing.T) {
	m := NewManager(log.NoopLogger{}, nil)
	m.Cancel() // nil-safe

	ctx, cancel := context.WithCancel(context.Background())
	m.SetCancel(cancel)
	m.Cancel()

	select {
	case <-ctx.Done():
	default:
		t.Error("context should be canceled after Cancel()")
	}
}

func TestManager_WaitWithTimeout(t *testing.T) {
	m := NewManager(log.NoopLogger{}, nil)

	m.AddWorker()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.WorkerDone()
	}()
	if err := m.WaitWithTimeout(time.Second); err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}

	m.AddWorker()
	if err := m.WaitWithTimeout(10 * time.Millisecond); err != ErrShutdownTimeout {
		t.Errorf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}
	m.WorkerDone()
}

func TestManager_Concurrency(t *testing.T) {
	m := NewManager(log.NoopLogger{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.State()
				_ = m.CanStart()
				_ = m.CanStop()
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.TransitionTo(StateStarting, "test")
			_ = m.TransitionTo(StateRunning, "test")
		}()
	}
	wg.Wait()
}
