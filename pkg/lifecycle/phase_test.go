package lifecycle

import (
	"errors"
	"testing"

	"github.com/bft-labs/shardline/pkg/protocol"
)

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseConnecting, "Connecting"},
		{PhaseIdentifying, "Identifying"},
		{PhaseResuming, "Resuming"},
		{PhaseReady, "Ready"},
		{PhaseReconnecting, "Reconnecting"},
		{PhaseClosed, "Closed"},
		{Phase(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %s, want %s", tt.phase, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseConnecting, PhaseIdentifying, true},
		{PhaseConnecting, PhaseResuming, true},
		{PhaseConnecting, PhaseReady, false},
		{PhaseIdentifying, PhaseReady, true},
		{PhaseIdentifying, PhaseResuming, false},
		{PhaseResuming, PhaseReady, true},
		{PhaseResuming, PhaseIdentifying, true},
		{PhaseReady, PhaseReconnecting, true},
		{PhaseReady, PhaseIdentifying, false},
		{PhaseReconnecting, PhaseConnecting, true},
		{PhaseReconnecting, PhaseReady, false},
		{PhaseClosed, PhaseConnecting, false},
		{PhaseClosed, PhaseClosed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	// Every live phase can be shut down or can fail into Reconnecting.
	for _, p := range []Phase{PhaseConnecting, PhaseIdentifying, PhaseResuming, PhaseReady} {
		if !CanTransition(p, PhaseReconnecting) || !CanTransition(p, PhaseClosed) {
			t.Errorf("%s must allow Reconnecting and Closed", p)
		}
	}
}

func TestMachine_Transition(t *testing.T) {
	var seen []Phase
	m := NewMachine(func(prev, cur PhaseState) {
		seen = append(seen, cur.Phase())
	})

	if m.Phase() != PhaseConnecting {
		t.Fatalf("initial phase = %s, want Connecting", m.Phase())
	}

	steps := []PhaseState{
		Identifying{Identify: protocol.Identify{Token: "t"}},
		Ready{SessionID: "abc"},
		Reconnecting{Cause: errors.New("drop")},
		Connecting{Attempt: 2},
		Resuming{Resume: protocol.Resume{SessionID: "abc", Seq: 9}},
		Ready{SessionID: "abc", Resumed: true},
		Closed{},
	}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s.Phase(), err)
		}
	}

	if len(seen) != len(steps) {
		t.Fatalf("observed %d changes, want %d", len(seen), len(steps))
	}

	err := m.Transition(Connecting{Attempt: 3})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition out of Closed error = %v, want ErrInvalidTransition", err)
	}
	if m.Phase() != PhaseClosed {
		t.Errorf("phase = %s after rejected transition, want Closed", m.Phase())
	}
}

func TestMachine_PhaseDataTravelsWithPhase(t *testing.T) {
	m := NewMachine(nil)
	want := protocol.Resume{SessionID: "abc", Seq: 7}
	if err := m.Transition(Resuming{Resume: want}); err != nil {
		t.Fatal(err)
	}
	r, ok := m.Current().(Resuming)
	if !ok {
		t.Fatalf("Current() = %T, want Resuming", m.Current())
	}
	if r.Resume != want {
		t.Errorf("Resume = %+v, want %+v", r.Resume, want)
	}
}
