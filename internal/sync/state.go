package sync

import (
	"fmt"
	"slices"
	gosync "sync"

	"chatsync/internal/bus"
)

// State is a coordinator runtime state.
type State string

const (
	// Idle means no sync is running.
	Idle State = "IDLE"
	// Syncing means a drain-and-pull pass is in flight.
	Syncing State = "SYNCING"
)

// validTransitions defines allowed state transitions. Syncing has no self
// loop: that is the mutual-exclusion gate guaranteeing at most one sync per
// device.
var validTransitions = map[State][]State{
	Idle:    {Syncing},
	Syncing: {Idle},
}

// StateChange is the payload for sync.state_changed events.
type StateChange struct {
	From State
	To   State
}

// Machine tracks and enforces coordinator state transitions.
type Machine struct {
	mu      gosync.Mutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid, leaving the state unchanged.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindSyncStateChanged, StateChange{From: from, To: to})
	}
	return nil
}
