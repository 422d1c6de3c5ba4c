package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
)

// State represents a client runtime state.
type State string

const (
	Idle    State = "IDLE"
	Joining State = "JOINING"
	Online  State = "ONLINE"
	Leaving State = "LEAVING"
	Error   State = "ERROR"
)

// validTransitions defines allowed state transitions. Re-joining from
// Online is allowed: it is how a display name gets re-entered.
var validTransitions = map[State][]State{
	Idle:    {Joining},
	Joining: {Online, Error},
	Online:  {Joining, Leaving, Error},
	Leaving: {Idle},
	Error:   {Joining, Idle},
}

// Machine tracks and enforces client runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
