package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/imcoach/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting  State = "BOOTING"
	Watching State = "WATCHING"
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Watching, Error},
	Watching: {Degraded, Error},
	Degraded: {Watching, Error},
	Error:    {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	detail  string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot is the state together with when it was entered and why.
type Snapshot struct {
	State  State
	Since  time.Time
	Detail string
}

// Snapshot returns the current state with its metadata.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.current, Since: m.since, Detail: m.detail}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.TransitionWithDetail(to, "")
}

// TransitionWithDetail is Transition with a human-readable reason, typically
// the error that caused a move to DEGRADED or ERROR.
func (m *Machine) TransitionWithDetail(to State, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.detail = detail
	m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, StatusChange{From: from, To: to, Detail: detail}))
	return nil
}

// Ensure moves to state to unless the machine is already there.
func (m *Machine) Ensure(to State, detail string) error {
	if m.Current() == to {
		return nil
	}
	return m.TransitionWithDetail(to, detail)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Detail string
}
