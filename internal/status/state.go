// Package status tracks the realtime connection state.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/roomchat/internal/bus"
)

// Kind is the tag of a connection state.
type Kind string

const (
	Disconnected Kind = "DISCONNECTED"
	Connecting   Kind = "CONNECTING"
	Connected    Kind = "CONNECTED"
	Error        Kind = "ERROR"
)

// State is a tagged connection state. Reason is only meaningful for Error.
type State struct {
	Kind   Kind
	Reason string
}

func (s State) String() string {
	if s.Kind == Error && s.Reason != "" {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
	}
	return string(s.Kind)
}

// validTransitions defines allowed state transitions. Error is not
// terminal: the dial loop either retries (Connecting) or gives up
// (Disconnected).
var validTransitions = map[Kind][]Kind{
	Disconnected: {Connecting},
	Connecting:   {Connected, Error, Disconnected},
	Connected:    {Disconnected},
	Error:        {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: State{Kind: Disconnected},
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the current state has the given kind.
func (m *Machine) Is(k Kind) bool {
	return m.Current().Kind == k
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current.Kind]
	if !slices.Contains(allowed, to.Kind) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.publish(from, to)
	return nil
}

// Reset forces Disconnected from any state. It is a no-op when already
// Disconnected and reports whether a change happened.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	if m.current.Kind == Disconnected {
		m.mu.Unlock()
		return false
	}
	from := m.current
	m.current = State{Kind: Disconnected}
	m.mu.Unlock()

	m.publish(from, State{Kind: Disconnected})
	return true
}

func (m *Machine) publish(from, to State) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: time.Now(),
		Payload:   Change{From: from, To: to},
	})
}

// Change is the payload for state change events.
type Change struct {
	From State
	To   State
}
