// Package live is the duplex transport to the realtime voice endpoint. A
// Session moves through Idle, Connecting, Open, Closing and Closed, with
// Error reachable from Connecting or Open.
package live

import (
	"errors"
	"fmt"
	"sync"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrInvalidTransition is returned for a state change the machine forbids.
var ErrInvalidTransition = errors.New("invalid transport state transition")

var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateOpen, StateError, StateClosed},
	StateOpen:       {StateClosing, StateError},
	StateClosing:    {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type stateMachine struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State)
}

func (m *stateMachine) get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(from, to)
	}
	return nil
}
