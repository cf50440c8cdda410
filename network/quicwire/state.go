package quicwire

import (
	"fmt"
	"sync"
)

// ConnState is the QUIC connection lifecycle (spec.md §4.4): idle →
// handshake_start → handshake → connected → closing → draining → closed.
type ConnState uint8

const (
	ConnStateIdle ConnState = iota
	ConnStateHandshakeStart
	ConnStateHandshake
	ConnStateConnected
	ConnStateClosing
	ConnStateDraining
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateIdle:
		return "idle"
	case ConnStateHandshakeStart:
		return "handshake_start"
	case ConnStateHandshake:
		return "handshake"
	case ConnStateConnected:
		return "connected"
	case ConnStateClosing:
		return "closing"
	case ConnStateDraining:
		return "draining"
	case ConnStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// validTransitions enumerates the legal edges of the QUIC connection state
// machine. A transition not present here is rejected by Transition.
var validTransitions = map[ConnState][]ConnState{
	ConnStateIdle:            {ConnStateHandshakeStart},
	ConnStateHandshakeStart:  {ConnStateHandshake, ConnStateClosing},
	ConnStateHandshake:       {ConnStateConnected, ConnStateClosing},
	ConnStateConnected:       {ConnStateClosing, ConnStateDraining},
	ConnStateClosing:         {ConnStateDraining, ConnStateClosed},
	ConnStateDraining:        {ConnStateClosed},
	ConnStateClosed:          {},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal edge
// of the QUIC connection state machine.
func CanTransition(from, to ConnState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine is a mutex-guarded ConnState holder enforcing the legal-edge
// table above, so callers (e.g. socket/quicsock) cannot drive the
// connection through an invalid transition by construction.
type Machine struct {
	mu      sync.Mutex
	current ConnState
}

// NewMachine returns a Machine starting at ConnStateIdle.
func NewMachine() *Machine {
	return &Machine{current: ConnStateIdle}
}

// Current returns the machine's present state.
func (m *Machine) Current() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves the machine to 'to' if the edge is legal, reporting
// whether the move happened.
func (m *Machine) Transition(to ConnState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.current, to) {
		return false
	}

	m.current = to
	return true
}
