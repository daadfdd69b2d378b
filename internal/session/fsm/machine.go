package fsm

import "sync"

// State describes the lifecycle of one transport connection.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Machine tracks a single connection: connecting -> open -> closed.
// An error is not a state of its own; it forces closed and is kept for inspection.
type Machine struct {
	mu    sync.RWMutex
	state State
	err   error
}

// New creates a machine in the connecting state.
func New() *Machine {
	return &Machine{state: StateConnecting}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the error that closed the connection, if any.
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// OnOpen marks the transport ready. Only valid from connecting.
func (m *Machine) OnOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnecting {
		return false
	}
	m.state = StateOpen
	return true
}

// OnClose moves to closed. It reports whether the state changed.
func (m *Machine) OnClose() bool {
	return m.close(nil)
}

// OnError records err and forces closed. It reports whether the state changed.
func (m *Machine) OnError(err error) bool {
	return m.close(err)
}

func (m *Machine) close(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return false
	}
	m.state = StateClosed
	m.err = err
	return true
}
