package serial

import (
	"fmt"
	"sync"
)

// ConnectionState is the lifecycle of the serial link.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota // no port selected
	StateConnectable                         // port selected, not open
	StateConnecting
	StateConnected
	StateBusy // a handshake is in flight
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnectable:
		return "connectable"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBusy:
		return "busy"
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

var transitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateConnectable},
	StateConnectable:  {StateConnectable, StateConnecting, StateDisconnected},
	StateConnecting:   {StateConnected, StateConnectable},
	StateConnected:    {StateBusy, StateConnectable, StateDisconnected},
	StateBusy:         {StateConnected, StateConnectable, StateDisconnected},
}

// StateMachine holds the current ConnectionState and broadcasts changes.
// New subscribers immediately receive the current value; slow subscribers
// only ever see the latest one.
type StateMachine struct {
	mu      sync.Mutex
	current ConnectionState
	subs    map[int]chan ConnectionState
	nextID  int
}

func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateDisconnected, subs: make(map[int]chan ConnectionState)}
}

func (m *StateMachine) Current() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to next if the edge is allowed.
func (m *StateMachine) Transition(next ConnectionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !allowed(m.current, next) {
		return fmt.Errorf("invalid connection state transition %s -> %s", m.current, next)
	}
	m.setLocked(next)
	return nil
}

// TransitionFrom moves to next only when the current state is from.
func (m *StateMachine) TransitionFrom(from, next ConnectionState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != from || !allowed(from, next) {
		return false
	}
	m.setLocked(next)
	return true
}

func allowed(from, to ConnectionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (m *StateMachine) setLocked(next ConnectionState) {
	if m.current == next {
		return
	}
	m.current = next
	for _, ch := range m.subs {
		deliver(ch, next)
	}
}

// deliver replaces any undelivered value so the channel holds the latest.
func deliver(ch chan ConnectionState, s ConnectionState) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Subscribe returns a channel primed with the current state. Call cancel to
// stop receiving; the channel is closed.
func (m *StateMachine) Subscribe() (<-chan ConnectionState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan ConnectionState, 1)
	ch <- m.current
	id := m.nextID
	m.nextID++
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}
