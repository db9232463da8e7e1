package client

import (
	"fmt"
	"sync"
)

type State string

const (
	StateIdle             State = "idle"
	StateResolvingSession State = "resolving_session"
	StateSending          State = "sending"
	StateReceiving        State = "receiving"
	StateComplete         State = "complete"
	StateError            State = "error"
	StateRetrying         State = "retrying"
	StateCancelled        State = "cancelled"
)

// transitions lists the legal successors of every state. A finished send
// (Complete, Error, Cancelled) may start the next one.
var transitions = map[State][]State{
	StateIdle:             {StateResolvingSession},
	StateResolvingSession: {StateSending, StateError, StateCancelled},
	StateSending:          {StateReceiving, StateComplete, StateError, StateCancelled},
	StateReceiving:        {StateComplete, StateError, StateCancelled},
	StateError:            {StateRetrying, StateResolvingSession},
	StateRetrying:         {StateResolvingSession, StateCancelled},
	StateComplete:         {StateResolvingSession},
	StateCancelled:        {StateResolvingSession},
}

type machine struct {
	mu       sync.Mutex
	state    State
	observer func(from, to State)
}

func newMachine(observer func(from, to State)) *machine {
	return &machine{state: StateIdle, observer: observer}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) transition(to State) error {
	m.mu.Lock()
	from := m.state
	legal := false
	for _, next := range transitions[from] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		m.mu.Unlock()
		return fmt.Errorf("client: illegal transition %s -> %s", from, to)
	}
	m.state = to
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(from, to)
	}
	return nil
}
