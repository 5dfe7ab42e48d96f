package chat

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle          State = "idle"
	StatePass1Running  State = "pass1_running"
	StatePass1Complete State = "pass1_complete"
	StatePass2Running  State = "pass2_running"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

var transitions = map[State][]State{
	StateIdle:          {StatePass1Running, StateFailed},
	StatePass1Running:  {StatePass1Complete, StateFailed},
	StatePass1Complete: {StatePass2Running, StateFailed},
	StatePass2Running:  {StateDone, StateFailed},
}

type machine struct {
	mu      sync.Mutex
	state   State
	history []State
	logger  *zap.Logger
}

func newMachine(logger *zap.Logger) *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}, logger: logger}
}

// to panics on a transition the table does not allow.
func (m *machine) to(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.logger.Debug("chat state", zap.String("from", string(m.state)), zap.String("to", string(next)))
			m.state = next
			m.history = append(m.history, next)
			return
		}
	}
	panic(fmt.Sprintf("chat: illegal transition %s -> %s", m.state, next))
}

// fail moves to Failed unless the turn already ended.
func (m *machine) fail() {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != StateDone && state != StateFailed {
		m.to(StateFailed)
	}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) path() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}
