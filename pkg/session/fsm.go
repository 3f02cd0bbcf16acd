package session

import (
	"sync"
	"time"
)

// Phase is the interview session phase.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseAwaitingQuestion
	PhaseAwaitingAnswer
	PhaseEnding
	PhaseCompleted
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "DISCONNECTED"
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseConnected:
		return "CONNECTED"
	case PhaseAwaitingQuestion:
		return "AWAITING_QUESTION"
	case PhaseAwaitingAnswer:
		return "AWAITING_ANSWER"
	case PhaseEnding:
		return "ENDING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the interview reached an outcome phase. A
// terminal phase never transitions again, not even on socket close.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseEnded
}

// PhaseChange represents one phase transition event.
type PhaseChange struct {
	From      Phase
	To        Phase
	Timestamp time.Time
	Reason    string
}

// PhaseListener observes session phase changes.
type PhaseListener interface {
	OnPhaseChange(event PhaseChange)
}

// phaseMachine validates and tracks interview phase transitions.
type phaseMachine struct {
	mu        sync.RWMutex
	current   Phase
	listeners []PhaseListener
}

func newPhaseMachine() *phaseMachine {
	return &phaseMachine{current: PhaseDisconnected}
}

func (m *phaseMachine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// transitionValid checks if a phase transition is allowed (lock held).
func (m *phaseMachine) transitionValid(from, to Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseDisconnected:     {PhaseConnecting},
		PhaseConnecting:       {PhaseConnected, PhaseDisconnected},
		PhaseConnected:        {PhaseAwaitingQuestion, PhaseAwaitingAnswer, PhaseEnding, PhaseEnded, PhaseDisconnected},
		PhaseAwaitingQuestion: {PhaseAwaitingAnswer, PhaseEnding, PhaseCompleted, PhaseEnded, PhaseDisconnected},
		PhaseAwaitingAnswer:   {PhaseAwaitingQuestion, PhaseAwaitingAnswer, PhaseEnding, PhaseCompleted, PhaseEnded, PhaseDisconnected},
		PhaseEnding:           {PhaseCompleted, PhaseEnded, PhaseDisconnected},
		PhaseCompleted:        {},
		PhaseEnded:            {},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}
	return false
}

// Transition moves to a new phase with validation.
func (m *phaseMachine) Transition(to Phase, reason string) error {
	m.mu.Lock()
	if !m.transitionValid(m.current, to) {
		from := m.current
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}

	event := PhaseChange{
		From:      m.current,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	m.current = to

	// Notify outside the lock to avoid listener deadlocks.
	listeners := make([]PhaseListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnPhaseChange(event)
	}
	return nil
}

// Disconnect forces the machine to Disconnected unless the interview has
// already reached an outcome. An unexpected socket close can happen in any
// non-terminal phase, so this path skips the transition table.
func (m *phaseMachine) Disconnect(reason string) bool {
	m.mu.Lock()
	if m.current.Terminal() || m.current == PhaseDisconnected {
		m.mu.Unlock()
		return false
	}
	event := PhaseChange{
		From:      m.current,
		To:        PhaseDisconnected,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	m.current = PhaseDisconnected

	listeners := make([]PhaseListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnPhaseChange(event)
	}
	return true
}

// AddListener registers a listener for phase change events.
func (m *phaseMachine) AddListener(l PhaseListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// InvalidTransitionError represents a rejected phase transition.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return "invalid session phase transition from " + e.From.String() + " to " + e.To.String()
}
