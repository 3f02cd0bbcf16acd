package connstate

import "sync"

// State models the lifecycle of a single socket connection.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Handle tracks the state and retry budget of one connection. It is owned by
// whichever component opened the connection and is never shared.
type Handle struct {
	mu         sync.Mutex
	state      State
	retryCount int
	maxRetries int
}

func NewHandle(maxRetries int) *Handle {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Handle{state: StateIdle, maxRetries: maxRetries}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) RetryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retryCount
}

func (h *Handle) MaxRetries() int { return h.maxRetries }

// Transition moves to a new state when the transition is legal, returning
// false otherwise. Failed is terminal until Reset.
func (h *Handle) Transition(to State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !transitionValid(h.state, to) {
		return false
	}
	h.state = to
	return true
}

// RecordRetry increments the retry counter and reports whether another
// automatic attempt is still within budget. When the budget is exhausted the
// handle moves to Failed.
func (h *Handle) RecordRetry() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retryCount++
	if h.retryCount > h.maxRetries {
		h.state = StateFailed
		return false
	}
	return true
}

// ResetRetries clears the retry counter after a successful open.
func (h *Handle) ResetRetries() {
	h.mu.Lock()
	h.retryCount = 0
	h.mu.Unlock()
}

// Reset returns a terminal handle to Idle. Used by the explicit manual
// recovery path; automatic retry never calls it.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.state = StateIdle
	h.retryCount = 0
	h.mu.Unlock()
}

func transitionValid(from, to State) bool {
	valid := map[State][]State{
		StateIdle:    {StateOpening},
		StateOpening: {StateOpen, StateClosed, StateFailed},
		StateOpen:    {StateClosing, StateClosed, StateFailed},
		StateClosing: {StateClosed},
		StateClosed:  {StateOpening, StateFailed},
		StateFailed:  {},
	}
	for _, s := range valid[from] {
		if s == to {
			return true
		}
	}
	return false
}
