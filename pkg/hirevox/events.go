package hirevox

import (
	"time"

	"github.com/hirevox/hirevox/pkg/connstate"
	"github.com/hirevox/hirevox/pkg/session"
)

// Role classifies one transcript log entry.
type Role string

const (
	RoleSystem   Role = "system"
	RoleQuestion Role = "question"
	RoleAnswer   Role = "answer"
	RoleError    Role = "error"
)

// Message is one append-only transcript log entry. The log is the durable
// record of the interview as the candidate experienced it.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EventKind identifies one orchestrator notification.
type EventKind string

const (
	EventPhaseChanged    EventKind = "phase_changed"
	EventInterviewBegan  EventKind = "interview_began"
	EventQuestionAsked   EventKind = "question_asked"
	EventTranscript      EventKind = "transcript"
	EventAnswerSubmitted EventKind = "answer_submitted"
	EventMicState        EventKind = "mic_state"
	EventLinkState       EventKind = "link_state"
	EventSpeaking        EventKind = "speaking"
	EventCompleted       EventKind = "completed"
	EventEnded           EventKind = "ended"
	EventStatus          EventKind = "status"
	EventFailure         EventKind = "failure"
)

// Event is the single outward notification type. Consumers render UI state
// from this stream; the orchestrator never calls back into them.
type Event struct {
	Kind       EventKind
	Phase      session.Phase
	Started    *session.InterviewStarted
	Question   *session.Question
	Transcript string
	Answer     string
	MicOn      bool
	LinkState  connstate.State
	RetryCount int
	Speaking   bool
	Completion *session.Completion
	Message    string
	Status     *session.Status
	Err        error
}
