package session

import "encoding/json"

// Envelope is the wire format for every message in both directions: a type
// tag plus a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound message types.
const (
	TypeStartInterview = "start_interview"
	TypeSubmitAnswer   = "submit_answer"
	TypeEndInterview   = "end_interview"
)

// Inbound message types. Anything else is logged and ignored so older
// clients keep working when the backend grows new message types.
const (
	TypeInterviewStarted   = "interview_started"
	TypeNewQuestion        = "new_question"
	TypeInterviewCompleted = "interview_completed"
	TypeInterviewEnded     = "interview_ended"
	TypeStatusUpdate       = "status_update"
	TypeError              = "error"
)

type startInterviewPayload struct {
	InterviewID string `json:"interview_id"`
}

type submitAnswerPayload struct {
	Answer string `json:"answer"`
}

type endInterviewPayload struct {
	Message string `json:"message"`
}

// InterviewStarted is the backend acknowledgment that the interview began.
type InterviewStarted struct {
	Message        string `json:"message"`
	TotalQuestions int    `json:"total_questions"`
}

// Question is one interviewer question delivered by the backend.
type Question struct {
	Question       string `json:"question"`
	QuestionNumber int    `json:"question_number"`
	QuestionType   string `json:"question_type"`
	TotalQuestions int    `json:"total_questions"`
}

// Completion carries the natural-end outcome. The assessment is produced by
// the backend's evaluation pipeline and is passed through opaque.
type Completion struct {
	Message         string          `json:"message"`
	FinalAssessment json.RawMessage `json:"final_assessment"`
}

// Ended carries the early-termination acknowledgment.
type Ended struct {
	Message string `json:"message"`
}

// Status is a backend progress report.
type Status struct {
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	TimeRemaining int    `json:"time_remaining"`
}

// ServerError is an application-level error relayed by the backend. The
// session stays usable after receiving one.
type ServerError struct {
	Message string `json:"message"`
}

func marshalEnvelope(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}
