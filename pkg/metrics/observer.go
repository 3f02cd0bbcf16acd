package metrics

import "time"

// MetricsEvent is one timeline entry. Name is one of the Event* constants
// below; Tags carry low-cardinality dimensions (session_id, vendor, phase).
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Interview timeline event names.
const (
	EventSessionStarted   = "session.started"
	EventSessionEnded     = "session.ended"
	EventQuestionReceived = "question.received"
	EventAnswerSubmitted  = "answer.submitted"
	EventFragmentFinal    = "stt.fragment_final"
	EventFragmentInterim  = "stt.fragment_interim"
	EventLinkRetry        = "stt.link_retry"
	EventSpeechStarted    = "tts.speech_started"
	EventSpeechCanceled   = "tts.speech_canceled"
	EventSessionError     = "session.error"
)

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a convenience for the common case: name, session tag, now.
func Record(o Observer, name, sessionID string, fields map[string]any) {
	if o == nil {
		return
	}
	o.RecordEvent(MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Tags:   map[string]string{"session_id": sessionID},
		Fields: fields,
	})
}
