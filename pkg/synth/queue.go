package synth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hirevox/hirevox/pkg/adapters/tts"
	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/logging"
	"github.com/hirevox/hirevox/pkg/resilience"
)

// EventKind identifies one utterance lifecycle notification.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventEnded    EventKind = "ended"
	EventCanceled EventKind = "canceled"
	EventError    EventKind = "error"
)

// Event reports progress of a queued utterance.
type Event struct {
	Kind EventKind
	ID   string
	Text string
	Err  error
}

// Queue plays exactly one utterance at a time. Calling Speak while an
// utterance is active cancels it first: the newest AI message always wins,
// there is no backlog of pending utterances.
type Queue struct {
	syn       tts.Synthesizer
	voiceWait time.Duration
	breaker   *resilience.CircuitBreaker
	events    chan Event
	logger    *slog.Logger

	mu         sync.Mutex
	cancelCur  context.CancelFunc
	activeID   string
	speaking   bool
	generation uint64
	closed     bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithVoiceWait bounds how long the first utterance waits for the vendor's
// voice inventory before speaking with whatever is available.
func WithVoiceWait(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.voiceWait = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logging.NewComponentLogger(logger, "synth_queue")
		}
	}
}

// WithBreaker replaces the rate-limit circuit breaker guarding the vendor.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(q *Queue) {
		if b != nil {
			q.breaker = b
		}
	}
}

func NewQueue(syn tts.Synthesizer, opts ...Option) *Queue {
	q := &Queue{
		syn:       syn,
		voiceWait: time.Second,
		breaker:   resilience.NewCircuitBreaker(3, 30*time.Second),
		events:    make(chan Event, 64),
		logger:    logging.NewComponentLogger(slog.Default(), "synth_queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Events returns the utterance lifecycle stream.
func (q *Queue) Events() <-chan Event { return q.events }

// Speaking reports whether an utterance is currently active.
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speaking
}

// Speak cancels any active utterance and begins synthesis of text. It
// returns the new utterance's ID immediately; lifecycle is reported on
// Events. Empty text is ignored.
func (q *Queue) Speak(text string) string {
	if text == "" {
		return ""
	}
	id := uuid.NewString()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ""
	}
	if q.cancelCur != nil {
		q.cancelCur()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancelCur = cancel
	q.activeID = id
	q.generation++
	gen := q.generation
	q.mu.Unlock()

	go q.run(ctx, gen, id, text)
	return id
}

// Cancel stops the active utterance, if any. Safe to call repeatedly or when
// nothing is speaking.
func (q *Queue) Cancel() {
	q.mu.Lock()
	cancel := q.cancelCur
	q.cancelCur = nil
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.syn.Cancel()
}

// Close cancels the active utterance and stops accepting new ones.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	cancel := q.cancelCur
	q.cancelCur = nil
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.syn.Cancel()
}

func (q *Queue) run(ctx context.Context, gen uint64, id, text string) {
	// Platform voice inventories load asynchronously; wait once, bounded,
	// so Speak never blocks indefinitely.
	select {
	case <-q.syn.Ready():
	case <-time.After(q.voiceWait):
		q.logger.Warn("voices not ready, speaking with defaults",
			slog.String("utterance_id", id))
	case <-ctx.Done():
		q.finish(gen, Event{Kind: EventCanceled, ID: id, Text: text})
		return
	}

	if ctx.Err() != nil {
		q.finish(gen, Event{Kind: EventCanceled, ID: id, Text: text})
		return
	}

	// Repeated rate-limit responses open the breaker; while it is open the
	// vendor is not called at all.
	if !q.breaker.Allow() {
		q.logger.Warn("synthesis suppressed, vendor rate limited",
			slog.String("utterance_id", id))
		q.finish(gen, Event{Kind: EventError, ID: id, Text: text,
			Err: errorsx.Wrap(errors.New("synthesis vendor rate limited"), errorsx.ReasonSynthesis)})
		return
	}

	q.emit(Event{Kind: EventStarted, ID: id, Text: text})
	q.setSpeaking(gen, true)

	err := q.syn.Speak(ctx, text)
	q.setSpeaking(gen, false)

	switch {
	case err == nil && ctx.Err() == nil:
		q.breaker.OnSuccess()
		q.finish(gen, Event{Kind: EventEnded, ID: id, Text: text})
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		// An interrupted utterance fires a cancellation instead of an end.
		q.finish(gen, Event{Kind: EventCanceled, ID: id, Text: text})
	default:
		q.breaker.OnError(err)
		q.logger.Error("synthesis failed",
			slog.String("utterance_id", id),
			slog.String("error", err.Error()))
		q.finish(gen, Event{Kind: EventError, ID: id, Text: text,
			Err: errorsx.Wrap(err, errorsx.ReasonSynthesis)})
	}
}

func (q *Queue) setSpeaking(gen uint64, speaking bool) {
	q.mu.Lock()
	if q.generation == gen {
		q.speaking = speaking
	}
	q.mu.Unlock()
}

func (q *Queue) finish(gen uint64, ev Event) {
	q.mu.Lock()
	if q.generation == gen {
		q.speaking = false
		q.cancelCur = nil
		q.activeID = ""
	}
	q.mu.Unlock()
	q.emit(ev)
}

func (q *Queue) emit(ev Event) {
	select {
	case q.events <- ev:
	default:
		q.logger.Warn("synth event channel full",
			slog.String("kind", string(ev.Kind)),
			slog.String("utterance_id", ev.ID))
	}
}
