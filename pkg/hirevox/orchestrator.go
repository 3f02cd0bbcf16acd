package hirevox

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hirevox/hirevox/pkg/adapters/stt"
	"github.com/hirevox/hirevox/pkg/capture"
	"github.com/hirevox/hirevox/pkg/connstate"
	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/logging"
	"github.com/hirevox/hirevox/pkg/metrics"
	"github.com/hirevox/hirevox/pkg/redact"
	"github.com/hirevox/hirevox/pkg/session"
	"github.com/hirevox/hirevox/pkg/sttlink"
	"github.com/hirevox/hirevox/pkg/synth"
	"github.com/hirevox/hirevox/pkg/transcript"
)

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithObserver attaches a metrics observer to the session timeline.
func WithObserver(obs metrics.Observer) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

// WithCapture overrides the microphone capture backend.
func WithCapture(mic capture.Capture) Option {
	return func(o *Orchestrator) { o.cap = mic }
}

// Orchestrator drives one interview session end to end: the backend socket,
// the microphone-to-transcription link, speech synthesis and the transcript.
// All state flows outward through a single event stream.
type Orchestrator struct {
	cfg         Config
	sessionID   string
	interviewID string
	logger      *slog.Logger
	obs         metrics.Observer
	cap         capture.Capture

	client *session.Client
	link   *sttlink.Link
	speech *synth.Queue
	acc    *transcript.Accumulator

	events   chan Event
	cancel   context.CancelFunc
	endTimer *time.Timer
	wg       sync.WaitGroup

	mu       sync.Mutex
	messages []Message
	micOn    bool
	ending   bool
	started  bool
}

// New wires an orchestrator from configuration and registered providers.
// Vendor lookups fail here, before any session exists.
func New(cfg Config, registry *ProviderRegistry, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		logger:    logging.NewComponentLogger(logger, "orchestrator"),
		obs:       metrics.NoopObserver{},
		cap:       capture.NewFFMPEGCapture("ffmpeg"),
		acc:       transcript.NewAccumulator(),
		events:    make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(o)
	}
	redact.SetEnabled(cfg.RedactPII)

	sttFactory, err := registry.BuildSTTFactory(cfg.Vendors.STT.Provider, cfg)
	if err != nil {
		return nil, err
	}
	synthesizer, err := registry.BuildTTS(cfg.Vendors.TTS.Provider, cfg)
	if err != nil {
		return nil, err
	}

	o.speech = synth.NewQueue(synthesizer,
		synth.WithVoiceWait(time.Duration(cfg.Synthesis.VoiceWaitMS)*time.Millisecond),
		synth.WithLogger(logger))

	o.link = sttlink.New(sttlink.Config{
		SessionID: o.sessionID,
		Capture: capture.Config{
			SampleRate:       cfg.Capture.SampleRate,
			Channels:         cfg.Capture.Channels,
			InputFormat:      cfg.Capture.InputFormat,
			DeviceID:         cfg.Capture.DeviceID,
			EchoCancellation: cfg.Capture.EchoCancellation,
			NoiseSuppression: cfg.Capture.NoiseSuppression,
			AutoGain:         cfg.Capture.AutoGain,
		},
		STT: stt.Config{
			SampleRate: cfg.Capture.SampleRate,
			Channels:   cfg.Capture.Channels,
			Interim:    true,
		},
		ChunkInterval: time.Duration(cfg.Link.ChunkIntervalMS) * time.Millisecond,
		MaxRetries:    cfg.Link.MaxRetries,
		Backoff:       time.Duration(cfg.Link.BackoffMS) * time.Millisecond,
	}, o.cap, sttFactory, logger)

	o.client = session.NewClient(session.Config{
		URL:              cfg.Backend.URL,
		HandshakeTimeout: time.Duration(cfg.Backend.HandshakeTimeoutMS) * time.Millisecond,
	}, logger)

	return o, nil
}

// SessionID returns the unique id of this orchestrator run.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Events returns the outward event stream.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Phase returns the current interview phase.
func (o *Orchestrator) Phase() session.Phase { return o.client.Phase() }

// MicOn reports whether the microphone is live.
func (o *Orchestrator) MicOn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.micOn
}

// Transcript returns a copy of the append-only transcript log.
func (o *Orchestrator) Transcript() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Start validates the interview setup and connects to the backend. An
// invalid setup fails here without opening any socket.
func (o *Orchestrator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := o.cfg.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errorsx.Wrap(errors.New("orchestrator already started"), errorsx.ReasonSessionState)
	}
	o.started = true
	o.interviewID = o.cfg.Interview.ID
	if o.interviewID == "" {
		o.interviewID = uuid.NewString()
	}
	o.mu.Unlock()

	if err := o.client.Connect(ctx, o.interviewID); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.wg.Add(1)
	go o.pump(runCtx)

	if o.cfg.Interview.MaxDurationMinutes > 0 {
		limit := time.Duration(o.cfg.Interview.MaxDurationMinutes) * time.Minute
		o.endTimer = time.AfterFunc(limit, func() {
			o.logger.Info("interview time limit reached",
				slog.String("session_id", o.sessionID),
				slog.Duration("limit", limit))
			_ = o.End()
		})
	}

	o.appendMessage(RoleSystem, "connected to interview session")
	metrics.Record(o.obs, metrics.EventSessionStarted, o.sessionID, map[string]any{
		"interview_id": o.interviewID,
		"job_title":    o.cfg.Interview.JobTitle,
	})
	o.logger.Info("interview session started",
		slog.String("session_id", o.sessionID),
		slog.String("interview_id", o.interviewID))
	return nil
}

// ToggleMic flips the microphone. Turning it on interrupts any in-flight
// synthesis and clears stale transcript preview; turning it off stops the
// capture and transcription link. Returns the new mic state.
func (o *Orchestrator) ToggleMic(ctx context.Context) (bool, error) {
	o.mu.Lock()
	on := o.micOn
	ending := o.ending
	o.mu.Unlock()

	if on {
		o.link.Stop()
		o.setMic(false)
		return false, nil
	}

	if ending {
		return false, errorsx.Wrap(errors.New("interview is over"), errorsx.ReasonSessionState)
	}

	o.speech.Cancel()
	o.acc.Reset()
	if err := o.link.Start(ctx, o.cfg.Capture.DeviceID); err != nil {
		o.appendMessage(RoleError, "microphone unavailable: "+err.Error())
		o.emit(Event{Kind: EventFailure, Err: err})
		return false, err
	}
	o.setMic(true)
	return true, nil
}

// ResetLink recovers a transcription link that exhausted its retry budget.
// This is the explicit user action; nothing calls it automatically.
func (o *Orchestrator) ResetLink() {
	o.link.Reset()
	o.setMic(false)
}

// SubmitAnswer sends the candidate's answer to the backend. With empty
// text the accumulated speech transcript is submitted instead. The spoken
// transcript is kept until the submission is accepted on the wire.
func (o *Orchestrator) SubmitAnswer(text string) error {
	answer := strings.TrimSpace(text)
	if answer == "" {
		answer = o.acc.CommitAndExtract()
	}
	if answer == "" {
		return errorsx.Wrap(errors.New("nothing to submit"), errorsx.ReasonValidation)
	}

	if err := o.client.SubmitAnswer(answer); err != nil {
		return err
	}

	o.acc.Reset()
	o.appendMessage(RoleAnswer, answer)
	metrics.Record(o.obs, metrics.EventAnswerSubmitted, o.sessionID, map[string]any{
		"chars": len(answer),
		"text":  redact.Text(answer),
	})
	o.emit(Event{Kind: EventAnswerSubmitted, Answer: answer})
	return nil
}

// End requests early termination. Safe to call any number of times from
// any path (user action, time limit, shutdown): exactly one end command
// reaches the backend.
func (o *Orchestrator) End() error {
	o.mu.Lock()
	o.ending = true
	o.mu.Unlock()

	o.speech.Cancel()
	o.link.Stop()
	o.setMic(false)
	return o.client.End()
}

// Close releases every resource. The transcript log survives Close.
func (o *Orchestrator) Close() error {
	if o.endTimer != nil {
		o.endTimer.Stop()
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.link.Stop()
	o.speech.Close()
	err := o.client.Close()
	o.wg.Wait()
	return err
}

// pump is the single consumer of the session, link and synthesis streams.
// Serializing here keeps transcript and phase handling free of data races.
func (o *Orchestrator) pump(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.client.Events():
			if !ok {
				return
			}
			o.handleSession(ev)
		case ev, ok := <-o.link.Events():
			if !ok {
				return
			}
			o.handleLink(ev)
		case ev, ok := <-o.speech.Events():
			if !ok {
				return
			}
			o.handleSpeech(ev)
		}
	}
}

func (o *Orchestrator) handleSession(ev session.Event) {
	switch ev.Kind {
	case session.EventPhase:
		o.emit(Event{Kind: EventPhaseChanged, Phase: ev.Phase})

	case session.EventStarted:
		if ev.Started.Message != "" {
			o.appendMessage(RoleSystem, ev.Started.Message)
		}
		o.emit(Event{Kind: EventInterviewBegan, Started: ev.Started})

	case session.EventQuestion:
		o.mu.Lock()
		ending := o.ending
		o.mu.Unlock()
		if ending {
			// A question racing past the termination is dropped.
			o.logger.Info("dropping question after interview end",
				slog.Int("question_number", ev.Question.QuestionNumber))
			return
		}
		o.appendMessage(RoleQuestion, ev.Question.Question)
		o.speech.Speak(ev.Question.Question)
		metrics.Record(o.obs, metrics.EventQuestionReceived, o.sessionID, map[string]any{
			"question_number": ev.Question.QuestionNumber,
			"question_type":   ev.Question.QuestionType,
		})
		o.emit(Event{Kind: EventQuestionAsked, Question: ev.Question})

	case session.EventCompleted:
		o.mu.Lock()
		o.ending = true
		o.mu.Unlock()
		o.link.Stop()
		o.setMic(false)
		if ev.Completion.Message != "" {
			o.appendMessage(RoleSystem, ev.Completion.Message)
			o.speech.Speak(ev.Completion.Message)
		}
		metrics.Record(o.obs, metrics.EventSessionEnded, o.sessionID, map[string]any{
			"outcome": "completed",
		})
		o.emit(Event{Kind: EventCompleted, Completion: ev.Completion})

	case session.EventEnded:
		o.mu.Lock()
		o.ending = true
		o.mu.Unlock()
		o.speech.Cancel()
		o.link.Stop()
		o.setMic(false)
		if ev.Ended.Message != "" {
			o.appendMessage(RoleSystem, ev.Ended.Message)
		}
		metrics.Record(o.obs, metrics.EventSessionEnded, o.sessionID, map[string]any{
			"outcome": "ended",
		})
		o.emit(Event{Kind: EventEnded, Message: ev.Ended.Message})

	case session.EventStatus:
		o.logger.Debug("status update",
			slog.String("status", ev.Status.Status),
			slog.Int("progress", ev.Status.Progress),
			slog.Int("time_remaining", ev.Status.TimeRemaining))
		o.emit(Event{Kind: EventStatus, Status: ev.Status})

	case session.EventServerError:
		o.appendMessage(RoleError, ev.ServerErr.Message)
		metrics.Record(o.obs, metrics.EventSessionError, o.sessionID, map[string]any{
			"message": ev.ServerErr.Message,
		})
		o.emit(Event{Kind: EventFailure,
			Err: errorsx.Wrap(errors.New(ev.ServerErr.Message), errorsx.ReasonProtocol)})

	case session.EventDisconnected:
		if ev.Clean {
			return
		}
		o.link.Stop()
		o.setMic(false)
		o.appendMessage(RoleError, "connection to interview backend lost")
		o.emit(Event{Kind: EventFailure,
			Err: errorsx.Wrap(errors.New("session socket dropped"), errorsx.ReasonTransport)})
	}
}

func (o *Orchestrator) handleLink(ev sttlink.Event) {
	switch ev.Kind {
	case sttlink.EventFragment:
		display := o.acc.OnFragment(ev.Text, ev.IsFinal)
		name := metrics.EventFragmentInterim
		if ev.IsFinal {
			name = metrics.EventFragmentFinal
		}
		metrics.Record(o.obs, name, o.sessionID, map[string]any{"chars": len(ev.Text)})
		o.emit(Event{Kind: EventTranscript, Transcript: display})

	case sttlink.EventState:
		if ev.RetryCount > 0 {
			metrics.Record(o.obs, metrics.EventLinkRetry, o.sessionID, map[string]any{
				"retry": ev.RetryCount,
			})
		}
		if ev.State == connstate.StateFailed || ev.State == connstate.StateClosed {
			o.setMic(false)
		}
		o.emit(Event{Kind: EventLinkState, LinkState: ev.State, RetryCount: ev.RetryCount})

	case sttlink.EventError:
		o.appendMessage(RoleError, ev.Err.Error())
		o.emit(Event{Kind: EventFailure, Err: ev.Err})
	}
}

func (o *Orchestrator) handleSpeech(ev synth.Event) {
	switch ev.Kind {
	case synth.EventStarted:
		metrics.Record(o.obs, metrics.EventSpeechStarted, o.sessionID, map[string]any{
			"chars": len(ev.Text),
		})
		o.emit(Event{Kind: EventSpeaking, Speaking: true})
	case synth.EventEnded:
		o.emit(Event{Kind: EventSpeaking, Speaking: false})
	case synth.EventCanceled:
		metrics.Record(o.obs, metrics.EventSpeechCanceled, o.sessionID, nil)
		o.emit(Event{Kind: EventSpeaking, Speaking: false})
	case synth.EventError:
		o.emit(Event{Kind: EventSpeaking, Speaking: false})
		if ev.Err != nil {
			o.emit(Event{Kind: EventFailure, Err: ev.Err})
		}
	}
}

func (o *Orchestrator) setMic(on bool) {
	o.mu.Lock()
	changed := o.micOn != on
	o.micOn = on
	o.mu.Unlock()
	if changed {
		o.emit(Event{Kind: EventMicState, MicOn: on})
	}
}

func (o *Orchestrator) appendMessage(role Role, text string) {
	o.mu.Lock()
	o.messages = append(o.messages, Message{Role: role, Text: text, Timestamp: time.Now()})
	o.mu.Unlock()
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("orchestrator event channel full", slog.String("kind", string(ev.Kind)))
	}
}
