package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/logging"
)

// EventKind identifies one session notification.
type EventKind string

const (
	EventPhase        EventKind = "phase"
	EventStarted      EventKind = "started"
	EventQuestion     EventKind = "question"
	EventCompleted    EventKind = "completed"
	EventEnded        EventKind = "ended"
	EventStatus       EventKind = "status"
	EventServerError  EventKind = "server_error"
	EventDisconnected EventKind = "disconnected"
)

// Event is one notification from the session to its consumer. Exactly one
// event is emitted per inbound backend message.
type Event struct {
	Kind       EventKind
	Phase      Phase
	Started    *InterviewStarted
	Question   *Question
	Completion *Completion
	Ended      *Ended
	Status     *Status
	ServerErr  *ServerError
	// Clean is set on EventDisconnected: true for a normal closure after a
	// terminal phase, false for an unexpected drop.
	Clean bool
}

// Config controls the interview session client.
type Config struct {
	// URL is the backend base URL, e.g. ws://localhost:8000.
	URL              string
	HandshakeTimeout time.Duration
	Header           http.Header
	WriteTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Client is the interview session socket. It owns the websocket connection
// to the backend, enforces the interview phase machine on outbound commands
// and translates inbound messages into events.
type Client struct {
	cfg    Config
	fsm    *phaseMachine
	events chan Event
	logger *slog.Logger

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	mu        sync.Mutex
	conn      *websocket.Conn
	ended     bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		fsm:    newPhaseMachine(),
		events: make(chan Event, 64),
		logger: logging.NewComponentLogger(logger, "session"),
	}
	c.fsm.AddListener(phaseEmitter{c})
	return c
}

// phaseEmitter forwards phase changes onto the event channel.
type phaseEmitter struct{ c *Client }

func (e phaseEmitter) OnPhaseChange(ev PhaseChange) {
	e.c.logger.Info("session phase change",
		slog.String("from", ev.From.String()),
		slog.String("to", ev.To.String()),
		slog.String("reason", ev.Reason))
	e.c.emit(Event{Kind: EventPhase, Phase: ev.To})
}

// Events returns the session event stream.
func (c *Client) Events() <-chan Event { return c.events }

// Phase returns the current interview phase.
func (c *Client) Phase() Phase { return c.fsm.Phase() }

func (c *Client) endpoint(interviewID string) string {
	return strings.TrimRight(c.cfg.URL, "/") + "/ws/interview/" + interviewID
}

// Connect dials the backend and announces the interview. The start command
// goes out as soon as the socket opens; the backend answers with
// interview_started followed by the first question.
func (c *Client) Connect(ctx context.Context, interviewID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.fsm.Transition(PhaseConnecting, "connect requested"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSessionState)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.endpoint(interviewID), c.cfg.Header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		c.fsm.Disconnect("dial failed")
		return errorsx.Wrap(err, errorsx.ReasonSessionConnect)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.send(TypeStartInterview, startInterviewPayload{InterviewID: interviewID}); err != nil {
		c.closeConn()
		c.fsm.Disconnect("start command failed")
		return err
	}
	if err := c.fsm.Transition(PhaseConnected, "socket open"); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSessionState)
	}

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// SubmitAnswer sends the candidate's answer. Valid only while a question is
// pending; calls in any other phase are rejected without touching the wire.
func (c *Client) SubmitAnswer(answer string) error {
	if phase := c.fsm.Phase(); phase != PhaseAwaitingAnswer {
		return errorsx.Wrap(
			errors.New("cannot submit answer in phase "+phase.String()),
			errorsx.ReasonSessionState)
	}
	if err := c.send(TypeSubmitAnswer, submitAnswerPayload{Answer: answer}); err != nil {
		return err
	}
	_ = c.fsm.Transition(PhaseAwaitingQuestion, "answer submitted")
	return nil
}

// End requests early termination. The first call wins: no matter how many
// times or from how many paths it is invoked, exactly one end command goes
// out. Later calls are no-ops.
func (c *Client) End() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	if c.conn == nil {
		c.mu.Unlock()
		return errorsx.Wrap(errors.New("session is not connected"), errorsx.ReasonSessionState)
	}
	phase := c.fsm.Phase()
	if phase.Terminal() || phase == PhaseDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	c.mu.Unlock()

	if err := c.send(TypeEndInterview, endInterviewPayload{Message: "end"}); err != nil {
		return err
	}
	_ = c.fsm.Transition(PhaseEnding, "end requested")
	return nil
}

// Close tears the socket down. Safe to call multiple times and safe to call
// whether or not the interview reached an outcome.
func (c *Client) Close() error {
	c.closeConn()
	c.wg.Wait()
	return nil
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	})
}

func (c *Client) send(typ string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errorsx.Wrap(errors.New("session is not connected"), errorsx.ReasonSessionState)
	}

	data, err := marshalEnvelope(typ, payload)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonProtocol)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSessionSend)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			clean := websocket.IsCloseError(err, websocket.CloseNormalClosure) ||
				c.fsm.Phase().Terminal()
			if !clean {
				c.logger.Warn("session socket dropped", slog.String("error", err.Error()))
			}
			c.fsm.Disconnect("socket closed")
			c.emit(Event{Kind: EventDisconnected, Clean: clean, Phase: c.fsm.Phase()})
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage decodes one backend envelope and emits exactly one event.
// Unknown message types are logged and dropped.
func (c *Client) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("undecodable session message", slog.String("error", err.Error()))
		return
	}

	switch env.Type {
	case TypeInterviewStarted:
		var p InterviewStarted
		if !c.decodePayload(env, &p) {
			return
		}
		_ = c.fsm.Transition(PhaseAwaitingQuestion, "interview started")
		c.emit(Event{Kind: EventStarted, Started: &p})

	case TypeNewQuestion:
		var p Question
		if !c.decodePayload(env, &p) {
			return
		}
		_ = c.fsm.Transition(PhaseAwaitingAnswer, "question received")
		c.emit(Event{Kind: EventQuestion, Question: &p})

	case TypeInterviewCompleted:
		var p Completion
		if !c.decodePayload(env, &p) {
			return
		}
		_ = c.fsm.Transition(PhaseCompleted, "interview completed")
		c.emit(Event{Kind: EventCompleted, Completion: &p})

	case TypeInterviewEnded:
		var p Ended
		if !c.decodePayload(env, &p) {
			return
		}
		_ = c.fsm.Transition(PhaseEnded, "interview ended")
		c.emit(Event{Kind: EventEnded, Ended: &p})

	case TypeStatusUpdate:
		var p Status
		if !c.decodePayload(env, &p) {
			return
		}
		c.emit(Event{Kind: EventStatus, Status: &p})

	case TypeError:
		var p ServerError
		if !c.decodePayload(env, &p) {
			return
		}
		c.logger.Warn("backend reported error", slog.String("message", p.Message))
		c.emit(Event{Kind: EventServerError, ServerErr: &p})

	default:
		c.logger.Debug("ignoring unknown session message", slog.String("type", env.Type))
	}
}

func (c *Client) decodePayload(env Envelope, dst any) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		c.logger.Warn("undecodable session payload",
			slog.String("type", env.Type),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("session event channel full", slog.String("kind", string(ev.Kind)))
	}
}
