package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/logging"
)

// backendStub is a scripted interview backend. It records everything the
// client sends and lets tests push envelopes to the client at will.
type backendStub struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []Envelope
	ready    chan struct{}
}

func newBackendStub(t *testing.T) *backendStub {
	t.Helper()
	b := &backendStub{t: t, ready: make(chan struct{})}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/interview/") {
			http.NotFound(w, r)
			return
		}
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		close(b.ready)
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			b.mu.Lock()
			b.received = append(b.received, env)
			b.mu.Unlock()
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backendStub) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *backendStub) push(t *testing.T, typ string, payload any) {
	t.Helper()
	select {
	case <-b.ready:
	case <-time.After(time.Second):
		t.Fatal("backend never saw a connection")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.conn.WriteJSON(Envelope{Type: typ, Payload: raw}); err != nil {
		t.Fatalf("push %s: %v", typ, err)
	}
}

func (b *backendStub) closeWith(t *testing.T, code int) {
	t.Helper()
	select {
	case <-b.ready:
	case <-time.After(time.Second):
		t.Fatal("backend never saw a connection")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if code == websocket.CloseNormalClosure {
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
		time.Sleep(20 * time.Millisecond)
	}
	_ = b.conn.Close()
}

func (b *backendStub) sent(typ string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Envelope
	for _, env := range b.received {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (b *backendStub) waitFor(t *testing.T, typ string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(b.sent(typ)) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("backend never received %d %s message(s), got %d", want, typ, len(b.sent(typ)))
}

func testClient(t *testing.T, b *backendStub) *Client {
	t.Helper()
	c := NewClient(Config{URL: b.url()}, logging.NewLogger(io.Discard, slog.LevelError, "text"))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestClientConnectSendsStartCommand(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)

	if err := c.Connect(context.Background(), "iv-42"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	b.waitFor(t, TypeStartInterview, 1)

	var p startInterviewPayload
	if err := json.Unmarshal(b.sent(TypeStartInterview)[0].Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.InterviewID != "iv-42" {
		t.Fatalf("interview_id = %q, want iv-42", p.InterviewID)
	}
	if c.Phase() != PhaseConnected {
		t.Fatalf("phase = %v, want CONNECTED", c.Phase())
	}
}

func TestClientFullInterviewFlow(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)
	if err := c.Connect(context.Background(), "iv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	b.push(t, TypeInterviewStarted, InterviewStarted{Message: "welcome", TotalQuestions: 5})
	ev := waitEvent(t, c, EventStarted)
	if ev.Started.TotalQuestions != 5 {
		t.Fatalf("total questions = %d", ev.Started.TotalQuestions)
	}

	b.push(t, TypeNewQuestion, Question{Question: "Tell me about Go interfaces.", QuestionNumber: 1, QuestionType: "technical"})
	ev = waitEvent(t, c, EventQuestion)
	if ev.Question.QuestionNumber != 1 {
		t.Fatalf("question number = %d", ev.Question.QuestionNumber)
	}
	if c.Phase() != PhaseAwaitingAnswer {
		t.Fatalf("phase = %v, want AWAITING_ANSWER", c.Phase())
	}

	if err := c.SubmitAnswer("They describe behavior."); err != nil {
		t.Fatalf("submit: %v", err)
	}
	b.waitFor(t, TypeSubmitAnswer, 1)
	if c.Phase() != PhaseAwaitingQuestion {
		t.Fatalf("phase = %v, want AWAITING_QUESTION", c.Phase())
	}

	b.push(t, TypeInterviewCompleted, map[string]any{
		"message":          "done",
		"final_assessment": map[string]any{"score": 4},
	})
	ev = waitEvent(t, c, EventCompleted)
	if len(ev.Completion.FinalAssessment) == 0 {
		t.Fatal("final assessment dropped")
	}
	if c.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want COMPLETED", c.Phase())
	}
}

func TestClientSubmitAnswerRequiresPendingQuestion(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)
	if err := c.Connect(context.Background(), "iv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	err := c.SubmitAnswer("too early")
	if !errorsx.HasReason(err, errorsx.ReasonSessionState) {
		t.Fatalf("err = %v, want session_state", err)
	}
	if got := len(b.sent(TypeSubmitAnswer)); got != 0 {
		t.Fatalf("wire saw %d submit messages, want 0", got)
	}
}

func TestClientSubmitAnswerRejectedInEveryNonAnswerPhase(t *testing.T) {
	t.Parallel()

	steps := map[Phase][]Phase{
		PhaseAwaitingQuestion: {PhaseAwaitingQuestion},
		PhaseEnding:           {PhaseEnding},
		PhaseCompleted:        {PhaseAwaitingQuestion, PhaseCompleted},
		PhaseEnded:            {PhaseEnded},
	}
	for phase, path := range steps {
		phase, path := phase, path
		t.Run(phase.String(), func(t *testing.T) {
			t.Parallel()
			b := newBackendStub(t)
			c := testClient(t, b)
			if err := c.Connect(context.Background(), "iv-1"); err != nil {
				t.Fatalf("connect: %v", err)
			}
			for _, s := range path {
				if err := c.fsm.Transition(s, "test setup"); err != nil {
					t.Fatalf("setup transition to %v: %v", s, err)
				}
			}

			err := c.SubmitAnswer("out of turn")
			if !errorsx.HasReason(err, errorsx.ReasonSessionState) {
				t.Fatalf("err = %v, want session_state", err)
			}
			time.Sleep(20 * time.Millisecond)
			if got := len(b.sent(TypeSubmitAnswer)); got != 0 {
				t.Fatalf("wire saw %d submit messages in %v, want 0", got, phase)
			}
		})
	}
}

func TestClientSubmitAnswerRejectedWhenDisconnected(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)
	if err := c.Connect(context.Background(), "iv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.fsm.Disconnect("test setup")

	err := c.SubmitAnswer("into the void")
	if !errorsx.HasReason(err, errorsx.ReasonSessionState) {
		t.Fatalf("err = %v, want session_state", err)
	}
	if got := len(b.sent(TypeSubmitAnswer)); got != 0 {
		t.Fatalf("wire saw %d submit messages, want 0", got)
	}
}

func TestClientEndIsOneShot(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)
	if err := c.Connect(context.Background(), "iv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := c.End(); err != nil {
			t.Fatalf("end call %d: %v", i, err)
		}
	}
	b.waitFor(t, TypeEndInterview, 1)
	time.Sleep(20 * time.Millisecond)
	if got := len(b.sent(TypeEndInterview)); got != 1 {
		t.Fatalf("wire saw %d end messages, want exactly 1", got)
	}

	var p endInterviewPayload
	if err := json.Unmarshal(b.sent(TypeEndInterview)[0].Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Message != "end" {
		t.Fatalf("end payload message = %q", p.Message)
	}
	if c.Phase() != PhaseEnding {
		t.Fatalf("phase = %v, want ENDING", c.Phase())
	}
}

func TestClientQuestionAfterEndedDoesNotRevive(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)
	if err := c.Connect(context.Background(), "iv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	b.push(t, TypeNewQuestion, Question{Question: "Q1", QuestionNumber: 1})
	waitEvent(t, c, EventQuestion)
	b.push(t, TypeInterviewEnded, Ended{Message: "terminated"})
	waitEvent(t, c, EventEnded)

	// A question racing past the termination must not restart the session.
	b.push(t, TypeNewQuestion, Question{Question: "Q2", QuestionNumber: 2})
	waitEvent(t, c, EventQuestion)
	if c.Phase() != PhaseEnded {
		t.Fatalf("phase = %v, want ENDED", c.Phase())
	}
	if err := c.SubmitAnswer("late"); err == nil {
		t.Fatal("submit after termination must fail")
	}
}

func TestClientUnknownMessageIgnored(t *testing.T) {
	t.Parallel()

	b := newBackendStub(t)
	c := testClient(t, b)
	if err := c.Connect(context.Background(), "iv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	b.push(t, "heartbeat_v2", map[string]any{"seq": 7})
	b.push(t, TypeStatusUpdate, Status{Status: "in_progress", Progress: 40, TimeRemaining: 600})

	ev := waitEvent(t, c, EventStatus)
	if ev.Status.Progress != 40 {
		t.Fatalf("progress = %d", ev.Status.Progress)
	}
	if c.Phase() != PhaseConnected {
		t.Fatalf("phase = %v, want CONNECTED", c.Phase())
	}
}

func TestClientDisconnectDiscrimination(t *testing.T) {
	t.Parallel()

	t.Run("abnormal drop mid interview", func(t *testing.T) {
		t.Parallel()
		b := newBackendStub(t)
		c := testClient(t, b)
		if err := c.Connect(context.Background(), "iv-1"); err != nil {
			t.Fatalf("connect: %v", err)
		}
		b.push(t, TypeNewQuestion, Question{Question: "Q1", QuestionNumber: 1})
		waitEvent(t, c, EventQuestion)

		b.closeWith(t, websocket.CloseAbnormalClosure)
		ev := waitEvent(t, c, EventDisconnected)
		if ev.Clean {
			t.Fatal("mid-interview drop reported as clean")
		}
		if c.Phase() != PhaseDisconnected {
			t.Fatalf("phase = %v, want DISCONNECTED", c.Phase())
		}
	})

	t.Run("normal close after completion", func(t *testing.T) {
		t.Parallel()
		b := newBackendStub(t)
		c := testClient(t, b)
		if err := c.Connect(context.Background(), "iv-1"); err != nil {
			t.Fatalf("connect: %v", err)
		}
		b.push(t, TypeInterviewCompleted, Completion{Message: "done"})
		waitEvent(t, c, EventCompleted)

		b.closeWith(t, websocket.CloseNormalClosure)
		ev := waitEvent(t, c, EventDisconnected)
		if !ev.Clean {
			t.Fatal("post-completion close reported as unclean")
		}
		if c.Phase() != PhaseCompleted {
			t.Fatalf("phase = %v, want COMPLETED", c.Phase())
		}
	})
}

func TestClientConnectFailure(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{URL: "ws://127.0.0.1:1", HandshakeTimeout: 200 * time.Millisecond},
		logging.NewLogger(io.Discard, slog.LevelError, "text"))
	err := c.Connect(context.Background(), "iv-1")
	if !errorsx.HasReason(err, errorsx.ReasonSessionConnect) {
		t.Fatalf("err = %v, want session_connect", err)
	}
	if c.Phase() != PhaseDisconnected {
		t.Fatalf("phase = %v, want DISCONNECTED", c.Phase())
	}
}
