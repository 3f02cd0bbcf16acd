package sttlink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hirevox/hirevox/pkg/adapters/stt"
	"github.com/hirevox/hirevox/pkg/capture"
	"github.com/hirevox/hirevox/pkg/connstate"
	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/frames"
	"github.com/hirevox/hirevox/pkg/logging"
)

type fakeSession struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, io.EOF
	}
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Close() error { return s.Stop() }

type fakeCapture struct {
	startErr error
	starts   atomic.Int32
	session  *fakeSession
}

func (c *fakeCapture) Start(_ context.Context, _ capture.Config) (capture.Session, error) {
	c.starts.Add(1)
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.session = &fakeSession{}
	return c.session, nil
}

type fakeProvider struct {
	startErr  error
	sendErr   error
	sent      atomic.Int32
	results   chan frames.Frame
	closeOnce sync.Once
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: make(chan frames.Frame, 16)}
}

func (p *fakeProvider) Name() string                  { return "fake" }
func (p *fakeProvider) Start(_ context.Context) error { return p.startErr }
func (p *fakeProvider) Close() error {
	p.closeOnce.Do(func() { close(p.results) })
	return nil
}
func (p *fakeProvider) SendAudio(_ frames.AudioFrame) error {
	p.sent.Add(1)
	return p.sendErr
}
func (p *fakeProvider) Results() <-chan frames.Frame { return p.results }

// providerScript hands out a provider per connect attempt so tests can make
// attempt N fail and attempt N+1 succeed.
type providerScript struct {
	mu        sync.Mutex
	providers []*fakeProvider
	attempts  int
}

func (s *providerScript) factory(_ stt.Config) stt.StreamingSTT {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p *fakeProvider
	if s.attempts < len(s.providers) {
		p = s.providers[s.attempts]
	} else {
		p = newFakeProvider()
	}
	s.attempts++
	return p
}

func (s *providerScript) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func testConfig() Config {
	return Config{
		SessionID:     "sess-1",
		ChunkInterval: 5 * time.Millisecond,
		MaxRetries:    3,
		Backoff:       time.Millisecond,
	}
}

func collectUntil(t *testing.T, events <-chan Event, timeout time.Duration, done func(Event) bool) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if done(ev) {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event, got %d so far", len(got))
		}
	}
}

func TestLinkStreamsFragments(t *testing.T) {
	t.Parallel()

	fc := &fakeCapture{}
	prov := newFakeProvider()
	script := &providerScript{providers: []*fakeProvider{prov}}
	link := New(testConfig(), fc, script.factory, logging.NewLogger(io.Discard, slog.LevelError, "text"))

	if err := link.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer link.Stop()

	if link.State() != connstate.StateOpen {
		t.Fatalf("state = %v, want OPEN", link.State())
	}

	prov.results <- frames.NewTextFrame("sess-1", 1, "hello", map[string]string{frames.MetaIsFinal: "false"})
	prov.results <- frames.NewTextFrame("sess-1", 2, "hello world", map[string]string{frames.MetaIsFinal: "true"})

	got := collectUntil(t, link.Events(), time.Second, func(ev Event) bool {
		return ev.Kind == EventFragment && ev.IsFinal
	})

	var interim, final *Event
	for i := range got {
		if got[i].Kind != EventFragment {
			continue
		}
		if got[i].IsFinal {
			final = &got[i]
		} else {
			interim = &got[i]
		}
	}
	if interim == nil || interim.Text != "hello" {
		t.Fatalf("interim fragment = %+v", interim)
	}
	if final.Text != "hello world" {
		t.Fatalf("final fragment text = %q", final.Text)
	}
}

func TestLinkPumpsAudioOnCadence(t *testing.T) {
	t.Parallel()

	fc := &fakeCapture{}
	prov := newFakeProvider()
	script := &providerScript{providers: []*fakeProvider{prov}}
	link := New(testConfig(), fc, script.factory, logging.NewLogger(io.Discard, slog.LevelError, "text"))

	if err := link.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer link.Stop()

	deadline := time.Now().Add(time.Second)
	for prov.sent.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sent %d chunks, want at least 3", prov.sent.Load())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLinkDeviceErrorNotRetried(t *testing.T) {
	t.Parallel()

	fc := &fakeCapture{startErr: errors.New("pulse: access denied by policy")}
	script := &providerScript{}
	link := New(testConfig(), fc, script.factory, logging.NewLogger(io.Discard, slog.LevelError, "text"))

	err := link.Start(context.Background(), "")
	if !errorsx.HasReason(err, errorsx.ReasonPermissionDenied) {
		t.Fatalf("err = %v, want permission_denied", err)
	}
	if got := fc.starts.Load(); got != 1 {
		t.Fatalf("capture start attempts = %d, want 1", got)
	}
	if script.count() != 0 {
		t.Fatalf("provider connects = %d, want 0", script.count())
	}
	if link.State() == connstate.StateFailed {
		t.Fatal("device error must not exhaust the retry budget")
	}
}

func TestLinkTransportRetriesThenFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: connection refused")
	script := &providerScript{providers: []*fakeProvider{
		{startErr: boom, results: make(chan frames.Frame)},
		{startErr: boom, results: make(chan frames.Frame)},
		{startErr: boom, results: make(chan frames.Frame)},
		{startErr: boom, results: make(chan frames.Frame)},
	}}
	link := New(testConfig(), &fakeCapture{}, script.factory, logging.NewLogger(io.Discard, slog.LevelError, "text"))

	err := link.Start(context.Background(), "")
	if !errorsx.HasReason(err, errorsx.ReasonTransport) {
		t.Fatalf("err = %v, want transport", err)
	}
	// Initial attempt plus MaxRetries reconnect attempts.
	if script.count() != 4 {
		t.Fatalf("connect attempts = %d, want 4", script.count())
	}
	if link.State() != connstate.StateFailed {
		t.Fatalf("state = %v, want FAILED", link.State())
	}

	// Failed is terminal until an explicit reset.
	if err := link.Start(context.Background(), ""); err == nil {
		t.Fatal("start on a failed link must error")
	}
	if script.count() != 4 {
		t.Fatalf("failed link attempted a connect, attempts = %d", script.count())
	}

	link.Reset()
	if link.State() != connstate.StateIdle {
		t.Fatalf("state after reset = %v, want IDLE", link.State())
	}
}

func TestLinkTransportRetrySucceeds(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: connection refused")
	ok := newFakeProvider()
	script := &providerScript{providers: []*fakeProvider{
		{startErr: boom, results: make(chan frames.Frame)},
		ok,
	}}
	link := New(testConfig(), &fakeCapture{}, script.factory, logging.NewLogger(io.Discard, slog.LevelError, "text"))

	if err := link.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer link.Stop()

	if link.State() != connstate.StateOpen {
		t.Fatalf("state = %v, want OPEN", link.State())
	}
	if link.RetryCount() != 0 {
		t.Fatalf("retry count after success = %d, want 0", link.RetryCount())
	}
}

func TestLinkStopIdempotent(t *testing.T) {
	t.Parallel()

	fc := &fakeCapture{}
	link := New(testConfig(), fc, (&providerScript{}).factory, logging.NewLogger(io.Discard, slog.LevelError, "text"))

	if err := link.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	link.Stop()
	link.Stop()

	if link.State() != connstate.StateClosed {
		t.Fatalf("state = %v, want CLOSED", link.State())
	}
	fc.session.mu.Lock()
	stopped := fc.session.stopped
	fc.session.mu.Unlock()
	if !stopped {
		t.Fatal("capture session not released")
	}
}
