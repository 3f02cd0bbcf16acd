package sttlink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hirevox/hirevox/pkg/adapters/stt"
	"github.com/hirevox/hirevox/pkg/capture"
	"github.com/hirevox/hirevox/pkg/connstate"
	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/frames"
	"github.com/hirevox/hirevox/pkg/logging"
	"github.com/hirevox/hirevox/pkg/resilience"
)

// EventKind identifies one link notification.
type EventKind string

const (
	// EventFragment carries one speech recognition result.
	EventFragment EventKind = "fragment"
	// EventState reports a connection state change with the retry count.
	EventState EventKind = "state"
	// EventError reports a link failure. Device errors are terminal for the
	// attempt; transport errors only surface after the retry budget is spent.
	EventError EventKind = "error"
)

// Event is one notification from the link to its consumer.
type Event struct {
	Kind       EventKind
	Text       string
	IsFinal    bool
	State      connstate.State
	RetryCount int
	Err        error
}

// ProviderFactory builds a fresh transcription connection. A new provider is
// created per (re)connect attempt so no stale socket state leaks across
// retries.
type ProviderFactory func(cfg stt.Config) stt.StreamingSTT

// Config controls the link.
type Config struct {
	SessionID     string
	Capture       capture.Config
	STT           stt.Config
	ChunkInterval time.Duration
	MaxRetries    int
	Backoff       time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 250 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.STT.SampleRate <= 0 {
		c.STT.SampleRate = 16000
	}
	if c.STT.Channels <= 0 {
		c.STT.Channels = 1
	}
	return c
}

// Link owns the microphone capture session and the streaming transcription
// connection. Captured chunks are delivered on a fixed cadence; a chunk that
// is ready while the socket is not open is dropped rather than buffered.
type Link struct {
	cfg     Config
	cap     capture.Capture
	factory ProviderFactory
	retry   resilience.RetryPolicy
	handle  *connstate.Handle
	events  chan Event
	ptsGen  *frames.PTSGen
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	session capture.Session
	prov    stt.StreamingSTT
	wg      sync.WaitGroup
}

func New(cfg Config, mic capture.Capture, factory ProviderFactory, logger *slog.Logger) *Link {
	cfg = cfg.withDefaults()
	return &Link{
		cfg:     cfg,
		cap:     mic,
		factory: factory,
		retry:   resilience.NewRetryPolicy(cfg.MaxRetries, cfg.Backoff),
		handle:  connstate.NewHandle(cfg.MaxRetries),
		events:  make(chan Event, 256),
		ptsGen:  frames.NewPTSGen(),
		logger:  logging.NewComponentLogger(logger, "stt_link"),
	}
}

// Events returns the fragment/state/error stream.
func (l *Link) Events() <-chan Event { return l.events }

// State returns the transcription connection state.
func (l *Link) State() connstate.State { return l.handle.State() }

// RetryCount returns the current automatic reconnect count, for UI feedback.
func (l *Link) RetryCount() int { return l.handle.RetryCount() }

// Start acquires the microphone and opens the transcription connection.
// Device-access failures return immediately and are never retried; transport
// failures are retried with backoff up to the configured bound, after which
// the link is Failed and only Reset followed by Start can recover it.
func (l *Link) Start(ctx context.Context, deviceID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	if l.handle.State() == connstate.StateFailed {
		l.mu.Unlock()
		return errorsx.Wrap(errors.New("link failed, reset before starting"), errorsx.ReasonTransport)
	}
	if !l.handle.Transition(connstate.StateOpening) {
		l.mu.Unlock()
		return errorsx.Wrap(errors.New("link is not idle"), errorsx.ReasonTransport)
	}
	l.mu.Unlock()
	l.emitState()

	capCfg := l.cfg.Capture
	if deviceID != "" {
		capCfg.DeviceID = deviceID
	}
	session, err := l.cap.Start(ctx, capCfg)
	if err != nil {
		err = capture.ClassifyStartError(err)
		l.handle.Transition(connstate.StateClosed)
		l.emitState()
		l.emit(Event{Kind: EventError, Err: err})
		return err
	}

	prov, err := l.connect(ctx)
	if err != nil {
		_ = session.Stop()
		l.emit(Event{Kind: EventError, Err: err})
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.running = true
	l.cancel = cancel
	l.session = session
	l.prov = prov
	l.mu.Unlock()

	l.wg.Add(2)
	go l.pumpLoop(runCtx)
	go l.resultsLoop(runCtx, prov)

	return nil
}

// Stop terminates the transcription connection gracefully and releases the
// microphone. Always safe, idempotent.
func (l *Link) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel := l.cancel
	session := l.session
	prov := l.prov
	l.cancel = nil
	l.session = nil
	l.prov = nil
	l.mu.Unlock()

	if l.handle.Transition(connstate.StateClosing) {
		l.emitState()
	}
	if cancel != nil {
		cancel()
	}
	if prov != nil {
		_ = prov.Close()
	}
	if session != nil {
		_ = session.Stop()
	}
	l.wg.Wait()
	if l.handle.Transition(connstate.StateClosed) {
		l.emitState()
	}
}

// Reset returns a Failed link to Idle so a manual Start can try again.
// Automatic retry never calls this.
func (l *Link) Reset() {
	l.Stop()
	l.handle.Reset()
	l.emitState()
}

// connect opens a fresh provider connection with bounded, backed-off
// retries. Exhausting the budget drives the handle to Failed.
func (l *Link) connect(ctx context.Context) (stt.StreamingSTT, error) {
	sttCfg := l.cfg.STT
	sttCfg.SessionID = l.cfg.SessionID

	for {
		prov := l.factory(sttCfg)
		err := prov.Start(ctx)
		if err == nil {
			l.handle.Transition(connstate.StateOpen)
			l.handle.ResetRetries()
			l.emitState()
			return prov, nil
		}
		_ = prov.Close()

		if ctx.Err() != nil {
			l.handle.Transition(connstate.StateClosed)
			l.emitState()
			return nil, errorsx.Wrap(ctx.Err(), errorsx.ReasonTransport)
		}

		if !l.handle.RecordRetry() {
			l.logger.Error("transcription retries exhausted",
				slog.String("session_id", l.cfg.SessionID),
				slog.Int("max_retries", l.cfg.MaxRetries),
				slog.String("error", err.Error()))
			l.emitState()
			return nil, errorsx.Wrap(err, errorsx.ReasonTransport)
		}

		attempt := l.handle.RetryCount()
		delay := l.retry.Delay(attempt)
		l.logger.Warn("transcription connect failed, retrying",
			slog.String("session_id", l.cfg.SessionID),
			slog.Int("retry", attempt),
			slog.Int("max_retries", l.cfg.MaxRetries),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()))
		l.emitState()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			l.handle.Transition(connstate.StateClosed)
			l.emitState()
			return nil, errorsx.Wrap(ctx.Err(), errorsx.ReasonTransport)
		}
	}
}

// pumpLoop reads one capture chunk per tick and forwards it upstream.
// Chunks observed while the socket is not open are dropped: bounded
// staleness beats unbounded buffering in a live interview.
func (l *Link) pumpLoop(ctx context.Context) {
	defer l.wg.Done()

	chunkSize := l.cfg.STT.SampleRate * l.cfg.STT.Channels * 2 // 16-bit PCM
	chunkSize = chunkSize * int(l.cfg.ChunkInterval/time.Millisecond) / 1000
	if chunkSize < 256 {
		chunkSize = 4096
	}
	buf := make([]byte, chunkSize)

	ticker := time.NewTicker(l.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		session := l.session
		prov := l.prov
		l.mu.Unlock()
		if session == nil {
			return
		}

		n, readErr := session.Read(buf)
		if n > 0 {
			if l.handle.State() != connstate.StateOpen || prov == nil {
				// Socket not open yet (or reconnecting): drop the chunk.
				continue
			}
			// Providers consume the chunk synchronously, so the pooled
			// buffer goes straight back after the send.
			f := frames.NewAudioFrameFromPool(l.cfg.SessionID, l.ptsGen.Next(l.cfg.SessionID),
				buf[:n], l.cfg.STT.SampleRate, l.cfg.STT.Channels, nil)
			sendErr := prov.SendAudio(f)
			frames.ReleaseAudioFrame(f)
			if sendErr != nil {
				if !l.reconnect(ctx, prov) {
					return
				}
			}
		}
		if readErr != nil {
			if ctx.Err() == nil {
				l.emit(Event{Kind: EventError,
					Err: errorsx.Wrap(readErr, errorsx.ReasonDeviceUnavailable)})
			}
			return
		}
	}
}

// reconnect replaces a provider whose socket failed mid-stream. Shares the
// connect retry budget; returns false once the link is terminally Failed.
func (l *Link) reconnect(ctx context.Context, failed stt.StreamingSTT) bool {
	_ = failed.Close()
	l.handle.Transition(connstate.StateClosed)
	l.emitState()

	if !l.handle.Transition(connstate.StateOpening) {
		return false
	}
	l.emitState()

	prov, err := l.connect(ctx)
	if err != nil {
		l.emit(Event{Kind: EventError, Err: err})
		return false
	}

	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		_ = prov.Close()
		return false
	}
	l.prov = prov
	l.mu.Unlock()

	l.wg.Add(1)
	go l.resultsLoop(ctx, prov)
	return true
}

// resultsLoop translates provider frames into fragment events.
func (l *Link) resultsLoop(ctx context.Context, prov stt.StreamingSTT) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-prov.Results():
			if !ok {
				return
			}
			tf, isText := f.(frames.TextFrame)
			if !isText {
				continue
			}
			l.emit(Event{Kind: EventFragment, Text: tf.Text(), IsFinal: tf.IsFinal()})
		}
	}
}

func (l *Link) emitState() {
	l.emit(Event{Kind: EventState, State: l.handle.State(), RetryCount: l.handle.RetryCount()})
}

func (l *Link) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("stt link event channel full",
			slog.String("kind", string(ev.Kind)))
	}
}
