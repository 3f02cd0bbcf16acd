package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hirevox/hirevox/pkg/adapters/stt"
	"github.com/hirevox/hirevox/pkg/frames"
)

type STTConfig struct {
	SessionID         string
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
}

// StreamingSTT is a scripted transcription provider for tests and the
// example: the first audio chunk it receives triggers an interim fragment
// (optional) followed by one final fragment.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	emitted bool
	closed  bool
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &StreamingSTT{cfg: cfg, out: make(chan frames.Frame, 16)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if !s.closed {
		close(s.out)
		s.closed = true
	}
	s.started = false
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	if s.emitted {
		s.mu.Unlock()
		return nil
	}
	s.emitted = true
	s.mu.Unlock()

	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		meta := map[string]string{
			frames.MetaSessionID: s.cfg.SessionID,
			frames.MetaSource:    "stt",
			frames.MetaIsFinal:   "false",
		}
		s.out <- frames.NewTextFrame(s.cfg.SessionID, time.Now().UnixNano(), interim, meta)
	}

	finalMeta := map[string]string{
		frames.MetaSessionID: s.cfg.SessionID,
		frames.MetaSource:    "stt",
		frames.MetaIsFinal:   "true",
	}
	s.out <- frames.NewTextFrame(s.cfg.SessionID, time.Now().UnixNano(), s.cfg.Transcript, finalMeta)
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
