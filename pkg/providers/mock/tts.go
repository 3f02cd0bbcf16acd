package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hirevox/hirevox/pkg/adapters/tts"
)

type TTSConfig struct {
	SessionID string
	// SpeakDuration simulates playback time per utterance.
	SpeakDuration time.Duration
	// VoiceLoadDelay simulates asynchronous platform voice loading.
	VoiceLoadDelay time.Duration
	Voices         []tts.Voice
	PreferredVoice string
}

// Synthesizer simulates a system speech synthesizer: voices load
// asynchronously and each utterance "plays" for a configurable duration.
type Synthesizer struct {
	cfg   TTSConfig
	ready chan struct{}
	once  sync.Once

	mu     sync.Mutex
	spoken []string
	voice  tts.Voice
}

func NewTTS(cfg TTSConfig) *Synthesizer {
	if cfg.SpeakDuration <= 0 {
		cfg.SpeakDuration = 10 * time.Millisecond
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = []tts.Voice{{Name: "Mock English", Language: "en-US", Local: true}}
	}
	s := &Synthesizer{cfg: cfg, ready: make(chan struct{})}
	s.once.Do(func() {
		go func() {
			if cfg.VoiceLoadDelay > 0 {
				time.Sleep(cfg.VoiceLoadDelay)
			}
			if v, ok := tts.ChooseVoice(cfg.Voices, cfg.PreferredVoice); ok {
				s.mu.Lock()
				s.voice = v
				s.mu.Unlock()
			}
			close(s.ready)
		}()
	})
	return s
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Ready() <-chan struct{} { return s.ready }

func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.SpeakDuration):
		return nil
	}
}

func (s *Synthesizer) Cancel() {}

// Spoken returns the utterances passed to Speak, in order.
func (s *Synthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Voice returns the voice selected once loading finished.
func (s *Synthesizer) Voice() tts.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
