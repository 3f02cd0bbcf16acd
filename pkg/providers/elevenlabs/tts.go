package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hirevox/hirevox/pkg/adapters/tts"
	"github.com/hirevox/hirevox/pkg/errorsx"
	"github.com/hirevox/hirevox/pkg/logging"
	"github.com/hirevox/hirevox/pkg/resilience"
)

// Sink consumes decoded audio chunks for playback.
type Sink func(pcm []byte) error

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SessionID    string
}

// Synthesizer streams one utterance at a time through the ElevenLabs
// stream-input websocket. Each Speak opens a fresh connection, pushes the
// text, and plays audio chunks into the sink until the service reports the
// utterance complete.
type Synthesizer struct {
	cfg    Config
	sink   Sink
	ready  chan struct{}
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config, sink Sink) *Synthesizer {
	ready := make(chan struct{})
	close(ready)
	if sink == nil {
		sink = func([]byte) error { return nil }
	}
	return &Synthesizer{
		cfg:    cfg,
		sink:   sink,
		ready:  ready,
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

// Ready is closed immediately: the vendor has no asynchronous voice load.
func (s *Synthesizer) Ready() <-chan struct{} { return s.ready }

func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonSynthesis)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	u, err := s.buildURL()
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("elevenlabs rate limit exceeded",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("status", resp.Status))
			return resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		return errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}

	s.setConn(conn)
	defer func() {
		s.setConn(nil)
		_ = conn.Close()
	}()

	// Voice settings, the utterance, then end-of-sequence.
	init := map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
	}
	for _, payload := range []map[string]any{
		init,
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := writeJSON(conn, payload); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonSynthesis)
		}
	}

	// Unblock the read loop when the caller cancels.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errorsx.Wrap(err, errorsx.ReasonSynthesis)
		}
		finished, err := s.handleMessage(data)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}
	}
}

// Cancel closes any in-flight connection, stopping playback mid-utterance.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

func (s *Synthesizer) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Synthesizer) handleMessage(data []byte) (bool, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("tts websocket raw data", "data", string(data))
		return false, nil
	}
	if final, ok := msg["isFinal"].(bool); ok && final {
		return true, nil
	}
	audio, ok := msg["audio"].(string)
	if !ok || audio == "" {
		return false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		s.logger.Error("tts audio decode error", "error", err)
		return false, nil
	}
	if err := s.sink(raw); err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}
	return false, nil
}

func (s *Synthesizer) buildURL() (string, error) {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	if s.cfg.OutputFormat != "" {
		q.Set("output_format", s.cfg.OutputFormat)
	}
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode(), nil
}

func writeJSON(conn *websocket.Conn, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
