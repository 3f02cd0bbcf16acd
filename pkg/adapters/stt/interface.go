package stt

import (
	"context"

	"github.com/hirevox/hirevox/pkg/frames"
)

// StreamingSTT defines the contract for any streaming transcription vendor.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start opens the transcription connection.
	Start(ctx context.Context) error
	// Close shuts down the transcription connection.
	Close() error
	// SendAudio forwards a captured audio chunk to the vendor.
	SendAudio(frame frames.AudioFrame) error
	// Results returns a channel of transcript/control frames. Transcript
	// frames carry the is_final meta flag.
	Results() <-chan frames.Frame
}

// Config contains vendor-agnostic transcription configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Channels   int
	Language   string
	Interim    bool
}
