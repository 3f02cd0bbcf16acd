package capture

import (
	"context"
	"io"
)

// Config describes how the microphone should be captured. The defaults match
// what streaming transcription providers expect for live speech: mono 16kHz
// PCM with echo cancellation, noise suppression and auto gain where the
// backend supports them.
type Config struct {
	SampleRate       int
	Channels         int
	InputFormat      string
	DeviceID         string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.DeviceID == "" {
		c.DeviceID = "default"
	}
	return c
}

// Session is a live capture session. The microphone device handle is owned
// exclusively by whoever holds the session; Stop releases it.
type Session interface {
	io.ReadCloser
	Stop() error
}

// Capture creates microphone capture sessions.
type Capture interface {
	Start(ctx context.Context, cfg Config) (Session, error)
}
