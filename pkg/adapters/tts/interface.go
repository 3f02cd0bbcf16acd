package tts

import (
	"context"
	"strings"
)

// Synthesizer defines the contract for any speech synthesis vendor.
// Implementations own their playback pipeline; Speak blocks until the
// utterance finishes, the context is canceled, or synthesis fails.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Ready returns a channel closed once the vendor's voice inventory is
	// loaded. Vendors without asynchronous voice loading close it up front.
	Ready() <-chan struct{}
	// Speak synthesizes and plays one utterance.
	Speak(ctx context.Context, text string) error
	// Cancel stops any in-flight synthesis. Idempotent.
	Cancel()
}

// Voice describes one synthesis voice exposed by a vendor.
type Voice struct {
	Name     string
	Language string
	Local    bool
	Premium  bool
}

// ChooseVoice picks the best available voice. An exact match on preferred
// wins; otherwise premium/neural first, then a remote English voice, then any
// English voice, then whatever is first.
func ChooseVoice(voices []Voice, preferred string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	if preferred != "" {
		for _, v := range voices {
			if v.Name == preferred {
				return v, true
			}
		}
	}
	for _, v := range voices {
		if v.Premium {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.HasPrefix(v.Language, "en") && !v.Local {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.HasPrefix(v.Language, "en") {
			return v, true
		}
	}
	return voices[0], true
}

// Config contains vendor-agnostic synthesis configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Channels   int
}
