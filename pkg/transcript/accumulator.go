package transcript

import (
	"strings"
	"sync"
)

// Accumulator reconciles a stream of interim/final speech-to-text fragments
// into one stable answer buffer. Final fragments append to the committed
// text; interim fragments only replace the advisory preview and never touch
// what is already committed.
type Accumulator struct {
	mu        sync.Mutex
	committed string
	preview   string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// OnFragment folds one recognition result into the buffer and returns the
// current display string (committed text plus any pending preview).
func (a *Accumulator) OnFragment(text string, isFinal bool) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return a.displayLocked()
	}
	if isFinal {
		if a.committed == "" {
			a.committed = trimmed
		} else {
			a.committed += " " + trimmed
		}
		a.preview = ""
	} else {
		a.preview = trimmed
	}
	return a.displayLocked()
}

// Reset clears both the committed text and the preview. Idempotent.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.committed = ""
	a.preview = ""
	a.mu.Unlock()
}

// CommitAndExtract returns the committed answer trimmed of surrounding
// whitespace. State is left intact; the caller decides whether to Reset.
func (a *Accumulator) CommitAndExtract() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(a.committed)
}

// Committed returns the stable portion of the in-progress answer.
func (a *Accumulator) Committed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// Preview returns the most recent interim fragment, if any.
func (a *Accumulator) Preview() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preview
}

// Display returns committed text plus pending preview, for live UI feedback.
func (a *Accumulator) Display() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayLocked()
}

func (a *Accumulator) displayLocked() string {
	if a.preview == "" {
		return a.committed
	}
	if a.committed == "" {
		return a.preview
	}
	return a.committed + " " + a.preview
}
