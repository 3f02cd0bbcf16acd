package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

// Runner owns the process lifecycle of an interview client.
type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer finishes in-flight work before shutdown: flushing the transcript
// log, closing the session socket, releasing the microphone.
type Drainer interface {
	Drain() error
}

const Version = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"HIREVOX\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
