package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFMPEGCapture streams microphone PCM audio using an ffmpeg child process.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg Config) (Session, error) {
	cfg = cfg.withDefaults()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.DeviceID,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	// ffmpeg's audio filters stand in for the browser-style capture
	// constraints.
	var filters []string
	if cfg.EchoCancellation {
		filters = append(filters, "aecho=0.8:0.9:40:0.25")
	}
	if cfg.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if cfg.AutoGain {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", joinFilters(filters))
	}
	args = append(args, "-f", "s16le", "-")

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, ClassifyStartError(fmt.Errorf("start capture process: %w", err))
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := trimStderr(stderr.String())
		if err != nil {
			return nil, ClassifyStartError(fmt.Errorf("capture exited before start: %w: %s", err, detail))
		}
		return nil, ClassifyStartError(fmt.Errorf("capture exited before start: %s", detail))
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimStderr(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func joinFilters(filters []string) string {
	out := filters[0]
	for _, f := range filters[1:] {
		out += "," + f
	}
	return out
}

func trimStderr(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}
