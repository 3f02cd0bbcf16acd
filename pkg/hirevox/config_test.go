package hirevox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hirevox/hirevox/pkg/errorsx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
backend:
  url: ws://backend.test:8000
interview:
  job_title: Backend Engineer
  job_description: Build Go services.
  candidate_name: Sam Chen
  resume: Five years of Go.
vendors:
  stt:
    provider: deepgram
    settings:
      api_key: ${TEST_DG_KEY}
      model: nova-2
  tts:
    provider: mock
`

func TestLoadConfigDefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_DG_KEY", "dg-secret")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Capture.SampleRate != 16000 || cfg.Capture.Channels != 1 {
		t.Fatalf("capture defaults = %+v", cfg.Capture)
	}
	if cfg.Link.MaxRetries != 3 || cfg.Link.ChunkIntervalMS != 250 || cfg.Link.BackoffMS != 200 {
		t.Fatalf("link defaults = %+v", cfg.Link)
	}
	if cfg.Synthesis.VoiceWaitMS != 1000 {
		t.Fatalf("voice wait default = %d", cfg.Synthesis.VoiceWaitMS)
	}
	if cfg.Interview.MaxDurationMinutes != 30 {
		t.Fatalf("max duration default = %d", cfg.Interview.MaxDurationMinutes)
	}
	if !cfg.RedactPII {
		t.Fatal("redaction should default on")
	}
	if got := cfg.Vendors.STT.Settings["api_key"]; got != "dg-secret" {
		t.Fatalf("api_key = %v, env not expanded", got)
	}
}

func TestLoadConfigRejectsIncompleteSetup(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing resume", `
backend:
  url: ws://backend.test:8000
interview:
  job_title: Backend Engineer
  job_description: Build Go services.
  candidate_name: Sam Chen
vendors:
  stt:
    provider: mock
  tts:
    provider: mock
`},
		{"missing candidate", `
backend:
  url: ws://backend.test:8000
interview:
  job_title: Backend Engineer
  job_description: Build Go services.
  resume: Five years of Go.
vendors:
  stt:
    provider: mock
  tts:
    provider: mock
`},
		{"missing tts vendor", `
backend:
  url: ws://backend.test:8000
interview:
  job_title: Backend Engineer
  job_description: Build Go services.
  candidate_name: Sam Chen
  resume: Five years of Go.
vendors:
  stt:
    provider: mock
`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, c.body))
			if !errorsx.HasReason(err, errorsx.ReasonValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}
