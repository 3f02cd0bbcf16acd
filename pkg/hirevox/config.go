package hirevox

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/hirevox/hirevox/pkg/errorsx"
)

type Config struct {
	Backend     BackendConfig   `mapstructure:"backend"`
	Interview   InterviewConfig `mapstructure:"interview"`
	Vendors     VendorsConfig   `mapstructure:"vendors"`
	Capture     CaptureConfig   `mapstructure:"capture"`
	Link        LinkConfig      `mapstructure:"link"`
	Synthesis   SynthesisConfig `mapstructure:"synthesis"`
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	LogFormat   string          `mapstructure:"log_format"`
	TimelineDir string          `mapstructure:"timeline_dir"`
	RedactPII   bool            `mapstructure:"redact_pii"`
}

type BackendConfig struct {
	URL                string `mapstructure:"url"`
	HandshakeTimeoutMS int    `mapstructure:"handshake_timeout_ms"`
}

// InterviewConfig mirrors the setup form: the interview cannot start until
// every field describing the job and the candidate is present.
type InterviewConfig struct {
	ID                 string `mapstructure:"id"`
	JobTitle           string `mapstructure:"job_title"`
	JobDescription     string `mapstructure:"job_description"`
	CandidateName      string `mapstructure:"candidate_name"`
	Resume             string `mapstructure:"resume"`
	MaxDurationMinutes int    `mapstructure:"max_duration_minutes"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
}

type CaptureConfig struct {
	SampleRate       int    `mapstructure:"sample_rate"`
	Channels         int    `mapstructure:"channels"`
	InputFormat      string `mapstructure:"input_format"`
	DeviceID         string `mapstructure:"device_id"`
	EchoCancellation bool   `mapstructure:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression"`
	AutoGain         bool   `mapstructure:"auto_gain"`
}

type LinkConfig struct {
	ChunkIntervalMS int `mapstructure:"chunk_interval_ms"`
	MaxRetries      int `mapstructure:"max_retries"`
	BackoffMS       int `mapstructure:"backoff_ms"`
}

type SynthesisConfig struct {
	VoiceWaitMS    int    `mapstructure:"voice_wait_ms"`
	PreferredVoice string `mapstructure:"preferred_voice"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("backend.url", "ws://localhost:8000")
	v.SetDefault("backend.handshake_timeout_ms", 10000)
	v.SetDefault("interview.max_duration_minutes", 30)
	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("capture.channels", 1)
	v.SetDefault("capture.input_format", "pulse")
	v.SetDefault("capture.device_id", "default")
	v.SetDefault("capture.echo_cancellation", true)
	v.SetDefault("capture.noise_suppression", true)
	v.SetDefault("capture.auto_gain", true)
	v.SetDefault("link.chunk_interval_ms", 250)
	v.SetDefault("link.max_retries", 3)
	v.SetDefault("link.backoff_ms", 200)
	v.SetDefault("synthesis.voice_wait_ms", 1000)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the interview setup contract. It runs before anything
// touches the network so a half-filled form never opens a socket.
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"backend.url", c.Backend.URL},
		{"interview.job_title", c.Interview.JobTitle},
		{"interview.job_description", c.Interview.JobDescription},
		{"interview.candidate_name", c.Interview.CandidateName},
		{"interview.resume", c.Interview.Resume},
		{"vendors.stt.provider", c.Vendors.STT.Provider},
		{"vendors.tts.provider", c.Vendors.TTS.Provider},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errorsx.Wrap(
				errors.New(r.field+" is required"),
				errorsx.ReasonValidation)
		}
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
