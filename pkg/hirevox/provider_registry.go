package hirevox

import (
	"fmt"
	"strings"

	"github.com/hirevox/hirevox/pkg/adapters/tts"
	"github.com/hirevox/hirevox/pkg/sttlink"
)

type STTFactoryBuilder func(cfg Config) (sttlink.ProviderFactory, error)
type TTSFactory func(cfg Config) (tts.Synthesizer, error)

// ProviderRegistry maps vendor names from configuration to adapter
// constructors. Register providers before building an orchestrator.
type ProviderRegistry struct {
	stt map[string]STTFactoryBuilder
	tts map[string]TTSFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt: make(map[string]STTFactoryBuilder),
		tts: make(map[string]TTSFactory),
	}
}

func (r *ProviderRegistry) RegisterSTT(name string, builder STTFactoryBuilder) {
	r.stt[strings.ToLower(strings.TrimSpace(name))] = builder
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildSTTFactory(provider string, cfg Config) (sttlink.ProviderFactory, error) {
	fn := r.stt[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTTS(provider string, cfg Config) (tts.Synthesizer, error) {
	fn := r.tts[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg)
}
