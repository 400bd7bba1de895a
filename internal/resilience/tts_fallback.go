package resilience

import (
	"context"

	"github.com/echohall/voicegate/pkg/provider/tts"
)

// synthResult bundles the two return values of Synthesize for the generic
// fallback executor.
type synthResult struct {
	pcm  []byte
	rate int
}

// TTSFallback implements [tts.Engine] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Engine]
}

var _ tts.Engine = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Engine, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS engine as a fallback.
func (f *TTSFallback) AddFallback(name string, engine tts.Engine) {
	f.group.AddFallback(name, engine)
}

// Synthesize renders one sentence on the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voiceID string) ([]byte, int, error) {
	res, err := ExecuteWithResult(f.group, func(e tts.Engine) (synthResult, error) {
		pcm, rate, err := e.Synthesize(ctx, text, voiceID)
		return synthResult{pcm: pcm, rate: rate}, err
	})
	return res.pcm, res.rate, err
}

// Voices returns the primary backend's catalog. Fallback engines are assumed
// to carry the same voice set; the catalog is advertisement, not routing.
func (f *TTSFallback) Voices() []tts.Voice {
	return f.group.entries[0].value.Voices()
}
