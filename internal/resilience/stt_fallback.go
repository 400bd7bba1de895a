package resilience

import (
	"context"

	"github.com/echohall/voicegate/pkg/provider/stt"
)

// STTFallback implements [stt.Engine] with automatic failover across multiple
// transcription backends. Each backend has its own circuit breaker, so a
// flapping whisper server is bypassed instead of stalling the rolling
// transcriber.
type STTFallback struct {
	group *FallbackGroup[stt.Engine]
}

var _ stt.Engine = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Engine, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT engine as a fallback.
func (f *STTFallback) AddFallback(name string, engine stt.Engine) {
	f.group.AddFallback(name, engine)
}

// Transcribe runs one transcription pass against the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	return ExecuteWithResult(f.group, func(e stt.Engine) (string, error) {
		return e.Transcribe(ctx, pcm, sampleRate)
	})
}
