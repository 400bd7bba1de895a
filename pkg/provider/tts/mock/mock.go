// Package mock provides a scriptable tts.Engine for tests.
package mock

import (
	"context"
	"sync"

	"github.com/echohall/voicegate/pkg/provider/tts"
)

var _ tts.Engine = (*Engine)(nil)

// Engine records Synthesize calls and returns scripted PCM.
type Engine struct {
	mu sync.Mutex

	// SynthesizeFunc, when set, handles each call. Otherwise PCM, Rate,
	// and Err are returned.
	SynthesizeFunc func(ctx context.Context, text, voiceID string) ([]byte, int, error)
	PCM            []byte
	Rate           int
	Err            error

	// VoiceList is returned by Voices.
	VoiceList []tts.Voice

	calls []Call
}

// Call captures the arguments of one Synthesize invocation.
type Call struct {
	Text    string
	VoiceID string
}

// Synthesize implements tts.Engine.
func (e *Engine) Synthesize(ctx context.Context, text, voiceID string) ([]byte, int, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Text: text, VoiceID: voiceID})
	e.mu.Unlock()
	if e.SynthesizeFunc != nil {
		return e.SynthesizeFunc(ctx, text, voiceID)
	}
	return e.PCM, e.Rate, e.Err
}

// Voices implements tts.Engine.
func (e *Engine) Voices() []tts.Voice {
	return e.VoiceList
}

// Calls returns a snapshot of recorded invocations.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}
