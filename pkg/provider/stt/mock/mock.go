// Package mock provides a scriptable stt.Engine for tests.
package mock

import (
	"context"
	"sync"

	"github.com/echohall/voicegate/pkg/provider/stt"
)

var _ stt.Engine = (*Engine)(nil)

// Engine records Transcribe calls and returns scripted results.
type Engine struct {
	mu sync.Mutex

	// TranscribeFunc, when set, handles each call. Otherwise Text and Err
	// are returned.
	TranscribeFunc func(ctx context.Context, pcm []byte, sampleRate int) (string, error)
	Text           string
	Err            error

	calls []Call
}

// Call captures the arguments of one Transcribe invocation.
type Call struct {
	PCMLen     int
	SampleRate int
}

// Transcribe implements stt.Engine.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{PCMLen: len(pcm), SampleRate: sampleRate})
	e.mu.Unlock()
	if e.TranscribeFunc != nil {
		return e.TranscribeFunc(ctx, pcm, sampleRate)
	}
	return e.Text, e.Err
}

// Calls returns a snapshot of recorded invocations.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}
