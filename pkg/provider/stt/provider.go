// Package stt defines the Engine interface for speech-to-text backends.
//
// The transcription pipeline performs rolling full-buffer transcription: it
// re-submits the entire accumulated utterance on every pass, so the engine
// contract is a simple batch call rather than a streaming session. Engines
// are pinned to their own preferred sample rate; the caller resamples before
// handing off.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Engine is the abstraction over any batch STT backend.
type Engine interface {
	// Transcribe converts raw 16-bit signed little-endian mono PCM at
	// sampleRate into text. An empty string is a valid result for silence
	// or unintelligible audio; it is not an error.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}
