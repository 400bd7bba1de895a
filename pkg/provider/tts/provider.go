// Package tts defines the Engine interface for text-to-speech backends.
//
// Synthesis is batch per sentence: the speech pipeline splits replies into
// sentences and synthesizes them one at a time, so the contract is a single
// call returning one PCM blob at the voice's native rate. The caller
// resamples up to the 48 kHz downlink.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice is one catalog entry. ID is globally unique and doubles as the
// filename stem for cached model blobs.
type Voice struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Language    string `json:"language"`
	Locale      string `json:"locale"`
	Quality     string `json:"quality"`
	Downloaded  bool   `json:"downloaded"`
}

// Engine is the abstraction over any batch TTS backend.
type Engine interface {
	// Synthesize renders text with the given voice and returns raw 16-bit
	// signed little-endian mono PCM plus its native sample rate. An empty
	// PCM slice is a valid result for empty or unpronounceable text.
	Synthesize(ctx context.Context, text, voiceID string) (pcm []byte, sampleRate int, err error)

	// Voices returns the engine's catalog with Downloaded flags reflecting
	// the current on-disk cache state.
	Voices() []Voice
}
