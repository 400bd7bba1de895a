// Package audio provides the PCM primitives for the voicegate media plane:
// the frame shape used on the downlink, a concurrency-safe FIFO of PCM blobs,
// a real-time clocked frame source, and sample-format conversion helpers.
package audio

import "time"

// The downlink track is fixed at 48 kHz mono signed 16-bit little-endian PCM,
// framed in 20 ms chunks.
const (
	// SampleRate is the downlink sample rate in Hz.
	SampleRate = 48000

	// FrameDuration is the wall-clock length of one downlink frame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples in one 20 ms frame.
	FrameSamples = SampleRate / 50 // 960

	// FrameBytes is the byte length of one frame (2 bytes per sample).
	FrameBytes = FrameSamples * 2 // 1920
)

// Frame is a single fixed-shape downlink packet: exactly FrameSamples of
// 16-bit mono PCM plus the presentation timestamp assigned by the clocked
// source. PTS is expressed in samples (time base 1/48000).
type Frame struct {
	// PCM audio data, little-endian int16, always FrameBytes long.
	Data []byte

	// PTS is the presentation timestamp in samples.
	PTS int64
}
