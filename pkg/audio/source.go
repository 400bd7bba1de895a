package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

// Generator produces the PCM payload for one downlink frame. Implementations
// must return exactly FrameBytes of 16-bit mono 48 kHz PCM per call.
type Generator interface {
	NextChunk() []byte
}

// Source clocks out one 20 ms frame per NextFrame call at real-time pace so
// the WebRTC stack can drive its jitter buffer cleanly. When no generator is
// attached it emits silence. The clock is never reset when the generator
// changes; continuity of pace is the point.
//
// NextFrame must be called from a single consumer goroutine. SetGenerator and
// ClearGenerator may be called from any goroutine.
type Source struct {
	mu  sync.Mutex
	gen Generator

	start      time.Time
	frameCount int64
}

// NewSource returns a source with no generator attached.
func NewSource() *Source {
	return &Source{}
}

// SetGenerator attaches g. The next frame pulls from it.
func (s *Source) SetGenerator(g Generator) {
	s.mu.Lock()
	s.gen = g
	s.mu.Unlock()
}

// ClearGenerator detaches the current generator. The next frame is silence.
func (s *Source) ClearGenerator() {
	s.mu.Lock()
	s.gen = nil
	s.mu.Unlock()
}

// NextFrame sleeps until the frame's wall-clock slot, then returns the frame.
// The presentation timestamp advances by exactly FrameSamples per frame.
// Returns ctx.Err() if the context is cancelled while waiting.
func (s *Source) NextFrame(ctx context.Context) (Frame, error) {
	if s.start.IsZero() {
		s.start = time.Now()
	}

	target := s.start.Add(time.Duration(s.frameCount) * FrameDuration)
	if wait := time.Until(target); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Frame{}, ctx.Err()
		}
	}
	s.frameCount++

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	var data []byte
	if gen != nil {
		data = gen.NextChunk()
	}
	if len(data) != FrameBytes {
		data = make([]byte, FrameBytes)
	}

	return Frame{
		Data: data,
		PTS:  (s.frameCount - 1) * FrameSamples,
	}, nil
}

// QueueGenerator adapts a Queue to the Generator contract: each chunk is one
// frame drained from the FIFO, zero-padded on underflow.
type QueueGenerator struct {
	Queue *Queue
}

var _ Generator = (*QueueGenerator)(nil)

// NextChunk drains one frame's worth of bytes from the queue.
func (g *QueueGenerator) NextChunk() []byte {
	return g.Queue.Read(FrameBytes)
}

// SineGenerator produces a continuous sine tone for connectivity checks.
// Phase carries over between chunks so consecutive frames are seamless.
type SineGenerator struct {
	freq  float64
	amp   float64
	phase float64
}

var _ Generator = (*SineGenerator)(nil)

// NewSine returns a generator for a tone at freq Hz with amplitude 0.3 of
// full scale.
func NewSine(freq float64) *SineGenerator {
	return &SineGenerator{freq: freq, amp: 0.3}
}

// NextChunk produces one frame of the tone.
func (g *SineGenerator) NextChunk() []byte {
	out := make([]byte, FrameBytes)
	step := 2 * math.Pi * g.freq / SampleRate
	for i := range FrameSamples {
		s := int16(g.amp * 32767 * math.Sin(g.phase))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
		g.phase += step
	}
	// Keep the phase bounded over long runs.
	g.phase = math.Mod(g.phase, 2*math.Pi)
	return out
}
