package audio

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSourcePTSAndFrameShape(t *testing.T) {
	t.Parallel()

	s := NewSource()
	ctx := context.Background()

	var lastPTS int64 = -FrameSamples
	for i := range 5 {
		f, err := s.NextFrame(ctx)
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		if len(f.Data) != FrameBytes {
			t.Fatalf("frame %d: len = %d, want %d", i, len(f.Data), FrameBytes)
		}
		if f.PTS != lastPTS+FrameSamples {
			t.Fatalf("frame %d: PTS = %d, want %d", i, f.PTS, lastPTS+FrameSamples)
		}
		lastPTS = f.PTS
	}
}

func TestSourceSilenceWithoutGenerator(t *testing.T) {
	t.Parallel()

	s := NewSource()
	f, err := s.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !bytes.Equal(f.Data, make([]byte, FrameBytes)) {
		t.Error("frame without generator is not silence")
	}
}

func TestSourceAttachThenClearYieldsSilence(t *testing.T) {
	t.Parallel()

	s := NewSource()
	ctx := context.Background()

	q := NewQueue()
	q.Enqueue(bytes.Repeat([]byte{0x7F}, FrameBytes*2))
	s.SetGenerator(&QueueGenerator{Queue: q})

	f, err := s.NextFrame(ctx)
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if f.Data[0] != 0x7F {
		t.Error("attached generator data not delivered")
	}

	s.ClearGenerator()
	f, err = s.NextFrame(ctx)
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !bytes.Equal(f.Data, make([]byte, FrameBytes)) {
		t.Error("frame after ClearGenerator is not silence")
	}
	// PTS keeps advancing across the switch.
	if f.PTS != FrameSamples {
		t.Errorf("PTS after switch = %d, want %d", f.PTS, FrameSamples)
	}
}

func TestSourcePacing(t *testing.T) {
	t.Parallel()

	s := NewSource()
	ctx := context.Background()

	begin := time.Now()
	for range 4 {
		if _, err := s.NextFrame(ctx); err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
	}
	elapsed := time.Since(begin)

	// Frames 2-4 each wait for their 20 ms slot; the first returns
	// immediately. Allow generous slack for scheduler jitter.
	if elapsed < 45*time.Millisecond {
		t.Errorf("4 frames took %v, want >= ~60ms of pacing", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("4 frames took %v, pacing is stalled", elapsed)
	}
}

func TestSourceCancelledContext(t *testing.T) {
	t.Parallel()

	s := NewSource()
	ctx := context.Background()
	if _, err := s.NextFrame(ctx); err != nil {
		t.Fatalf("NextFrame: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	// Frames behind schedule return immediately without waiting; once the
	// source catches up it must observe the cancelled context.
	for range 10 {
		if _, err := s.NextFrame(cancelled); err != nil {
			return
		}
	}
	t.Error("NextFrame never observed the cancelled context")
}

func TestSinePhaseContinuity(t *testing.T) {
	t.Parallel()

	g := NewSine(440)
	a := g.NextChunk()
	b := g.NextChunk()

	if len(a) != FrameBytes || len(b) != FrameBytes {
		t.Fatalf("chunk lengths = %d, %d, want %d", len(a), len(b), FrameBytes)
	}

	// The first sample of the second chunk must continue the wave, not
	// restart at zero phase (sample value 0).
	last := int16(a[len(a)-2]) | int16(a[len(a)-1])<<8
	next := int16(b[0]) | int16(b[1])<<8
	step := int32(last) - int32(next)
	if step > 3000 || step < -3000 {
		t.Errorf("discontinuity between chunks: %d -> %d", last, next)
	}

	// The tone must actually have energy.
	var peak int16
	for i := 0; i+1 < len(a); i += 2 {
		s := int16(a[i]) | int16(a[i+1])<<8
		if s > peak {
			peak = s
		}
	}
	if peak < 5000 {
		t.Errorf("peak amplitude %d, want roughly 0.3 of full scale", peak)
	}
}
