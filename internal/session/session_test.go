package session

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/echohall/voicegate/internal/observe"
	"github.com/echohall/voicegate/pkg/audio"
	sttmock "github.com/echohall/voicegate/pkg/provider/stt/mock"
	ttsmock "github.com/echohall/voicegate/pkg/provider/tts/mock"
)

// newTestSession builds a Session without a peer connection; media tests
// exercise the queue, source, and pipelines directly.
func newTestSession(t *testing.T, sttEng *sttmock.Engine, ttsEng *ttsmock.Engine, opts ...Option) *Session {
	t.Helper()
	s := &Session{
		queue:              audio.NewQueue(),
		source:             audio.NewSource(),
		sttEng:             sttEng,
		ttsEng:             ttsEng,
		metrics:            observe.DefaultMetrics(),
		log:                slog.Default(),
		transcribeInterval: defaultTranscribeInterval,
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	t.Cleanup(s.cancel)
	return s
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"Hello there. How are you?", []string{"Hello there.", "How are you?"}},
		{"One! Two? Three.", []string{"One!", "Two?", "Three."}},
		{"No boundary here", []string{"No boundary here"}},
		{"  Trailing words. and more  ", []string{"Trailing words.", "and more"}},
		{"Version 2.5 is out. Nice.", []string{"Version 2.5 is out.", "Nice."}},
		{"", nil},
		{"   ", nil},
	} {
		got := splitSentences(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitSentences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSpeakTextEnqueuesSentencesInOrder(t *testing.T) {
	t.Parallel()

	ttsEng := &ttsmock.Engine{PCM: []byte{1, 0, 2, 0, 3, 0, 4, 0}, Rate: audio.SampleRate}
	s := newTestSession(t, &sttmock.Engine{}, ttsEng)

	if err := s.SpeakText(context.Background(), "First sentence. Second one!", "en_US-lessac-medium"); err != nil {
		t.Fatalf("SpeakText: %v", err)
	}

	calls := ttsEng.Calls()
	if len(calls) != 2 {
		t.Fatalf("synth calls = %+v", calls)
	}
	if calls[0].Text != "First sentence." || calls[1].Text != "Second one!" {
		t.Errorf("sentence order = %+v", calls)
	}
	if calls[0].VoiceID != "en_US-lessac-medium" {
		t.Errorf("voice = %q", calls[0].VoiceID)
	}
	if got := s.queue.Available(); got != 16 {
		t.Errorf("queued bytes = %d, want 16", got)
	}

	// The FIFO generator must be attached so the track drains the queue.
	frame, err := s.source.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if frame.Data[0] != 1 || frame.Data[2] != 2 {
		t.Errorf("frame head = %v", frame.Data[:8])
	}
}

func TestSpeakTextResamplesNativeRate(t *testing.T) {
	t.Parallel()

	// 100 samples at 24 kHz becomes ~200 samples at 48 kHz.
	pcm := make([]byte, 200)
	ttsEng := &ttsmock.Engine{PCM: pcm, Rate: 24000}
	s := newTestSession(t, &sttmock.Engine{}, ttsEng)

	if err := s.SpeakText(context.Background(), "Hello.", "v"); err != nil {
		t.Fatalf("SpeakText: %v", err)
	}
	if got := s.queue.Available(); got != 400 {
		t.Errorf("queued bytes = %d, want 400", got)
	}
}

func TestSpeakTextSkipsEmptySynthesis(t *testing.T) {
	t.Parallel()

	ttsEng := &ttsmock.Engine{PCM: nil, Rate: 0}
	s := newTestSession(t, &sttmock.Engine{}, ttsEng)

	if err := s.SpeakText(context.Background(), "Hi.", "v"); err != nil {
		t.Fatalf("SpeakText: %v", err)
	}
	if got := s.queue.Available(); got != 0 {
		t.Errorf("queued bytes = %d, want 0", got)
	}
}

func TestStopSpeakingIdempotent(t *testing.T) {
	t.Parallel()

	ttsEng := &ttsmock.Engine{PCM: make([]byte, audio.FrameBytes), Rate: audio.SampleRate}
	s := newTestSession(t, &sttmock.Engine{}, ttsEng)

	if err := s.SpeakText(context.Background(), "Hello.", "v"); err != nil {
		t.Fatalf("SpeakText: %v", err)
	}

	s.StopSpeaking()
	s.StopSpeaking()

	if got := s.queue.Available(); got != 0 {
		t.Errorf("queued bytes after barge-in = %d", got)
	}
	// Detached generator means pure silence.
	frame, err := s.source.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	for i, b := range frame.Data {
		if b != 0 {
			t.Fatalf("frame[%d] = %d, want silence", i, b)
		}
	}
}

func TestRecordingCapturesOnlyWhileOn(t *testing.T) {
	t.Parallel()

	sttEng := &sttmock.Engine{Text: "hello world"}
	s := newTestSession(t, sttEng, &ttsmock.Engine{})

	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		samples[i] = int16(i)
	}

	// Off: nothing captured.
	s.appendCapture(samples, 1)
	if s.captureN != 0 {
		t.Fatalf("captured %d bytes while off", s.captureN)
	}

	s.StartRecording(nil)
	s.appendCapture(samples, 1)
	s.appendCapture(samples, 1)
	if s.captureN != 2*audio.FrameBytes {
		t.Fatalf("captured %d bytes, want %d", s.captureN, 2*audio.FrameBytes)
	}

	text, err := s.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}

	// The engine sees 16 kHz input, one third of the captured samples.
	calls := sttEng.Calls()
	if len(calls) != 1 {
		t.Fatalf("stt calls = %+v", calls)
	}
	if calls[0].SampleRate != sttSampleRate {
		t.Errorf("stt rate = %d, want %d", calls[0].SampleRate, sttSampleRate)
	}

	// Buffer cleared; second stop yields nothing without a new start.
	if s.captureN != 0 {
		t.Errorf("capture not cleared: %d bytes", s.captureN)
	}
	text, err = s.StopRecording(context.Background())
	if err != nil || text != "" {
		t.Errorf("second stop = (%q, %v), want empty", text, err)
	}
}

func TestRecordingDownmixesToFirstChannel(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &sttmock.Engine{}, &ttsmock.Engine{})
	s.StartRecording(nil)
	defer s.StopRecording(context.Background())

	stereo := []int16{10, 99, 20, 99, 30, 99}
	s.appendCapture(stereo, 2)

	s.mu.Lock()
	got := s.snapshotCaptureLocked()
	s.mu.Unlock()

	want := audio.Int16sToBytes([]int16{10, 20, 30})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("captured = %v, want %v", got, want)
	}
}

func TestRollingTranscriberEmitsPartials(t *testing.T) {
	t.Parallel()

	sttEng := &sttmock.Engine{Text: "partial words"}
	s := newTestSession(t, sttEng, &ttsmock.Engine{}, WithTranscribeInterval(20*time.Millisecond))

	var mu sync.Mutex
	var partials []string
	var flags []bool
	s.StartRecording(func(text string, partial bool) {
		mu.Lock()
		partials = append(partials, text)
		flags = append(flags, partial)
		mu.Unlock()
	})

	samples := make([]int16, audio.FrameSamples)
	s.appendCapture(samples, 1)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(partials)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no partial emitted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := s.StopRecording(context.Background()); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if partials[0] != "partial words" || !flags[0] {
		t.Errorf("first partial = (%q, %v)", partials[0], flags[0])
	}
}

func TestRollingTranscriberSkipsEmptyBuffer(t *testing.T) {
	t.Parallel()

	sttEng := &sttmock.Engine{Text: "should not appear"}
	s := newTestSession(t, sttEng, &ttsmock.Engine{}, WithTranscribeInterval(15*time.Millisecond))

	called := make(chan struct{}, 1)
	s.StartRecording(func(string, bool) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	select {
	case <-called:
		t.Fatal("partial emitted for empty buffer")
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := s.StopRecording(context.Background()); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if n := len(sttEng.Calls()); n != 0 {
		t.Errorf("stt calls = %d, want 0", n)
	}
}
