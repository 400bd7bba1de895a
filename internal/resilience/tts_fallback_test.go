package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/echohall/voicegate/pkg/provider/tts"
	ttsmock "github.com/echohall/voicegate/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Engine{PCM: []byte{1, 0, 2, 0}, Rate: 22050}
	secondary := &ttsmock.Engine{PCM: []byte{9, 9}, Rate: 22050}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	pcm, rate, err := fb.Synthesize(context.Background(), "hello", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 22050 || len(pcm) != 4 {
		t.Fatalf("result = %d bytes at %d Hz", len(pcm), rate)
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestTTSFallback_Failover(t *testing.T) {
	primary := &ttsmock.Engine{Err: errors.New("primary down")}
	secondary := &ttsmock.Engine{PCM: []byte{7, 0}, Rate: 16000}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	pcm, rate, err := fb.Synthesize(context.Background(), "hello", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 16000 || len(pcm) != 2 {
		t.Fatalf("result = %d bytes at %d Hz", len(pcm), rate)
	}
	if len(secondary.Calls()) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.Calls()))
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	primary := &ttsmock.Engine{Err: errors.New("primary down")}
	secondary := &ttsmock.Engine{Err: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, _, err := fb.Synthesize(context.Background(), "hello", "v1")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_VoicesComeFromPrimary(t *testing.T) {
	primary := &ttsmock.Engine{VoiceList: []tts.Voice{
		{ID: "en_US-lessac-medium"},
		{ID: "en_GB-alba-medium"},
	}}
	secondary := &ttsmock.Engine{VoiceList: []tts.Voice{{ID: "other"}}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	voices := fb.Voices()
	if len(voices) != 2 || voices[0].ID != "en_US-lessac-medium" {
		t.Fatalf("voices = %+v", voices)
	}
}
