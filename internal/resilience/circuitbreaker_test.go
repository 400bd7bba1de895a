package resilience

import (
	"errors"
	"testing"
	"time"
)

var errWhisperDown = errors.New("whisper: POST /inference: connection refused")

func TestBreakerDefaultsMatchTurnCadence(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})
	if cb.failLimit != 3 {
		t.Errorf("failLimit = %d, want 3", cb.failLimit)
	}
	if cb.resetAfter != 15*time.Second {
		t.Errorf("resetAfter = %v, want 15s", cb.resetAfter)
	}
	if cb.probeLimit != 2 {
		t.Errorf("probeLimit = %d, want 2", cb.probeLimit)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestBreakerForwardsWhileClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})

	calls := 0
	if err := cb.Execute(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		ResetTimeout: time.Hour,
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errWhisperDown })
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// Open means the backend is not even dialled.
	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Fatalf("backend dialled %d times while open", calls)
	}
}

func TestBreakerSuccessClearsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})

	_ = cb.Execute(func() error { return errWhisperDown })
	_ = cb.Execute(func() error { return errWhisperDown })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errWhisperDown })
	_ = cb.Execute(func() error { return errWhisperDown })

	// The streak restarted after the success; two more failures are not
	// enough to trip.
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestBreakerRecoversThroughProbes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "piper",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	_ = cb.Execute(func() error { return errWhisperDown })
	_ = cb.Execute(func() error { return errWhisperDown })
	time.Sleep(15 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset period", cb.State())
	}
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after probes", cb.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "piper",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errWhisperDown })
	_ = cb.Execute(func() error { return errWhisperDown })
	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return errWhisperDown }); err == nil {
		t.Fatal("failing probe returned nil")
	}

	// Freshly re-opened, so calls are rejected again.
	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after failed probe", err)
	}
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	_ = cb.Execute(func() error { return errWhisperDown })
	_ = cb.Execute(func() error { return errWhisperDown })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	for _, tc := range []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	} {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
