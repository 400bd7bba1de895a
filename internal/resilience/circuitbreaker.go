// Package resilience guards the voice pipeline's backend servers. The
// whisper and piper HTTP servers each sit behind a [CircuitBreaker], and
// [FallbackGroup] lets a request fail over to a spare backend when the
// primary's breaker has tripped.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// period has passed.
	StateOpen

	// StateHalfOpen lets a small number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the guarded backend in log output.
	Name string

	// MaxFailures is the consecutive-failure count that opens the breaker.
	// Default 3: the rolling transcriber calls its backend every few
	// seconds, so three failures is already a stretch of dead air.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default 15s, roughly one conversation turn.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes required to close
	// from half-open. Default 2.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker (closed, open, half-open) in front
// of one speech backend. Safe for concurrent use.
type CircuitBreaker struct {
	backend    string
	failLimit  int
	resetAfter time.Duration
	probeLimit int

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

// NewCircuitBreaker creates a breaker; zero config fields get the defaults
// documented on [CircuitBreakerConfig].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 15 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 2
	}
	return &CircuitBreaker{
		backend:    cfg.Name,
		failLimit:  cfg.MaxFailures,
		resetAfter: cfg.ResetTimeout,
		probeLimit: cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker is rejecting calls. While half-open, at
// most the configured number of probes pass through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetAfter {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		slog.Info("backend circuit probing", "backend", cb.backend)

	case StateHalfOpen:
		if cb.probes >= cb.probeLimit {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.probes++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(probing)
	} else {
		cb.onSuccess(probing)
	}
	return err
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probing bool) {
	if probing {
		// One bad probe is enough evidence the backend is still down.
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = cb.failLimit
		slog.Warn("backend circuit re-opened", "backend", cb.backend)
		return
	}

	cb.failures++
	if cb.failures >= cb.failLimit {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		slog.Warn("backend circuit opened",
			"backend", cb.backend,
			"consecutive_failures", cb.failures)
	}
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probing bool) {
	if probing {
		// Probes only fail by re-opening, so the probe count is the
		// success count.
		if cb.probes >= cb.probeLimit {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			slog.Info("backend circuit closed", "backend", cb.backend)
		}
		return
	}
	cb.failures = 0
}

// State reports the breaker's mode. An open breaker whose reset period has
// passed reports [StateHalfOpen]; the stored transition happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetAfter {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	slog.Info("backend circuit reset", "backend", cb.backend)
}
