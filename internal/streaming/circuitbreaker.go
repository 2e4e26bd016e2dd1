package streaming

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	CircuitClosed   CircuitState = 0 // Normal operation — input passes through
	CircuitOpen     CircuitState = 1 // Tripped — input rejected immediately
	CircuitHalfOpen CircuitState = 2 // Probing — limited input allowed through
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects input. Recoverable:
// the caller retries after the configured cooldown.
var ErrCircuitOpen = errors.New("streaming: circuit breaker is open")

// BreakerConfig tunes the sliding-window circuit breaker.
type BreakerConfig struct {
	WindowSize     int           // recent outcomes tracked
	MinSamples     int           // no tripping before this many outcomes
	ErrorRate      float64       // trip once errors/window reaches this rate
	Cooldown       time.Duration // wait before half-open probing
	ProbeSuccesses int           // successes required in half-open to close
}

// CircuitBreaker tracks the error rate of recent input over a sliding
// window. It opens once errors exceed the configured rate, half-opens
// after the cooldown to probe a small amount of input, and closes again
// after sustained success.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    CircuitState
	window   []bool // ring of outcomes, true = error
	pos      int
	filled   int
	errCount int
	openedAt time.Time
	probeOK  int

	now func() time.Time

	// OnStateChange is called on transitions (optional).
	OnStateChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}
	if cfg.ErrorRate <= 0 {
		cfg.ErrorRate = 0.5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = 3
	}
	return &CircuitBreaker{
		cfg:    cfg,
		state:  CircuitClosed,
		window: make([]bool, cfg.WindowSize),
		now:    time.Now,
	}
}

// Allow reports whether input may pass. While open it returns
// ErrCircuitOpen until the cooldown elapses, then transitions to
// half-open and lets a probe through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
		cb.probeOK = 0
	}
	return nil
}

// Record feeds one outcome and drives state transitions.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil

	switch cb.state {
	case CircuitHalfOpen:
		if failed {
			// Probe failed — reopen and restart the cooldown
			cb.openedAt = cb.now()
			cb.transition(CircuitOpen)
			return
		}
		cb.probeOK++
		if cb.probeOK >= cb.cfg.ProbeSuccesses {
			cb.resetWindow()
			cb.transition(CircuitClosed)
		}

	case CircuitClosed:
		cb.push(failed)
		if cb.filled >= cb.cfg.MinSamples {
			rate := float64(cb.errCount) / float64(cb.filled)
			if rate >= cb.cfg.ErrorRate {
				cb.openedAt = cb.now()
				cb.transition(CircuitOpen)
			}
		}
	}
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) push(failed bool) {
	if cb.filled == len(cb.window) {
		if cb.window[cb.pos] {
			cb.errCount--
		}
	} else {
		cb.filled++
	}
	cb.window[cb.pos] = failed
	if failed {
		cb.errCount++
	}
	cb.pos = (cb.pos + 1) % len(cb.window)
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.pos = 0
	cb.filled = 0
	cb.errCount = 0
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
