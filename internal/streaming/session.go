package streaming

import (
	"sync"

	"RangePull/internal/domain/models"
	"RangePull/internal/indicator"
	"RangePull/internal/rangebar"
)

// Session holds one symbol's processor, rolling indicator windows, replay
// buffer, and circuit breaker. Sessions are independent; only the breaker
// may be shared across symbols, and only when configured so.
type Session struct {
	mu         sync.Mutex
	symbol     string
	proc       *rangebar.Processor
	indicators []indicator.Indicator
	replay     *ReplayBuffer
	breaker    *CircuitBreaker

	// procState mirrors proc.State() after every trade. The driver
	// goroutine runs the processor outside mu; stats readers see this
	// snapshot instead of touching the processor directly.
	procState   rangebar.State
	tradesSeen  int64
	barsEmitted int64
	lastError   string
}

// SessionStats is a read-only snapshot of one symbol's session.
type SessionStats struct {
	Symbol         string             `json:"symbol"`
	ProcessorState string             `json:"processor_state"`
	CircuitState   string             `json:"circuit_state"`
	TradesSeen     int64              `json:"trades_seen"`
	BarsEmitted    int64              `json:"bars_emitted"`
	LastError      string             `json:"last_error,omitempty"`
	Indicators     map[string]float64 `json:"indicators"`
}

// observe folds a completed bar into the session's rolling state.
func (s *Session) observe(bar *models.RangeBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ind := range s.indicators {
		ind.Update(bar)
	}
	s.replay.Push(bar)
	s.barsEmitted++
}

// stats snapshots the session for diagnostics and the HTTP surface.
func (s *Session) stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]float64, len(s.indicators))
	for _, ind := range s.indicators {
		if ind.Ready() {
			values[ind.Name()] = ind.Value()
		}
	}
	return SessionStats{
		Symbol:         s.symbol,
		ProcessorState: s.procState.String(),
		CircuitState:   s.breaker.CurrentState().String(),
		TradesSeen:     s.tradesSeen,
		BarsEmitted:    s.barsEmitted,
		LastError:      s.lastError,
		Indicators:     values,
	}
}
