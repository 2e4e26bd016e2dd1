// Package streaming runs range bar construction against a live trade
// stream: per-symbol sessions with rolling indicators, a replay window for
// late-joining consumers, circuit breaking on sustained input errors, and
// an explicit backpressure policy on the outbound bar channel.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"RangePull/internal/domain/models"
	"RangePull/internal/domain/repository"
	"RangePull/internal/indicator"
	"RangePull/internal/rangebar"
	"RangePull/pkg/logger"
)

// BackpressurePolicy decides what happens when the bar channel is full.
type BackpressurePolicy string

const (
	// PolicyBlock applies backpressure upstream: ProcessTrade blocks until
	// the consumer drains the channel or the context is cancelled.
	PolicyBlock BackpressurePolicy = "block"

	// PolicyDropOldest evicts the oldest queued bar to make room, trading
	// completeness for liveness. Drops are counted, never silent.
	PolicyDropOldest BackpressurePolicy = "drop_oldest"
)

// IndicatorSpec names one indicator to maintain per session.
type IndicatorSpec struct {
	Kind   indicator.Kind `yaml:"kind" json:"kind"`
	Period int            `yaml:"period" json:"period"`
}

// Config carries the engine settings. All sessions share one threshold
// and indicator set; sessions themselves are created lazily per symbol.
type Config struct {
	ThresholdDecibps int64
	Indicators       []IndicatorSpec
	ReplayWindow     time.Duration
	Breaker          BreakerConfig

	// SharedBreaker trips one breaker across all symbols instead of one
	// breaker per session.
	SharedBreaker bool

	QueueSize int
	Policy    BackpressurePolicy
}

// Validate rejects malformed configuration before any session exists.
func (c Config) Validate() error {
	probe := rangebar.Config{Symbol: "probe", ThresholdDecibps: c.ThresholdDecibps}
	if err := probe.Validate(); err != nil {
		return err
	}
	for _, spec := range c.Indicators {
		if _, err := indicator.New(spec.Kind, spec.Period); err != nil {
			return err
		}
	}
	switch c.Policy {
	case PolicyBlock, PolicyDropOldest, "":
	default:
		return fmt.Errorf("streaming: unknown backpressure policy %q", c.Policy)
	}
	return nil
}

// Engine fans a trade stream out into per-symbol sessions and emits
// completed bars on a single bounded channel. One goroutine per symbol
// may call ProcessTrade concurrently; a given symbol must be driven by a
// single goroutine, matching the processor ownership rule.
type Engine struct {
	cfg     Config
	log     *logger.Logger
	metrics repository.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	shared   *CircuitBreaker

	out     chan *models.RangeBar
	dropped int64
	closed  bool
}

// NewEngine validates the config and creates an engine with no sessions.
func NewEngine(cfg Config, log *logger.Logger, metrics repository.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyBlock
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	e := &Engine{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		sessions: make(map[string]*Session),
		out:      make(chan *models.RangeBar, cfg.QueueSize),
	}
	if cfg.SharedBreaker {
		e.shared = e.newBreaker("all")
	}
	return e, nil
}

// Bars returns the outbound channel of completed bars. Closed by Run when
// the input ends, after drain, or explicitly via CloseBars.
func (e *Engine) Bars() <-chan *models.RangeBar { return e.out }

// CloseBars closes the outbound bar channel so consumers ranging over
// Bars() finish their final flush. Call only after intake has stopped and
// the final Drain completed; idempotent.
func (e *Engine) CloseBars() { e.closeOut() }

// Dropped returns the number of bars evicted under PolicyDropOldest.
func (e *Engine) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// ProcessTrade routes one trade to its symbol's session. A rejected trade
// returns the processor's error; the session then gets a fresh processor
// so the stream stays available, while the breaker accumulates the
// failure. ErrCircuitOpen means the trade was rejected without being
// processed at all.
func (e *Engine) ProcessTrade(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return errors.New("streaming: nil trade")
	}
	s := e.session(t.Symbol)

	if err := s.breaker.Allow(); err != nil {
		e.metrics.RecordError("circuit_open")
		return err
	}

	bar, err := s.proc.Process(t)
	s.breaker.Record(err)

	s.mu.Lock()
	s.tradesSeen++
	if err != nil {
		s.lastError = err.Error()
		// The processor is now fatal; replace it so later trades for this
		// symbol open a new bar instead of failing forever.
		s.proc = e.newProcessor(t.Symbol)
	}
	s.procState = s.proc.State()
	s.mu.Unlock()

	if err != nil {
		e.metrics.RecordError("trade_rejected")
		e.log.Warn("trade rejected",
			logger.String("symbol", t.Symbol),
			logger.Error(err))
		return err
	}

	e.metrics.RecordTradeIn(t.Symbol)
	e.metrics.RecordLastPrice(t.Symbol, t.Price.Float64())

	if bar != nil {
		s.observe(bar)
		e.metrics.RecordBarEmitted("stream", bar.Symbol)
		return e.emit(ctx, bar)
	}
	return nil
}

// Run consumes the trade channel until it closes or the context is
// cancelled, then flushes partial bars and closes Bars(). Cancellation is
// cooperative: the trade currently being processed always completes.
func (e *Engine) Run(ctx context.Context, trades <-chan *models.Trade) error {
	defer e.closeOut()

	for {
		select {
		case <-ctx.Done():
			// The run context is already dead; give the flush its own
			// bounded window so a stalled consumer cannot wedge shutdown.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.Drain(drainCtx)
			cancel()
			return ctx.Err()
		case t, ok := <-trades:
			if !ok {
				e.Drain(ctx)
				return nil
			}
			if err := e.ProcessTrade(ctx, t); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// Rejected trades were already logged and counted.
			}
		}
	}
}

// Drain flushes every open bar as a partial bar, in symbol order so the
// output is deterministic. Partial bars flow through the same channel and
// replay buffers as breach-closed bars.
func (e *Engine) Drain(ctx context.Context) []*models.RangeBar {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.sessions))
	for sym := range e.sessions {
		symbols = append(symbols, sym)
	}
	e.mu.Unlock()
	sort.Strings(symbols)

	var flushed []*models.RangeBar
	for _, sym := range symbols {
		s := e.session(sym)
		s.mu.Lock()
		bar := s.proc.Flush()
		s.procState = s.proc.State()
		s.mu.Unlock()
		if bar == nil {
			continue
		}
		s.observe(bar)
		e.metrics.RecordBarEmitted("stream", bar.Symbol)
		flushed = append(flushed, bar)
		if err := e.emit(ctx, bar); err != nil {
			e.log.Warn("drain emit interrupted", logger.String("symbol", sym), logger.Error(err))
		}
	}
	return flushed
}

// Stats snapshots every session, sorted by symbol.
func (e *Engine) Stats() []SessionStats {
	e.mu.Lock()
	out := make([]SessionStats, 0, len(e.sessions))
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		out = append(out, s.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Replay returns up to limit recent bars for a symbol, oldest first. An
// unknown symbol yields an empty slice.
func (e *Engine) Replay(symbol string, limit int) []*models.RangeBar {
	e.mu.Lock()
	s, ok := e.sessions[symbol]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return s.replay.Recent(limit)
}

func (e *Engine) session(symbol string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[symbol]; ok {
		return s
	}

	inds := make([]indicator.Indicator, 0, len(e.cfg.Indicators))
	for _, spec := range e.cfg.Indicators {
		ind, _ := indicator.New(spec.Kind, spec.Period) // validated in Config.Validate
		inds = append(inds, ind)
	}

	breaker := e.shared
	if breaker == nil {
		breaker = e.newBreaker(symbol)
	}

	s := &Session{
		symbol:     symbol,
		proc:       e.newProcessor(symbol),
		indicators: inds,
		replay:     NewReplayBuffer(e.cfg.ReplayWindow),
		breaker:    breaker,
	}
	s.procState = s.proc.State()
	e.sessions[symbol] = s
	return s
}

func (e *Engine) newProcessor(symbol string) *rangebar.Processor {
	p, err := rangebar.New(rangebar.Config{Symbol: symbol, ThresholdDecibps: e.cfg.ThresholdDecibps})
	if err != nil {
		// Config was validated at construction; this cannot happen.
		panic(err)
	}
	return p
}

func (e *Engine) newBreaker(scope string) *CircuitBreaker {
	cb := NewCircuitBreaker(e.cfg.Breaker)
	cb.OnStateChange = func(from, to CircuitState) {
		e.metrics.RecordCircuitState(scope, int(to))
		e.log.Warn("circuit state change",
			logger.String("scope", scope),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}
	return cb
}

// emit pushes one bar to the outbound channel honoring the configured
// backpressure policy.
func (e *Engine) emit(ctx context.Context, bar *models.RangeBar) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.metrics.RecordError("bar_after_close")
		return errors.New("streaming: bar channel closed")
	}
	e.mu.Unlock()

	if e.cfg.Policy == PolicyDropOldest {
		for {
			select {
			case e.out <- bar:
				return nil
			default:
			}
			select {
			case dropped := <-e.out:
				e.mu.Lock()
				e.dropped++
				e.mu.Unlock()
				e.metrics.RecordError("bar_dropped")
				e.log.Warn("bar dropped under backpressure",
					logger.String("symbol", dropped.Symbol))
			default:
			}
		}
	}

	select {
	case e.out <- bar:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) closeOut() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.out)
	}
}
