package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"RangePull/internal/domain/models"
	domrepo "RangePull/internal/domain/repository"
	"RangePull/internal/streaming"
)

// Proc is the minimal processor interface the pipeline needs. Satisfied by
// the streaming engine.
type Proc interface {
	ProcessTrade(ctx context.Context, t *models.Trade) error
}

// IngestPipeline sits between the market stream and the range bar engine.
// It validates, throttles per symbol, and buffers trades the engine turned
// away while its circuit breaker is open, retrying with backoff so a
// transient outage does not lose the tape. Trades the engine rejected for
// their own content (bad ordering, bad volume) are never retried: the
// engine has already moved past them, and replaying one later would slot
// a stale timestamp into the bar sequence.
type IngestPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.Trade
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	pending  int                  // trades buffered or held in-retry, guarded by mu
	lastSeen map[string]time.Time // per-symbol last accepted time
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max trades per second per symbol. Zero disables
// throttling; range bar construction needs every trade, so throttling is
// opt-in for degraded operation only.
func WithMaxRPS(n int) PipelineOption {
	return func(p *IngestPipeline) {
		p.maxRPS = n
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   0,    // no throttle by default: every trade matters
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.Trade, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Trade, p.bufSize)
	}
	// metrics hooks using domain metrics if available
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(sym string) { p.metrics.RecordError("pipeline_throttle_" + sym) }
	return p
}

// Start launches background flushing of buffered trades.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					p.donePending()
					continue
				}
				// Hold the head and retry in place: requeueing at the back
				// would reorder the tape.
				for {
					err := p.proc.ProcessTrade(ctx, t)
					if err == nil {
						backoff = 50 * time.Millisecond
						p.donePending()
						break
					}
					if !errors.Is(err, streaming.ErrCircuitOpen) {
						// Rejected on content; replaying cannot help.
						p.metrics.RecordError("pipeline_reject")
						p.donePending()
						break
					}
					p.metrics.RecordError("pipeline_flush")
					if backoff < 2*time.Second {
						backoff *= 2
					}
					select {
					case <-p.stopCh:
						return
					case <-time.After(backoff):
					}
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a trade downstream. Trades
// turned away by an open circuit are buffered and retried in arrival
// order; trades rejected for their own content are dropped permanently
// and the error is returned.
func (p *IngestPipeline) Process(ctx context.Context, t *models.Trade) error {
	start := time.Now()
	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, start) {
		// throttled; record and drop
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(t.Symbol)
		}
		return nil
	}

	// Earlier trades are still waiting on the breaker; queue behind them
	// so the engine never sees this trade ahead of an older one.
	p.mu.Lock()
	queued := p.pending > 0
	p.mu.Unlock()
	if queued {
		return p.buffer(t)
	}

	if err := p.proc.ProcessTrade(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		if errors.Is(err, streaming.ErrCircuitOpen) {
			if berr := p.buffer(t); berr != nil {
				return berr
			}
			return fmt.Errorf("pipeline downstream: %w", err)
		}
		// The engine latched this trade as a fatal rejection and moved on;
		// buffering it would resurrect it at a stale timestamp later.
		p.metrics.RecordError("pipeline_reject")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// buffer queues a trade for ordered retry, non-blocking. pending is
// raised before the send so the flusher's decrement can never run first.
func (p *IngestPipeline) buffer(t *models.Trade) error {
	p.mu.Lock()
	p.pending++
	depth := p.pending
	p.mu.Unlock()

	select {
	case p.bufCh <- t:
		if p.bufDepthGauge != nil {
			p.bufDepthGauge(depth)
		}
		return nil
	default:
		p.donePending()
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline buffer full")
	}
}

func (p *IngestPipeline) donePending() {
	p.mu.Lock()
	if p.pending > 0 {
		p.pending--
	}
	p.mu.Unlock()
}

func validateTrade(t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if !t.Price.Positive() || !t.Volume.Positive() {
		return fmt.Errorf("non-positive price/volume")
	}
	return nil
}

func (p *IngestPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	// simple throttle: ensure at most maxRPS per second
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	// compute elapsed trades per second window
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
