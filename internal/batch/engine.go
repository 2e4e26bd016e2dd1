// Package batch converts historical trade slices into range bars using a
// worker pool partitioned by symbol. Each symbol's trades are processed in
// input order by exactly one worker holding exactly one processor, so the
// output is identical for any worker count.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"RangePull/internal/domain/models"
	"RangePull/internal/domain/repository"
	"RangePull/internal/rangebar"
	"RangePull/pkg/fixedpoint"
	"RangePull/pkg/logger"
)

// Config carries the batch run settings. The config is copied into each
// worker; workers never share mutable state.
type Config struct {
	ThresholdDecibps int64

	// Workers caps the pool size. Zero means GOMAXPROCS. Effective
	// parallelism never exceeds the number of distinct symbols.
	Workers int

	// ValidateVolume cross-checks that the bars of each clean symbol
	// carry exactly the volume of its input trades. Off by default; it
	// costs one fixed-point addition per trade.
	ValidateVolume bool
}

// Validate rejects malformed configuration before any worker starts.
func (c Config) Validate() error {
	probe := rangebar.Config{Symbol: "probe", ThresholdDecibps: c.ThresholdDecibps}
	if err := probe.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("batch: workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// Result is one symbol's outcome. A non-nil Err means the symbol's input
// was rejected partway; Bars then holds everything emitted before the
// rejection. Symbols never contaminate each other.
type Result struct {
	Symbol string             `json:"symbol"`
	Bars   []*models.RangeBar `json:"bars"`
	Stats  Stats              `json:"stats"`
	Err    error              `json:"-"`
}

// Engine runs batch conversions. Safe for concurrent Process calls; each
// call builds its own pool.
type Engine struct {
	cfg     Config
	log     *logger.Logger
	metrics repository.Metrics
}

// New validates the config and creates a batch engine.
func New(cfg Config, log *logger.Logger, metrics repository.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{cfg: cfg, log: log, metrics: metrics}, nil
}

// Process partitions trades by symbol, preserving input order within each
// symbol, and converts every partition on the pool. The returned map has
// one Result per symbol seen. Only a cancelled context makes Process
// itself fail; per-symbol rejections land in their Result.
func (e *Engine) Process(ctx context.Context, trades []*models.Trade) (map[string]*Result, error) {
	partitions := make(map[string][]*models.Trade)
	order := make([]string, 0)
	for _, t := range trades {
		if t == nil {
			continue
		}
		if _, ok := partitions[t.Symbol]; !ok {
			order = append(order, t.Symbol)
		}
		partitions[t.Symbol] = append(partitions[t.Symbol], t)
	}

	workers := e.cfg.Workers
	if workers > len(order) {
		workers = len(order)
	}

	jobs := make(chan string)
	results := make(map[string]*Result, len(order))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				res := e.processSymbol(ctx, symbol, partitions[symbol])
				mu.Lock()
				results[symbol] = res
				mu.Unlock()
			}
		}()
	}

feed:
	for _, symbol := range order {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// processSymbol converts one symbol's ordered trades on a dedicated
// processor. Cancellation is cooperative between trades.
func (e *Engine) processSymbol(ctx context.Context, symbol string, trades []*models.Trade) *Result {
	started := time.Now()
	res := &Result{Symbol: symbol}

	proc, err := rangebar.New(rangebar.Config{Symbol: symbol, ThresholdDecibps: e.cfg.ThresholdDecibps})
	if err != nil {
		res.Err = err
		return res
	}

	var builder statsBuilder
	var inputVolume fixedpoint.Value

	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		bar, err := proc.Process(t)
		if err != nil {
			res.Err = err
			e.metrics.RecordError("batch_trade_rejected")
			e.log.Warn("symbol rejected in batch",
				logger.String("symbol", symbol),
				logger.Int64("trade_id", t.ID),
				logger.Error(err))
			break
		}

		if e.cfg.ValidateVolume {
			inputVolume, err = inputVolume.Add(t.Volume)
			if err != nil {
				res.Err = err
				break
			}
		}
		if bar != nil {
			res.Bars = append(res.Bars, bar)
			if err := builder.add(bar); err != nil {
				res.Err = err
				break
			}
		}
	}

	if res.Err == nil {
		if bar := proc.Flush(); bar != nil {
			res.Bars = append(res.Bars, bar)
			if err := builder.add(bar); err != nil {
				res.Err = err
			}
		}
	}

	res.Stats = builder.build()

	if res.Err == nil && e.cfg.ValidateVolume {
		if res.Stats.TotalVolume.Cmp(inputVolume) != 0 {
			res.Err = fmt.Errorf("batch: volume mismatch for %s: bars carry %s, trades carry %s",
				symbol, res.Stats.TotalVolume, inputVolume)
		}
	}

	e.metrics.RecordLatency("batch_symbol", time.Since(started).Seconds())
	for range res.Bars {
		e.metrics.RecordBarEmitted("batch", symbol)
	}
	return res
}
