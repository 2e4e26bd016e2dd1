package usecase

import (
	"context"
	"time"

	"RangePull/internal/domain/models"
	drepo "RangePull/internal/domain/repository"
	mid "RangePull/internal/middleware"
	"RangePull/internal/streaming"
)

// TradeCollector pulls trades from the market stream, runs them through
// the ingest pipeline into the streaming engine, and ships the engine's
// completed bars to the backend in batches.
type TradeCollector struct {
	stream   drepo.MarketStream
	engine   *streaming.Engine
	router   *BarRouter
	metrics  drepo.Metrics
	pipe     *mid.IngestPipeline
	shipDone chan struct{}
}

// NewTradeCollector creates a new TradeCollector instance.
func NewTradeCollector(stream drepo.MarketStream, engine *streaming.Engine, router *BarRouter, metrics drepo.Metrics, pipe *mid.IngestPipeline) *TradeCollector {
	return &TradeCollector{stream: stream, engine: engine, router: router, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Engine returns the streaming engine for the HTTP surface.
func (c *TradeCollector) Engine() *streaming.Engine { return c.engine }

func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	trCh, errCh := c.stream.Read(ctx)
	c.shipDone = make(chan struct{})
	go c.consume(ctx, trCh, errCh)
	go c.ship(ctx)
	return nil
}

func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t, ok := <-trCh:
			if !ok {
				return
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.engine.ProcessTrade(ctx, t)
			}
		}
	}
}

// ship drains completed bars to the backend. Bars are flushed when the
// batch fills or the timeout fires, whichever comes first; a final flush
// runs when the bar channel closes, signalled through shipDone so
// Shutdown can wait for it before the backends close.
func (c *TradeCollector) ship(ctx context.Context) {
	defer close(c.shipDone)

	batchSz := c.router.BatchSize()
	if batchSz <= 0 {
		batchSz = 1
	}
	batchTO := c.router.BatchTimeout()
	if batchTO <= 0 {
		batchTO = time.Second
	}

	batch := make([]*models.RangeBar, 0, batchSz)
	timer := time.NewTimer(batchTO)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.router.RouteBatch(ctx, batch); err != nil {
			c.metrics.RecordError("ship")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case bar, ok := <-c.engine.Bars():
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= batchSz {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(batchTO)
			}
		case <-timer.C:
			flush()
			timer.Reset(batchTO)
		}
	}
}

func (c *TradeCollector) Stop() error { return c.stream.Close() }

// Shutdown stops intake, flushes open bars through the normal shipping
// path, and waits for ship's final flush so the drained bars reach the
// backend before the caller closes it.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	// Stop intake first so no in-flight trade races the final drain.
	streamErr := c.stream.Close()

	if flushed := c.engine.Drain(ctx); len(flushed) > 0 {
		c.metrics.RecordLatency("shutdown_flush_bars", float64(len(flushed)))
	}

	c.engine.CloseBars()
	if c.shipDone != nil {
		select {
		case <-c.shipDone:
		case <-ctx.Done():
			c.metrics.RecordError("shutdown_ship_timeout")
			return ctx.Err()
		}
	}
	return streamErr
}
