package usecase

import (
	"context"
	"fmt"
	"time"

	"RangePull/internal/domain/models"
	drepo "RangePull/internal/domain/repository"
)

// BarRouter routes completed range bars to the configured backend.
type BarRouter struct {
	pub     drepo.BarPublisher
	store   drepo.BarStorage
	metrics drepo.Metrics
	backend string
	batchSz int
	batchTO time.Duration
}

// NewBarRouter creates a new BarRouter instance.
func NewBarRouter(
	pub drepo.BarPublisher,
	store drepo.BarStorage,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *BarRouter {
	return &BarRouter{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// BatchSize returns the configured flush size (zero means unbatched).
func (r *BarRouter) BatchSize() int { return r.batchSz }

// BatchTimeout returns the configured flush interval.
func (r *BarRouter) BatchTimeout() time.Duration { return r.batchTO }

// Route sends a single bar to the configured backend.
func (r *BarRouter) Route(ctx context.Context, b *models.RangeBar) error {
	if b == nil {
		return fmt.Errorf("bar is nil")
	}

	start := time.Now()
	var err error

	switch r.backend {
	case "kafka":
		err = r.pub.Publish(ctx, b)
	case "clickhouse":
		err = r.store.Store(ctx, b)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("route")
		return fmt.Errorf("route bar: %w", err)
	}

	r.metrics.RecordBarEmitted(r.backend, b.Symbol)
	r.metrics.RecordLatency("route", time.Since(start).Seconds())

	return nil
}

// RouteBatch sends multiple bars in a batch.
func (r *BarRouter) RouteBatch(ctx context.Context, bars []*models.RangeBar) error {
	if len(bars) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch r.backend {
	case "kafka":
		err = r.pub.PublishBatch(ctx, bars)
	case "clickhouse":
		err = r.store.StoreBatch(ctx, bars)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("route_batch")
		return fmt.Errorf("route batch: %w", err)
	}

	for _, b := range bars {
		r.metrics.RecordBarEmitted(r.backend, b.Symbol)
	}
	r.metrics.RecordLatency("route_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (r *BarRouter) Close() {
	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}
