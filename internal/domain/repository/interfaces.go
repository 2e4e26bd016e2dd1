package repository

import (
	"context"
	"time"

	"RangePull/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarPublisher pushes completed bars to a message backend.
type BarPublisher interface {
	Publish(ctx context.Context, b *models.RangeBar) error
	PublishBatch(ctx context.Context, bars []*models.RangeBar) error
	Close() error
}

// BarStorage persists completed bars for querying (the export layer).
type BarStorage interface {
	Store(ctx context.Context, b *models.RangeBar) error
	StoreBatch(ctx context.Context, bars []*models.RangeBar) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.RangeBar, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordTradeIn(symbol string)
	RecordBarEmitted(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordCircuitState(scope string, state int)
}
