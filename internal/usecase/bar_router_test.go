package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/domain/models"
	"RangePull/pkg/fixedpoint"
)

type nopMetrics struct{}

func (nopMetrics) RecordTradeIn(string)            {}
func (nopMetrics) RecordBarEmitted(string, string) {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordCircuitState(string, int)  {}

type fakePublisher struct {
	published []*models.RangeBar
	batches   int
	closed    bool
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, b *models.RangeBar) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, b)
	return nil
}

func (f *fakePublisher) PublishBatch(_ context.Context, bars []*models.RangeBar) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, bars...)
	f.batches++
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeStorage struct {
	stored  []*models.RangeBar
	batches int
	closed  bool
	err     error
}

func (f *fakeStorage) Store(_ context.Context, b *models.RangeBar) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, b)
	return nil
}

func (f *fakeStorage) StoreBatch(_ context.Context, bars []*models.RangeBar) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, bars...)
	f.batches++
	return nil
}

func (f *fakeStorage) Query(context.Context, string, time.Time, time.Time, int) ([]*models.RangeBar, error) {
	return nil, nil
}

func (f *fakeStorage) Health(context.Context) error { return nil }

func (f *fakeStorage) Close() error {
	f.closed = true
	return nil
}

func bar(symbol string) *models.RangeBar {
	return &models.RangeBar{
		Symbol:     symbol,
		Open:       fixedpoint.MustParse("100"),
		High:       fixedpoint.MustParse("100.30"),
		Low:        fixedpoint.MustParse("100"),
		Close:      fixedpoint.MustParse("100.30"),
		Volume:     fixedpoint.MustParse("2"),
		OpenTime:   1_700_000_000_000_000,
		CloseTime:  1_700_000_001_000_000,
		TradeCount: 2,
	}
}

func TestRouteToKafka(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	r := NewBarRouter(pub, store, nopMetrics{}, "kafka", 100, time.Second)

	require.NoError(t, r.Route(context.Background(), bar("BTCUSDT")))
	assert.Len(t, pub.published, 1)
	assert.Empty(t, store.stored)
}

func TestRouteToClickHouse(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	r := NewBarRouter(pub, store, nopMetrics{}, "clickhouse", 100, time.Second)

	require.NoError(t, r.Route(context.Background(), bar("BTCUSDT")))
	assert.Len(t, store.stored, 1)
	assert.Empty(t, pub.published)
}

func TestRouteUnknownBackend(t *testing.T) {
	r := NewBarRouter(&fakePublisher{}, &fakeStorage{}, nopMetrics{}, "mysql", 100, time.Second)

	err := r.Route(context.Background(), bar("BTCUSDT"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestRouteNilBar(t *testing.T) {
	r := NewBarRouter(&fakePublisher{}, &fakeStorage{}, nopMetrics{}, "kafka", 100, time.Second)
	assert.Error(t, r.Route(context.Background(), nil))
}

func TestRouteWrapsBackendError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	r := NewBarRouter(pub, &fakeStorage{}, nopMetrics{}, "kafka", 100, time.Second)

	err := r.Route(context.Background(), bar("BTCUSDT"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestRouteBatch(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	r := NewBarRouter(pub, store, nopMetrics{}, "clickhouse", 100, time.Second)

	bars := []*models.RangeBar{bar("BTCUSDT"), bar("ETHUSDT")}
	require.NoError(t, r.RouteBatch(context.Background(), bars))
	assert.Len(t, store.stored, 2)
	assert.Equal(t, 1, store.batches)

	// Empty batch is a no-op, not an error.
	require.NoError(t, r.RouteBatch(context.Background(), nil))
	assert.Equal(t, 1, store.batches)
}

func TestCloseReleasesBackends(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	r := NewBarRouter(pub, store, nopMetrics{}, "kafka", 100, time.Second)

	r.Close()
	assert.True(t, pub.closed)
	assert.True(t, store.closed)
}
