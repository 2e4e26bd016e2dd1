package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RangePull/internal/domain/models"
	"RangePull/internal/domain/repository"
	"RangePull/pkg/fixedpoint"
	pkgkafka "RangePull/pkg/kafka"
)

// ClickHouseBarStorage implements BarStorage for ClickHouse. Prices travel
// as decimal strings so the exact fixed-point value survives the round
// trip into Decimal(38, 8) columns.
type ClickHouseBarStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseBarStorage creates ClickHouse bar storage.
func NewClickHouseBarStorage(db *sql.DB, table string) repository.BarStorage {
	return &ClickHouseBarStorage{db: db, table: table}
}

const barColumns = "symbol, open, high, low, close, volume, turnover, buy_volume, sell_volume, open_time, close_time, trade_count"

func barArgs(b *models.RangeBar) []interface{} {
	return []interface{}{
		b.Symbol,
		b.Open.String(),
		b.High.String(),
		b.Low.String(),
		b.Close.String(),
		b.Volume.String(),
		b.Turnover.String(),
		b.BuyVolume.String(),
		b.SellVolume.String(),
		time.UnixMicro(b.OpenTime).UTC(),
		time.UnixMicro(b.CloseTime).UTC(),
		b.TradeCount,
	}
}

func (s *ClickHouseBarStorage) Store(ctx context.Context, b *models.RangeBar) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, barColumns)
	_, err := s.db.ExecContext(ctx, q, barArgs(b)...)
	return err
}

func (s *ClickHouseBarStorage) StoreBatch(ctx context.Context, bars []*models.RangeBar) error {
	if len(bars) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips. Chunk size tuned to
	// 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*12)
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, barArgs(b)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, barColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseBarStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.RangeBar, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? AND close_time >= ? AND close_time <= ? ORDER BY close_time DESC LIMIT ?", barColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*models.RangeBar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func scanBar(rows *sql.Rows) (*models.RangeBar, error) {
	var b models.RangeBar
	var open, high, low, closep, volume, turnover, buyVol, sellVol string
	var openTime, closeTime time.Time
	if err := rows.Scan(&b.Symbol, &open, &high, &low, &closep, &volume, &turnover,
		&buyVol, &sellVol, &openTime, &closeTime, &b.TradeCount); err != nil {
		return nil, err
	}

	fields := []struct {
		dst *fixedpoint.Value
		raw string
	}{
		{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, closep},
		{&b.Volume, volume}, {&b.Turnover, turnover},
		{&b.BuyVolume, buyVol}, {&b.SellVolume, sellVol},
	}
	for _, f := range fields {
		v, err := fixedpoint.Parse(f.raw)
		if err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		*f.dst = v
	}
	b.OpenTime = openTime.UnixMicro()
	b.CloseTime = closeTime.UnixMicro()
	return &b, nil
}

func (s *ClickHouseBarStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseBarStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaBarPublisher implements BarPublisher for Kafka. Bars are keyed by
// symbol so one partition carries one symbol's bars in order.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaBarPublisher creates a Kafka bar publisher.
func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) repository.BarPublisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) Publish(ctx context.Context, b *models.RangeBar) error {
	return p.producer.Publish(ctx, p.topic, []byte(b.Symbol), b)
}

func (p *KafkaBarPublisher) PublishBatch(ctx context.Context, bars []*models.RangeBar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(b.Symbol),
			Value: b,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBarPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
