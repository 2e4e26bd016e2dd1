package usecase

import (
	"context"
	"encoding/json"
	"time"

	"RangePull/internal/domain/models"
	domrepo "RangePull/internal/domain/repository"
	pkgkafka "RangePull/pkg/kafka"
)

// KafkaBarsHandler consumes bar messages from Kafka and writes them to
// storage. Runs when the pipeline is split: the collector publishes bars
// to Kafka and a separate consumer group lands them in ClickHouse.
type KafkaBarsHandler struct {
	topic   string
	storage domrepo.BarStorage
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, storage domrepo.BarStorage, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var bar models.RangeBar
	if err := json.Unmarshal(b, &bar); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	// E2E latency from bar close to landing (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.UnixMicro(bar.CloseTime)).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &bar)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordBarEmitted("clickhouse", bar.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
