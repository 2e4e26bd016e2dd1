package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "RangePull/internal/domain/repository"
	"RangePull/pkg/queue"
	"RangePull/pkg/timeutil"
)

// ExportPayload asks for a window of persisted bars to be re-published to
// the message backend, e.g. to rebuild a downstream consumer after an
// outage.
type ExportPayload struct {
	Symbol string `json:"symbol"`
	From   string `json:"from"`
	To     string `json:"to"`
	Limit  int    `json:"limit"`
}

// BarExportJob replays persisted bars back onto the publisher. Runs on the
// Redis job queue so exports survive process restarts and retry on
// transient backend failures.
type BarExportJob struct {
	storage   domrepo.BarStorage
	publisher domrepo.BarPublisher
	metrics   domrepo.Metrics
}

func NewBarExportJob(storage domrepo.BarStorage, publisher domrepo.BarPublisher, metrics domrepo.Metrics) *BarExportJob {
	return &BarExportJob{storage: storage, publisher: publisher, metrics: metrics}
}

func (j *BarExportJob) Name() string { return "bar_export" }
func (j *BarExportJob) Type() string { return "bar_export" }

func (j *BarExportJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ExportPayload](payload)
	if err != nil {
		j.metrics.RecordError("export_payload")
		return err
	}
	if p.Symbol == "" {
		return fmt.Errorf("export: symbol required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10_000
	}

	now := time.Now().UTC()
	from := timeutil.ParseTimeDefault(p.From, now.Add(-24*time.Hour))
	to := timeutil.ParseTimeDefault(p.To, now)

	bars, err := j.storage.Query(ctx, p.Symbol, from, to, limit)
	if err != nil {
		j.metrics.RecordError("export_query")
		return fmt.Errorf("export query: %w", err)
	}
	if len(bars) == 0 {
		return nil
	}

	if err := j.publisher.PublishBatch(ctx, bars); err != nil {
		j.metrics.RecordError("export_publish")
		return fmt.Errorf("export publish: %w", err)
	}
	j.metrics.RecordLatency("export_bars", float64(len(bars)))
	return nil
}

var _ queue.Job = (*BarExportJob)(nil)
