package usecase

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// ResultProcessor routes completed analyses to the configured backend.
type ResultProcessor struct {
	pub     drepo.ResultPublisher
	store   drepo.AnalysisStore
	metrics drepo.Metrics
	backend string
}

// NewResultProcessor creates a new ResultProcessor instance.
func NewResultProcessor(
	pub drepo.ResultPublisher,
	store drepo.AnalysisStore,
	metrics drepo.Metrics,
	backend string,
) *ResultProcessor {
	return &ResultProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Backend names the sink results go to.
func (p *ResultProcessor) Backend() string { return p.backend }

// Process routes a single result to the configured backend.
func (p *ResultProcessor) Process(ctx context.Context, r *models.AnalysisResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, r)
	case BackendClickHouse:
		err = p.store.Store(ctx, r)
	case BackendNone, "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process result: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, r.Ticker)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple results in one call.
func (p *ResultProcessor) ProcessBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	if len(rs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, rs)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, rs)
	case BackendNone, "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, r := range rs {
		p.metrics.RecordMessageSent(p.backend, r.Ticker)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *ResultProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
