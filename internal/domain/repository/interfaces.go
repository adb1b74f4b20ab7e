package repository

import (
	"context"

	"StockPulse/internal/domain/models"
)

// AnalysisStore keeps an append-only history of completed analyses.
type AnalysisStore interface {
	Store(ctx context.Context, r *models.AnalysisResult) error
	StoreBatch(ctx context.Context, rs []*models.AnalysisResult) error
	History(ctx context.Context, ticker string, limit int) ([]*models.AnalysisResult, error)
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher emits completed analyses as events.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.AnalysisResult) error
	PublishBatch(ctx context.Context, rs []*models.AnalysisResult) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, ticker string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSignal(ticker string, signal models.Signal)
	RecordSentiment(ticker string, score float64)
}
