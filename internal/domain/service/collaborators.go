package service

import (
	"context"

	"StockPulse/internal/domain/models"
)

// NewsSource fetches recent articles mentioning a ticker.
type NewsSource interface {
	Name() string
	Fetch(ctx context.Context, ticker string) ([]models.Article, error)
}

// SentimentScorer scores text in [-1, 1]. Scores are deterministic for a fixed model version.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// ConfidenceScorer is a SentimentScorer that also reports the model's
// confidence in [0, 1], the largest class probability.
type ConfidenceScorer interface {
	SentimentScorer
	ScoreWithConfidence(ctx context.Context, text string) (score, confidence float64, err error)
}

// ForecastProvider predicts the next price and expected return for a ticker.
type ForecastProvider interface {
	Predict(ctx context.Context, ticker string) (models.ForecastInput, error)
}
