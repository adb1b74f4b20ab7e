// Package static provides fixed-value collaborators for offline runs and tests.
package static

import (
	"context"
	"fmt"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
)

// Scorer returns the same sentiment for every text.
type Scorer struct{ Value float64 }

func (s Scorer) Score(_ context.Context, _ string) (float64, error) {
	if s.Value < -1 || s.Value > 1 {
		return 0, fmt.Errorf("static sentiment %v outside [-1, 1]", s.Value)
	}
	return s.Value, nil
}

// Forecaster returns the same forecast for every ticker.
type Forecaster struct {
	Price          float64
	ExpectedReturn float64
}

func (f Forecaster) Predict(_ context.Context, ticker string) (models.ForecastInput, error) {
	if f.Price <= 0 {
		return models.ForecastInput{}, fmt.Errorf("static forecast for %s: price must be positive", ticker)
	}
	return models.ForecastInput{CurrentPrice: f.Price, ExpectedReturn: f.ExpectedReturn}, nil
}

var (
	_ domsvc.SentimentScorer  = Scorer{}
	_ domsvc.ForecastProvider = Forecaster{}
)
