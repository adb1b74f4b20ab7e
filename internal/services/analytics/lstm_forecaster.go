package analytics

import (
	"context"
	"fmt"
	"math"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
)

// LSTMForecaster asks the model service for the next-period price.
type LSTMForecaster struct{ base *HTTPServiceBase }

func NewLSTMForecaster(base *HTTPServiceBase) *LSTMForecaster {
	return &LSTMForecaster{base: base}
}

type forecastReq struct {
	Ticker string `json:"ticker"`
}

type forecastResp struct {
	PredictedPrice float64  `json:"predicted_price"`
	ExpectedReturn *float64 `json:"expected_return"`
	LastPrice      float64  `json:"last_price"`
}

func (f *LSTMForecaster) Predict(ctx context.Context, ticker string) (models.ForecastInput, error) {
	var fr forecastResp
	if err := f.base.Call(ctx, "/forecast/predict", forecastReq{Ticker: ticker}, &fr); err != nil {
		return models.ForecastInput{}, fmt.Errorf("predict %s: %w", ticker, err)
	}
	if !(fr.PredictedPrice > 0) || math.IsInf(fr.PredictedPrice, 0) {
		return models.ForecastInput{}, fmt.Errorf("predict %s: invalid predicted price %v", ticker, fr.PredictedPrice)
	}

	var r float64
	switch {
	case fr.ExpectedReturn != nil:
		r = *fr.ExpectedReturn
	case fr.LastPrice > 0:
		r = (fr.PredictedPrice - fr.LastPrice) / fr.LastPrice
	default:
		return models.ForecastInput{}, fmt.Errorf("predict %s: response has neither expected_return nor last_price", ticker)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return models.ForecastInput{}, fmt.Errorf("predict %s: non-finite expected return", ticker)
	}
	return models.ForecastInput{CurrentPrice: fr.PredictedPrice, ExpectedReturn: r}, nil
}

var _ domsvc.ForecastProvider = (*LSTMForecaster)(nil)
