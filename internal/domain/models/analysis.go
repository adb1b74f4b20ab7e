package models

import "time"

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalHold Signal = "HOLD"
	SignalSell Signal = "SELL"
)

// ForecastInput is what a forecast provider supplies to the pipeline.
type ForecastInput struct {
	CurrentPrice   float64
	ExpectedReturn float64
}

type RiskMetrics struct {
	Volatility float64   `json:"volatility"`
	VaR95      float64   `json:"var_95"`
	Level      RiskLevel `json:"level"`
}

type SimulationResult struct {
	ExpectedPrice30d float64 `json:"expected_price_30d"`
	WorstCase5pct    float64 `json:"worst_case_5pct"`
	BestCase95pct    float64 `json:"best_case_95pct"`
}

// ForecastSummary is the forecast section of an AnalysisResult.
type ForecastSummary struct {
	PredictedPrice float64 `json:"predicted_price"`
	ExpectedReturn float64 `json:"expected_return"`
	Trend          string  `json:"trend"`
}

// NewsSummary reports how many articles fed the sentiment score.
type NewsSummary struct {
	Total   int            `json:"total"`
	Scored  int            `json:"scored"`
	Skipped int            `json:"skipped"`
	Sources map[string]int `json:"sources,omitempty"`
}

// AnalysisResult is the complete outcome of one pipeline run. It is built once
// and never mutated afterwards.
type AnalysisResult struct {
	ID             string           `json:"id"`
	Ticker         string           `json:"ticker"`
	Strategy       string           `json:"strategy"`
	SentimentScore float64          `json:"sentiment_score"`
	Confidence     *float64         `json:"confidence,omitempty"`
	Forecast       ForecastSummary  `json:"forecast"`
	Risk           RiskMetrics      `json:"risk"`
	MonteCarlo     SimulationResult `json:"monte_carlo"`
	Signal         Signal           `json:"signal"`
	News           NewsSummary      `json:"news"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// SentimentLabel names the direction of a score in [-1, 1].
func SentimentLabel(score float64) string {
	switch {
	case score > 0:
		return "positive"
	case score < 0:
		return "negative"
	default:
		return "neutral"
	}
}

// TrendOf labels the direction of an expected return.
func TrendOf(expectedReturn float64) string {
	if expectedReturn > 0 {
		return "Uptrend"
	}
	return "Downtrend"
}
