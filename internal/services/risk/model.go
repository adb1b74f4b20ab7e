package risk

import (
	"math"

	"StockPulse/internal/domain/models"
)

const (
	// VolatilityMultiplier stands in for a historical volatility estimate.
	VolatilityMultiplier = 1.5
	// Z95 is the one-tailed 95% normal quantile used for VaR.
	Z95 = 1.65

	HighThreshold     = -0.05
	ModerateThreshold = -0.02
)

// Assess derives volatility, VaR95 and the risk level from an expected return.
func Assess(expectedReturn float64) models.RiskMetrics {
	return Compute(expectedReturn, math.Abs(expectedReturn)*VolatilityMultiplier)
}

// Compute builds risk metrics from an explicit return and volatility.
func Compute(expectedReturn, volatility float64) models.RiskMetrics {
	var95 := expectedReturn - Z95*volatility
	return models.RiskMetrics{
		Volatility: volatility,
		VaR95:      var95,
		Level:      Classify(var95),
	}
}

// Classify maps VaR95 to a level; each band includes its upper boundary.
func Classify(var95 float64) models.RiskLevel {
	switch {
	case var95 < HighThreshold:
		return models.RiskHigh
	case var95 < ModerateThreshold:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}
