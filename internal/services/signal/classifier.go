package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/risk"
)

const (
	// ReturnThreshold is the canonical expected-return band edge.
	ReturnThreshold = 0.03
	// SentimentThreshold is the band edge of the sentiment formulation.
	SentimentThreshold = 0.15

	sentimentReturnScale     = 0.05
	sentimentVolatilityScale = 0.1
)

// Classify is the canonical return-based rule. Boundaries are HOLD.
func Classify(expectedReturn float64) models.Signal {
	return byThreshold(expectedReturn, ReturnThreshold)
}

// ClassifySentiment applies the sentiment-threshold rule.
func ClassifySentiment(sentiment float64) models.Signal {
	return byThreshold(sentiment, SentimentThreshold)
}

func byThreshold(v, threshold float64) models.Signal {
	switch {
	case v > threshold:
		return models.SignalBuy
	case v < -threshold:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// Inputs are the values a strategy may use.
type Inputs struct {
	Sentiment      float64
	ExpectedReturn float64
}

// Decision is what a strategy hands back to the pipeline: the drift and risk
// that drive the simulation, and the signal.
type Decision struct {
	Drift  float64
	Risk   models.RiskMetrics
	Signal models.Signal
}

// Strategy is a named signal/risk formulation.
type Strategy interface {
	Name() string
	Decide(in Inputs) Decision
}

// ReturnStrategy is the canonical formulation: risk and signal from the forecast return.
type ReturnStrategy struct{}

func (ReturnStrategy) Name() string { return "return" }

func (ReturnStrategy) Decide(in Inputs) Decision {
	return Decision{
		Drift:  in.ExpectedReturn,
		Risk:   risk.Assess(in.ExpectedReturn),
		Signal: Classify(in.ExpectedReturn),
	}
}

// SentimentStrategy derives return and volatility from aggregate sentiment and
// classifies on sentiment alone.
type SentimentStrategy struct{}

func (SentimentStrategy) Name() string { return "sentiment" }

func (SentimentStrategy) Decide(in Inputs) Decision {
	drift := in.Sentiment * sentimentReturnScale
	return Decision{
		Drift:  drift,
		Risk:   risk.Compute(drift, math.Abs(in.Sentiment)*sentimentVolatilityScale),
		Signal: ClassifySentiment(in.Sentiment),
	}
}

var strategies = map[string]Strategy{
	ReturnStrategy{}.Name():    ReturnStrategy{},
	SentimentStrategy{}.Name(): SentimentStrategy{},
}

// Default is the strategy used when none is named.
func Default() Strategy { return ReturnStrategy{} }

// ByName looks a strategy up; an empty name gives the default.
func ByName(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Default(), nil
	}
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names lists the registered strategies.
func Names() []string {
	names := make([]string, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
