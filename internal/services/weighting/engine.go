package weighting

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/util"
)

const (
	DefaultDecayHours   = 48.0
	DefaultLengthNorm   = 500.0
	DefaultLengthCap    = 1.2
	DefaultKeywordBoost = 1.2
)

// DefaultSourceWeights is the static credibility table. Unknown sources weigh 1.0.
var DefaultSourceWeights = map[string]float64{
	"Reuters":         1.3,
	"Bloomberg":       1.3,
	"Financial Times": 1.25,
	"The Guardian":    1.1,
	"Alpha Vantage":   1.0,
	"Finnhub":         1.0,
}

// DefaultKeywords boost the attention proxy when present in an article.
var DefaultKeywords = []string{"earnings", "forecast", "merger", "acquisition", "federal reserve"}

// Engine computes article importance weights. It is immutable after construction
// and safe for concurrent use.
type Engine struct {
	sourceWeights map[string]float64
	keywords      []string
	decayHours    float64
	lengthNorm    float64
	lengthCap     float64
	keywordBoost  float64
}

type Option func(*Engine)

// WithSourceWeights overrides or extends entries of the credibility table.
func WithSourceWeights(weights map[string]float64) Option {
	return func(e *Engine) {
		for k, v := range weights {
			if v >= 0 {
				e.sourceWeights[k] = v
			}
		}
	}
}

// WithKeywords replaces the attention keyword set.
func WithKeywords(keywords []string) Option {
	return func(e *Engine) {
		if len(keywords) == 0 {
			return
		}
		e.keywords = make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				e.keywords = append(e.keywords, k)
			}
		}
	}
}

// WithDecayHours sets the recency decay constant.
func WithDecayHours(h float64) Option {
	return func(e *Engine) {
		if h > 0 {
			e.decayHours = h
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		sourceWeights: make(map[string]float64, len(DefaultSourceWeights)),
		keywords:      append([]string(nil), DefaultKeywords...),
		decayHours:    DefaultDecayHours,
		lengthNorm:    DefaultLengthNorm,
		lengthCap:     DefaultLengthCap,
		keywordBoost:  DefaultKeywordBoost,
	}
	for k, v := range DefaultSourceWeights {
		e.sourceWeights[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecencyWeight decays exponentially with article age. Missing or unparsable
// timestamps weigh 1.0 and future timestamps count as zero hours old.
func (e *Engine) RecencyWeight(publishedAt string, now time.Time) float64 {
	t, ok := util.ParseTime(publishedAt)
	if !ok {
		return 1.0
	}
	hoursOld := now.Sub(t).Hours()
	if hoursOld < 0 {
		hoursOld = 0
	}
	return math.Exp(-hoursOld / e.decayHours)
}

func (e *Engine) SourceWeight(source string) float64 {
	if w, ok := e.sourceWeights[source]; ok {
		return w
	}
	return 1.0
}

// AttentionProxy scores text by length (capped) and keyword presence.
func (e *Engine) AttentionProxy(text string) float64 {
	lengthWeight := math.Min(float64(utf8.RuneCountInString(text))/e.lengthNorm, e.lengthCap)
	boost := 1.0
	lower := strings.ToLower(text)
	for _, k := range e.keywords {
		if strings.Contains(lower, k) {
			boost = e.keywordBoost
			break
		}
	}
	return lengthWeight * boost
}

// Weight is recency × source × attention, without normalization.
func (e *Engine) Weight(a models.Article, now time.Time) float64 {
	return e.RecencyWeight(a.PublishedAt, now) * e.SourceWeight(a.Source) * e.AttentionProxy(a.Text())
}
