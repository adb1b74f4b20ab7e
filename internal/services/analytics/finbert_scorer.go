package analytics

import (
	"context"
	"fmt"
	"math"

	domsvc "StockPulse/internal/domain/service"
	"StockPulse/pkg/util"
)

// DefaultMaxWords bounds the text sent to the sentiment model.
const DefaultMaxWords = 256

// FinBERTScorer scores text through the model service's classifier.
type FinBERTScorer struct {
	base     *HTTPServiceBase
	maxWords int
}

func NewFinBERTScorer(base *HTTPServiceBase, maxWords int) *FinBERTScorer {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &FinBERTScorer{base: base, maxWords: maxWords}
}

type scoreReq struct {
	Text string `json:"text"`
}

type scoreResp struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// Score returns P(positive) - P(negative).
func (s *FinBERTScorer) Score(ctx context.Context, text string) (float64, error) {
	score, _, err := s.ScoreWithConfidence(ctx, text)
	return score, err
}

// ScoreWithConfidence also returns the largest of the three class probabilities.
func (s *FinBERTScorer) ScoreWithConfidence(ctx context.Context, text string) (float64, float64, error) {
	var sr scoreResp
	if err := s.base.Call(ctx, "/sentiment/score", scoreReq{Text: util.TruncateWords(text, s.maxWords)}, &sr); err != nil {
		return 0, 0, fmt.Errorf("score sentiment: %w", err)
	}
	for _, p := range []float64{sr.Positive, sr.Negative, sr.Neutral} {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return 0, 0, fmt.Errorf("score sentiment: probability out of range: %+v", sr)
		}
	}
	return sr.Positive - sr.Negative, max(sr.Positive, sr.Negative, sr.Neutral), nil
}

var _ domsvc.ConfidenceScorer = (*FinBERTScorer)(nil)
