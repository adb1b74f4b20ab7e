// Package lexicon scores text by counting finance-flavoured polarity words.
// It needs no model service and is the default scorer.
package lexicon

import (
	"context"
	"strings"
	"unicode"

	domsvc "StockPulse/internal/domain/service"
)

var defaultPositive = []string{
	"growth", "profit", "profits", "profitable", "increase", "increases", "rise", "rises",
	"rising", "gain", "gains", "success", "successful", "strong", "strength", "beat", "beats",
	"exceed", "exceeds", "record", "surge", "surges", "upgrade", "outperform", "robust",
	"improve", "improved", "optimistic", "rally",
}

var defaultNegative = []string{
	"decline", "declines", "loss", "losses", "fall", "falls", "falling", "drop", "drops",
	"weak", "weakness", "miss", "misses", "concern", "concerns", "risk", "risks",
	"uncertainty", "uncertain", "downgrade", "lawsuit", "slump", "plunge", "recession",
	"underperform", "layoffs", "deficit", "investigation",
}

// Scorer implements domsvc.SentimentScorer over word lists.
type Scorer struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// Option configures Scorer.
type Option func(*Scorer)

// WithWords adds words to the positive and negative lists.
func WithWords(positive, negative []string) Option {
	return func(s *Scorer) {
		addAll(s.positive, positive)
		addAll(s.negative, negative)
	}
}

func New(opts ...Option) *Scorer {
	s := &Scorer{
		positive: make(map[string]struct{}),
		negative: make(map[string]struct{}),
	}
	addAll(s.positive, defaultPositive)
	addAll(s.negative, defaultNegative)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func addAll(m map[string]struct{}, words []string) {
	for _, w := range words {
		m[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
}

// Score returns (pos-neg)/(pos+neg), or 0 when no lexicon word occurs.
func (s *Scorer) Score(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var pos, neg int
	for _, w := range tokenize(text) {
		if _, ok := s.positive[w]; ok {
			pos++
		}
		if _, ok := s.negative[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, nil
	}
	return float64(pos-neg) / float64(pos+neg), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ domsvc.SentimentScorer = (*Scorer)(nil)
