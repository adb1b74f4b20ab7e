package sentiment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	applogger "StockPulse/pkg/logger"

	"gonum.org/v1/gonum/stat"
)

// Weighter assigns an importance weight to an article.
type Weighter interface {
	Weight(a models.Article, now time.Time) float64
}

// Summary is the aggregate sentiment plus the articles that survived scoring.
// Skipped counts scoring failures. Canceled counts articles left unscored
// because the context ended first. Confidence is the unweighted mean model
// confidence, nil unless the scorer reports one.
type Summary struct {
	Score      float64
	Confidence *float64
	Scored     []models.ScoredArticle
	Skipped    int
	Canceled   int
}

type articleResult struct {
	scored *models.ScoredArticle
	done   bool
}

// Aggregator combines per-article sentiment and weights into one score.
type Aggregator struct {
	workers int
	logger  *applogger.Logger
}

type Option func(*Aggregator)

// WithWorkers bounds how many articles are scored concurrently.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{workers: 4, logger: applogger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns the mean weighted score over articles the scorer accepted.
// Articles whose scoring fails are skipped; articles not scored before ctx ends
// are counted as canceled. No articles, or none surviving, gives 0.
func (a *Aggregator) Aggregate(ctx context.Context, articles []models.Article, scorer domsvc.SentimentScorer, weighter Weighter, now time.Time) Summary {
	if len(articles) == 0 {
		return Summary{}
	}

	results := make([]articleResult, len(articles))
	sem := make(chan struct{}, a.workers)
	var wg sync.WaitGroup

dispatch:
	for i := range articles {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			scored := a.scoreOne(ctx, articles[i], scorer, weighter, now)
			results[i] = articleResult{scored: scored, done: scored != nil || ctx.Err() == nil}
		}(i)
	}
	wg.Wait()

	sum := Summary{Scored: make([]models.ScoredArticle, 0, len(articles))}
	values := make([]float64, 0, len(articles))
	confidences := make([]float64, 0, len(articles))
	for _, r := range results {
		switch {
		case !r.done:
			sum.Canceled++
		case r.scored == nil:
			sum.Skipped++
		default:
			sum.Scored = append(sum.Scored, *r.scored)
			values = append(values, r.scored.WeightedScore)
			confidences = append(confidences, r.scored.Confidence)
		}
	}
	if len(values) == 0 {
		return sum
	}
	// Sorted so the floating point sum does not depend on article order.
	sort.Float64s(values)
	sum.Score = stat.Mean(values, nil)
	if _, ok := scorer.(domsvc.ConfidenceScorer); ok {
		sort.Float64s(confidences)
		c := stat.Mean(confidences, nil)
		sum.Confidence = &c
	}
	return sum
}

func (a *Aggregator) scoreOne(ctx context.Context, art models.Article, scorer domsvc.SentimentScorer, weighter Weighter, now time.Time) (scored *models.ScoredArticle) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("scorer panic, article skipped", applogger.String("source", art.Source), applogger.Any("panic", r))
			scored = nil
		}
	}()

	var s, conf float64
	var err error
	if cs, ok := scorer.(domsvc.ConfidenceScorer); ok {
		s, conf, err = cs.ScoreWithConfidence(ctx, art.Text())
		if err == nil && (math.IsNaN(conf) || conf < 0 || conf > 1) {
			err = fmt.Errorf("confidence %v outside [0, 1]", conf)
		}
	} else {
		s, err = scorer.Score(ctx, art.Text())
	}
	if err == nil {
		err = checkScore(s)
	}
	if err != nil {
		a.logger.Warn("scoring failed, article skipped",
			applogger.String("source", art.Source),
			applogger.String("title", art.Title),
			applogger.Error(err),
		)
		return nil
	}

	w := weighter.Weight(art, now)
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		a.logger.Warn("invalid weight, article skipped", applogger.String("source", art.Source), applogger.Float64("weight", w))
		return nil
	}
	return &models.ScoredArticle{
		Article:       art,
		Sentiment:     s,
		Weight:        w,
		WeightedScore: s * w,
		Confidence:    conf,
	}
}

func checkScore(s float64) error {
	if math.IsNaN(s) || s < -1 || s > 1 {
		return fmt.Errorf("score %v outside [-1, 1]", s)
	}
	return nil
}
