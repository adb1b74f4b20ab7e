package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	icache "StockPulse/internal/service/cache"
	xhttp "StockPulse/pkg/http"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/util"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrHistoryDisabled is returned by History when no analysis store is configured.
var ErrHistoryDisabled = errors.New("analysis history is not enabled")

// Runner executes a single analysis.
type Runner interface {
	Run(ctx context.Context, ticker string, ro RunOptions) models.AnalysisOutcome
	DefaultStrategy() string
}

// ResultSink receives every successful result, e.g. the ResultPipeline.
type ResultSink interface {
	Process(ctx context.Context, r *models.AnalysisResult) error
}

// Broadcaster pushes results to live subscribers.
type Broadcaster interface {
	Broadcast(r *models.AnalysisResult)
}

// AnalyzeRequest describes one analysis call.
type AnalyzeRequest struct {
	Ticker string
	RunOptions
	// Refresh skips the cache read; the fresh result still replaces the cached one.
	Refresh bool
}

// AnalysisService fronts the pipeline with caching, result fan-out and batch
// execution. It is what handlers, the Kafka consumer and the scheduler call.
type AnalysisService struct {
	runner      Runner
	cache       *icache.AnalysisCache
	sink        ResultSink
	broadcaster Broadcaster
	store       drepo.AnalysisStore
	metrics     drepo.Metrics
	logger      *applogger.Logger
	concurrency int
	flight      singleflight.Group
}

type ServiceOption func(*AnalysisService)

func WithCache(c *icache.AnalysisCache) ServiceOption {
	return func(s *AnalysisService) { s.cache = c }
}

func WithSink(sink ResultSink) ServiceOption {
	return func(s *AnalysisService) { s.sink = sink }
}

func WithBroadcaster(b Broadcaster) ServiceOption {
	return func(s *AnalysisService) { s.broadcaster = b }
}

// WithHistory enables History lookups against store.
func WithHistory(store drepo.AnalysisStore) ServiceOption {
	return func(s *AnalysisService) { s.store = store }
}

func WithServiceLogger(l *applogger.Logger) ServiceOption {
	return func(s *AnalysisService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBatchConcurrency bounds how many tickers AnalyzeBatch runs at once.
func WithBatchConcurrency(n int) ServiceOption {
	return func(s *AnalysisService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewAnalysisService(runner Runner, metrics drepo.Metrics, opts ...ServiceOption) *AnalysisService {
	s := &AnalysisService{
		runner:      runner,
		metrics:     metrics,
		logger:      applogger.Nop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(t string) string {
	return util.NormalizeTicker(t)
}

// Analyze returns a cached result when one is fresh, otherwise runs the
// pipeline. Concurrent calls for the same key share one run.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) models.AnalysisOutcome {
	ticker := NormalizeTicker(req.Ticker)
	if ticker == "" {
		return models.Failure(models.NewAnalysisError(req.Ticker, models.KindInvalidRequest, errors.New("ticker is required")))
	}
	if !xhttp.IsTicker(ticker) {
		return models.Failure(models.NewAnalysisError(ticker, models.KindInvalidRequest, fmt.Errorf("invalid ticker %q", req.Ticker)))
	}
	ro := req.RunOptions
	ro.Strategy = strings.ToLower(strings.TrimSpace(ro.Strategy))
	if ro.Strategy == "" {
		ro.Strategy = s.runner.DefaultStrategy()
	}
	key := icache.Key{Ticker: ticker, Strategy: ro.Strategy, Simulations: ro.Simulations, Days: ro.Days}

	if !req.Refresh {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.metrics.RecordError("cache_get")
			s.logger.Warn("cache read failed", applogger.String("ticker", ticker), applogger.Error(err))
		}
		if ok {
			s.metrics.RecordLatency("cache_hit", 0)
			return models.Success(cached)
		}
	}

	v, _, _ := s.flight.Do(key.String(), func() (interface{}, error) {
		return s.run(ctx, ticker, key, ro), nil
	})
	return v.(models.AnalysisOutcome)
}

func (s *AnalysisService) run(ctx context.Context, ticker string, key icache.Key, ro RunOptions) models.AnalysisOutcome {
	out := s.runner.Run(ctx, ticker, ro)
	if !out.OK() {
		return out
	}
	r := out.Result

	// The caller's ctx may be done by now; fan-out still has to happen.
	fanCtx := context.WithoutCancel(ctx)
	if err := s.cache.Set(fanCtx, key, r); err != nil {
		s.metrics.RecordError("cache_set")
		s.logger.Warn("cache write failed", applogger.String("ticker", ticker), applogger.Error(err))
	}
	if s.sink != nil {
		if err := s.sink.Process(fanCtx, r); err != nil {
			s.logger.Warn("result sink rejected result",
				applogger.String("ticker", ticker),
				applogger.String("id", r.ID),
				applogger.Error(err),
			)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(r)
	}
	return out
}

// AnalyzeBatch analyses every ticker with bounded concurrency. Outcomes keep
// the order of tickers; one failing ticker never affects the others.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, tickers []string, ro RunOptions, refresh bool) []models.AnalysisOutcome {
	outs := make([]models.AnalysisOutcome, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, t := range tickers {
		g.Go(func() error {
			outs[i] = s.Analyze(gctx, AnalyzeRequest{Ticker: t, RunOptions: ro, Refresh: refresh})
			return nil
		})
	}
	_ = g.Wait()
	return outs
}

// Invalidate drops cached results for ticker.
func (s *AnalysisService) Invalidate(ctx context.Context, ticker string) error {
	return s.cache.Invalidate(ctx, NormalizeTicker(ticker))
}

// History returns the newest stored results for ticker.
func (s *AnalysisService) History(ctx context.Context, ticker string, limit int) ([]*models.AnalysisResult, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	rs, err := s.store.History(ctx, NormalizeTicker(ticker), limit)
	if err != nil {
		s.metrics.RecordError("history")
		return nil, fmt.Errorf("history: %w", err)
	}
	return rs, nil
}

// Health reports whether the history store is reachable, if one is configured.
func (s *AnalysisService) Health(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Health(ctx)
}
