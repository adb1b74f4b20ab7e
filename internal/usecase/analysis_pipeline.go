package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/services/montecarlo"
	"StockPulse/internal/services/sentiment"
	"StockPulse/internal/services/signal"
	"StockPulse/internal/services/weighting"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunOptions are per-request overrides. Zero values use the pipeline defaults.
type RunOptions struct {
	Strategy    string
	Simulations int
	Days        int
}

// AnalysisPipeline turns news and a price forecast into a signal for one
// ticker. It holds only read-only collaborators and is safe for concurrent use.
type AnalysisPipeline struct {
	sources    []domsvc.NewsSource
	scorer     domsvc.SentimentScorer
	forecaster domsvc.ForecastProvider
	weighter   sentiment.Weighter
	aggregator *sentiment.Aggregator
	simulator  *montecarlo.Simulator
	strategy   signal.Strategy
	metrics    repository.Metrics
	logger     *applogger.Logger

	sourceTimeout   time.Duration
	forecastTimeout time.Duration
	now             func() time.Time
	newID           func() string
}

type PipelineOption func(*AnalysisPipeline)

func WithWeighter(w sentiment.Weighter) PipelineOption {
	return func(p *AnalysisPipeline) { p.weighter = w }
}

func WithAggregator(a *sentiment.Aggregator) PipelineOption {
	return func(p *AnalysisPipeline) { p.aggregator = a }
}

func WithSimulator(s *montecarlo.Simulator) PipelineOption {
	return func(p *AnalysisPipeline) { p.simulator = s }
}

// WithStrategy sets the default strategy for runs that do not name one.
func WithStrategy(s signal.Strategy) PipelineOption {
	return func(p *AnalysisPipeline) {
		if s != nil {
			p.strategy = s
		}
	}
}

func WithPipelineMetrics(m repository.Metrics) PipelineOption {
	return func(p *AnalysisPipeline) { p.metrics = m }
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *AnalysisPipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTimeouts bounds each source fetch and the forecast call.
func WithTimeouts(source, forecast time.Duration) PipelineOption {
	return func(p *AnalysisPipeline) {
		if source > 0 {
			p.sourceTimeout = source
		}
		if forecast > 0 {
			p.forecastTimeout = forecast
		}
	}
}

// WithClock fixes "now" for recency weighting and timestamps.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *AnalysisPipeline) { p.now = now }
}

func WithIDGenerator(fn func() string) PipelineOption {
	return func(p *AnalysisPipeline) { p.newID = fn }
}

func NewAnalysisPipeline(sources []domsvc.NewsSource, scorer domsvc.SentimentScorer, forecaster domsvc.ForecastProvider, opts ...PipelineOption) *AnalysisPipeline {
	p := &AnalysisPipeline{
		sources:         sources,
		scorer:          scorer,
		forecaster:      forecaster,
		weighter:        weighting.NewEngine(),
		aggregator:      sentiment.NewAggregator(),
		simulator:       montecarlo.NewSimulator(),
		strategy:        signal.Default(),
		logger:          applogger.Nop(),
		sourceTimeout:   8 * time.Second,
		forecastTimeout: 15 * time.Second,
		now:             time.Now,
		newID:           func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultStrategy names the strategy used when RunOptions leaves it empty.
func (p *AnalysisPipeline) DefaultStrategy() string { return p.strategy.Name() }

// Run executes one analysis. It always returns exactly one of a complete
// result or a structured error.
func (p *AnalysisPipeline) Run(ctx context.Context, ticker string, ro RunOptions) (out models.AnalysisOutcome) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "analysis.run", trace.WithAttributes(attribute.String("ticker", ticker)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("analysis panic",
				applogger.String("ticker", ticker),
				applogger.Any("panic", r),
				applogger.String("stack", string(debug.Stack())),
			)
			out = models.Failure(models.NewAnalysisError(ticker, models.KindInternal, fmt.Errorf("panic: %v", r)))
		}
		if out.Err != nil {
			tracing.Fail(span, out.Err)
			p.recordError(out.Err.Kind)
		}
		if p.metrics != nil {
			p.metrics.RecordLatency("analysis", time.Since(start).Seconds())
		}
	}()

	fail := func(kind models.ErrorKind, err error) models.AnalysisOutcome {
		return models.Failure(models.NewAnalysisError(ticker, kind, err))
	}

	strategy := p.strategy
	if ro.Strategy != "" {
		s, err := signal.ByName(ro.Strategy)
		if err != nil {
			return fail(models.KindInvalidRequest, err)
		}
		strategy = s
	}
	span.SetAttributes(attribute.String("strategy", strategy.Name()))

	// Sources run while the forecast is requested; a failed forecast cancels them.
	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()
	articlesCh := make(chan []models.Article, 1)
	go func() { articlesCh <- p.fetchAll(fetchCtx, ticker) }()

	forecast, err := p.forecast(ctx, ticker)
	if err != nil {
		cancelFetch()
		<-articlesCh
		if ctx.Err() != nil {
			return fail(models.KindCanceled, ctx.Err())
		}
		return fail(models.KindForecastUnavailable, err)
	}
	articles := <-articlesCh
	if ctx.Err() != nil {
		return fail(models.KindCanceled, ctx.Err())
	}

	now := p.now()
	sctx, sspan := tracing.StartSpan(ctx, "analysis.sentiment")
	summary := p.aggregator.Aggregate(sctx, articles, p.scorer, p.weighter, now)
	sspan.SetAttributes(
		attribute.Int("scored", len(summary.Scored)),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("canceled", summary.Canceled),
	)
	sspan.End()
	if ctx.Err() != nil {
		return fail(models.KindCanceled, ctx.Err())
	}
	for i := 0; i < summary.Skipped; i++ {
		p.recordError(models.KindScoring)
	}

	decision := strategy.Decide(signal.Inputs{Sentiment: summary.Score, ExpectedReturn: forecast.ExpectedReturn})

	mctx, mspan := tracing.StartSpan(ctx, "analysis.simulate")
	mc, err := p.simulator.Simulate(mctx, montecarlo.Params{
		CurrentPrice:   forecast.CurrentPrice,
		ExpectedReturn: decision.Drift,
		Volatility:     decision.Risk.Volatility,
		Simulations:    ro.Simulations,
		Days:           ro.Days,
	})
	tracing.Fail(mspan, err)
	mspan.End()
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fail(models.KindCanceled, err)
		case errors.Is(err, montecarlo.ErrInvalidInput), errors.Is(err, montecarlo.ErrNonFinite):
			return fail(models.KindSimulationNumeric, err)
		default:
			return fail(models.KindInternal, err)
		}
	}

	result := &models.AnalysisResult{
		ID:             p.newID(),
		Ticker:         ticker,
		Strategy:       strategy.Name(),
		SentimentScore: summary.Score,
		Confidence:     summary.Confidence,
		Forecast: models.ForecastSummary{
			PredictedPrice: forecast.CurrentPrice,
			ExpectedReturn: forecast.ExpectedReturn,
			Trend:          models.TrendOf(forecast.ExpectedReturn),
		},
		Risk:        decision.Risk,
		MonteCarlo:  mc,
		Signal:      decision.Signal,
		News:        newsSummary(articles, summary),
		GeneratedAt: now.UTC(),
	}
	if p.metrics != nil {
		p.metrics.RecordSignal(ticker, result.Signal)
		p.metrics.RecordSentiment(ticker, result.SentimentScore)
	}
	p.logger.Info("analysis complete",
		applogger.String("ticker", ticker),
		applogger.String("strategy", result.Strategy),
		applogger.String("signal", string(result.Signal)),
		applogger.Float64("sentiment", result.SentimentScore),
		applogger.Int("articles", len(articles)),
		applogger.Duration("elapsed_ms", time.Since(start)),
	)
	return models.Success(result)
}

func (p *AnalysisPipeline) forecast(ctx context.Context, ticker string) (f models.ForecastInput, err error) {
	ctx, span := tracing.StartSpan(ctx, "analysis.forecast")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.forecastTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forecast provider panic: %v", r)
		}
		tracing.Fail(span, err)
	}()
	f, err = p.forecaster.Predict(ctx, ticker)
	if err != nil {
		return f, err
	}
	return f, validateForecast(f)
}

// validateForecast rejects forecasts the risk and simulation stages cannot use.
func validateForecast(f models.ForecastInput) error {
	if math.IsNaN(f.CurrentPrice) || math.IsInf(f.CurrentPrice, 0) || f.CurrentPrice <= 0 {
		return fmt.Errorf("invalid forecast: current price %v", f.CurrentPrice)
	}
	if math.IsNaN(f.ExpectedReturn) || math.IsInf(f.ExpectedReturn, 0) {
		return fmt.Errorf("invalid forecast: expected return %v", f.ExpectedReturn)
	}
	return nil
}

// fetchAll queries every source concurrently. A failing or slow source
// contributes nothing. Articles are concatenated in source order.
func (p *AnalysisPipeline) fetchAll(ctx context.Context, ticker string) []models.Article {
	ctx, span := tracing.StartSpan(ctx, "analysis.fetch")
	defer span.End()

	perSource := make([][]models.Article, len(p.sources))
	var wg sync.WaitGroup
	for i, src := range p.sources {
		wg.Add(1)
		go func(i int, src domsvc.NewsSource) {
			defer wg.Done()
			articles, err := p.fetchOne(ctx, src, ticker)
			if err != nil {
				p.recordError(models.KindSourceFetch)
				p.logger.Warn("news source failed",
					applogger.String("source", src.Name()),
					applogger.String("ticker", ticker),
					applogger.Error(err),
				)
				return
			}
			perSource[i] = articles
		}(i, src)
	}
	wg.Wait()

	var all []models.Article
	for _, a := range perSource {
		all = append(all, a...)
	}
	span.SetAttributes(attribute.Int("articles", len(all)))
	return all
}

func (p *AnalysisPipeline) fetchOne(ctx context.Context, src domsvc.NewsSource, ticker string) ([]models.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, p.sourceTimeout)
	defer cancel()

	type res struct {
		articles []models.Article
		err      error
	}
	done := make(chan res, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- res{err: fmt.Errorf("source panic: %v", r)}
			}
		}()
		a, err := src.Fetch(ctx, ticker)
		done <- res{a, err}
	}()

	// Sources that ignore ctx still lose their slot at the deadline.
	select {
	case r := <-done:
		if r.err != nil {
			return nil, models.NewAnalysisError(ticker, models.KindSourceFetch, r.err)
		}
		return r.articles, nil
	case <-ctx.Done():
		return nil, models.NewAnalysisError(ticker, models.KindSourceFetch, fmt.Errorf("%s: %w", src.Name(), ctx.Err()))
	}
}

func (p *AnalysisPipeline) recordError(kind models.ErrorKind) {
	if p.metrics != nil {
		p.metrics.RecordError(string(kind))
	}
}

func newsSummary(articles []models.Article, s sentiment.Summary) models.NewsSummary {
	ns := models.NewsSummary{
		Total:   len(articles),
		Scored:  len(s.Scored),
		Skipped: s.Skipped,
	}
	if len(articles) > 0 {
		ns.Sources = make(map[string]int)
		for _, a := range articles {
			ns.Sources[a.Source]++
		}
	}
	return ns
}
