package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/services/montecarlo"
	"StockPulse/internal/services/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func newTestPipeline(sources []domsvc.NewsSource, scorer domsvc.SentimentScorer, f domsvc.ForecastProvider, opts ...PipelineOption) *AnalysisPipeline {
	base := []PipelineOption{
		WithWeighter(unitWeighter{}),
		WithSimulator(montecarlo.NewSimulator(montecarlo.WithSeed(42))),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "id-1" }),
		WithTimeouts(100*time.Millisecond, time.Second),
	}
	return NewAnalysisPipeline(sources, scorer, f, append(base, opts...)...)
}

func TestRunEndToEnd(t *testing.T) {
	sources := []domsvc.NewsSource{
		fakeSource{name: "a", articles: []models.Article{art("one", "Reuters"), art("two", "Reuters")}},
		fakeSource{name: "b", articles: []models.Article{art("three", "Bloomberg")}},
	}
	scorer := mapScorer{"one d": 0.3, "two d": 0.1, "three d": 0.2}
	forecaster := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 150, ExpectedReturn: 0.04}}
	m := newFakeMetrics()

	out := newTestPipeline(sources, scorer, forecaster, WithPipelineMetrics(m)).Run(context.Background(), "AAPL", RunOptions{})
	require.True(t, out.OK(), "%+v", out.Err)
	r := out.Result

	assert.Equal(t, "id-1", r.ID)
	assert.Equal(t, "AAPL", r.Ticker)
	assert.Equal(t, "return", r.Strategy)
	assert.InDelta(t, 0.2, r.SentimentScore, 1e-12)
	assert.Equal(t, 150.0, r.Forecast.PredictedPrice)
	assert.Equal(t, 0.04, r.Forecast.ExpectedReturn)
	assert.Equal(t, "Uptrend", r.Forecast.Trend)
	assert.Equal(t, risk.Assess(0.04), r.Risk)
	assert.Equal(t, models.SignalBuy, r.Signal)
	assert.LessOrEqual(t, r.MonteCarlo.WorstCase5pct, r.MonteCarlo.ExpectedPrice30d)
	assert.LessOrEqual(t, r.MonteCarlo.ExpectedPrice30d, r.MonteCarlo.BestCase95pct)
	assert.Equal(t, models.NewsSummary{Total: 3, Scored: 3, Sources: map[string]int{"Reuters": 2, "Bloomberg": 1}}, r.News)
	assert.Equal(t, fixedNow, r.GeneratedAt)

	assert.Equal(t, models.SignalBuy, m.signals["AAPL"])
	assert.InDelta(t, 0.2, m.sentiments["AAPL"], 1e-12)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(b, &shape))
	for _, k := range []string{"ticker", "sentiment_score", "forecast", "risk", "monte_carlo", "signal"} {
		assert.Contains(t, shape, k)
	}
	assert.NotContains(t, shape, "error")
	assert.NotContains(t, shape, "confidence")
}

func TestRunReportsConfidence(t *testing.T) {
	sources := []domsvc.NewsSource{fakeSource{name: "a", articles: []models.Article{art("one", "x"), art("two", "x")}}}
	scorer := confidentScorer{"one d": {0.4, 0.8}, "two d": {0.2, 0.6}}
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0.01}}

	out := newTestPipeline(sources, scorer, f).Run(context.Background(), "NVDA", RunOptions{Strategy: "sentiment"})
	require.True(t, out.OK(), "%+v", out.Err)
	require.NotNil(t, out.Result.Confidence)
	assert.InDelta(t, 0.7, *out.Result.Confidence, 1e-12)
	assert.InDelta(t, 0.3, out.Result.SentimentScore, 1e-12)

	b, err := json.Marshal(out.Result)
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(b, &shape))
	assert.InDelta(t, 0.7, shape["confidence"], 1e-12)
}

func TestRunIsReproducibleWithSeed(t *testing.T) {
	sources := []domsvc.NewsSource{fakeSource{name: "a", articles: []models.Article{art("one", "x")}}}
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0.02}}
	p := newTestPipeline(sources, mapScorer{"one d": 0.5}, f)

	a := p.Run(context.Background(), "MSFT", RunOptions{})
	b := p.Run(context.Background(), "MSFT", RunOptions{})
	require.True(t, a.OK())
	require.True(t, b.OK())
	assert.Equal(t, a.Result.MonteCarlo, b.Result.MonteCarlo)
}

func TestRunDegradesOnSourceFailures(t *testing.T) {
	sources := []domsvc.NewsSource{
		fakeSource{name: "ok", articles: []models.Article{art("one", "x")}},
		fakeSource{name: "broken", err: errors.New("502 from upstream")},
		fakeSource{name: "slow", articles: []models.Article{art("late", "x")}, delay: time.Second},
		fakeSource{name: "stuck", articles: []models.Article{art("stuck", "x")}, delay: 300 * time.Millisecond, ignore: true},
	}
	m := newFakeMetrics()
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0}}

	out := newTestPipeline(sources, mapScorer{"one d": -0.4}, f, WithPipelineMetrics(m)).Run(context.Background(), "MSFT", RunOptions{})
	require.True(t, out.OK())
	assert.Equal(t, 1, out.Result.News.Total)
	assert.InDelta(t, -0.4, out.Result.SentimentScore, 1e-12)
	assert.Equal(t, models.SignalHold, out.Result.Signal)
	assert.Equal(t, 3, m.errorCount(models.KindSourceFetch))
}

func TestRunSkipsUnscorableArticles(t *testing.T) {
	sources := []domsvc.NewsSource{fakeSource{name: "a", articles: []models.Article{art("one", "x"), art("garbled", "x")}}}
	m := newFakeMetrics()
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0.01}}

	out := newTestPipeline(sources, mapScorer{"one d": 0.6}, f, WithPipelineMetrics(m)).Run(context.Background(), "MSFT", RunOptions{})
	require.True(t, out.OK())
	assert.InDelta(t, 0.6, out.Result.SentimentScore, 1e-12)
	assert.Equal(t, 1, out.Result.News.Skipped)
	assert.Equal(t, 1, m.errorCount(models.KindScoring))
}

func TestRunWithoutArticles(t *testing.T) {
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: -0.05}}
	out := newTestPipeline(nil, mapScorer{}, f).Run(context.Background(), "MSFT", RunOptions{})
	require.True(t, out.OK())
	assert.Equal(t, 0.0, out.Result.SentimentScore)
	assert.Equal(t, models.SignalSell, out.Result.Signal)
	assert.Equal(t, "Downtrend", out.Result.Forecast.Trend)
	assert.Nil(t, out.Result.News.Sources)
}

func TestRunForecastUnavailable(t *testing.T) {
	sources := []domsvc.NewsSource{fakeSource{name: "a", articles: []models.Article{art("one", "x")}}}
	m := newFakeMetrics()
	f := &fakeForecaster{err: errors.New("model service down")}

	out := newTestPipeline(sources, mapScorer{"one d": 0.5}, f, WithPipelineMetrics(m)).Run(context.Background(), "TSLA", RunOptions{})
	require.False(t, out.OK())
	assert.Nil(t, out.Result)
	assert.Equal(t, models.KindForecastUnavailable, out.Err.Kind)
	assert.Equal(t, "TSLA", out.Err.Ticker)
	assert.False(t, out.Err.Retryable())
	assert.Equal(t, 1, m.errorCount(models.KindForecastUnavailable))

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticker":"TSLA","kind":"ForecastUnavailable","error":"model service down"}`, string(b))
}

func TestRunForecasterPanic(t *testing.T) {
	out := newTestPipeline(nil, mapScorer{}, &fakeForecaster{panic: true}).Run(context.Background(), "TSLA", RunOptions{})
	require.False(t, out.OK())
	assert.Equal(t, models.KindForecastUnavailable, out.Err.Kind)
}

func TestRunRejectsInvalidForecast(t *testing.T) {
	tests := []struct {
		name     string
		forecast models.ForecastInput
	}{
		{"negative price", models.ForecastInput{CurrentPrice: -5, ExpectedReturn: 0.01}},
		{"zero price", models.ForecastInput{CurrentPrice: 0, ExpectedReturn: 0.01}},
		{"nan price", models.ForecastInput{CurrentPrice: math.NaN(), ExpectedReturn: 0.01}},
		{"infinite price", models.ForecastInput{CurrentPrice: math.Inf(1), ExpectedReturn: 0.01}},
		{"nan return", models.ForecastInput{CurrentPrice: 100, ExpectedReturn: math.NaN()}},
		{"infinite return", models.ForecastInput{CurrentPrice: 100, ExpectedReturn: math.Inf(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMetrics()
			f := &fakeForecaster{f: tt.forecast}
			out := newTestPipeline(nil, mapScorer{}, f, WithPipelineMetrics(m)).Run(context.Background(), "TSLA", RunOptions{})
			require.False(t, out.OK())
			assert.Equal(t, models.KindForecastUnavailable, out.Err.Kind)
			assert.ErrorContains(t, out.Err, "invalid forecast")
			assert.Equal(t, 1, m.errorCount(models.KindForecastUnavailable))
			assert.Zero(t, m.errorCount(models.KindSimulationNumeric))
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0.01}}

	out := newTestPipeline(nil, mapScorer{}, f).Run(ctx, "TSLA", RunOptions{})
	require.False(t, out.OK())
	assert.Equal(t, models.KindCanceled, out.Err.Kind)
}

type cancelOnScore struct {
	cancel context.CancelFunc
}

func (c cancelOnScore) Score(ctx context.Context, _ string) (float64, error) {
	c.cancel()
	return 0, ctx.Err()
}

func TestRunCanceledWhileScoring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sources := []domsvc.NewsSource{fakeSource{name: "a", articles: []models.Article{art("one", "x"), art("two", "x"), art("three", "x")}}}
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0.01}}
	m := newFakeMetrics()

	out := newTestPipeline(sources, cancelOnScore{cancel: cancel}, f, WithPipelineMetrics(m)).Run(ctx, "AMD", RunOptions{})
	require.False(t, out.OK())
	assert.Equal(t, models.KindCanceled, out.Err.Kind)
	assert.Zero(t, m.errorCount(models.KindScoring))
	assert.Equal(t, 1, m.errorCount(models.KindCanceled))
}

func TestRunStrategies(t *testing.T) {
	sources := []domsvc.NewsSource{fakeSource{name: "a", articles: []models.Article{art("one", "x")}}}
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: -0.2}}
	p := newTestPipeline(sources, mapScorer{"one d": 0.2}, f)

	out := p.Run(context.Background(), "AMD", RunOptions{Strategy: "sentiment", Simulations: 200, Days: 5})
	require.True(t, out.OK())
	assert.Equal(t, "sentiment", out.Result.Strategy)
	assert.Equal(t, models.SignalBuy, out.Result.Signal)
	assert.InDelta(t, 0.02, out.Result.Risk.Volatility, 1e-12)

	out = p.Run(context.Background(), "AMD", RunOptions{})
	require.True(t, out.OK())
	assert.Equal(t, models.SignalSell, out.Result.Signal)

	out = p.Run(context.Background(), "AMD", RunOptions{Strategy: "momentum"})
	require.False(t, out.OK())
	assert.Equal(t, models.KindInvalidRequest, out.Err.Kind)
}

func TestRunRecoversPanics(t *testing.T) {
	m := newFakeMetrics()
	m.panicOn = "signal"
	f := &fakeForecaster{f: models.ForecastInput{CurrentPrice: 100, ExpectedReturn: 0.01}}

	out := newTestPipeline(nil, mapScorer{}, f, WithPipelineMetrics(m)).Run(context.Background(), "AMD", RunOptions{})
	require.False(t, out.OK())
	assert.Equal(t, models.KindInternal, out.Err.Kind)
	assert.Equal(t, 1, m.errorCount(models.KindInternal))
}
