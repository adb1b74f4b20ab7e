package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
	icache "StockPulse/internal/service/cache"
	pkgcache "StockPulse/pkg/cache"
)

func newTestService(t *testing.T, runner *fakeRunner, opts ...ServiceOption) (*AnalysisService, *fakeSink, *fakeSink) {
	t.Helper()
	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	sink, hub := &fakeSink{}, &fakeSink{}
	base := []ServiceOption{
		WithCache(icache.NewAnalysisCache(mem, time.Minute)),
		WithSink(sink),
		WithBroadcaster(hub),
	}
	return NewAnalysisService(runner, newFakeMetrics(), append(base, opts...)...), sink, hub
}

func TestAnalysisService_CachesAndFansOut(t *testing.T) {
	runner := newFakeRunner()
	svc, sink, hub := newTestService(t, runner)
	ctx := context.Background()

	first := svc.Analyze(ctx, AnalyzeRequest{Ticker: " aapl "})
	require.True(t, first.OK())
	assert.Equal(t, "AAPL", first.Result.Ticker)
	assert.Equal(t, "return", first.Result.Strategy)

	second := svc.Analyze(ctx, AnalyzeRequest{Ticker: "AAPL", RunOptions: RunOptions{Strategy: "RETURN"}})
	require.True(t, second.OK())
	assert.Equal(t, first.Result.ID, second.Result.ID)
	assert.Equal(t, 1, runner.runCount("AAPL"))
	assert.Equal(t, 1, sink.count(), "cache hits are not re-published")
	assert.Equal(t, 1, hub.count())

	refreshed := svc.Analyze(ctx, AnalyzeRequest{Ticker: "AAPL", Refresh: true})
	require.True(t, refreshed.OK())
	assert.NotEqual(t, first.Result.ID, refreshed.Result.ID)
	assert.Equal(t, 2, runner.runCount("AAPL"))

	again := svc.Analyze(ctx, AnalyzeRequest{Ticker: "AAPL"})
	assert.Equal(t, refreshed.Result.ID, again.Result.ID)
}

func TestAnalysisService_FailuresAreNotCached(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["TSLA"] = models.KindForecastUnavailable
	svc, sink, hub := newTestService(t, runner)

	for range 2 {
		out := svc.Analyze(context.Background(), AnalyzeRequest{Ticker: "TSLA"})
		require.NotNil(t, out.Err)
		assert.Equal(t, models.KindForecastUnavailable, out.Err.Kind)
	}
	assert.Equal(t, 2, runner.runCount("TSLA"))
	assert.Zero(t, sink.count())
	assert.Zero(t, hub.count())
}

func TestAnalysisService_EmptyTicker(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeRunner())
	out := svc.Analyze(context.Background(), AnalyzeRequest{Ticker: "  "})
	require.NotNil(t, out.Err)
	assert.Equal(t, models.KindInvalidRequest, out.Err.Kind)
}

func TestAnalysisService_SinkErrorDoesNotFail(t *testing.T) {
	runner := newFakeRunner()
	svc, sink, _ := newTestService(t, runner)
	sink.err = errors.New("sink down")

	out := svc.Analyze(context.Background(), AnalyzeRequest{Ticker: "MSFT"})
	assert.True(t, out.OK())
}

func TestAnalysisService_SharesConcurrentRuns(t *testing.T) {
	runner := newFakeRunner()
	runner.gate = make(chan struct{})
	svc, _, _ := newTestService(t, runner)

	var wg sync.WaitGroup
	outs := make([]models.AnalysisOutcome, 5)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = svc.Analyze(context.Background(), AnalyzeRequest{Ticker: "NVDA"})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	assert.Equal(t, 1, runner.runCount("NVDA"))
	for _, o := range outs {
		require.True(t, o.OK())
		assert.Equal(t, outs[0].Result.ID, o.Result.ID)
	}
}

func TestAnalysisService_BatchKeepsOrder(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["BAD"] = models.KindSimulationNumeric
	svc, _, _ := newTestService(t, runner, WithBatchConcurrency(2))

	tickers := []string{"AAPL", "BAD", "msft", "GOOG"}
	outs := svc.AnalyzeBatch(context.Background(), tickers, RunOptions{Strategy: "sentiment", Days: 10}, false)
	require.Len(t, outs, 4)
	assert.Equal(t, "AAPL", outs[0].Ticker())
	assert.Equal(t, models.KindSimulationNumeric, outs[1].Err.Kind)
	assert.Equal(t, "MSFT", outs[2].Ticker())
	assert.Equal(t, "GOOG", outs[3].Ticker())
	assert.Equal(t, "sentiment", outs[3].Result.Strategy)
	assert.Equal(t, 10, runner.last.Days)
}

func TestAnalysisService_History(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeRunner())
	_, err := svc.History(context.Background(), "AAPL", 10)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	assert.NoError(t, svc.Health(context.Background()))

	store := &fakeSink{history: []*models.AnalysisResult{{Ticker: "AAPL"}, {Ticker: "AAPL"}}}
	svc, _, _ = newTestService(t, newFakeRunner(), WithHistory(store))
	rs, err := svc.History(context.Background(), "aapl", 1)
	require.NoError(t, err)
	assert.Len(t, rs, 1)

	store.err = errors.New("clickhouse down")
	_, err = svc.History(context.Background(), "AAPL", 1)
	assert.ErrorContains(t, err, "clickhouse down")
	assert.Error(t, svc.Health(context.Background()))
}

func TestAnalysisService_Invalidate(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestService(t, runner)
	ctx := context.Background()

	svc.Analyze(ctx, AnalyzeRequest{Ticker: "AAPL"})
	require.NoError(t, svc.Invalidate(ctx, "aapl"))
	svc.Analyze(ctx, AnalyzeRequest{Ticker: "AAPL"})
	assert.Equal(t, 2, runner.runCount("AAPL"))
}

func TestAnalysisService_RejectsBadTicker(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestService(t, runner)
	out := svc.Analyze(context.Background(), AnalyzeRequest{Ticker: "DROP TABLE"})
	require.NotNil(t, out.Err)
	assert.Equal(t, models.KindInvalidRequest, out.Err.Kind)
	assert.Zero(t, runner.runCount("DROP TABLE"))
}
