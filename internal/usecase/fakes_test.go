package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
)

type fakeSource struct {
	name     string
	articles []models.Article
	err      error
	delay    time.Duration
	ignore   bool // ignores ctx while delaying
}

func (s fakeSource) Name() string { return s.name }

func (s fakeSource) Fetch(ctx context.Context, _ string) ([]models.Article, error) {
	if s.delay > 0 {
		if s.ignore {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return s.articles, s.err
}

// confidentScorer maps text to a score and confidence pair.
type confidentScorer map[string][2]float64

func (c confidentScorer) Score(ctx context.Context, text string) (float64, error) {
	s, _, err := c.ScoreWithConfidence(ctx, text)
	return s, err
}

func (c confidentScorer) ScoreWithConfidence(_ context.Context, text string) (float64, float64, error) {
	v, ok := c[text]
	if !ok {
		return 0, 0, errors.New("model rejected text")
	}
	return v[0], v[1], nil
}

// mapScorer scores by exact text; unknown text fails.
type mapScorer map[string]float64

func (m mapScorer) Score(_ context.Context, text string) (float64, error) {
	v, ok := m[text]
	if !ok {
		return 0, errors.New("model rejected text")
	}
	return v, nil
}

type fakeForecaster struct {
	f     models.ForecastInput
	err   error
	panic bool
	calls int
	mu    sync.Mutex
}

func (f *fakeForecaster) Predict(ctx context.Context, _ string) (models.ForecastInput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("model crashed")
	}
	if err := ctx.Err(); err != nil {
		return models.ForecastInput{}, err
	}
	return f.f, f.err
}

type unitWeighter struct{}

func (unitWeighter) Weight(models.Article, time.Time) float64 { return 1 }

type fakeMetrics struct {
	mu         sync.Mutex
	errors     map[string]int
	signals    map[string]models.Signal
	sentiments map[string]float64
	sent       map[string]int
	panicOn    string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		errors:     map[string]int{},
		signals:    map[string]models.Signal{},
		sentiments: map[string]float64{},
		sent:       map[string]int{},
	}
}

func (m *fakeMetrics) RecordMessageSent(backend, ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend+"/"+ticker]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) RecordSignal(ticker string, s models.Signal) {
	if m.panicOn == "signal" {
		panic("metrics backend exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[ticker] = s
}

func (m *fakeMetrics) RecordSentiment(ticker string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentiments[ticker] = v
}

func (m *fakeMetrics) errorCount(kind models.ErrorKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[string(kind)]
}

func art(title, source string) models.Article {
	return models.Article{Title: title, Description: "d", Source: source}
}

// fakeSink implements ResultPublisher, AnalysisStore, ResultSink and Broadcaster.
type fakeSink struct {
	mu      sync.Mutex
	err     error
	stored  []*models.AnalysisResult
	batches int
	closed  int
	history []*models.AnalysisResult
}

func (f *fakeSink) add(rs ...*models.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, rs...)
	return nil
}

func (f *fakeSink) Publish(_ context.Context, r *models.AnalysisResult) error { return f.add(r) }
func (f *fakeSink) Store(_ context.Context, r *models.AnalysisResult) error { return f.add(r) }
func (f *fakeSink) Process(_ context.Context, r *models.AnalysisResult) error { return f.add(r) }

func (f *fakeSink) PublishBatch(_ context.Context, rs []*models.AnalysisResult) error {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	return f.add(rs...)
}

func (f *fakeSink) StoreBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	return f.PublishBatch(ctx, rs)
}

func (f *fakeSink) Broadcast(r *models.AnalysisResult) { _ = f.add(r) }

func (f *fakeSink) History(_ context.Context, _ string, limit int) ([]*models.AnalysisResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeSink) Health(context.Context) error { return f.err }

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

// fakeRunner counts runs and returns a canned outcome per ticker.
type fakeRunner struct {
	mu   sync.Mutex
	runs map[string]int
	fail map[string]models.ErrorKind
	gate chan struct{}
	last RunOptions
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{runs: map[string]int{}, fail: map[string]models.ErrorKind{}}
}

func (f *fakeRunner) DefaultStrategy() string { return "return" }

func (f *fakeRunner) Run(ctx context.Context, ticker string, ro RunOptions) models.AnalysisOutcome {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.runs[ticker]++
	f.last = ro
	kind, failing := f.fail[ticker]
	n := f.runs[ticker]
	f.mu.Unlock()
	if failing {
		return models.Failure(models.NewAnalysisError(ticker, kind, errors.New("boom")))
	}
	return models.Success(&models.AnalysisResult{
		ID:       ticker + "-" + string(rune('0'+n)),
		Ticker:   ticker,
		Strategy: ro.Strategy,
		Signal:   models.SignalHold,
		Risk:     models.RiskMetrics{Level: models.RiskLow},
	})
}

func (f *fakeRunner) runCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[ticker]
}
