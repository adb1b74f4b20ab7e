package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	applogger "StockPulse/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, r *models.AnalysisResult) error
	ProcessBatch(ctx context.Context, rs []*models.AnalysisResult) error
}

type pending struct {
	result   *models.AnalysisResult
	attempts int
}

// ResultPipeline sits between the analysis service and the configured sink.
// It validates, throttles per ticker, and buffers results the sink rejected so
// a background loop can retry them in batches.
type ResultPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	minGap    time.Duration
	bufSize   int
	batchSize int
	interval  time.Duration
	retryMax  int
	now       func() time.Time

	mu       sync.Mutex
	buf      []pending
	lastSeen map[string]time.Time
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type PipelineOption func(*ResultPipeline)

// WithMinInterval sets the minimum gap between two results for one ticker.
// Zero disables throttling.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if d >= 0 {
			p.minGap = d
		}
	}
}

// WithBufferSize sets how many rejected results are kept for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets the flush batch size and interval.
func WithBatch(size int, interval time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithRetryMax sets how many flush attempts a buffered result gets.
func WithRetryMax(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.retryMax = n
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *ResultPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *applogger.Logger) PipelineOption {
	return func(p *ResultPipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewResultPipeline creates a new pipeline. A nil proc makes Process a no-op
// after validation.
func NewResultPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ResultPipeline {
	p := &ResultPipeline{
		proc:      proc,
		metrics:   metrics,
		logger:    applogger.Nop(),
		minGap:    time.Second,
		bufSize:   1000,
		batchSize: 50,
		interval:  2 * time.Second,
		retryMax:  3,
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches background flushing of buffered results.
func (p *ResultPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.proc == nil {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				p.Flush(context.WithoutCancel(ctx))
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Flush(ctx)
			}
		}
	}()
}

// Stop stops the background loop after one last flush.
func (p *ResultPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()
	close(stopCh)
	<-doneCh
}

// Process validates, throttles, and forwards a result downstream, buffering on errors.
func (p *ResultPipeline) Process(ctx context.Context, r *models.AnalysisResult) error {
	start := p.now()
	if err := ValidateResult(r); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.proc == nil {
		return nil
	}
	if !p.allow(r.Ticker, start) {
		p.metrics.RecordError("pipeline_throttle")
		p.logger.Debug("result throttled", applogger.String("ticker", r.Ticker))
		return nil
	}

	if err := p.proc.Process(ctx, r); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(pending{result: r, attempts: 1})
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// Flush pushes up to one batch of buffered results downstream. Failed results
// go back to the buffer until they run out of attempts.
func (p *ResultPipeline) Flush(ctx context.Context) int {
	p.mu.Lock()
	n := min(len(p.buf), p.batchSize)
	if n == 0 {
		p.mu.Unlock()
		return 0
	}
	batch := make([]pending, n)
	copy(batch, p.buf[:n])
	p.buf = append(p.buf[:0], p.buf[n:]...)
	p.mu.Unlock()

	results := make([]*models.AnalysisResult, n)
	for i, e := range batch {
		results[i] = e.result
	}

	if err := p.proc.ProcessBatch(ctx, results); err != nil {
		p.metrics.RecordError("pipeline_flush")
		p.logger.Warn("buffered flush failed",
			applogger.Int("size", n),
			applogger.Error(err),
		)
		for _, e := range batch {
			e.attempts++
			if e.attempts > p.retryMax {
				p.metrics.RecordError("pipeline_retry_exhausted")
				continue
			}
			p.enqueue(e)
		}
		return 0
	}
	p.metrics.RecordLatency("pipeline_buffer_depth", float64(p.Pending()))
	return n
}

// Pending reports the number of buffered results.
func (p *ResultPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

func (p *ResultPipeline) enqueue(e pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) >= p.bufSize {
		p.metrics.RecordError("pipeline_buffer_full")
		return
	}
	p.buf = append(p.buf, e)
}

func (p *ResultPipeline) allow(ticker string, now time.Time) bool {
	if p.minGap <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[ticker]
	if ok && now.Sub(last) < p.minGap {
		return false
	}
	p.lastSeen[ticker] = now
	return true
}

// ValidateResult rejects results no sink should receive.
func ValidateResult(r *models.AnalysisResult) error {
	if r == nil {
		return fmt.Errorf("result nil")
	}
	if r.Ticker == "" {
		return fmt.Errorf("ticker empty")
	}
	switch r.Signal {
	case models.SignalBuy, models.SignalHold, models.SignalSell:
	default:
		return fmt.Errorf("signal invalid: %q", r.Signal)
	}
	switch r.Risk.Level {
	case models.RiskLow, models.RiskModerate, models.RiskHigh:
	default:
		return fmt.Errorf("risk level invalid: %q", r.Risk.Level)
	}
	for name, v := range map[string]float64{
		"sentiment_score":    r.SentimentScore,
		"predicted_price":    r.Forecast.PredictedPrice,
		"expected_return":    r.Forecast.ExpectedReturn,
		"volatility":         r.Risk.Volatility,
		"var_95":             r.Risk.VaR95,
		"expected_price_30d": r.MonteCarlo.ExpectedPrice30d,
		"worst_case_5pct":    r.MonteCarlo.WorstCase5pct,
		"best_case_95pct":    r.MonteCarlo.BestCase95pct,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s not finite", name)
		}
	}
	if c := r.Confidence; c != nil && (math.IsNaN(*c) || *c < 0 || *c > 1) {
		return fmt.Errorf("confidence %v outside [0, 1]", *c)
	}
	return nil
}
