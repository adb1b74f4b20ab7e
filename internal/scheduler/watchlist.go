package scheduler

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/usecase"
	applogger "StockPulse/pkg/logger"
)

// BatchAnalyzer is satisfied by usecase.AnalysisService.
type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, tickers []string, ro usecase.RunOptions, refresh bool) []models.AnalysisOutcome
}

// WatchlistJob re-analyses a fixed set of tickers, bypassing the cache so
// every run refreshes it and publishes new results.
type WatchlistJob struct {
	analyzer BatchAnalyzer
	tickers  []string
	strategy string
	timeout  time.Duration
	log      *applogger.Logger
}

func NewWatchlistJob(analyzer BatchAnalyzer, tickers []string, strategy string, timeout time.Duration, log *applogger.Logger) *WatchlistJob {
	if log == nil {
		log = applogger.Nop()
	}
	return &WatchlistJob{
		analyzer: analyzer,
		tickers:  tickers,
		strategy: strategy,
		timeout:  timeout,
		log:      log,
	}
}

func (j *WatchlistJob) Name() string { return "watchlist_refresh" }

// Run fails only when every ticker failed.
func (j *WatchlistJob) Run(ctx context.Context) error {
	if len(j.tickers) == 0 {
		return nil
	}
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	outs := j.analyzer.AnalyzeBatch(ctx, j.tickers, usecase.RunOptions{Strategy: j.strategy}, true)
	failed := 0
	for _, o := range outs {
		if o.Err == nil {
			continue
		}
		failed++
		j.log.Warn("watchlist ticker failed",
			applogger.String("ticker", o.Err.Ticker),
			applogger.String("kind", string(o.Err.Kind)),
			applogger.String("message", o.Err.Message),
		)
	}
	j.log.Info("watchlist refreshed",
		applogger.Int("tickers", len(outs)),
		applogger.Int("failed", failed),
	)
	if failed == len(outs) {
		return fmt.Errorf("watchlist: all %d tickers failed", failed)
	}
	return nil
}
