package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

// ErrMalformedRequest marks request messages that can never succeed.
var ErrMalformedRequest = errors.New("malformed analysis request")

// Analyzer is the part of AnalysisService the request consumer needs.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) models.AnalysisOutcome
}

// RequestsHandler runs analyses requested over Kafka or the Redis queue. Results reach
// consumers through the regular result fan-out, not through this handler.
type RequestsHandler struct {
	topic    string
	analyzer Analyzer
	metrics  domrepo.Metrics
	logger   *applogger.Logger
}

func NewRequestsHandler(topic string, analyzer Analyzer, metrics domrepo.Metrics, logger *applogger.Logger) *RequestsHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &RequestsHandler{topic: topic, analyzer: analyzer, metrics: metrics, logger: logger}
}

func (h *RequestsHandler) Topic() string { return h.topic }

// incoming message schema: {ticker, strategy, simulations, days, refresh}
//
// Malformed messages are dead-lettered at once. Transient failures return an
// error so the consumer retries before dead-lettering. Deterministic failures
// are dropped.
func (h *RequestsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Ticker      string `json:"ticker"`
		Strategy    string `json:"strategy"`
		Simulations int    `json:"simulations"`
		Days        int    `json:"days"`
		Refresh     bool   `json:"refresh"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("%w: %v", ErrMalformedRequest, err))
	}
	if !xhttp.IsTicker(m.Ticker) {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("%w: invalid ticker %q", ErrMalformedRequest, m.Ticker))
	}

	start := time.Now()
	out := h.analyzer.Analyze(ctx, AnalyzeRequest{
		Ticker: m.Ticker,
		RunOptions: RunOptions{
			Strategy:    m.Strategy,
			Simulations: m.Simulations,
			Days:        m.Days,
		},
		Refresh: m.Refresh,
	})
	h.metrics.RecordLatency("consumer_analysis", time.Since(start).Seconds())

	if out.OK() {
		return nil
	}
	e := out.Err
	switch e.Kind {
	case models.KindForecastUnavailable, models.KindCanceled:
		h.metrics.RecordError("consumer_retry")
		return e
	default:
		h.metrics.RecordError("consumer_drop")
		h.logger.Warn("analysis request dropped",
			applogger.String("ticker", e.Ticker),
			applogger.String("kind", string(e.Kind)),
			applogger.String("error", e.Message),
		)
		return nil
	}
}

// AnalysisRequestType is the queue message type for analysis requests.
const AnalysisRequestType = "analysis.request"

// RequestsJob serves queued analysis requests with the same rules as the
// Kafka topic.
type RequestsJob struct {
	handler *RequestsHandler
}

func NewRequestsJob(h *RequestsHandler) *RequestsJob {
	return &RequestsJob{handler: h}
}

func (j *RequestsJob) Name() string { return "analysis_request" }
func (j *RequestsJob) Type() string { return AnalysisRequestType }

func (j *RequestsJob) Handle(ctx context.Context, payload json.RawMessage) error {
	err := j.handler.Handle(ctx, payload)
	if pkgkafka.IsPermanent(err) {
		return queue.Permanent(err)
	}
	return err
}

var (
	_ pkgkafka.MessageHandler = (*RequestsHandler)(nil)
	_ queue.Job               = (*RequestsJob)(nil)
)
