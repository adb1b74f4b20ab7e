package metrics

import (
	"StockPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	signals      *prometheus.CounterVec
	lastSignal   *prometheus.GaugeVec
	sentiment    *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_messages_sent_total",
				Help: "Total number of results sent to a backend",
			},
			[]string{"backend", "ticker"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_signals_total",
				Help: "Signals produced by ticker and direction",
			},
			[]string{"ticker", "signal"},
		),
		lastSignal: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpulse_last_signal",
				Help: "Last signal per ticker: 1 BUY, 0 HOLD, -1 SELL",
			},
			[]string{"ticker"},
		),
		sentiment: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockpulse_last_sentiment",
				Help: "Last aggregated sentiment score per ticker",
			},
			[]string{"ticker"},
		),
	}
}

// RecordMessageSent records a result sent to a backend.
func (r *Recorder) RecordMessageSent(backend, ticker string) {
	r.messagesSent.WithLabelValues(backend, ticker).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSignal(ticker string, s models.Signal) {
	r.signals.WithLabelValues(ticker, string(s)).Inc()
	r.lastSignal.WithLabelValues(ticker).Set(signalValue(s))
}

func (r *Recorder) RecordSentiment(ticker string, score float64) {
	r.sentiment.WithLabelValues(ticker).Set(score)
}

func signalValue(s models.Signal) float64 {
	switch s {
	case models.SignalBuy:
		return 1
	case models.SignalSell:
		return -1
	default:
		return 0
	}
}
