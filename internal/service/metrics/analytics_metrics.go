// Package metrics holds per-endpoint collectors for the analysis API.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalysisLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockpulse",
			Subsystem: "analysis",
			Name:      "latency_seconds",
			Help:      "Latency of analysis endpoints",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"endpoint"},
	)

	AnalysisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockpulse",
			Subsystem: "analysis",
			Name:      "errors_total",
			Help:      "Errors by analysis endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)
)

// Register registers the collectors on reg once. A nil reg means the default registry.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(AnalysisLatency, AnalysisErrors)
	})
}

// Observe records one endpoint call. An empty kind means success.
func Observe(endpoint string, start time.Time, kind string) {
	AnalysisLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if kind != "" {
		AnalysisErrors.WithLabelValues(endpoint, kind).Inc()
	}
}
