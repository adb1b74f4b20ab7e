//go:build wireinject
// +build wireinject

package di

import (
	"StockPulse/pkg/config"
	"StockPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideTracing,
		ProvideMetrics,

		// Analysis collaborators
		ProvideHTTPClient,
		ProvideNewsSources,
		ProvideScorer,
		ProvideForecaster,
		ProvideAnalysisPipeline,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideRedisClient,
		ProvideCacheBackend,
		ProvideAnalysisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideAnalysisStore,
		ProvideResultPublisher,

		// Use cases
		ProvideResultProcessor,
		ProvideResultPipeline,
		ProvideHub,
		ProvideAnalysisService,
		ProvideKafkaConsumer,
		ProvideRequestsHandler,
		ProvideRequestQueue,
		ProvideScheduler,

		// Application server
		ProvideRateLimiter,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
