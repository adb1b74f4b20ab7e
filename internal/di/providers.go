package di

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/internal/handler/api"
	"StockPulse/internal/handler/ws"
	mid "StockPulse/internal/middleware"
	internalrepo "StockPulse/internal/repository"
	"StockPulse/internal/scheduler"
	icache "StockPulse/internal/service/cache"
	"StockPulse/internal/service/finnhub"
	"StockPulse/internal/service/news"
	"StockPulse/internal/service/ratelimit"
	"StockPulse/internal/services/analytics"
	"StockPulse/internal/services/lexicon"
	"StockPulse/internal/services/montecarlo"
	"StockPulse/internal/services/sentiment"
	"StockPulse/internal/services/signal"
	"StockPulse/internal/services/static"
	"StockPulse/internal/services/weighting"
	"StockPulse/internal/usecase"
	pkgcache "StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
	"StockPulse/pkg/queue"
	"StockPulse/pkg/server"
	"StockPulse/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideTracing installs the global tracer and returns its flush function.
func ProvideTracing(cfg *config.Config) (server.ShutdownFunc, error) {
	if err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	}); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return tracing.Shutdown, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideHTTPClient creates the client shared by news sources.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Pipeline.SourceTimeout))
}

// ProvideNewsSources builds every enabled source in a fixed order; articles
// are concatenated in this order.
func ProvideNewsSources(cfg *config.Config, client *xhttp.Client) []domsvc.NewsSource {
	s := cfg.Sources
	opts := []news.Option{news.WithClient(client), news.WithMaxArticles(s.MaxArticles)}

	var sources []domsvc.NewsSource
	if s.AlphaVantage.Enabled {
		sources = append(sources, news.NewAlphaVantage(s.AlphaVantage.BaseURL, s.AlphaVantage.APIKey, opts...))
	}
	if s.Finnhub.Enabled {
		sources = append(sources, finnhub.New(s.Finnhub.APIKey, s.Finnhub.BaseURL,
			finnhub.WithHTTPClient(client),
			finnhub.WithLookback(s.Finnhub.Lookback),
			finnhub.WithMaxArticles(s.MaxArticles),
		))
	}
	if s.Guardian.Enabled {
		sources = append(sources, news.NewGuardian(s.Guardian.BaseURL, s.Guardian.APIKey, opts...))
	}
	for _, f := range s.Feeds {
		sources = append(sources, news.NewFeed(f.Name, f.URL, opts...))
	}
	for _, p := range s.Pages {
		sources = append(sources, news.NewWebPage(p, opts...))
	}
	return sources
}

// ProvideScorer selects the sentiment scorer named by models.scorer.
func ProvideScorer(cfg *config.Config) (domsvc.SentimentScorer, error) {
	switch cfg.Models.Scorer {
	case "finbert":
		return analytics.NewFinBERTScorer(analytics.NewHTTPServiceBaseFromConfig(cfg), cfg.Models.MaxWords), nil
	case "lexicon":
		return lexicon.New(), nil
	case "static":
		return static.Scorer{Value: cfg.Models.Static.Sentiment}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", cfg.Models.Scorer)
	}
}

// ProvideForecaster selects the forecast provider named by models.forecaster.
func ProvideForecaster(cfg *config.Config) (domsvc.ForecastProvider, error) {
	switch cfg.Models.Forecaster {
	case "lstm":
		return analytics.NewLSTMForecaster(analytics.NewHTTPServiceBaseFromConfig(cfg)), nil
	case "static":
		return static.Forecaster{Price: cfg.Models.Static.Price, ExpectedReturn: cfg.Models.Static.ExpectedReturn}, nil
	default:
		return nil, fmt.Errorf("unknown forecaster %q", cfg.Models.Forecaster)
	}
}

// ProvideAnalysisPipeline assembles the per-ticker pipeline.
func ProvideAnalysisPipeline(
	cfg *config.Config,
	sources []domsvc.NewsSource,
	scorer domsvc.SentimentScorer,
	forecaster domsvc.ForecastProvider,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.AnalysisPipeline, error) {
	strategy, err := signal.ByName(cfg.Pipeline.Strategy)
	if err != nil {
		return nil, err
	}
	sim := cfg.Simulation
	simOpts := []montecarlo.Option{
		montecarlo.WithDefaults(sim.Simulations, sim.Days),
		montecarlo.WithWorkers(sim.Workers),
		montecarlo.WithBatchSize(sim.BatchSize),
	}
	if sim.Seed != 0 {
		simOpts = append(simOpts, montecarlo.WithSeed(sim.Seed))
	}
	return usecase.NewAnalysisPipeline(sources, scorer, forecaster,
		usecase.WithStrategy(strategy),
		usecase.WithWeighter(weighting.NewEngine(
			weighting.WithDecayHours(cfg.Weighting.DecayHours),
			weighting.WithSourceWeights(cfg.Weighting.SourceWeights),
			weighting.WithKeywords(cfg.Weighting.Keywords),
		)),
		usecase.WithAggregator(sentiment.NewAggregator(
			sentiment.WithWorkers(cfg.Pipeline.ScoringWorkers),
			sentiment.WithLogger(l),
		)),
		usecase.WithSimulator(montecarlo.NewSimulator(simOpts...)),
		usecase.WithTimeouts(cfg.Pipeline.SourceTimeout, cfg.Pipeline.ForecastTimeout),
		usecase.WithPipelineMetrics(m),
		usecase.WithPipelineLogger(l),
	), nil
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, err
	}
	l.Info("redis connected", applogger.String("host", cfg.Redis.Host), applogger.Int("port", cfg.Redis.Port))
	return rc, nil
}

// ProvideRedisClient exposes the cache's client so the request queue shares
// its connection pool.
func ProvideRedisClient(rc *pkgcache.RedisCache) *redis.Client {
	if rc == nil {
		return nil
	}
	return rc.Client()
}

// ProvideCacheBackend returns an in-memory cache, fronting Redis when enabled.
func ProvideCacheBackend(cfg *config.Config, rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Redis.MemorySize),
			pkgcache.WithMemoryTTL(cfg.Pipeline.CacheTTL),
			pkgcache.WithMemoryCleanup(cfg.Redis.CleanupInterval),
		)
	}
	return pkgcache.NewLayeredCache(rc,
		pkgcache.WithLayeredMemorySize(cfg.Redis.MemorySize),
		pkgcache.WithLayeredMemoryTTL(cfg.Pipeline.CacheTTL),
	)
}

// ProvideAnalysisCache wraps the backend with analysis keys and TTL.
func ProvideAnalysisCache(backend pkgcache.Service, cfg *config.Config) *icache.AnalysisCache {
	return icache.NewAnalysisCache(backend, cfg.Pipeline.CacheTTL)
}

// ProvideClickHouseClient connects to ClickHouse and creates the history
// table. It returns nil when the clickhouse backend is not selected.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != usecase.BackendClickHouse {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.AnalysisSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideAnalysisStore returns the ClickHouse history store, or nil without a client.
func ProvideAnalysisStore(ch *pkgch.Client, cfg *config.Config) repository.AnalysisStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseAnalysisStore(ch.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideResultPublisher publishes results to the results topic, or nil without a producer.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.Topic)
}

// ProvideResultProcessor routes results to the configured backend.
func ProvideResultProcessor(
	pub repository.ResultPublisher,
	store repository.AnalysisStore,
	m repository.Metrics,
	cfg *config.Config,
) (*usecase.ResultProcessor, error) {
	switch {
	case cfg.Backend.Type == usecase.BackendKafka && pub == nil:
		return nil, fmt.Errorf("backend kafka needs a producer")
	case cfg.Backend.Type == usecase.BackendClickHouse && store == nil:
		return nil, fmt.Errorf("backend clickhouse needs a store")
	}
	return usecase.NewResultProcessor(pub, store, m, cfg.Backend.Type), nil
}

// ProvideResultPipeline sits between the analysis service and the processor.
func ProvideResultPipeline(proc *usecase.ResultProcessor, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *mid.ResultPipeline {
	return mid.NewResultPipeline(proc, m,
		mid.WithMinInterval(cfg.Pipeline.MaxPerTicker),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithBatch(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
		mid.WithRetryMax(cfg.Pipeline.RetryMax),
		mid.WithLogger(l),
	)
}

// ProvideHub creates the WebSocket broadcast hub.
func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l,
		ws.WithWriteWait(cfg.WebSocket.WriteTimeout),
		ws.WithPingInterval(cfg.WebSocket.PingInterval),
		ws.WithSendBuffer(cfg.WebSocket.SendBuffer),
	)
}

// ProvideAnalysisService fronts the pipeline with caching and result fan-out.
func ProvideAnalysisService(
	pipeline *usecase.AnalysisPipeline,
	cache *icache.AnalysisCache,
	results *mid.ResultPipeline,
	hub *ws.Hub,
	store repository.AnalysisStore,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.AnalysisService {
	opts := []usecase.ServiceOption{
		usecase.WithCache(cache),
		usecase.WithSink(results),
		usecase.WithBroadcaster(hub),
		usecase.WithServiceLogger(l),
		usecase.WithBatchConcurrency(cfg.Pipeline.BatchConcurrency),
	}
	if store != nil {
		opts = append(opts, usecase.WithHistory(store))
	}
	return usecase.NewAnalysisService(pipeline, m, opts...)
}

// ProvideKafkaConsumer creates the request consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TracingHook{}))
	return consumer, nil
}

// ProvideRequestsHandler handles the analysis request topic.
func ProvideRequestsHandler(svc *usecase.AnalysisService, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.RequestsHandler {
	return usecase.NewRequestsHandler(cfg.Kafka.RequestsTopic, svc, m, l)
}

// ProvideRequestQueue creates the Redis request queue, or nil when disabled.
func ProvideRequestQueue(cfg *config.Config, client *redis.Client, rh *usecase.RequestsHandler, l *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, fmt.Errorf("queue needs redis")
	}
	mode, err := queue.ParseMode(cfg.Queue.Mode)
	if err != nil {
		return nil, err
	}
	q := queue.NewRedisQueue(l, &queue.Config{
		Workers:       cfg.Queue.Workers,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    cfg.Queue.RetryDelay,
		MaxRetryDelay: cfg.Queue.MaxRetryDelay,
		RetryInterval: cfg.Queue.RetryInterval,
	}, client, queue.WithMode(mode), queue.WithKeyPrefix(cfg.Queue.Prefix))
	q.RegisterJob(usecase.NewRequestsJob(rh))
	return q, nil
}

// ProvideRateLimiter returns the per-client limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideHTTPServer mounts the API and WebSocket routes.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.AnalysisService,
	hub *ws.Hub,
	limiter *ratelimit.Limiter,
	q *queue.RedisQueue,
	scorer domsvc.SentimentScorer,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.AllowOrigins...),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if limiter != nil {
		opts = append(opts, xhttp.WithRateLimiter(limiter))
	}
	analysis := api.NewAnalysisEchoHandler(l, svc).WithScorer(scorer)
	if q != nil && cfg.Queue.Mode != "consumer-only" {
		analysis.WithRequestQueue(q)
	}
	handlers := []xhttp.Handler{analysis, hub}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideScheduler registers the watchlist job, or returns nil when disabled.
func ProvideScheduler(cfg *config.Config, svc *usecase.AnalysisService, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Watchlist.Enabled {
		return nil, nil
	}
	s := scheduler.New(l)
	job := scheduler.NewWatchlistJob(svc, cfg.Watchlist.Tickers, cfg.Pipeline.Strategy, 5*time.Minute, l)
	if err := s.AddJob(cfg.Watchlist.Schedule, job); err != nil {
		return nil, fmt.Errorf("watchlist schedule %q: %w", cfg.Watchlist.Schedule, err)
	}
	return s, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	flushTraces server.ShutdownFunc,
	httpServer *xhttp.Server,
	svc *usecase.AnalysisService,
	results *mid.ResultPipeline,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	kh *usecase.RequestsHandler,
	sched *scheduler.Scheduler,
	limiter *ratelimit.Limiter,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	cacheBackend pkgcache.Service,
) *server.App {
	// Aggregated error logs go to Kafka when a producer exists.
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}

	app := server.New(cfg, l, httpServer, svc, results, hub)
	if consumer != nil {
		app.WithConsumer(consumer, kh)
	}
	if sched != nil {
		app.WithScheduler(sched)
	}
	if limiter != nil {
		app.WithLimiter(limiter)
	}
	if q != nil {
		app.WithQueue(q)
	}
	if producer != nil {
		app.OnShutdown("kafka producer", func(context.Context) error { return producer.Close() })
	}
	if chClient != nil {
		app.OnShutdown("clickhouse", func(context.Context) error { return chClient.Close() })
	}
	app.OnShutdown("cache", func(context.Context) error { return cacheBackend.Close() })
	app.OnShutdown("tracing", flushTraces)
	return app
}
