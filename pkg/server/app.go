package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockPulse/internal/handler/ws"
	mid "StockPulse/internal/middleware"
	"StockPulse/internal/scheduler"
	"StockPulse/internal/service/ratelimit"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(ctx context.Context) error

type closer struct {
	name string
	fn   ShutdownFunc
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	svc        *usecase.AnalysisService
	results    *mid.ResultPipeline
	hub        *ws.Hub
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	scheduler  *scheduler.Scheduler
	limiter    *ratelimit.Limiter
	queue      *queue.RedisQueue
	closers    []closer
}

// New creates a new App instance with its required dependencies. Optional
// parts are attached with the With* methods.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	httpServer *xhttp.Server,
	svc *usecase.AnalysisService,
	results *mid.ResultPipeline,
	hub *ws.Hub,
) *App {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		svc:        svc,
		results:    results,
		hub:        hub,
	}
}

// WithConsumer enables the Kafka request consumer.
func (a *App) WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer, a.kh = c, h
}

// WithScheduler enables the watchlist scheduler.
func (a *App) WithScheduler(s *scheduler.Scheduler) { a.scheduler = s }

// WithLimiter lets the app sweep idle rate-limit buckets.
func (a *App) WithLimiter(l *ratelimit.Limiter) { a.limiter = l }

// WithQueue enables the Redis request queue.
func (a *App) WithQueue(q *queue.RedisQueue) { a.queue = q }

// OnShutdown registers fn to run after every component has stopped, in
// registration order.
func (a *App) OnShutdown(name string, fn ShutdownFunc) {
	if fn != nil {
		a.closers = append(a.closers, closer{name: name, fn: fn})
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.results.Start(runCtx)

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start error", applogger.Error(err))
			return a.shutdown(err)
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.logger.Error("redis queue start error", applogger.Error(err))
			return a.shutdown(err)
		}
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	if a.limiter != nil {
		go a.sweepLimiter(runCtx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return a.shutdown(err)
	}
	a.logger.Info("stockpulse started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.String("strategy", a.cfg.Pipeline.Strategy),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown(nil)
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Sweep(10 * time.Minute); n > 0 {
				a.logger.Debug("rate limiter swept", applogger.Int("buckets", n))
			}
		}
	}
}

// shutdown stops producers of work first, then flushes what they produced.
func (a *App) shutdown(cause error) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.logger.Info("shutting down...")

	// Stop intake: HTTP, scheduled runs, queued and Kafka requests.
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Warn("redis queue stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Drain results toward the backend, then drop live subscribers.
	a.results.Stop()
	if a.hub != nil {
		a.hub.Close()
	}

	// Error logs are published through the producer, so flush them before it closes.
	a.logger.RemoveCollector()

	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return cause
}
