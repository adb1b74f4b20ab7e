package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"StockPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

// ParseMode maps the configured mode name to a QueueMode.
func ParseMode(s string) (QueueMode, error) {
	switch s {
	case "", "producer-consumer":
		return ModeProducerConsumer, nil
	case "producer-only":
		return ModeProducerOnly, nil
	case "consumer-only":
		return ModeConsumerOnly, nil
	default:
		return 0, fmt.Errorf("unknown queue mode %q", s)
	}
}

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

var errEmpty = errors.New("queue empty")

// store is the list and sorted-set subset of Redis the queue relies on.
type store interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, key string, data []byte) error
	// Pop blocks up to timeout and returns errEmpty when nothing arrived.
	Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	Schedule(ctx context.Context, key string, data []byte, at time.Time) error
	// Promote moves members of the sorted set due at now onto the list.
	Promote(ctx context.Context, from, to string, now time.Time, limit int) (int, error)
	Addr() string
}

// RedisQueue represents a Redis-based queue.
type RedisQueue struct {
	logger    *logger.Logger
	config    *Config
	store     store
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithMode sets the operation mode.
func WithMode(mode QueueMode) RedisQueueOption {
	return func(r *RedisQueue) {
		r.mode = mode
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *Config, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	return newQueue(lgr, config, &redisStore{client: client}, opts...)
}

func newQueue(lgr *logger.Logger, config *Config, s store, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:    lgr.With(logger.String("component", "redis_queue")),
		config:    &cfg,
		store:     s,
		jobs:      make(map[string]Job),
		mode:      ModeProducerConsumer,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "stockpulse:queue",
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// RegisterJobs registers multiple jobs.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob registers a single job. Producers register jobs too so that
// Enqueue can reject unknown types.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start pings Redis and, in consumer modes, starts the workers and the
// retry processor.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	if err := r.store.Ping(ctx); err != nil {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.retryProcessor()
	}

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.store.Addr()),
		logger.String("mode", r.mode.String()))
	return nil
}

// Stop cancels in-flight handlers and waits for the workers.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.logger.Info("stopping redis queue...")
	r.cancel()
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a message to the queue and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.isRunning
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if r.mode == ModeConsumerOnly {
		return "", fmt.Errorf("enqueue on consumer-only queue")
	}
	if !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	if err := r.store.Push(ctx, r.getQueueKey(), msgData); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}

	return msg.ID, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	queueKey := r.getQueueKey()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		default:
			r.processNextMessage(queueKey)
		}
	}
}

func (r *RedisQueue) processNextMessage(queueKey string) {
	data, err := r.store.Pop(r.ctx, queueKey, r.config.PollTimeout)
	if err != nil {
		if errors.Is(err, errEmpty) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		r.deadLetterRaw(data)
		return
	}

	r.processMessage(msg)
}

func (r *RedisQueue) processMessage(msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		msg.LastError = "no job registered"
		r.moveToDeadLetterQueue(msg)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	elapsed := time.Since(start)

	if err == nil {
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
		return
	}
	if r.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Shutting down; keep the message for the next run.
		msg.LastError = err.Error()
		r.scheduleRetry(msg, r.now())
		return
	}
	r.handleProcessingError(msg, job, err)
}

func (r *RedisQueue) handleProcessingError(msg Message, job Job, err error) {
	msg.Attempts++
	msg.LastError = err.Error()

	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))

	if IsPermanent(err) {
		r.moveToDeadLetterQueue(msg)
		return
	}

	if msg.Attempts <= r.config.RetryLimit {
		retryTime := r.now().Add(retryDelay(r.config.RetryDelay, r.config.MaxRetryDelay, msg.Attempts))
		r.scheduleRetry(msg, retryTime)
		r.logger.Info("scheduled retry",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.String("retry_at", retryTime.Format(time.RFC3339)))
		return
	}

	r.logger.Error("max retries reached",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()))
	r.moveToDeadLetterQueue(msg)
}

func (r *RedisQueue) scheduleRetry(msg Message, retryTime time.Time) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Schedule(ctx, r.getRetryKey(), msgData, retryTime); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	r.deadLetterRaw(msgData)
}

func (r *RedisQueue) deadLetterRaw(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Push(ctx, r.getDeadLetterKey(), data); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.processRetryMessages()
		}
	}
}

func (r *RedisQueue) processRetryMessages() {
	n, err := r.store.Promote(r.ctx, r.getRetryKey(), r.getQueueKey(), r.now(), 100)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("move retry to queue", logger.Error(err))
		return
	}
	if n > 0 {
		r.logger.Debug("retries promoted", logger.Int("count", n))
	}
}

func (r *RedisQueue) getQueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) getRetryKey() string {
	return fmt.Sprintf("%s:retry", r.keyPrefix)
}

func (r *RedisQueue) getDeadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}

var _ Publisher = (*RedisQueue)(nil)

// promoteScript moves due members in one step so that two consumers never
// promote the same retry.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Push(ctx context.Context, key string, data []byte) error {
	return s.client.LPush(ctx, key, data).Err()
}

func (s *redisStore) Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	result, err := s.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errEmpty
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, errEmpty
	}
	return []byte(result[1]), nil
}

func (s *redisStore) Schedule(ctx context.Context, key string, data []byte, at time.Time) error {
	return s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
}

func (s *redisStore) Promote(ctx context.Context, from, to string, now time.Time, limit int) (int, error) {
	n, err := promoteScript.Run(ctx, s.client, []string{from, to},
		strconv.FormatInt(now.Unix(), 10), limit).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return n, nil
}

func (s *redisStore) Addr() string {
	return s.client.Options().Addr
}
