package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("model service circuit breaker open")

// HTTPServiceBase provides a DRY foundation for model-service HTTP clients.
// It centralizes client construction, JSON POST handling, retries with linear
// backoff and a consecutive-failure circuit breaker.
type HTTPServiceBase struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
	backoff  time.Duration
	breaker  *circuitBreaker
}

// BaseOption configures HTTPServiceBase.
type BaseOption func(*HTTPServiceBase)

// WithAttempts sets the number of tries per call (1 disables retries).
func WithAttempts(n int) BaseOption {
	return func(b *HTTPServiceBase) {
		if n > 0 {
			b.attempts = n
		}
	}
}

// WithBackoff sets the base backoff; attempt i waits i*d.
func WithBackoff(d time.Duration) BaseOption {
	return func(b *HTTPServiceBase) {
		b.backoff = d
	}
}

// WithBreaker opens the circuit after threshold consecutive failed calls for cooldown.
func WithBreaker(threshold int, cooldown time.Duration) BaseOption {
	return func(b *HTTPServiceBase) {
		if threshold > 0 {
			b.breaker = newCircuitBreaker(threshold, cooldown)
		}
	}
}

// NewHTTPServiceBase builds an HTTP client with timeout and base URL.
func NewHTTPServiceBase(baseURL string, timeout time.Duration, opts ...BaseOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	b := &HTTPServiceBase{
		baseURL:  baseURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: 1,
		backoff:  300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewHTTPServiceBaseFromConfig reads the models section.
func NewHTTPServiceBaseFromConfig(cfg *config.Config) *HTTPServiceBase {
	m := cfg.Models
	return NewHTTPServiceBase(m.ServiceURL, m.Timeout,
		WithAttempts(m.RetryAttempts),
		WithBreaker(m.CircuitFailLimit, m.CircuitCooldown),
	)
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("model service http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// Call is PostJSON behind the breaker with retries for transient errors.
func (b *HTTPServiceBase) Call(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.breaker != nil && !b.breaker.allow() {
		return ErrCircuitOpen
	}

	var err error
	for i := 1; i <= b.attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			if b.breaker != nil {
				b.breaker.success()
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !transient(err) || i == b.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * b.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if b.breaker != nil {
		b.breaker.fail()
	}
	return err
}

// transient treats 4xx (except 429) as permanent and everything else as retryable.
func transient(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openedAt  time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures < c.threshold {
		return true
	}
	if c.now().Sub(c.openedAt) > c.cooldown {
		// half-open: one more failure re-opens
		c.failures = c.threshold - 1
		c.openedAt = time.Time{}
		return true
	}
	return false
}

func (c *circuitBreaker) success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.openedAt = time.Time{}
}

func (c *circuitBreaker) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openedAt = c.now()
	}
}
