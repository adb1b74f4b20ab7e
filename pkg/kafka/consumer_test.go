package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *memReader) Close() error { return nil }

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func (w *memWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type scriptedHandler struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
	fails map[string]int // transient failures before success
}

func (h *scriptedHandler) Topic() string { return "requests" }

func (h *scriptedHandler) Handle(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := string(b)
	h.calls[k]++
	if err, ok := h.errs[k]; ok {
		return err
	}
	if h.calls[k] <= h.fails[k] {
		return errors.New("transient")
	}
	return nil
}

func (h *scriptedHandler) count(k string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[k]
}

func TestConsumer_RetriesAndDeadLetters(t *testing.T) {
	reader := &memReader{msgs: []kafka.Message{
		{Topic: "requests", Offset: 1, Value: []byte("ok")},
		{Topic: "requests", Offset: 2, Value: []byte("flaky")},
		{Topic: "requests", Offset: 3, Value: []byte("poison")},
		{Topic: "requests", Offset: 4, Value: []byte("always")},
	}}
	dlq := &memWriter{}
	h := &scriptedHandler{
		calls: map[string]int{},
		errs: map[string]error{
			"poison": Permanent(errors.New("bad json")),
			"always": errors.New("model down"),
		},
		fails: map[string]int{"flaky": 2},
	}

	c, err := NewConsumer(
		WithReaderFactory(func(string) Reader { return reader }),
		WithDLQWriter(dlq),
		WithConsumerDLQ("requests-dlq"),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	c.RegisterHandler(h)
	c.WithConsumerHook(NewHookChain(TracingHook{}, NoopHook{}))
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return reader.commits() == 4 }, 2*time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, 1, h.count("ok"))
	assert.Equal(t, 3, h.count("flaky"))
	assert.Equal(t, 1, h.count("poison"), "permanent errors are not retried")
	assert.Equal(t, 3, h.count("always"), "first attempt plus RetryMax retries")

	dead := dlq.written()
	require.Len(t, dead, 2)
	assert.Equal(t, "poison", string(dead[0].Value))
	assert.Equal(t, "requests-dlq", dead[0].Topic)
	assert.Equal(t, "always", string(dead[1].Value))
}

func TestConsumer_HookErrorSkipsHandler(t *testing.T) {
	reader := &memReader{msgs: []kafka.Message{{Topic: "requests", Value: []byte("x")}}}
	dlq := &memWriter{}
	h := &scriptedHandler{calls: map[string]int{}}

	c, err := NewConsumer(
		WithReaderFactory(func(string) Reader { return reader }),
		WithDLQWriter(dlq),
		WithConsumerDLQ("dlq"),
	)
	require.NoError(t, err)
	c.RegisterHandler(h)
	c.WithConsumerHook(NewHookChain(HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			panic("broken hook")
		},
	}))
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return len(dlq.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))
	assert.Zero(t, h.count("x"))
}

func TestConsumer_RequiresBrokersOrReader(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)

	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Error(t, c.Start(), "no handlers")
}

func TestPermanent(t *testing.T) {
	base := errors.New("x")
	assert.Nil(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.ErrorIs(t, Permanent(base), base)
	assert.False(t, IsPermanent(base))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 70; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "snappy")

	require.NoError(t, p.Publish(context.Background(), "results", []byte("AAPL"), map[string]string{"signal": "BUY"}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "raw"))
	require.NoError(t, p.PublishBatch(context.Background(), "results", nil))

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "results", msgs[0].Topic)
	assert.Equal(t, "AAPL", string(msgs[0].Key))
	assert.JSONEq(t, `{"signal":"BUY"}`, string(msgs[0].Value))
	assert.Equal(t, "raw", string(msgs[1].Value))

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, p.Publish(context.Background(), "results", nil, "x"), "leader not available")

	assert.Error(t, p.Publish(context.Background(), "results", nil, func() {}))
}

func TestExtractTraceID(t *testing.T) {
	assert.Equal(t, "abc", ExtractTraceID(kafka.Message{Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("abc")}}}))
	assert.Empty(t, ExtractTraceID(kafka.Message{}))
}
