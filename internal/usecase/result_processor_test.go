package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
)

func TestResultProcessor_Routes(t *testing.T) {
	r := &models.AnalysisResult{Ticker: "AAPL"}

	t.Run("kafka", func(t *testing.T) {
		pub, store, m := &fakeSink{}, &fakeSink{}, newFakeMetrics()
		p := NewResultProcessor(pub, store, m, BackendKafka)
		require.NoError(t, p.Process(context.Background(), r))
		assert.Equal(t, 1, pub.count())
		assert.Equal(t, 0, store.count())
		assert.Equal(t, 1, m.sent["kafka/AAPL"])
	})

	t.Run("clickhouse batch", func(t *testing.T) {
		pub, store, m := &fakeSink{}, &fakeSink{}, newFakeMetrics()
		p := NewResultProcessor(pub, store, m, BackendClickHouse)
		require.NoError(t, p.ProcessBatch(context.Background(), []*models.AnalysisResult{r, {Ticker: "MSFT"}}))
		assert.Equal(t, 2, store.count())
		assert.Equal(t, 1, store.batches)
		assert.Equal(t, 1, m.sent["clickhouse/MSFT"])
	})

	t.Run("none", func(t *testing.T) {
		p := NewResultProcessor(nil, nil, newFakeMetrics(), BackendNone)
		assert.NoError(t, p.Process(context.Background(), r))
		assert.NoError(t, p.ProcessBatch(context.Background(), []*models.AnalysisResult{r}))
		p.Close()
	})

	t.Run("unknown", func(t *testing.T) {
		m := newFakeMetrics()
		p := NewResultProcessor(nil, nil, m, "s3")
		assert.Error(t, p.Process(context.Background(), r))
		assert.Equal(t, 1, m.errors["process"])
	})
}

func TestResultProcessor_FailureAndClose(t *testing.T) {
	pub := &fakeSink{err: errors.New("broker down")}
	m := newFakeMetrics()
	p := NewResultProcessor(pub, nil, m, BackendKafka)

	err := p.Process(context.Background(), &models.AnalysisResult{Ticker: "AAPL"})
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, m.errors["process"])
	assert.Error(t, p.Process(context.Background(), nil))

	p.Close()
	assert.Equal(t, 1, pub.closed)
}
