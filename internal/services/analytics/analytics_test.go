package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFinBERTScorer(t *testing.T) {
	var gotWords int
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentiment/score", r.URL.Path)
		var req scoreReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotWords = len(strings.Fields(req.Text))
		_ = json.NewEncoder(w).Encode(scoreResp{Positive: 0.7, Negative: 0.2, Neutral: 0.1})
	})

	s := NewFinBERTScorer(NewHTTPServiceBase(srv.URL, time.Second), 3)
	score, err := s.Score(context.Background(), "profit beats estimates again this quarter")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-12)
	assert.Equal(t, 3, gotWords)
}

func TestFinBERTScorerConfidence(t *testing.T) {
	tests := []struct {
		name      string
		resp      scoreResp
		wantScore float64
		wantConf  float64
	}{
		{"positive wins", scoreResp{Positive: 0.7, Negative: 0.2, Neutral: 0.1}, 0.5, 0.7},
		{"neutral wins", scoreResp{Positive: 0.2, Negative: 0.1, Neutral: 0.7}, 0.1, 0.7},
		{"negative wins", scoreResp{Positive: 0.05, Negative: 0.9, Neutral: 0.05}, -0.85, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.resp)
			})
			score, conf, err := NewFinBERTScorer(NewHTTPServiceBase(srv.URL, time.Second), 0).
				ScoreWithConfidence(context.Background(), "guidance cut")
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, score, 1e-12)
			assert.InDelta(t, tt.wantConf, conf, 1e-12)
		})
	}
}

func TestFinBERTScorerRejectsBadProbabilities(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"positive": 1.4, "negative": 0, "neutral": 0}`))
	})
	_, err := NewFinBERTScorer(NewHTTPServiceBase(srv.URL, time.Second), 0).Score(context.Background(), "x")
	assert.Error(t, err)
}

func TestLSTMForecaster(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantPrice float64
		wantR     float64
		wantErr   bool
	}{
		{"explicit return", `{"predicted_price": 150, "expected_return": 0.04}`, 150, 0.04, false},
		{"derived from last price", `{"predicted_price": 105, "last_price": 100}`, 105, 0.05, false},
		{"zero return is kept", `{"predicted_price": 100, "expected_return": 0}`, 100, 0, false},
		{"no return information", `{"predicted_price": 105}`, 0, 0, true},
		{"non-positive price", `{"predicted_price": 0, "expected_return": 0.1}`, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/forecast/predict", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := NewLSTMForecaster(NewHTTPServiceBase(srv.URL, time.Second)).Predict(context.Background(), "AAPL")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, got.CurrentPrice)
			assert.InDelta(t, tt.wantR, got.ExpectedReturn, 1e-12)
		})
	}
}

func TestCallRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"predicted_price": 10, "expected_return": 0.01}`))
	})
	base := NewHTTPServiceBase(srv.URL, time.Second, WithAttempts(3), WithBackoff(time.Millisecond))

	_, err := NewLSTMForecaster(base).Predict(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	base := NewHTTPServiceBase(srv.URL, time.Second, WithAttempts(3), WithBackoff(time.Millisecond))

	_, err := NewLSTMForecaster(base).Predict(context.Background(), "ZZZZ")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var healthy atomic.Bool
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"positive": 0.5, "negative": 0.5, "neutral": 0}`))
	})
	base := NewHTTPServiceBase(srv.URL, time.Second, WithBreaker(2, time.Minute))
	now := time.Now()
	base.breaker.now = func() time.Time { return now }
	s := NewFinBERTScorer(base, 0)

	for i := 0; i < 2; i++ {
		_, err := s.Score(context.Background(), "x")
		require.Error(t, err)
	}
	_, err := s.Score(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load())

	healthy.Store(true)
	now = now.Add(2 * time.Minute)
	score, err := s.Score(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestCallHonoursCancellation(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	base := NewHTTPServiceBase(srv.URL, time.Second, WithAttempts(5), WithBackoff(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := base.Call(ctx, "/forecast/predict", forecastReq{Ticker: "AAPL"}, &forecastResp{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
