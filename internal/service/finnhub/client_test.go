package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company-news", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "NVDA", q.Get("symbol"))
		assert.Equal(t, "2024-03-08", q.Get("from"))
		assert.Equal(t, "2024-03-10", q.Get("to"))
		assert.Equal(t, "key", q.Get("token"))
		_, _ = w.Write([]byte(`[
			{"headline":"Nvidia surges","summary":"Record revenue","source":"Yahoo","datetime":1710000000},
			{"headline":"No timestamp","summary":"","source":"Yahoo","datetime":0},
			{"headline":"Third","summary":"x","datetime":1710000001}]`))
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := New("key", srv.URL,
		WithLookback(48*time.Hour),
		WithMaxArticles(2),
		WithClock(func() time.Time { return now }),
	)

	got, err := c.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Nvidia surges", got[0].Title)
	assert.Equal(t, "Record revenue", got[0].Description)
	assert.Equal(t, SourceName, got[0].Source)
	assert.Equal(t, "1710000000", got[0].PublishedAt)
	assert.Equal(t, "", got[1].PublishedAt)
}

func TestFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New("key", srv.URL).Fetch(context.Background(), "NVDA")
	assert.Error(t, err)
}
