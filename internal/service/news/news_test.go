package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"StockPulse/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestAlphaVantageFetch(t *testing.T) {
	var feed strings.Builder
	for i := 0; i < 20; i++ {
		if i > 0 {
			feed.WriteString(",")
		}
		src := "Reuters"
		if i == 1 {
			src = ""
		}
		fmt.Fprintf(&feed, `{"title":"t%d","summary":"s%d","source":%q,"time_published":"20240102T150405"}`, i, i, src)
	}
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEWS_SENTIMENT", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("tickers"))
		assert.Equal(t, "k", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`{"feed":[` + feed.String() + `]}`))
	})

	got, err := NewAlphaVantage(srv.URL, "k").Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, got, DefaultMaxArticles)
	assert.Equal(t, "t0", got[0].Title)
	assert.Equal(t, "s0", got[0].Description)
	assert.Equal(t, "Reuters", got[0].Source)
	assert.Equal(t, "20240102T150405", got[0].PublishedAt)
	assert.Equal(t, AlphaVantageName, got[1].Source)
}

func TestAlphaVantageThrottleMessage(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Information":"rate limit reached"}`))
	})
	_, err := NewAlphaVantage(srv.URL, "k").Fetch(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestGuardianFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TSLA", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("page-size"))
		_, _ = w.Write([]byte(`{"response":{"status":"ok","results":[
			{"webTitle":"Tesla deliveries rise","webPublicationDate":"2024-01-02T10:00:00Z"}]}}`))
	})

	got, err := NewGuardian(srv.URL, "k", WithMaxArticles(5)).Fetch(context.Background(), "TSLA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Tesla deliveries rise", got[0].Title)
	assert.Equal(t, "", got[0].Description)
	assert.Equal(t, GuardianName, got[0].Source)
	assert.Equal(t, "2024-01-02T10:00:00Z", got[0].PublishedAt)
}

func TestGuardianErrorStatus(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := NewGuardian(srv.URL, "bad").Fetch(context.Background(), "TSLA")
	assert.Error(t, err)
}

func TestFeedFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news/MSFT", r.URL.Path)
		_, _ = w.Write([]byte(`{"articles":[
			{"title":"a","description":"b","source":"Bloomberg","publishedAt":"2024-01-02T10:00:00Z"},
			{"title":"c","description":"d","source":{"name":"Financial Times"}},
			{"title":"e","description":"f"}]}`))
	})

	got, err := NewFeed("wire", srv.URL+"/news/{ticker}").Fetch(context.Background(), "MSFT")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Bloomberg", got[0].Source)
	assert.Equal(t, "Financial Times", got[1].Source)
	assert.Equal(t, "wire", got[2].Source)
	assert.Equal(t, "wire", NewFeed("wire", "").Name())
}

const listing = `<html><body>
<article><h2> Apple  beats estimates </h2><p>Strong iPhone sales.</p><time datetime="2024-01-02T10:00:00Z">Jan 2</time></article>
<article><h2></h2><p>no headline, skipped</p></article>
<article><h3>Apple faces inquiry</h3><p>Regulators look closer.</p><time>2024-01-01</time></article>
<article><h2>Third story</h2></article>
</body></html>`

func TestWebPageFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/q/AAPL", r.URL.Path)
		_, _ = w.Write([]byte(listing))
	})
	page := config.PageConfig{
		Name:                "example",
		URL:                 srv.URL + "/q/{ticker}",
		ItemSelector:        "article",
		TitleSelector:       "h2, h3",
		DescriptionSelector: "p",
		TimeSelector:        "time",
		TimeAttr:            "datetime",
	}

	got, err := NewWebPage(page, WithMaxArticles(2)).Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Apple beats estimates", got[0].Title)
	assert.Equal(t, "Strong iPhone sales.", got[0].Description)
	assert.Equal(t, "2024-01-02T10:00:00Z", got[0].PublishedAt)
	assert.Equal(t, "example", got[0].Source)
	assert.Equal(t, "Apple faces inquiry", got[1].Title)
	assert.Equal(t, "2024-01-01", got[1].PublishedAt)
}

func TestWebPageBadStatus(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := NewWebPage(config.PageConfig{Name: "x", URL: srv.URL, ItemSelector: "article"}).Fetch(context.Background(), "AAPL")
	assert.Error(t, err)
}
