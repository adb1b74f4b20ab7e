package finnhub

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	xhttp "StockPulse/pkg/http"
)

// SourceName is the label every Finnhub article carries.
const SourceName = "Finnhub"

// Client implements a NewsSource backed by the Finnhub company-news REST endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	lookback    time.Duration
	maxArticles int
	http        *xhttp.Client
	now         func() time.Time
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLookback sets how far back the from date reaches.
func WithLookback(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.lookback = d
		}
	}
}

// WithMaxArticles caps the articles returned per fetch.
func WithMaxArticles(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxArticles = n
		}
	}
}

// WithClock injects the time source used for the date window.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New creates a new Finnhub company-news source.
func New(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		lookback:    7 * 24 * time.Hour,
		maxArticles: 15,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	return c
}

type fhNews struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	Datetime int64  `json:"datetime"` // unix seconds
}

func (c *Client) Name() string { return SourceName }

// Fetch returns the newest company news for ticker within the look-back window.
func (c *Client) Fetch(ctx context.Context, ticker string) ([]models.Article, error) {
	to := c.now().UTC()
	from := to.Add(-c.lookback)

	var items []fhNews
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/company-news",
		QueryParams: map[string][]string{
			"symbol": {ticker},
			"from":   {from.Format("2006-01-02")},
			"to":     {to.Format("2006-01-02")},
			"token":  {c.apiKey},
		},
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("finnhub company-news %s: %w", ticker, err)
	}

	if len(items) > c.maxArticles {
		items = items[:c.maxArticles]
	}
	articles := make([]models.Article, 0, len(items))
	for _, it := range items {
		a := models.Article{
			Title:       it.Headline,
			Description: it.Summary,
			Source:      SourceName,
		}
		if it.Datetime > 0 {
			a.PublishedAt = strconv.FormatInt(it.Datetime, 10)
		}
		articles = append(articles, a)
	}
	return articles, nil
}

var _ domsvc.NewsSource = (*Client)(nil)
