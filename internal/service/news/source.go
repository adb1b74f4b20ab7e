// Package news holds NewsSource adapters for third-party news APIs and pages.
package news

import (
	"net/url"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	xhttp "StockPulse/pkg/http"
)

// DefaultMaxArticles caps what a single source contributes per fetch.
const DefaultMaxArticles = 15

// Option configures the shared fields of every source.
type Option func(*sourceConfig)

type sourceConfig struct {
	client      *xhttp.Client
	maxArticles int
}

// WithClient sets the HTTP client (timeouts, test transports).
func WithClient(c *xhttp.Client) Option {
	return func(sc *sourceConfig) {
		sc.client = c
	}
}

// WithMaxArticles caps the number of articles returned per fetch.
func WithMaxArticles(n int) Option {
	return func(sc *sourceConfig) {
		if n > 0 {
			sc.maxArticles = n
		}
	}
}

func newSourceConfig(opts []Option) sourceConfig {
	sc := sourceConfig{maxArticles: DefaultMaxArticles}
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.client == nil {
		sc.client = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	return sc
}

func (sc sourceConfig) limit(articles []models.Article) []models.Article {
	if len(articles) > sc.maxArticles {
		return articles[:sc.maxArticles]
	}
	return articles
}

// expandURL substitutes the {ticker} placeholder.
func expandURL(raw, ticker string) string {
	return strings.ReplaceAll(raw, "{ticker}", url.PathEscape(ticker))
}
