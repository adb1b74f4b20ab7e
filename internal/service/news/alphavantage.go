package news

import (
	"context"
	"fmt"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	xhttp "StockPulse/pkg/http"
)

// AlphaVantageName is the source label used when the feed omits one.
const AlphaVantageName = "Alpha Vantage"

// AlphaVantage reads the NEWS_SENTIMENT endpoint.
type AlphaVantage struct {
	baseURL string
	apiKey  string
	sourceConfig
}

func NewAlphaVantage(baseURL, apiKey string, opts ...Option) *AlphaVantage {
	return &AlphaVantage{baseURL: baseURL, apiKey: apiKey, sourceConfig: newSourceConfig(opts)}
}

type avResponse struct {
	Feed []struct {
		Title         string `json:"title"`
		Summary       string `json:"summary"`
		Source        string `json:"source"`
		TimePublished string `json:"time_published"`
	} `json:"feed"`
	// Populated instead of feed on throttling or bad keys.
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (s *AlphaVantage) Name() string { return AlphaVantageName }

func (s *AlphaVantage) Fetch(ctx context.Context, ticker string) ([]models.Article, error) {
	var resp avResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL,
		QueryParams: map[string][]string{
			"function": {"NEWS_SENTIMENT"},
			"tickers":  {ticker},
			"apikey":   {s.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("alpha vantage %s: %w", ticker, err)
	}
	for _, msg := range []string{resp.ErrorMessage, resp.Information, resp.Note} {
		if msg != "" && len(resp.Feed) == 0 {
			return nil, fmt.Errorf("alpha vantage %s: %s", ticker, msg)
		}
	}

	articles := make([]models.Article, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		src := item.Source
		if src == "" {
			src = AlphaVantageName
		}
		articles = append(articles, models.Article{
			Title:       item.Title,
			Description: item.Summary,
			Source:      src,
			PublishedAt: item.TimePublished,
		})
	}
	return s.limit(articles), nil
}

var _ domsvc.NewsSource = (*AlphaVantage)(nil)
