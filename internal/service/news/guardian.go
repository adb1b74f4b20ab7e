package news

import (
	"context"
	"fmt"
	"strconv"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	xhttp "StockPulse/pkg/http"
)

const GuardianName = "The Guardian"

// Guardian queries the Guardian content search API. Results carry headlines
// only, so Description is empty.
type Guardian struct {
	baseURL string
	apiKey  string
	sourceConfig
}

func NewGuardian(baseURL, apiKey string, opts ...Option) *Guardian {
	return &Guardian{baseURL: baseURL, apiKey: apiKey, sourceConfig: newSourceConfig(opts)}
}

type guardianResponse struct {
	Response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Results []struct {
			WebTitle           string `json:"webTitle"`
			WebPublicationDate string `json:"webPublicationDate"`
		} `json:"results"`
	} `json:"response"`
}

func (s *Guardian) Name() string { return GuardianName }

func (s *Guardian) Fetch(ctx context.Context, ticker string) ([]models.Article, error) {
	var resp guardianResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL,
		QueryParams: map[string][]string{
			"q":         {ticker},
			"api-key":   {s.apiKey},
			"order-by":  {"newest"},
			"page-size": {strconv.Itoa(s.maxArticles)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("guardian %s: %w", ticker, err)
	}
	if resp.Response.Status != "" && resp.Response.Status != "ok" {
		return nil, fmt.Errorf("guardian %s: status %s: %s", ticker, resp.Response.Status, resp.Response.Message)
	}

	articles := make([]models.Article, 0, len(resp.Response.Results))
	for _, r := range resp.Response.Results {
		articles = append(articles, models.Article{
			Title:       r.WebTitle,
			Source:      GuardianName,
			PublishedAt: r.WebPublicationDate,
		})
	}
	return s.limit(articles), nil
}

var _ domsvc.NewsSource = (*Guardian)(nil)
