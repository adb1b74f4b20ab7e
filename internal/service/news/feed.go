package news

import (
	"context"
	"encoding/json"
	"fmt"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	xhttp "StockPulse/pkg/http"
)

// Feed reads a generic JSON document of the form
// {"articles": [{"title", "description", "source", "publishedAt"}]}.
// source may be a string or a {"name": ...} object.
type Feed struct {
	name string
	url  string
	sourceConfig
}

func NewFeed(name, rawURL string, opts ...Option) *Feed {
	return &Feed{name: name, url: rawURL, sourceConfig: newSourceConfig(opts)}
}

type feedSource string

func (f *feedSource) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = feedSource(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("source must be a string or an object with a name: %w", err)
	}
	*f = feedSource(obj.Name)
	return nil
}

type feedResponse struct {
	Articles []struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Source      feedSource `json:"source"`
		PublishedAt string     `json:"publishedAt"`
	} `json:"articles"`
}

func (s *Feed) Name() string { return s.name }

func (s *Feed) Fetch(ctx context.Context, ticker string) ([]models.Article, error) {
	var resp feedResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    expandURL(s.url, ticker),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("feed %s %s: %w", s.name, ticker, err)
	}

	articles := make([]models.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		src := string(a.Source)
		if src == "" {
			src = s.name
		}
		articles = append(articles, models.Article{
			Title:       a.Title,
			Description: a.Description,
			Source:      src,
			PublishedAt: a.PublishedAt,
		})
	}
	return s.limit(articles), nil
}

var _ domsvc.NewsSource = (*Feed)(nil)
