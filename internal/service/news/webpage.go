package news

import (
	"context"
	"fmt"
	"strings"

	"StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0 (compatible; StockPulse/1.0)"

// WebPage scrapes headlines from an HTML listing page with CSS selectors.
type WebPage struct {
	page config.PageConfig
	sourceConfig
}

func NewWebPage(page config.PageConfig, opts ...Option) *WebPage {
	if page.Source == "" {
		page.Source = page.Name
	}
	return &WebPage{page: page, sourceConfig: newSourceConfig(opts)}
}

func (s *WebPage) Name() string { return s.page.Name }

func (s *WebPage) Fetch(ctx context.Context, ticker string) ([]models.Article, error) {
	target := expandURL(s.page.URL, ticker)
	resp, err := s.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     target,
		Headers: map[string]string{"User-Agent": userAgent, "Accept": "text/html"},
	})
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", s.page.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("page %s: %w", s.page.Name, &xhttp.StatusError{Code: resp.StatusCode})
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page %s: parse html: %w", s.page.Name, err)
	}
	return s.extract(doc), nil
}

func (s *WebPage) extract(doc *goquery.Document) []models.Article {
	var articles []models.Article
	doc.Find(s.page.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		title := collapse(item.Find(s.page.TitleSelector).First().Text())
		if title == "" {
			return true
		}
		a := models.Article{
			Title:       title,
			Description: collapse(item.Find(s.page.DescriptionSelector).First().Text()),
			Source:      s.page.Source,
		}
		if ts := item.Find(s.page.TimeSelector).First(); ts.Length() > 0 {
			if v, ok := ts.Attr(s.page.TimeAttr); ok && v != "" {
				a.PublishedAt = strings.TrimSpace(v)
			} else {
				a.PublishedAt = collapse(ts.Text())
			}
		}
		articles = append(articles, a)
		return len(articles) < s.maxArticles
	})
	return articles
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ domsvc.NewsSource = (*WebPage)(nil)
