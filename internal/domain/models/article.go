package models

// Article is a single news item as delivered by a news source.
// PublishedAt keeps the provider's raw timestamp; it may be empty or in any
// of the formats accepted by util.ParseTime.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Text is the combined text that gets scored and measured.
func (a Article) Text() string {
	return a.Title + " " + a.Description
}

// ScoredArticle carries the independently computed sentiment and weight of an article.
type ScoredArticle struct {
	Article       Article `json:"article"`
	Sentiment     float64 `json:"sentiment"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
	Confidence    float64 `json:"confidence,omitempty"`
}
