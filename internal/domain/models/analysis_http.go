package models

// Requests for analysis HTTP endpoints and the Kafka request topic.

type AnalysisRequest struct {
	Ticker      string `param:"ticker" query:"ticker" json:"ticker" validate:"required,ticker"`
	Strategy    string `query:"strategy" json:"strategy" validate:"omitempty,oneof=return sentiment"`
	Simulations int    `query:"simulations" json:"simulations" validate:"gte=0,lte=100000"`
	Days        int    `query:"days" json:"days" validate:"gte=0,lte=756"`
	Refresh     bool   `query:"refresh" json:"refresh"`
}

type BatchAnalysisRequest struct {
	Tickers  []string `json:"tickers" validate:"required,min=1,max=25,dive,required,ticker"`
	Strategy string   `json:"strategy" validate:"omitempty,oneof=return sentiment"`
	Refresh  bool     `json:"refresh"`
}

type HeadlineRequest struct {
	Headline string `query:"headline" json:"headline" validate:"required,max=2000"`
}

// HeadlineScore is the sentiment of one headline. Confidence is omitted when
// the scorer does not report one.
type HeadlineScore struct {
	Headline   string   `json:"headline"`
	Score      float64  `json:"score"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type HistoryRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}
