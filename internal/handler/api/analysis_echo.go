package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	models "StockPulse/internal/domain/models"
	domsvc "StockPulse/internal/domain/service"
	svcmetrics "StockPulse/internal/service/metrics"
	"StockPulse/internal/usecase"
	xhttp "StockPulse/pkg/http"
	xlogger "StockPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Analyzer is the slice of usecase.AnalysisService the handlers need.
type Analyzer interface {
	Analyze(ctx context.Context, req usecase.AnalyzeRequest) models.AnalysisOutcome
	AnalyzeBatch(ctx context.Context, tickers []string, ro usecase.RunOptions, refresh bool) []models.AnalysisOutcome
	History(ctx context.Context, ticker string, limit int) ([]*models.AnalysisResult, error)
	Health(ctx context.Context) error
}

// Enqueuer accepts analysis requests for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// AnalysisEchoHandler serves the analysis API.
type AnalysisEchoHandler struct {
	logger *xlogger.Logger
	svc    Analyzer
	queue  Enqueuer
	scorer domsvc.SentimentScorer
}

func NewAnalysisEchoHandler(logger *xlogger.Logger, svc Analyzer) *AnalysisEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	svcmetrics.Register(nil)
	return &AnalysisEchoHandler{logger: logger, svc: svc}
}

// WithRequestQueue enables POST /api/analysis/jobs.
func (h *AnalysisEchoHandler) WithRequestQueue(q Enqueuer) *AnalysisEchoHandler {
	h.queue = q
	return h
}

// WithScorer enables GET /analyze_news/ for scoring a single headline.
func (h *AnalysisEchoHandler) WithScorer(s domsvc.SentimentScorer) *AnalysisEchoHandler {
	h.scorer = s
	return h
}

func (h *AnalysisEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/analysis")
	g.GET("/history", h.History)
	g.POST("/batch", h.Batch)
	if h.queue != nil {
		g.POST("/jobs", h.Enqueue)
	}
	g.GET("/:ticker", h.Analyze)

	e.GET("/full-analysis/:ticker", h.FullAnalysis)
	if h.scorer != nil {
		e.GET("/analyze_news", h.AnalyzeHeadline)
		e.GET("/analyze_news/", h.AnalyzeHeadline)
	}
	e.GET("/healthz", h.Healthz)
}

func (h *AnalysisEchoHandler) Analyze(c echo.Context) error {
	start := time.Now()
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.Observe("analyze", start, string(models.KindInvalidRequest))
		return xhttp.BadRequestResponse(c, verr)
	}

	out := h.svc.Analyze(c.Request().Context(), toAnalyzeRequest(req))
	if out.Err != nil {
		svcmetrics.Observe("analyze", start, string(out.Err.Kind))
		h.logFailure("analyze", out.Err)
		return xhttp.AppErrorResponse(c, toAppError(out.Err))
	}
	svcmetrics.Observe("analyze", start, "")
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
	return xhttp.SuccessResponse(c, out.Result)
}

// Batch returns one outcome per ticker, in request order. Per-ticker failures
// are reported inline, so the call itself succeeds.
func (h *AnalysisEchoHandler) Batch(c echo.Context) error {
	start := time.Now()
	req := &models.BatchAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.Observe("batch", start, string(models.KindInvalidRequest))
		return xhttp.BadRequestResponse(c, verr)
	}

	outs := h.svc.AnalyzeBatch(c.Request().Context(), req.Tickers, usecase.RunOptions{Strategy: req.Strategy}, req.Refresh)
	failed := 0
	for _, o := range outs {
		if o.Err != nil {
			failed++
		}
	}
	kind := ""
	if failed == len(outs) {
		kind = "all_failed"
	}
	svcmetrics.Observe("batch", start, kind)
	return xhttp.ListResponse(c, outs, int64(len(outs)))
}

type jobAccepted struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Ticker string `json:"ticker"`
}

// Enqueue accepts an analysis request for the worker queue. The result is
// delivered through the usual result fan-out.
func (h *AnalysisEchoHandler) Enqueue(c echo.Context) error {
	start := time.Now()
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.Observe("enqueue", start, string(models.KindInvalidRequest))
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Ticker = usecase.NormalizeTicker(req.Ticker)

	id, err := h.queue.Enqueue(c.Request().Context(), usecase.AnalysisRequestType, req)
	if err != nil {
		svcmetrics.Observe("enqueue", start, string(models.KindInternal))
		h.logger.Error("enqueue analysis request", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("request queue is unavailable").WithError(err))
	}
	svcmetrics.Observe("enqueue", start, "")
	return xhttp.DataResponse(c, http.StatusAccepted, jobAccepted{ID: id, Type: usecase.AnalysisRequestType, Ticker: req.Ticker})
}

func (h *AnalysisEchoHandler) History(c echo.Context) error {
	start := time.Now()
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.Observe("history", start, string(models.KindInvalidRequest))
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.svc.History(c.Request().Context(), req.Ticker, req.Limit)
	if err != nil {
		if errors.Is(err, usecase.ErrHistoryDisabled) {
			svcmetrics.Observe("history", start, "disabled")
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("analysis history is not enabled"))
		}
		svcmetrics.Observe("history", start, string(models.KindInternal))
		h.logger.Error("history usecase error", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("analysis history is unavailable").WithError(err))
	}
	svcmetrics.Observe("history", start, "")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// FullAnalysis writes the bare outcome, either the result object or
// {"ticker","kind","error"}, without the API envelope.
func (h *AnalysisEchoHandler) FullAnalysis(c echo.Context) error {
	start := time.Now()
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.Observe("full_analysis", start, string(models.KindInvalidRequest))
		out := models.Failure(models.NewAnalysisError(c.Param("ticker"), models.KindInvalidRequest, errors.New("invalid request")))
		return c.JSON(http.StatusBadRequest, out)
	}

	out := h.svc.Analyze(c.Request().Context(), toAnalyzeRequest(req))
	if out.Err != nil {
		svcmetrics.Observe("full_analysis", start, string(out.Err.Kind))
		h.logFailure("full_analysis", out.Err)
		return c.JSON(StatusFor(out.Err.Kind), out)
	}
	svcmetrics.Observe("full_analysis", start, "")
	return c.JSON(http.StatusOK, out)
}

// AnalyzeHeadline scores the headline query parameter with the configured scorer.
func (h *AnalysisEchoHandler) AnalyzeHeadline(c echo.Context) error {
	start := time.Now()
	req := &models.HeadlineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.Observe("analyze_news", start, string(models.KindInvalidRequest))
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := scoreHeadline(c.Request().Context(), h.scorer, req.Headline)
	if err != nil {
		svcmetrics.Observe("analyze_news", start, string(models.KindScoring))
		h.logger.Warn("headline scoring failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("sentiment scorer is unavailable").WithError(err))
	}
	svcmetrics.Observe("analyze_news", start, "")
	return xhttp.SuccessResponse(c, res)
}

func scoreHeadline(ctx context.Context, scorer domsvc.SentimentScorer, headline string) (models.HeadlineScore, error) {
	res := models.HeadlineScore{Headline: headline}
	var err error
	if cs, ok := scorer.(domsvc.ConfidenceScorer); ok {
		var conf float64
		res.Score, conf, err = cs.ScoreWithConfidence(ctx, headline)
		res.Confidence = &conf
	} else {
		res.Score, err = scorer.Score(ctx, headline)
	}
	if err != nil {
		return models.HeadlineScore{}, err
	}
	if math.IsNaN(res.Score) || res.Score < -1 || res.Score > 1 {
		return models.HeadlineScore{}, fmt.Errorf("score %v outside [-1, 1]", res.Score)
	}
	res.Label = models.SentimentLabel(res.Score)
	return res, nil
}

func (h *AnalysisEchoHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AnalysisEchoHandler) logFailure(endpoint string, e *models.AnalysisError) {
	fields := []xlogger.Field{
		xlogger.String("endpoint", endpoint),
		xlogger.String("ticker", e.Ticker),
		xlogger.String("kind", string(e.Kind)),
		xlogger.String("message", e.Message),
	}
	if StatusFor(e.Kind) >= http.StatusInternalServerError {
		h.logger.Error("analysis failed", fields...)
		return
	}
	h.logger.Warn("analysis failed", fields...)
}

func toAnalyzeRequest(req *models.AnalysisRequest) usecase.AnalyzeRequest {
	return usecase.AnalyzeRequest{
		Ticker: req.Ticker,
		RunOptions: usecase.RunOptions{
			Strategy:    req.Strategy,
			Simulations: req.Simulations,
			Days:        req.Days,
		},
		Refresh: req.Refresh,
	}
}

// StatusFor maps an analysis error kind to its HTTP status.
func StatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidRequest:
		return http.StatusBadRequest
	case models.KindSimulationNumeric:
		return http.StatusUnprocessableEntity
	case models.KindForecastUnavailable, models.KindSourceFetch, models.KindScoring:
		return http.StatusBadGateway
	case models.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toAppError(e *models.AnalysisError) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch StatusFor(e.Kind) {
	case http.StatusBadRequest:
		appErr = xhttp.BadRequestError(e.Message)
	case http.StatusUnprocessableEntity:
		appErr = xhttp.UnprocessableError(e.Message)
	case http.StatusBadGateway:
		appErr = xhttp.BadGatewayError(e.Message)
	case http.StatusServiceUnavailable:
		appErr = xhttp.ServiceUnavailableError(e.Message)
	default:
		appErr = xhttp.InternalError("analysis failed")
	}
	return appErr.WithParam("ticker", e.Ticker).WithParam("kind", string(e.Kind)).WithError(e)
}
