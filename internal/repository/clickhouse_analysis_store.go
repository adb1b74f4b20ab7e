package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
)

// execQuerier is the part of *sql.DB the store uses.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

const analysisColumns = "id, ticker, strategy, generated_at, sentiment_score, predicted_price, expected_return, " +
	"trend, volatility, var_95, risk_level, expected_price_30d, worst_case_5pct, best_case_95pct, signal, " +
	"news_total, news_scored, news_skipped, payload"

// AnalysisSchema returns the DDL for the history table.
func AnalysisSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    id String,
    ticker LowCardinality(String),
    strategy LowCardinality(String),
    generated_at DateTime64(3, 'UTC'),
    sentiment_score Float64,
    predicted_price Float64,
    expected_return Float64,
    trend LowCardinality(String),
    volatility Float64,
    var_95 Float64,
    risk_level LowCardinality(String),
    expected_price_30d Float64,
    worst_case_5pct Float64,
    best_case_95pct Float64,
    signal LowCardinality(String),
    news_total UInt32,
    news_scored UInt32,
    news_skipped UInt32,
    payload String CODEC(ZSTD(3))
) ENGINE = MergeTree
PARTITION BY toYYYYMM(generated_at)
ORDER BY (ticker, generated_at)
TTL toDateTime(generated_at) + INTERVAL 1 YEAR`, database, table),
	}
}

// ClickHouseAnalysisStore implements AnalysisStore for ClickHouse.
type ClickHouseAnalysisStore struct {
	db    execQuerier
	table string
}

// NewClickHouseAnalysisStore creates ClickHouse storage. The connection pool
// is owned by the caller.
func NewClickHouseAnalysisStore(db execQuerier, table string) *ClickHouseAnalysisStore {
	return &ClickHouseAnalysisStore{db: db, table: table}
}

func (s *ClickHouseAnalysisStore) Store(ctx context.Context, r *models.AnalysisResult) error {
	return s.StoreBatch(ctx, []*models.AnalysisResult{r})
}

// StoreBatch inserts results with multi-row VALUES, chunked to bound statement size.
func (s *ClickHouseAnalysisStore) StoreBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	const chunkSize = 500
	const placeholders = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	for start := 0; start < len(rs); start += chunkSize {
		end := min(start+chunkSize, len(rs))

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*19)
		for _, r := range rs[start:end] {
			if r == nil || r.Ticker == "" {
				continue
			}
			row, err := analysisRow(r)
			if err != nil {
				return err
			}
			values = append(values, placeholders)
			args = append(args, row...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, analysisColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert analyses: %w", err)
		}
	}
	return nil
}

func analysisRow(r *models.AnalysisResult) ([]any, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode analysis %s: %w", r.ID, err)
	}
	return []any{
		r.ID,
		r.Ticker,
		r.Strategy,
		r.GeneratedAt.UTC(),
		r.SentimentScore,
		r.Forecast.PredictedPrice,
		r.Forecast.ExpectedReturn,
		r.Forecast.Trend,
		r.Risk.Volatility,
		r.Risk.VaR95,
		string(r.Risk.Level),
		r.MonteCarlo.ExpectedPrice30d,
		r.MonteCarlo.WorstCase5pct,
		r.MonteCarlo.BestCase95pct,
		string(r.Signal),
		uint32(r.News.Total),
		uint32(r.News.Scored),
		uint32(r.News.Skipped),
		string(payload),
	}, nil
}

// History returns the newest results for ticker, newest first.
func (s *ClickHouseAnalysisStore) History(ctx context.Context, ticker string, limit int) ([]*models.AnalysisResult, error) {
	q := fmt.Sprintf("SELECT payload FROM %s WHERE ticker = ? ORDER BY generated_at DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AnalysisResult
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(sc scanner) (*models.AnalysisResult, error) {
	var payload string
	if err := sc.Scan(&payload); err != nil {
		return nil, err
	}
	var r models.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode stored analysis: %w", err)
	}
	return &r, nil
}

func (s *ClickHouseAnalysisStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseAnalysisStore) Close() error {
	return nil // pool is closed by pkg/clickhouse.Client
}

var _ repository.AnalysisStore = (*ClickHouseAnalysisStore)(nil)
