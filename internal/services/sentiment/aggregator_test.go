package sentiment

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"StockPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapScorer struct {
	scores map[string]float64
	calls  atomic.Int32
}

func (m *mapScorer) Score(_ context.Context, text string) (float64, error) {
	m.calls.Add(1)
	s, ok := m.scores[text]
	if !ok {
		return 0, errors.New("model refused text")
	}
	return s, nil
}

type unitWeighter struct{}

func (unitWeighter) Weight(models.Article, time.Time) float64 { return 1 }

type sourceWeighter map[string]float64

func (w sourceWeighter) Weight(a models.Article, _ time.Time) float64 { return w[a.Source] }

func article(title string) models.Article {
	return models.Article{Title: title, Source: "test"}
}

func text(title string) string { return article(title).Text() }

func TestAggregateUniformWeights(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{text("a"): 0.2, text("b"): -0.1, text("c"): 0.4}}
	agg := NewAggregator()

	sum := agg.Aggregate(context.Background(), []models.Article{article("a"), article("b"), article("c")}, scorer, unitWeighter{}, time.Now())

	assert.InDelta(t, 0.1667, sum.Score, 1e-4)
	assert.Len(t, sum.Scored, 3)
	assert.Equal(t, 0, sum.Skipped)
}

func TestAggregateEmpty(t *testing.T) {
	scorer := &mapScorer{}
	sum := NewAggregator().Aggregate(context.Background(), nil, scorer, unitWeighter{}, time.Now())
	assert.Equal(t, 0.0, sum.Score)
	assert.Equal(t, int32(0), scorer.calls.Load())
}

func TestAggregateSkipsFailedArticles(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{text("good"): 0.6, text("also good"): -0.2}}
	arts := []models.Article{article("good"), article("broken"), article("also good")}

	sum := NewAggregator().Aggregate(context.Background(), arts, scorer, unitWeighter{}, time.Now())

	assert.InDelta(t, 0.2, sum.Score, 1e-12)
	assert.Equal(t, 1, sum.Skipped)
	assert.Len(t, sum.Scored, 2)
}

func TestAggregateAllSkipped(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{}}
	sum := NewAggregator().Aggregate(context.Background(), []models.Article{article("x"), article("y")}, scorer, unitWeighter{}, time.Now())
	assert.Equal(t, 0.0, sum.Score)
	assert.False(t, math.IsNaN(sum.Score))
	assert.Equal(t, 2, sum.Skipped)
}

func TestAggregateRejectsOutOfRangeScores(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{text("a"): 1.7, text("b"): math.NaN(), text("c"): -0.5}}
	sum := NewAggregator().Aggregate(context.Background(), []models.Article{article("a"), article("b"), article("c")}, scorer, unitWeighter{}, time.Now())
	assert.InDelta(t, -0.5, sum.Score, 1e-12)
	assert.Equal(t, 2, sum.Skipped)
}

func TestAggregatePermutationInvariant(t *testing.T) {
	scores := map[string]float64{}
	weights := sourceWeighter{}
	var arts []models.Article
	for i, s := range []float64{0.91, -0.33, 0.12, 0.57, -0.78, 0.05, 0.44} {
		a := models.Article{Title: string(rune('a' + i)), Source: string(rune('A' + i))}
		scores[a.Text()] = s
		weights[a.Source] = 0.3 + float64(i)*0.17
		arts = append(arts, a)
	}
	scorer := &mapScorer{scores: scores}
	agg := NewAggregator(WithWorkers(3))
	now := time.Now()

	base := agg.Aggregate(context.Background(), arts, scorer, weights, now).Score

	perms := [][]int{{6, 5, 4, 3, 2, 1, 0}, {3, 0, 6, 1, 5, 2, 4}, {1, 2, 3, 4, 5, 6, 0}}
	for _, p := range perms {
		shuffled := make([]models.Article, len(arts))
		for i, j := range p {
			shuffled[i] = arts[j]
		}
		got := agg.Aggregate(context.Background(), shuffled, scorer, weights, now).Score
		require.Equal(t, base, got)
	}
}

func TestAggregateAppliesWeights(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{
		models.Article{Title: "a", Source: "Reuters"}.Text(): 0.5,
		models.Article{Title: "b", Source: "Blog"}.Text():    -0.5,
	}}
	weights := sourceWeighter{"Reuters": 1.3, "Blog": 1.0}
	arts := []models.Article{{Title: "a", Source: "Reuters"}, {Title: "b", Source: "Blog"}}

	sum := NewAggregator().Aggregate(context.Background(), arts, scorer, weights, time.Now())
	assert.InDelta(t, (0.65-0.5)/2, sum.Score, 1e-12)
	for _, s := range sum.Scored {
		assert.InDelta(t, s.Sentiment*s.Weight, s.WeightedScore, 1e-12)
	}
}

func TestAggregateCanceledContext(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{text("a"): 0.5}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := NewAggregator().Aggregate(ctx, []models.Article{article("a")}, scorer, unitWeighter{}, time.Now())
	assert.Equal(t, 0.0, sum.Score)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, 1, sum.Canceled)
}

type cancelingScorer struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (c *cancelingScorer) Score(ctx context.Context, _ string) (float64, error) {
	if c.calls.Add(1) == 2 {
		c.cancel()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 0.4, nil
}

func TestAggregateCancelMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scorer := &cancelingScorer{cancel: cancel}
	articles := []models.Article{article("a"), article("b"), article("c"), article("d"), article("e")}

	sum := NewAggregator(WithWorkers(1)).Aggregate(ctx, articles, scorer, unitWeighter{}, time.Now())
	require.Len(t, sum.Scored, 1)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, 4, sum.Canceled)
	assert.InDelta(t, 0.4, sum.Score, 1e-12)
	assert.LessOrEqual(t, scorer.calls.Load(), int32(3))
}

type confidentScorer struct {
	scores map[string][2]float64
}

func (c confidentScorer) Score(ctx context.Context, text string) (float64, error) {
	s, _, err := c.ScoreWithConfidence(ctx, text)
	return s, err
}

func (c confidentScorer) ScoreWithConfidence(_ context.Context, text string) (float64, float64, error) {
	v, ok := c.scores[text]
	if !ok {
		return 0, 0, errors.New("model refused text")
	}
	return v[0], v[1], nil
}

func TestAggregateConfidence(t *testing.T) {
	scorer := confidentScorer{scores: map[string][2]float64{
		text("a"): {0.6, 0.9},
		text("b"): {-0.2, 0.5},
		text("c"): {0.1, 1.7},
	}}
	articles := []models.Article{article("a"), article("b"), article("c"), article("d")}

	sum := NewAggregator().Aggregate(context.Background(), articles, scorer, unitWeighter{}, time.Now())
	require.Len(t, sum.Scored, 2)
	assert.Equal(t, 2, sum.Skipped)
	require.NotNil(t, sum.Confidence)
	assert.InDelta(t, 0.7, *sum.Confidence, 1e-12)
	assert.InDelta(t, 0.2, sum.Score, 1e-12)
}

func TestAggregateWithoutConfidence(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{text("a"): 0.5}}
	sum := NewAggregator().Aggregate(context.Background(), []models.Article{article("a")}, scorer, unitWeighter{}, time.Now())
	assert.Nil(t, sum.Confidence)
}
