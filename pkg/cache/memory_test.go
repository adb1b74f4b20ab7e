package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func TestMemoryCache_TypedValues(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "p", point{X: 1, Y: 2.5}, time.Minute))
	var p point
	require.NoError(t, mc.Get(ctx, "p", &p))
	assert.Equal(t, point{X: 1, Y: 2.5}, p)

	require.NoError(t, mc.Set(ctx, "s", "plain", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Hour))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Hour))
	var v string
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", "3", time.Hour))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for _, k := range []string{"analysis:AAPL:return", "analysis:AAPL:sentiment", "analysis:MSFT:return"} {
		require.NoError(t, mc.Set(ctx, k, "x", time.Minute))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, "analysis:AAPL:*"))

	ok, err := mc.Exists(ctx, "analysis:AAPL:return", "analysis:AAPL:sentiment")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "analysis:MSFT:return")
	assert.True(t, ok)

	assert.Error(t, mc.DeleteByPattern(ctx, "[bad"))
}

func TestLayeredCache_ReadsThroughToRemote(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", point{X: 7}, time.Hour))
	var p point
	require.NoError(t, lc.Get(ctx, "k", &p))
	assert.Equal(t, 7, p.X)

	require.NoError(t, remote.Delete(ctx, "k"))
	p = point{}
	require.NoError(t, lc.Get(ctx, "k", &p), "served from L1")
	assert.Equal(t, 7, p.X)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &p), ErrCacheMiss)
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "analysis:AAPL:return:5000:30", GenerateKeyWithParams("analysis", "AAPL", "return", 5000, 30))
	assert.Equal(t, "analysis:AAPL:*", BuildPattern(GenerateKey("analysis", "AAPL")+":"))
}
