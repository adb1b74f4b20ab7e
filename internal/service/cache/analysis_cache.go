// Package cache keeps recently computed analyses so repeated requests for the
// same ticker inside the TTL skip the model service and the simulation.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	pkgcache "StockPulse/pkg/cache"
)

const keyPrefix = "analysis"

// Key identifies one cached analysis.
type Key struct {
	Ticker      string
	Strategy    string
	Simulations int
	Days        int
}

func (k Key) String() string {
	return pkgcache.GenerateKeyWithParams(keyPrefix, strings.ToUpper(k.Ticker), k.Strategy, k.Simulations, k.Days)
}

// AnalysisCache stores AnalysisResult values in a generic cache backend.
type AnalysisCache struct {
	backend pkgcache.Service
	ttl     time.Duration
}

// NewAnalysisCache returns nil when ttl is not positive; a nil cache always misses.
func NewAnalysisCache(backend pkgcache.Service, ttl time.Duration) *AnalysisCache {
	if backend == nil || ttl <= 0 {
		return nil
	}
	return &AnalysisCache{backend: backend, ttl: ttl}
}

// Get returns the cached result for k. ok is false on a miss.
func (c *AnalysisCache) Get(ctx context.Context, k Key) (*models.AnalysisResult, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	var r models.AnalysisResult
	if err := c.backend.Get(ctx, k.String(), &r); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &r, true, nil
}

func (c *AnalysisCache) Set(ctx context.Context, k Key, r *models.AnalysisResult) error {
	if c == nil || r == nil {
		return nil
	}
	return c.backend.Set(ctx, k.String(), r, c.ttl)
}

// Invalidate drops every cached variant for ticker.
func (c *AnalysisCache) Invalidate(ctx context.Context, ticker string) error {
	if c == nil {
		return nil
	}
	return c.backend.DeleteByPattern(ctx, pkgcache.BuildPattern(pkgcache.GenerateKey(keyPrefix, strings.ToUpper(ticker))+":"))
}

func (c *AnalysisCache) Close() error {
	if c == nil {
		return nil
	}
	return c.backend.Close()
}
