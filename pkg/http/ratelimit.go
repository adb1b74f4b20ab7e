package http

import (
	"github.com/labstack/echo/v4"
)

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once a client's budget is spent.
// Clients are keyed by Echo's RealIP.
func RateLimit(l Limiter, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			if !l.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return AppErrorResponse(c, TooManyRequestsError("too many requests, slow down"))
			}
			return next(c)
		}
	}
}
