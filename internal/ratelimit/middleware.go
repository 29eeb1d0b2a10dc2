package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Abdo12KM/nour-alma3refa/internal/metrics"
)

// clientIP prefers the forwarded address when behind a proxy.
func clientIP(c echo.Context) string {
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := c.Request().Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	return c.RealIP()
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter := l.Allow(clientIP(c))
			if !ok {
				metrics.RateLimited.Inc()
				secs := RetryAfterSeconds(retryAfter)
				h := c.Response().Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("X-RateLimit-Reset", secs)
				h.Set("Retry-After", secs)
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "Too many requests",
					"message": "Please try again later",
				})
			}
			return next(c)
		}
	}
}
