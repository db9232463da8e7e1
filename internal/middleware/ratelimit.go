// File: internal/middleware/ratelimit.go
package middleware

import (
	"fmt"
	"math"
	"net/http"

	"github.com/iyunix/go-chatwidget/internal/observability"
	"github.com/iyunix/go-chatwidget/internal/protocol"
	"github.com/iyunix/go-chatwidget/internal/ratelimit"
)

// RateLimitMiddleware creates a rate limiting middleware keyed by client IP.
func RateLimitMiddleware(limiter *ratelimit.Limiter, name string, logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ratelimit.GetClientIP(r)
			info := limiter.Allow(clientIP)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))

			if !info.Allowed {
				observability.RateLimited()
				logger.Warn("rate limited", "route", name, "client_ip", clientIP)

				if info.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(info.RetryAfter.Seconds())))
				}
				WriteErrorEvent(w, http.StatusTooManyRequests, "Too many requests. Please slow down.", protocol.CodeRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
