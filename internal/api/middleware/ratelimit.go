package middleware

import (
	"net/http"

	"tradecore/pkg/ratelimit"
)

// RateLimit ограничивает частоту запросов по IP клиента.
// Всплески вебхуков укладываются в burst; сверх него отдаётся 429.
// nil limiter выключает ограничение.
func RateLimit(limiter *ratelimit.KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
