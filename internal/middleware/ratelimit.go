package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fixia-backend/internal/cache"
)

// RateLimit enforces limit requests per window per caller per route,
// delegating to the store-backed rate limiter. The caller is identified by
// user ID when authenticated, client IP otherwise. Fails open: if the
// limiter cannot decide, the request proceeds.
func RateLimit(svc *cache.Service, limit int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := UserID(r.Context())
			if identity == "" {
				identity = clientIP(r)
			}
			key := svc.Keys().RateLimit(identity, routePattern(r))

			result := svc.RateLimit(r.Context(), key, limit, window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))

			if !result.Allowed {
				retryAfter := result.ResetTime - time.Now().Unix()
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				logger.Info("rate limit exceeded",
					zap.String("identity", identity), zap.String("route", routePattern(r)))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success":    false,
					"error":      "Too many requests, please try again later",
					"retryAfter": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
