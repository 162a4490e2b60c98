package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fixia-backend/internal/cache"
)

// cachedEnvelope is the exact shape serialized into the store for a cached
// HTTP response.
type cachedEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
}

// CacheResponseOptions controls the response cache middleware.
type CacheResponseOptions struct {
	// TTL for stored responses. Zero falls back to the short tier.
	TTL time.Duration
	// KeyFunc overrides the default method+URL+identity key derivation.
	KeyFunc func(r *http.Request) string
	// Condition gates caching per request; nil means always eligible.
	Condition func(r *http.Request) bool
	// SkipAuthenticated bypasses the cache for authenticated callers.
	SkipAuthenticated bool
	// OnHit/OnMiss are invoked per lookup, e.g. to feed metrics counters.
	OnHit  func()
	OnMiss func()
}

// CacheResponse serves cached JSON responses and captures cacheable ones.
// On a hit the downstream handler never executes. On a miss the handler's
// 2xx JSON body is stored in a detached goroutine after the response has
// been sent; the write is intentionally not joined before request
// completion, so a store failure can only ever cost the speedup.
func CacheResponse(svc *cache.Service, logger *zap.Logger, opts CacheResponseOptions) func(http.Handler) http.Handler {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = svc.TTL().ShortTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Condition != nil && !opts.Condition(r) {
				next.ServeHTTP(w, r)
				return
			}
			if opts.SkipAuthenticated && UserID(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}

			key := responseKey(svc, r, opts.KeyFunc)

			if env, ok := cache.Typed[cachedEnvelope](r.Context(), svc, key); ok && env.StatusCode != 0 && env.Data != nil {
				if opts.OnHit != nil {
					opts.OnHit()
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.Header().Set("X-Cache-Key", key)
				w.WriteHeader(env.StatusCode)
				w.Write(env.Data)
				return
			}

			if opts.OnMiss != nil {
				opts.OnMiss()
			}
			w.Header().Set("X-Cache", "MISS")
			w.Header().Set("X-Cache-Key", key)

			rec := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 || rec.body.Len() == 0 {
				return
			}

			env := cachedEnvelope{StatusCode: rec.statusCode, Data: append([]byte(nil), rec.body.Bytes()...)}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if !svc.Set(ctx, key, env, ttl) {
					logger.Debug("response not cached", zap.String("key", key))
				}
			}()
		})
	}
}

// InvalidateCacheOptions declares what a successful mutating request
// invalidates.
type InvalidateCacheOptions struct {
	// Keys returns explicit keys to delete for this request.
	Keys func(r *http.Request) []string
	// InvalidateUser also runs the user-scoped invalidation helper for the
	// authenticated caller.
	InvalidateUser bool
	// ServiceID extracts a service ID for the service-scoped helper;
	// nil skips it.
	ServiceID func(r *http.Request) string
}

// InvalidateCache schedules cache invalidation after a mutating handler
// responds with success. Deletion runs in a detached goroutine and is
// best-effort: a client may briefly observe stale data right after its own
// successful write. That race is accepted, matching the fire-and-forget
// write path.
func InvalidateCache(svc *cache.Service, logger *zap.Logger, opts InvalidateCacheOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return
			}

			var keys []string
			if opts.Keys != nil {
				keys = opts.Keys(r)
			}
			userID := UserID(r.Context())
			var serviceID string
			if opts.ServiceID != nil {
				serviceID = opts.ServiceID(r)
			}

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				for _, key := range keys {
					svc.Del(ctx, key)
				}
				if opts.InvalidateUser && userID != "" {
					svc.InvalidateUser(ctx, userID)
				}
				if serviceID != "" || opts.InvalidateUser {
					svc.InvalidateServices(ctx, serviceID, userID)
				}
				logger.Debug("cache invalidated",
					zap.Int("explicitKeys", len(keys)),
					zap.String("serviceId", serviceID),
					zap.String("userId", userID))
			}()
		})
	}
}

func responseKey(svc *cache.Service, r *http.Request, keyFunc func(*http.Request) string) string {
	if keyFunc != nil {
		return keyFunc(r)
	}
	return svc.Keys().Response(r.Method, r.URL.RequestURI(), CallerIdentity(r.Context()))
}

// captureWriter tees the response body so it can be cached after emission.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.statusCode = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.body.Write(b)
	return cw.ResponseWriter.Write(b)
}
