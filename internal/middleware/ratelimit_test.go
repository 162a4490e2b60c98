package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixia-backend/internal/cache"
	"fixia-backend/internal/config"
)

func TestRateLimit_AllowsUntilLimitThenDenies(t *testing.T) {
	// Arrange
	svc := newTestCache(t)
	handler := RateLimit(svc, 3, time.Minute, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Act + Assert - three allowed with a counting-down remaining header
	for i, wantRemaining := range []int{2, 1, 0} {
		rec := serve()
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(wantRemaining), rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}

	// The fourth request is rejected with the standard envelope.
	rec := serve()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Too many requests, please try again later", body["error"])
	assert.NotNil(t, body["retryAfter"])
}

func TestRateLimit_IdentitiesAreIndependent(t *testing.T) {
	// Arrange
	svc := newTestCache(t)
	handler := RateLimit(svc, 1, time.Minute, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	serve := func(addr string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Act - exhaust one caller's budget
	require.Equal(t, http.StatusOK, serve("1.2.3.4:1000"))
	require.Equal(t, http.StatusTooManyRequests, serve("1.2.3.4:1000"))

	// Assert - a different caller is unaffected
	assert.Equal(t, http.StatusOK, serve("5.6.7.8:1000"))
}

func TestRateLimit_AuthenticatedCallerKeyedByUserID(t *testing.T) {
	// Arrange
	svc := newTestCache(t)
	handler := RateLimit(svc, 1, time.Minute, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	serve := func(userID, addr string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
		req.RemoteAddr = addr
		if userID != "" {
			req = authenticated(req, userID)
		}
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Act - the same user from different addresses shares one budget
	require.Equal(t, http.StatusOK, serve("u1", "1.2.3.4:1000"))
	assert.Equal(t, http.StatusTooManyRequests, serve("u1", "9.9.9.9:1000"))

	// Assert - anonymous traffic from the first address is unaffected
	assert.Equal(t, http.StatusOK, serve("", "1.2.3.4:1000"))
}

func TestRateLimit_FailsOpenWhenStoreDown(t *testing.T) {
	// Arrange - the no-op store never accumulates counts
	svc := cache.NewService(cache.NewNoopStore(), config.Default().Cache, zap.NewNop())
	handler := RateLimit(svc, 1, time.Minute, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	// Act + Assert - far past the limit, everything still goes through
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
		req.RemoteAddr = "1.2.3.4:1000"
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
