package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"fixia-backend/pkg/api"
)

// Recovery middleware handles panics and converts them to proper HTTP error responses
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.String("requestId", RequestIDFrom(r.Context())),
						zap.Any("panic", err),
						zap.ByteString("stack", debug.Stack()))

					// Check if response has already been written
					if w.Header().Get("Content-Type") == "" {
						api.Error(w, http.StatusInternalServerError, "Internal server error")
					}
					// If response was already partially written, there's nothing
					// we can do; the connection will be closed by the server.
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
