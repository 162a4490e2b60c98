package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"fixia-backend/pkg/api"
)

const identityKey contextKey = "identity"

// AnonymousIdentity is the caller identity used when no valid token is
// presented. Cache and rate-limit keys use it so anonymous traffic shares
// one namespace.
const AnonymousIdentity = "anonymous"

// claims are the token claims this service cares about.
type claims struct {
	jwt.RegisteredClaims
}

// Identity resolves the caller from a Bearer token and stores the user ID
// in the request context. Requests without a valid token proceed as
// anonymous: marketplace browsing is public, and protected routes layer
// RequireAuth on top.
func Identity(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := resolveUser(r, secret, logger)
			if userID != "" {
				ctx := context.WithValue(r.Context(), identityKey, userID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests that did not authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" {
			api.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a context carrying userID as the caller identity.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey, userID)
}

// UserID returns the authenticated user ID, or "" for anonymous callers.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(string); ok {
		return id
	}
	return ""
}

// CallerIdentity returns the user ID or AnonymousIdentity.
func CallerIdentity(ctx context.Context) string {
	if id := UserID(ctx); id != "" {
		return id
	}
	return AnonymousIdentity
}

func resolveUser(r *http.Request, secret string, logger *zap.Logger) string {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		logger.Debug("invalid bearer token", zap.Error(err))
		return ""
	}
	return c.Subject
}
