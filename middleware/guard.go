// Package middleware carries the net/http access-token guard. It is the
// only HTTP-aware code in the module; routing and the rest of the HTTP
// surface stay with the embedding application.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/invozo/authcore"
)

// Validator is the slice of the service the guard needs.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*authcore.AuthResult, error)
}

type authResultContextKey struct{}

// RequireAccess wraps next so only requests carrying a valid bearer
// access token get through. The decoded identity is attached to the
// request context for FromContext.
func RequireAccess(v Validator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		result, err := v.ValidateAccess(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), authResultContextKey{}, result)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the identity attached by RequireAccess.
func FromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	result, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return result, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
