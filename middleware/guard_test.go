package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invozo/authcore"
)

type stubValidator struct {
	result *authcore.AuthResult
	err    error
	seen   string
}

func (s *stubValidator) ValidateAccess(_ context.Context, token string) (*authcore.AuthResult, error) {
	s.seen = token
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestRequireAccessPassesIdentityThrough(t *testing.T) {
	v := &stubValidator{result: &authcore.AuthResult{UserID: "u1", Email: "alice@example.com", Role: "admin"}}

	var got *authcore.AuthResult
	handler := RequireAccess(v, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := FromContext(r.Context())
		require.True(t, ok)
		got = identity
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tok-123", v.seen)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
}

func TestRequireAccessRejectsMissingHeader(t *testing.T) {
	v := &stubValidator{result: &authcore.AuthResult{UserID: "u1"}}
	handler := RequireAccess(v, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "header %q", header)
	}
}

func TestRequireAccessRejectsInvalidToken(t *testing.T) {
	v := &stubValidator{err: errors.New("bad token")}
	handler := RequireAccess(v, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestFromContextWithoutGuard(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
