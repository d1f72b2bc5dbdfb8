package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loan-engine/internal/config"
	"loan-engine/internal/domain/loan"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "testsecret"
	cfg := config.AuthConfig{Enabled: true, JWTSecret: secret}

	var seen loan.Operator
	var seenOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	serve := func(cfg config.AuthConfig, authHeader string) *httptest.ResponseRecorder {
		seen, seenOK = loan.Operator{}, false
		req := httptest.NewRequest(http.MethodGet, "/loans", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		AuthMiddleware(cfg, testLogger)(next).ServeHTTP(rec, req)
		return rec
	}

	t.Run("should pass the anonymous operator when disabled", func(t *testing.T) {
		rec := serve(config.AuthConfig{Enabled: false}, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, seenOK)
		assert.Equal(t, AnonymousOperator, seen)
	})

	t.Run("should reject request with missing Authorization header", func(t *testing.T) {
		rec := serve(cfg, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, seenOK)
	})

	t.Run("should reject a malformed header", func(t *testing.T) {
		rec := serve(cfg, "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject request with invalid token", func(t *testing.T) {
		rec := serve(cfg, "Bearer invalidtoken")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		token := signToken(t, "other", jwt.SigningMethodHS256, OperatorClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "op-1"},
		})
		rec := serve(cfg, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, OperatorClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "op-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		})
		rec := serve(cfg, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject a token without subject", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, OperatorClaims{Name: "Nobody"})
		rec := serve(cfg, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should put the operator from a valid token into the context", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, OperatorClaims{
			Name: "Maria Lopez",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "op-7",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		rec := serve(cfg, "bearer "+token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, seenOK)
		assert.Equal(t, loan.Operator{ID: "op-7", Name: "Maria Lopez"}, seen)
	})

	t.Run("should fall back to the subject as name", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, OperatorClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "op-9"},
		})
		rec := serve(cfg, "Bearer "+token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, loan.Operator{ID: "op-9", Name: "op-9"}, seen)
	})
}
