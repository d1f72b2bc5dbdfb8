package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loan-engine/internal/api/handler/dto"
	mw "loan-engine/internal/api/middleware"
	"loan-engine/internal/config"
	"loan-engine/internal/pkg/apperrors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-key"

func TestGenerateBearerToken(t *testing.T) {
	handler := NewAuthHandler(config.AuthConfig{Enabled: true, JWTSecret: testSecret, TokenTTL: time.Hour}, logger)
	fixed := time.Now().Truncate(time.Second)
	handler.now = func() time.Time { return fixed }

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		handler.GenerateBearerToken(w, req)
		return w
	}

	t.Run("successfully generates an operator token", func(t *testing.T) {
		w := post(`{"username":"op-7","name":"Maria Lopez"}`)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.TokenResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, strings.HasPrefix(resp.Token, "Bearer "))
		assert.True(t, fixed.Add(time.Hour).Equal(resp.ExpiresAt))

		var claims mw.OperatorClaims
		_, err := jwt.ParseWithClaims(strings.TrimPrefix(resp.Token, "Bearer "), &claims, func(*jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "op-7", claims.Subject)
		assert.Equal(t, "Maria Lopez", claims.Name)
	})

	t.Run("fails with invalid request body", func(t *testing.T) {
		w := post("invalid json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Contains(t, resp.Error.Message, apperrors.ErrInvalidArgument.Error())
	})

	t.Run("fails with missing username", func(t *testing.T) {
		w := post(`{"username":"  "}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "username", resp.Error.Field)
	})

	t.Run("fails without a configured secret", func(t *testing.T) {
		h := NewAuthHandler(config.AuthConfig{}, logger)
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username":"x"}`))
		w := httptest.NewRecorder()

		h.GenerateBearerToken(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
