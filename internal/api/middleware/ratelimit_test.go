package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loan-engine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("blocks requests exceeding the burst", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}, testLogger)
		handler := rl.Middleware(ok)

		codes := make([]int, 3)
		for i := range codes {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "127.0.0.1:12345"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
			if rec.Code == http.StatusTooManyRequests {
				var response map[string]map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.Equal(t, "Rate limit exceeded", response["error"]["message"])
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("keeps a bucket per client", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}, testLogger)
		handler := rl.Middleware(ok)

		for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = ip
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("passes everything through when disabled", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(config.RateLimitConfig{Enabled: false, RPS: 0.001, Burst: 0}, testLogger)
		handler := rl.Middleware(ok)
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("extractIP handles various headers", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(config.RateLimitConfig{}, testLogger)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "192.168.1.1, 10.0.0.1")
		assert.Equal(t, "192.168.1.1", rl.extractIP(req))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		assert.Equal(t, "10.0.0.1", rl.extractIP(req))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "garbage")
		req.RemoteAddr = "127.0.0.1:12345"
		assert.Equal(t, "127.0.0.1", rl.extractIP(req))
	})

	t.Run("evicts idle limiters", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}, testLogger)
		now := time.Now()
		rl.allow("10.0.0.1", now.Add(-2*limiterIdleTTL))
		rl.allow("10.0.0.2", now)

		assert.Equal(t, 1, rl.evictIdle(now))
		assert.Len(t, rl.limiters, 1)
	})
}
