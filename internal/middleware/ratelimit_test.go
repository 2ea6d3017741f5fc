package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows a full bucket", func(t *testing.T) {
		limiter := NewRateLimiter(10)

		for i := 0; i < 5; i++ {
			d := limiter.Allow("10.0.0.1")
			assert.True(t, d.Allowed)
			assert.Equal(t, 10-i-1, d.Remaining)
		}
	})

	t.Run("blocks once the bucket is empty", func(t *testing.T) {
		limiter := NewRateLimiter(5)

		for i := 0; i < 5; i++ {
			limiter.Allow("10.0.0.2")
		}

		d := limiter.Allow("10.0.0.2")
		assert.False(t, d.Allowed)
		assert.Zero(t, d.Remaining)
		assert.InDelta(t, 12*time.Second, d.RetryAfter, float64(time.Second))
	})

	t.Run("tracks keys separately", func(t *testing.T) {
		limiter := NewRateLimiter(5)

		for i := 0; i < 5; i++ {
			limiter.Allow("10.0.0.3")
		}

		assert.True(t, limiter.Allow("10.0.0.4").Allowed)
	})

	t.Run("reports when the bucket is full again", func(t *testing.T) {
		limiter := NewRateLimiter(60)

		d := limiter.Allow("10.0.0.5")
		assert.WithinDuration(t, time.Now().Add(time.Second), d.ResetAt, 200*time.Millisecond)
	})
}

func TestPublicRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		handler := NewPublicRateLimitMiddleware(100).Handler(ok)

		req := httptest.NewRequest("GET", "/api/public/mentors/rankings", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("returns 429 when rate limited", func(t *testing.T) {
		handler := NewPublicRateLimitMiddleware(2).Handler(ok)

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "192.0.2.7:5000"
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.0.2.7:6000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("zero limit disables", func(t *testing.T) {
		handler := NewPublicRateLimitMiddleware(0).Handler(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})
}
