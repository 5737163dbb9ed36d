package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitedRouter(t *testing.T, requestsPerMinute int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter, err := NewMemoryRateLimiter(requestsPerMinute)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/limited", limiter, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestMemoryRateLimiter_AllowsWithinLimit(t *testing.T) {
	r := newRateLimitedRouter(t, 5)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMemoryRateLimiter_RejectsOverLimit(t *testing.T) {
	r := newRateLimitedRouter(t, 2)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		r.ServeHTTP(last, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, last.Body.String(), "rate_limit_exceeded")
}

func TestRedisRateLimiter_RequiresClient(t *testing.T) {
	_, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 10,
		StoreType:         RateLimitStoreRedis,
	})
	assert.Error(t, err)
}
