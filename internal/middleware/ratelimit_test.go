package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gemini-relay/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitAllowsThenRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit(ratelimit.New(1), 1000, 1000))
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "OK")
	})

	req1 := httptest.NewRequest("GET", "/test", nil)
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)
	assert.Equal(t, http.StatusOK, w1.Code)

	req2 := httptest.NewRequest("GET", "/test", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.NotEmpty(t, w2.Header().Get("Retry-After"))
	assert.Equal(t, "0", w2.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w2.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w2.Header().Get("X-RateLimit-Reset"))
}
