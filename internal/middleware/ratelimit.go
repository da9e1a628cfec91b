package middleware

import (
	"net/http"
	"strconv"
	"time"

	apperrors "gemini-relay/internal/errors"
	"gemini-relay/internal/monitoring"
	"gemini-relay/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit wires the per-principal fixed-window limiter (component D) in
// front of the request, with a global token-bucket smoothing guard ahead of
// it, mirroring the teacher's global-then-per-key layering in
// RateLimiterAutoKey. The principal comes from Auth (JWT sub claim); an
// unauthenticated caller falls back to client IP.
func RateLimit(limiter *ratelimit.Limiter, globalRPS, globalBurst int) gin.HandlerFunc {
	if globalRPS <= 0 {
		globalRPS = 1000
	}
	if globalBurst <= 0 {
		globalBurst = 2000
	}
	global := rate.NewLimiter(rate.Limit(globalRPS), globalBurst)

	return func(c *gin.Context) {
		if !global.Allow() {
			respondRateLimited(c, 1)
			return
		}

		principal, _ := c.Get("principal")
		key, _ := principal.(string)
		if key == "" {
			key = c.ClientIP()
		}

		override, _ := c.Get("rate_limit_override")
		limit, _ := override.(int)

		ok, remaining, resetAt := limiter.Allow(key, limit)
		monitoring.RateLimitKeysGauge.Set(float64(limiter.Size()))
		effectiveLimit := limit
		if effectiveLimit <= 0 {
			effectiveLimit = limiter.DefaultLimit()
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(effectiveLimit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if !ok {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			monitoring.ClientRateLimitedTotal.WithLabelValues(key).Inc()
			respondRateLimited(c, retryAfter)
			return
		}
		c.Next()
	}
}

func respondRateLimited(c *gin.Context, retryAfterSeconds int) {
	err := apperrors.NewForKind(apperrors.KindClientRateLimit, "rate limit exceeded").WithRetryAfter(retryAfterSeconds)
	payload, marshalErr := err.ToJSON()
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	if marshalErr != nil {
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	c.Data(http.StatusTooManyRequests, "application/json", payload)
	c.Abort()
}
