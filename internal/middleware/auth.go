package middleware

import (
	"net/http"

	"gemini-relay/internal/auth"
	apperrors "gemini-relay/internal/errors"
	"gemini-relay/internal/monitoring"
	"github.com/gin-gonic/gin"
)

// Auth verifies the inbound bearer JWT (component E) and stores the
// subject/rate-limit-override on the gin context for downstream middleware
// (the client rate limiter) and the pipeline. /health and /metrics are
// expected to be registered outside this middleware's route group (§6).
func Auth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondAuthFailure(c, "missing bearer token")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			respondAuthFailure(c, "invalid bearer token")
			return
		}

		c.Set("principal", claims.Subject)
		c.Set("rate_limit_override", claims.RateLimitOverride)
		c.Next()
	}
}

func respondAuthFailure(c *gin.Context, message string) {
	monitoring.AuthFailuresTotal.Inc()
	err := apperrors.NewForKind(apperrors.KindAuthFailure, message)
	payload, marshalErr := err.ToJSON()
	if marshalErr != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Data(http.StatusUnauthorized, "application/json", payload)
	c.Abort()
}
