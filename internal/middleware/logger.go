package middleware

import (
	"time"

	"gemini-relay/internal/logging"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per HTTP request, the terminal
// "Logged" phase of the request pipeline's state machine.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		principal, _ := c.Get("principal")
		credentialID, _ := c.Get("credential_id")
		outcome, _ := c.Get("outcome")
		extras := log.Fields{
			"status":        status,
			"latency_ms":    logging.DurationMS(latency),
			"method":        method,
			"path":          path,
			"principal":     principal,
			"credential_id": credentialID,
			"outcome":       outcome,
		}
		logging.WithReq(c, extras).Info("http_request")
	}
}
