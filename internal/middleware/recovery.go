package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	apperrors "gemini-relay/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Recovery returns a panic-recovery middleware for the gin engine. A
// recovered panic is answered with a 500 in the Internal APIError envelope,
// carrying a fresh correlation id that is also written to the log line.
func Recovery() gin.HandlerFunc {
	return RecoveryWithWriter(nil)
}

// RecoveryWithWriter returns a panic-recovery middleware that additionally
// invokes writer, for callers that want a custom response or side effect on
// top of the standard 500 response.
func RecoveryWithWriter(writer gin.RecoveryFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				correlationID := uuid.NewString()

				log.WithFields(log.Fields{
					"error":          err,
					"correlation_id": correlationID,
					"stack":          string(stack),
					"path":           c.Request.URL.Path,
					"method":         c.Request.Method,
					"client_ip":      c.ClientIP(),
					"user_agent":     c.Request.UserAgent(),
					"timestamp":      time.Now().Format(time.RFC3339),
				}).Error("Panic recovered")

				if writer != nil {
					writer(c, err)
				}

				apiErr := apperrors.NewForKind(apperrors.KindInternal, "Internal server error").WithCorrelationID(correlationID)
				payload, marshalErr := apiErr.ToJSON()
				if marshalErr != nil {
					c.AbortWithStatus(http.StatusInternalServerError)
					return
				}
				c.Data(http.StatusInternalServerError, "application/json", payload)
				c.Abort()
			}
		}()

		c.Next()
	}
}

// SafeGoWithContext launches fn in a goroutine with its own panic recovery,
// logging the recovered value under name instead of crashing the process.
// Background loops that outlive any single request (listener accept loops,
// the ACME renewal sweep, the scheduler health sweep) start this way so one
// bad tick doesn't take the whole process down.
func SafeGoWithContext(name string, fn func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				log.WithFields(log.Fields{
					"goroutine": name,
					"error":     err,
					"stack":     string(stack),
					"timestamp": time.Now().Format(time.RFC3339),
				}).Error("Named goroutine panic recovered")
			}
		}()
		fn()
	}()
}
