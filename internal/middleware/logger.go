package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

// Logger logs one line per request. Bodies are never logged since they may
// carry personal data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if actor, ok := ActorFrom(c); ok {
			fields = append(fields, "actor_id", actor.UserID.String(), "role", string(actor.Role))
		}

		switch {
		case status >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			log.Error(err, "server error", fields...)
		case status >= 400:
			log.Warn("client error", fields...)
		default:
			log.Info("request processed", fields...)
		}
	}
}
