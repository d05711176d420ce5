package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

// Recovery turns panics into a 500 envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Errorf("panic: %v", r), "request panic recovered",
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(ContextRequestID),
				)
				httputil.RespondWithError(c, apperrors.Persistence("handle request", fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
