package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/audit"
)

const maxAuditedBody = 64 << 10

// Origin stores the client address and agent on the request context so
// records written by services carry them too.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithOrigin(c.Request.Context(), audit.Origin{
			Address: c.ClientIP(),
			Agent:   c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type AuditMiddleware struct {
	auditor audit.Recorder
}

func NewAuditMiddleware(auditor audit.Recorder) *AuditMiddleware {
	return &AuditMiddleware{auditor: auditor}
}

// Audit writes one record per request after the handler has run. The body is
// sanitized by the trail before it is stored.
func (m *AuditMiddleware) Audit(resource string, action model.AuditAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := captureBody(c)

		c.Next()

		if c.GetBool(ContextAuditRecorded) {
			return
		}

		status := c.Writer.Status()
		outcome := "success"
		if status >= 400 {
			outcome = "failure"
		}
		detail := map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"outcome": outcome,
		}
		if body != nil {
			detail["body"] = body
		}
		if q := c.Request.URL.Query(); len(q) > 0 {
			query := make(map[string]interface{}, len(q))
			for k, v := range q {
				query[k] = v[0]
			}
			detail["query"] = query
		}

		resourceID := c.Param("id")
		if resourceID == "" {
			resourceID = c.GetString(ContextAuditResourceID)
		}
		var actorID string
		if actor, ok := ActorFrom(c); ok {
			actorID = actor.UserID.String()
		}

		m.auditor.Record(c.Request.Context(), audit.Entry{
			ActorID:    actorID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			Detail:     detail,
			Origin:     c.ClientIP(),
			Agent:      c.Request.UserAgent(),
		})
	}
}

// captureBody reads a JSON body for the audit detail and puts it back for the
// handler. Anything that is not a JSON object is left out.
func captureBody(c *gin.Context) map[string]interface{} {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditedBody+1))
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
	if len(raw) > maxAuditedBody {
		return map[string]interface{}{"truncated": true}
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}
