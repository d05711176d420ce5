package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const (
	ContextActor = "actor"
	// ContextAuditResourceID lets a handler name the resource it created so the
	// audit record can reference it.
	ContextAuditResourceID = "audit_resource_id"
	// ContextAuditRecorded marks requests whose service already wrote the
	// audit record.
	ContextAuditRecorded = "audit_recorded"
)

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func SetAuditResourceID(c *gin.Context, id string) {
	c.Set(ContextAuditResourceID, id)
}

func MarkAuditRecorded(c *gin.Context) {
	c.Set(ContextAuditRecorded, true)
}
