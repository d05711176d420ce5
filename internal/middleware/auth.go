package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/audit"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

// Authenticator resolves a bearer token to an actor.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Actor, error)
}

type AuthMiddleware struct {
	authn   Authenticator
	auditor audit.Recorder
}

func NewAuthMiddleware(authn Authenticator, auditor audit.Recorder) *AuthMiddleware {
	return &AuthMiddleware{authn: authn, auditor: auditor}
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Authenticate rejects requests without a valid bearer token. Rejections are
// audited as denied access with no actor.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			m.deny(c, "", "missing bearer token", apperrors.Authentication("missing or malformed authorization header"))
			return
		}
		actor, err := m.authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindAuthentication) {
				m.deny(c, "", "invalid token", err)
				return
			}
			httputil.RespondWithError(c, err)
			return
		}
		c.Set(ContextActor, actor)
		c.Next()
	}
}

// OptionalAuthenticate attaches the actor when a valid token is present and
// lets anonymous requests through.
func (m *AuthMiddleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c); ok {
			if actor, err := m.authn.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(ContextActor, actor)
			}
		}
		c.Next()
	}
}

// Authorize enforces the role matrix for (resource, action).
func (m *AuthMiddleware) Authorize(resource string, action rbac.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			m.deny(c, "", "unauthenticated", apperrors.Authentication("authentication required"))
			return
		}
		if !rbac.Authorize(actor.Role, resource, action) {
			m.recordDenied(c, actor.UserID.String(), resource, action.AuditAction(), "role "+string(actor.Role)+" lacks "+string(action), http.StatusForbidden)
			httputil.RespondWithError(c, apperrors.Authorization("insufficient permissions"))
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) deny(c *gin.Context, actorID, reason string, err error) {
	m.recordDenied(c, actorID, resourceFromPath(c), actionFromMethod(c.Request.Method), reason, http.StatusUnauthorized)
	httputil.RespondWithError(c, err)
}

func (m *AuthMiddleware) recordDenied(c *gin.Context, actorID, resource string, action model.AuditAction, reason string, status int) {
	m.auditor.Record(c.Request.Context(), audit.Entry{
		ActorID:    actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: c.Param("id"),
		Detail: map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"outcome": "denied",
			"reason":  reason,
		},
		Origin: c.ClientIP(),
		Agent:  c.Request.UserAgent(),
	})
}

func actionFromMethod(method string) model.AuditAction {
	switch method {
	case http.MethodPost:
		return model.AuditActionCreate
	case http.MethodPut, http.MethodPatch:
		return model.AuditActionUpdate
	case http.MethodDelete:
		return model.AuditActionDelete
	default:
		return model.AuditActionRead
	}
}

// resourceFromPath takes the first segment after the version prefix.
func resourceFromPath(c *gin.Context) string {
	path := strings.TrimPrefix(c.Request.URL.Path, "/api/v1/")
	segment, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if segment == "audit" {
		return model.ResourceAuditLogs
	}
	return segment
}
