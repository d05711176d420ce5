// Package handler holds helpers shared by the resource handlers.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/middleware"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

// Guard composes the authenticate, authorize and audit steps in front of a
// handler.
type Guard struct {
	Auth  *middleware.AuthMiddleware
	Audit *middleware.AuditMiddleware
}

// Protect returns the full chain for a route on resource guarded by action.
func (g Guard) Protect(resource string, action rbac.Action, h gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		g.Auth.Authenticate(),
		g.Auth.Authorize(resource, action),
		g.Audit.Audit(resource, action.AuditAction()),
		h,
	}
}

// BindJSON binds the body into dst and answers 400 on failure.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return false
	}
	return true
}

// ParamID parses the named path parameter as a uuid.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validationf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// QueryID parses an optional uuid query parameter.
func QueryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validationf("invalid %s", name))
		return nil, false
	}
	return &id, true
}

// Page reads page and limit from the query string. Out of range values fall
// back to the defaults.
func Page(c *gin.Context) model.Pagination {
	var p model.Pagination
	_ = c.ShouldBindQuery(&p)
	return p.Normalize()
}

// Actor returns the authenticated actor. Routes behind Guard always have one.
func Actor(c *gin.Context) model.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

// RespondPage writes a paged envelope.
func RespondPage(c *gin.Context, items interface{}, page model.Pagination, total int) {
	httputil.RespondWithPagination(c, items, page.Page, page.Limit, total)
}
