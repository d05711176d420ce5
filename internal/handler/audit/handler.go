package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduler/internal/handler"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

type Service interface {
	List(ctx context.Context, filter model.AuditFilter, page model.Pagination) ([]*model.AuditLog, int, error)
	Export(ctx context.Context, filter model.AuditFilter, w io.Writer) (int, error)
}

type Handler struct {
	service Service
	clock   func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, clock: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guard) {
	const res = model.ResourceAuditLogs
	audit := r.Group("/audit")
	{
		audit.GET("/logs", g.Protect(res, rbac.ActionRead, h.ListLogs)...)
		audit.GET("/export", g.Protect(res, rbac.ActionExport, h.ExportLogs)...)
	}
}

func bindFilter(c *gin.Context) (model.AuditFilter, bool) {
	var filter model.AuditFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithError(c, apperrors.Validationf("invalid filter: %v", err))
		return filter, false
	}
	if filter.Action != "" && !filter.Action.Valid() {
		httputil.RespondWithError(c, apperrors.Validationf("unknown action %q", filter.Action))
		return filter, false
	}
	return filter, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	page := handler.Page(c)
	logs, total, err := h.service.List(c.Request.Context(), filter, page)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Persistence("list audit logs", err))
		return
	}
	handler.RespondPage(c, logs, page, total)
}

// ExportLogs answers with a CSV attachment. The file is built in memory so a
// failing store still gets a proper error response.
func (h *Handler) ExportLogs(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if _, err := h.service.Export(c.Request.Context(), filter, &buf); err != nil {
		httputil.RespondWithError(c, apperrors.Persistence("export audit logs", err))
		return
	}
	name := fmt.Sprintf("audit-%s.csv", h.clock().UTC().Format("20060102T150405Z"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
