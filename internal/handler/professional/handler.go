package professional

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/handler"
	"github.com/jwalitptl/care-scheduler/internal/middleware"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

type Service interface {
	Create(ctx context.Context, req *model.CreateProfessionalRequest) (*model.Professional, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Professional, error)
	List(ctx context.Context, page model.Pagination) ([]*model.Professional, int, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateProfessionalRequest) (*model.Professional, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guard) {
	const res = model.ResourceProfessionals
	professionals := r.Group("/professionals")
	{
		professionals.POST("", g.Protect(res, rbac.ActionCreate, h.CreateProfessional)...)
		professionals.GET("", g.Protect(res, rbac.ActionRead, h.ListProfessionals)...)
		professionals.GET("/:id", g.Protect(res, rbac.ActionRead, h.GetProfessional)...)
		professionals.PUT("/:id", g.Protect(res, rbac.ActionUpdate, h.UpdateProfessional)...)
	}
}

func (h *Handler) CreateProfessional(c *gin.Context) {
	var req model.CreateProfessionalRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	p, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	middleware.SetAuditResourceID(c, p.ID.String())
	httputil.RespondWithCreated(c, p)
}

func (h *Handler) GetProfessional(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) ListProfessionals(c *gin.Context) {
	page := handler.Page(c)
	items, total, err := h.service.List(c.Request.Context(), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondPage(c, items, page, total)
}

func (h *Handler) UpdateProfessional(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateProfessionalRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	p, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}
