package patient

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/handler"
	"github.com/jwalitptl/care-scheduler/internal/middleware"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/privacy"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

type Service interface {
	Create(ctx context.Context, req *model.CreatePatientRequest) (*model.PatientProfile, error)
	Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.PatientProfile, error)
	List(ctx context.Context, actor model.Actor, page model.Pagination) ([]*model.PatientProfile, int, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest, actor model.Actor) (*model.PatientProfile, error)
	Delete(ctx context.Context, id uuid.UUID, actor model.Actor) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guard) {
	const res = model.ResourcePatients
	patients := r.Group("/patients")
	{
		patients.POST("", g.Protect(res, rbac.ActionCreate, h.CreatePatient)...)
		patients.GET("", g.Protect(res, rbac.ActionRead, h.ListPatients)...)
		patients.GET("/:id", g.Protect(res, rbac.ActionRead, h.GetPatient)...)
		patients.PUT("/:id", g.Protect(res, rbac.ActionUpdate, h.UpdatePatient)...)
		patients.DELETE("/:id", g.Protect(res, rbac.ActionDelete, h.DeletePatient)...)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
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

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) ListPatients(c *gin.Context) {
	page := handler.Page(c)
	items, total, err := h.service.List(c.Request.Context(), handler.Actor(c), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondPage(c, items, page, total)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	p, err := h.service.Update(c.Request.Context(), id, &req, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

// DeletePatient runs the erasure. Once the erasure record is written the
// erasure owns the audit entry for this request.
func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	err := h.service.Delete(c.Request.Context(), id, handler.Actor(c))
	if err == nil || errors.Is(err, privacy.ErrIncomplete) {
		middleware.MarkAuditRecorded(c)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"erased": id})
}
