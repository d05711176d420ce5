package appointment

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/handler"
	"github.com/jwalitptl/care-scheduler/internal/middleware"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

type Scheduler interface {
	Propose(ctx context.Context, req *model.CreateAppointmentRequest, actor model.Actor) (*model.Appointment, error)
	Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error)
	List(ctx context.Context, actor model.Actor, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error)
	Update(ctx context.Context, id uuid.UUID, patch *model.UpdateAppointmentRequest) (*model.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor model.Actor, reason string) (*model.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, target model.AppointmentStatus) (*model.Appointment, error)
}

type Handler struct {
	service Scheduler
}

func NewHandler(service Scheduler) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guard) {
	const res = model.ResourceAppointments
	appointments := r.Group("/appointments")
	{
		appointments.GET("", g.Protect(res, rbac.ActionRead, h.ListAppointments)...)
		appointments.GET("/:id", g.Protect(res, rbac.ActionRead, h.GetAppointment)...)
		appointments.POST("", g.Protect(res, rbac.ActionCreate, h.CreateAppointment)...)
		appointments.PUT("/:id", g.Protect(res, rbac.ActionUpdate, h.UpdateAppointment)...)
		appointments.PATCH("/:id/cancel", g.Protect(res, rbac.ActionCancel, h.CancelAppointment)...)
		appointments.PATCH("/:id/status", g.Protect(res, rbac.ActionTransition, h.TransitionAppointment)...)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appt, err := h.service.Propose(c.Request.Context(), &req, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	middleware.SetAuditResourceID(c, appt.ID.String())
	httputil.RespondWithCreated(c, appt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	appt, err := h.service.Get(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	page := handler.Page(c)

	items, total, err := h.service.List(c.Request.Context(), handler.Actor(c), filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondPage(c, items, page, total)
}

func parseFilter(c *gin.Context) (model.AppointmentFilter, error) {
	var filter model.AppointmentFilter
	for name, dst := range map[string]**uuid.UUID{
		"patient_id":      &filter.PatientID,
		"professional_id": &filter.ProfessionalID,
	} {
		if raw := c.Query(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return filter, apperrors.Validationf("invalid %s", name)
			}
			*dst = &id
		}
	}
	if raw := c.Query("status"); raw != "" {
		status := model.AppointmentStatus(raw)
		if !status.Valid() {
			return filter, apperrors.Validationf("invalid status %q", raw)
		}
		filter.Status = status
	}
	if raw := c.Query("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, apperrors.Validation("date must be YYYY-MM-DD")
		}
		filter.Day = &day
	}
	return filter, nil
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appt, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	// the reason is optional, so an empty body is fine
	var req model.CancelAppointmentRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	appt, err := h.service.Cancel(c.Request.Context(), id, handler.Actor(c), req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appt)
}

func (h *Handler) TransitionAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.TransitionAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appt, err := h.service.Transition(c.Request.Context(), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appt)
}
