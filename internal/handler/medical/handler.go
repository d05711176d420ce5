package medical

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
	Create(ctx context.Context, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error)
	Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.MedicalRecord, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateMedicalRecordRequest) (*model.MedicalRecord, error)
	List(ctx context.Context, actor model.Actor, patientID *uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error)
	History(ctx context.Context, actor model.Actor, patientID uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guard) {
	const res = model.ResourceMedicalRecords
	records := r.Group("/medical-records")
	{
		records.POST("", g.Protect(res, rbac.ActionCreate, h.CreateRecord)...)
		records.GET("", g.Protect(res, rbac.ActionRead, h.ListRecords)...)
		records.GET("/:id", g.Protect(res, rbac.ActionRead, h.GetRecord)...)
		records.PUT("/:id", g.Protect(res, rbac.ActionUpdate, h.UpdateRecord)...)
		records.GET("/patient/:patientId", g.Protect(res, rbac.ActionRead, h.PatientHistory)...)
	}
}

func (h *Handler) CreateRecord(c *gin.Context) {
	var req model.CreateMedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	rec, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	middleware.SetAuditResourceID(c, rec.ID.String())
	httputil.RespondWithCreated(c, rec)
}

func (h *Handler) GetRecord(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	rec, err := h.service.Get(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rec)
}

func (h *Handler) UpdateRecord(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateMedicalRecordRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	rec, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rec)
}

func (h *Handler) ListRecords(c *gin.Context) {
	patientID, ok := handler.QueryID(c, "patient_id")
	if !ok {
		return
	}
	page := handler.Page(c)
	items, total, err := h.service.List(c.Request.Context(), handler.Actor(c), patientID, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondPage(c, items, page, total)
}

func (h *Handler) PatientHistory(c *gin.Context) {
	patientID, ok := handler.ParamID(c, "patientId")
	if !ok {
		return
	}
	// the record trail is about the patient, not a single record
	middleware.SetAuditResourceID(c, patientID.String())
	page := handler.Page(c)
	items, total, err := h.service.History(c.Request.Context(), handler.Actor(c), patientID, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondPage(c, items, page, total)
}
