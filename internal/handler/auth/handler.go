package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduler/internal/handler"
	"github.com/jwalitptl/care-scheduler/internal/middleware"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

type Service interface {
	Register(ctx context.Context, req *model.RegisterRequest, by *model.Actor) (*model.User, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error)
	Logout(ctx context.Context, actor model.Actor)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth endpoints. Login, refresh and logout are
// audited by the service, registration by the audit middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Guard) {
	auth := r.Group("/auth")
	{
		auth.POST("/register",
			g.Auth.OptionalAuthenticate(),
			g.Audit.Audit(model.ResourceAuth, model.AuditActionCreate),
			h.Register,
		)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", g.Auth.Authenticate(), h.Logout)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	var by *model.Actor
	if actor, ok := middleware.ActorFrom(c); ok {
		by = &actor
	}
	user, err := h.svc.Register(c.Request.Context(), &req, by)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	middleware.SetAuditResourceID(c, user.ID.String())
	httputil.RespondWithCreated(c, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tokens, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Logout(c *gin.Context) {
	h.svc.Logout(c.Request.Context(), handler.Actor(c))
	httputil.RespondWithSuccess(c, gin.H{"logged_out": true})
}
