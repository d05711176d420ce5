package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/care-scheduler/internal/handler"
	"github.com/jwalitptl/care-scheduler/internal/handler/health"
	"github.com/jwalitptl/care-scheduler/internal/middleware"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/httputil"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
)

// Handler is a resource handler mounted under /api/v1.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup, handler.Guard)
}

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	RateLimit      rate.Limit
	RateBurst      int
	RateEnabled    bool
	Security       middleware.SecurityConfig
}

type Router struct {
	engine   *gin.Engine
	guard    handler.Guard
	health   *health.Handler
	handlers []Handler
	gatherer prometheus.Gatherer
}

func NewRouter(
	cfg RouterConfig,
	guard handler.Guard,
	healthH *health.Handler,
	gatherer prometheus.Gatherer,
	log *logger.Logger,
	m *metrics.Metrics,
	handlers ...Handler,
) *Router {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.SecurityHeaders(cfg.Security),
		middleware.Origin(),
	)
	if cfg.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.RateEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  cfg.RateLimit,
			Burst: cfg.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}
	engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithError(c, apperrors.NotFound("route"))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, httputil.Response{
			Error: &httputil.Error{Code: http.StatusMethodNotAllowed, Kind: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
		})
	})

	return &Router{
		engine:   engine,
		guard:    guard,
		health:   healthH,
		handlers: handlers,
		gatherer: gatherer,
	}
}

// Setup mounts every route. Resource routes run authenticate, authorize and
// audit, in that order, before their handler.
func (r *Router) Setup() *gin.Engine {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	for _, h := range r.handlers {
		h.RegisterRoutes(api, r.guard)
	}
	return r.engine
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
