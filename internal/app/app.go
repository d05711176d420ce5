// Package app wires configuration into a running set of stores, services and
// HTTP routes. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/care-scheduler/internal/config"
	"github.com/jwalitptl/care-scheduler/internal/email"
	"github.com/jwalitptl/care-scheduler/internal/events"
	"github.com/jwalitptl/care-scheduler/internal/handler"
	appointmenth "github.com/jwalitptl/care-scheduler/internal/handler/appointment"
	audith "github.com/jwalitptl/care-scheduler/internal/handler/audit"
	authh "github.com/jwalitptl/care-scheduler/internal/handler/auth"
	"github.com/jwalitptl/care-scheduler/internal/handler/health"
	medicalh "github.com/jwalitptl/care-scheduler/internal/handler/medical"
	patienth "github.com/jwalitptl/care-scheduler/internal/handler/patient"
	professionalh "github.com/jwalitptl/care-scheduler/internal/handler/professional"
	"github.com/jwalitptl/care-scheduler/internal/lock"
	"github.com/jwalitptl/care-scheduler/internal/middleware"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/repository/memory"
	"github.com/jwalitptl/care-scheduler/internal/repository/postgres"
	"github.com/jwalitptl/care-scheduler/internal/router"
	"github.com/jwalitptl/care-scheduler/internal/service/appointment"
	"github.com/jwalitptl/care-scheduler/internal/service/audit"
	"github.com/jwalitptl/care-scheduler/internal/service/auth"
	"github.com/jwalitptl/care-scheduler/internal/service/medical"
	"github.com/jwalitptl/care-scheduler/internal/service/patient"
	"github.com/jwalitptl/care-scheduler/internal/service/privacy"
	"github.com/jwalitptl/care-scheduler/internal/service/professional"
	jwtauth "github.com/jwalitptl/care-scheduler/pkg/auth"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	redisbroker "github.com/jwalitptl/care-scheduler/pkg/messaging/redis"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
	"github.com/jwalitptl/care-scheduler/pkg/security"
)

const metricsNamespace = "care_scheduler"

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB    *sqlx.DB
	Redis redis.UniversalClient
	Repos repository.Repositories

	Audit         *audit.Service
	Erasure       *privacy.ErasureService
	Auth          *auth.Service
	Patients      *patient.Service
	Professionals *professional.Service
	Appointments  *appointment.Service
	Medical       *medical.Service

	// hasherCost is lowered by tests.
	hasherCost int
}

type Option func(*App)

// WithRepositories skips store setup and uses repos instead.
func WithRepositories(repos repository.Repositories) Option {
	return func(a *App) { a.Repos = repos }
}

func WithHasherCost(cost int) Option {
	return func(a *App) { a.hasherCost = cost }
}

// New builds the stores and services described by cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	a := &App{
		Config:     cfg,
		Log:        log,
		Registry:   prometheus.NewRegistry(),
		hasherCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(metricsNamespace, a.Registry)

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.Repos.Users == nil {
		switch a.Config.Storage.Driver {
		case "memory":
			a.Log.Warn("using in-memory storage, data is lost on exit")
			a.Repos = memory.New().Repositories()
		default:
			db, err := postgres.NewDB(ctx, a.Config.Database)
			if err != nil {
				return err
			}
			a.DB = db
			a.Repos = postgres.NewRepositories(db)
		}
	}

	if a.Config.Storage.Lock == "redis" || a.Config.Events.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = client
	}
	return nil
}

func (a *App) locker() lock.Locker {
	if a.Config.Storage.Lock == "redis" && a.Redis != nil {
		return lock.NewRedisLocker(a.Redis, a.Config.Redis.LockTTL)
	}
	return lock.NewKeyedMutex()
}

func (a *App) buildServices() error {
	cfg := a.Config
	timeout := cfg.Persistence.Timeout

	cipher, err := privacy.NewCipher(cfg.Secrets.EncryptionKey)
	if err != nil {
		return err
	}

	a.Audit = audit.NewService(a.Repos.Audit, audit.Config{
		Mode:           cfg.Audit.Mode,
		Shards:         cfg.Audit.Shards,
		QueueSize:      cfg.Audit.QueueSize,
		EnqueueTimeout: cfg.Audit.EnqueueTimeout,
		WriteTimeout:   cfg.Audit.WriteTimeout,
	}, a.Log, a.Metrics)

	a.Erasure = privacy.NewErasureService(a.Repos, a.Audit, a.Log, a.Metrics)
	a.Auth = auth.NewService(a.Repos.Users, security.NewBcryptHasher(a.hasherCost),
		jwtauth.NewJWTService(cfg.Secrets.JWTSecret, cfg.JWT.Issuer, cfg.JWT.Expiry, jwtauth.WithRefreshExpiry(cfg.JWT.RefreshExpiry)),
		cipher, a.Audit, a.Log, auth.WithTimeout(timeout))
	a.Patients = patient.NewService(a.Repos, cipher, a.Erasure, a.Log, patient.WithTimeout(timeout))
	a.Professionals = professional.NewService(a.Repos, timeout, a.Log)
	a.Medical = medical.NewService(a.Repos, cipher, a.Log, medical.WithTimeout(timeout))

	apptOpts := []appointment.Option{
		appointment.WithTimeout(timeout),
		appointment.WithNotifyTimeout(cfg.Email.Timeout),
	}
	if cfg.Email.Enabled {
		apptOpts = append(apptOpts, appointment.WithNotifier(email.NewService(cfg.Email, a.Log)))
	}
	if cfg.Events.Enabled {
		broker := redisbroker.NewRedisBroker(a.Redis, a.Log)
		apptOpts = append(apptOpts, appointment.WithNotifier(events.NewPublisher(broker, cfg.Events.Channel)))
	}
	a.Appointments = appointment.NewService(a.Repos, a.locker(), a.Log, a.Metrics, apptOpts...)
	return nil
}

// Bootstrap creates the configured first administrator.
func (a *App) Bootstrap(ctx context.Context) error {
	s := a.Config.Secrets
	if s.AdminEmail == "" || s.AdminPassword == "" {
		return nil
	}
	created, err := a.Auth.EnsureAdmin(ctx, s.AdminEmail, s.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		a.Log.Info("bootstrap administrator created")
	}
	return nil
}

// Handler returns the HTTP routes.
func (a *App) Handler() (*gin.Engine, error) {
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}
	guard := handler.Guard{
		Auth:  middleware.NewAuthMiddleware(a.Auth, a.Audit),
		Audit: middleware.NewAuditMiddleware(a.Audit),
	}

	var db health.Pinger
	if a.DB != nil {
		db = a.DB
	}

	cfg := a.Config
	r := router.NewRouter(router.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		RateEnabled:    cfg.RateLimit.Enabled,
		RateLimit:      rate.Limit(cfg.RateLimit.RPS),
		RateBurst:      cfg.RateLimit.Burst,
		Security:       middleware.DefaultSecurityConfig(),
	},
		guard,
		health.NewHandler(db),
		a.Registry,
		a.Log,
		a.Metrics,
		authh.NewHandler(a.Auth),
		appointmenth.NewHandler(a.Appointments),
		patienth.NewHandler(a.Patients),
		professionalh.NewHandler(a.Professionals),
		medicalh.NewHandler(a.Medical),
		audith.NewHandler(a.Audit),
	)
	return r.Setup(), nil
}

// Close drains the audit queue before the stores go away.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close(ctx))
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
