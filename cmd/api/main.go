package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/care-scheduler/internal/app"
	"github.com/jwalitptl/care-scheduler/internal/config"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Logger = lg.Zerolog()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, lg); err != nil {
		lg.Error(err, "api exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, lg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	if err := a.Bootstrap(ctx); err != nil {
		_ = a.Close(context.Background())
		return err
	}
	engine, err := a.Handler()
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("api listening", "addr", srv.Addr, "storage", cfg.Storage.Driver, "audit_mode", cfg.Audit.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// in-flight requests may still enqueue audit records, so the server
		// stops before the trail is drained
		err := srv.Shutdown(sctx)
		return errors.Join(err, a.Close(sctx))
	})
	return g.Wait()
}
