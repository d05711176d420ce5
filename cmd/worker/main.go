package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/care-scheduler/internal/app"
	"github.com/jwalitptl/care-scheduler/internal/config"
	"github.com/jwalitptl/care-scheduler/internal/worker"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	lg := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Logger = lg.Zerolog()

	if cfg.Storage.Driver == "memory" {
		// nothing to resume in a store this process does not share
		lg.Warn("worker has no effect with in-memory storage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Error(err, "worker setup failed")
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewErasureWorker(a.Erasure, cfg.Worker.ErasureInterval, lg).Start(gctx)
	})
	err = g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if cerr := a.Close(sctx); cerr != nil {
		lg.Error(cerr, "close")
	}
	if err != nil {
		lg.Error(err, "worker exited")
		os.Exit(1)
	}
}
