package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"driving-school-admin/internal/app"
	"driving-school-admin/internal/config"
	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/queue"
	"driving-school-admin/internal/storage"
	"driving-school-admin/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting import worker")

	deps, err := app.New(context.Background(), cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	if deps.Redis == nil {
		log.Fatal().Msg("The import worker needs redis.host")
	}

	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	producer := deps.Producer(cfg)
	consumer := queue.NewConsumer(deps.Redis.Client(), producer)
	importWorker := worker.NewImportWorker(
		deps.Importer,
		s3Storage,
		producer,
		consumer,
		cfg.Workers.Import.Count,
		cfg.Workers.Import.MaxAttempts,
	)

	// Metrics only; the worker has no API.
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := importWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Import worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down import worker...")

	// The consumer must stop submitting before the pool closes.
	cancel()
	<-consumerDone
	importWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server forced to shutdown")
	}

	log.Info().Msg("Import worker exited")
}
