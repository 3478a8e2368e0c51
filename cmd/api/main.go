package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"driving-school-admin/internal/api"
	"driving-school-admin/internal/app"
	"driving-school-admin/internal/config"
	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	deps, err := app.New(context.Background(), cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer deps.Close()

	// Queued imports need both S3 and Redis.
	var (
		uploads  storage.Storage
		producer api.JobProducer
	)
	if cfg.Storage.S3.Bucket != "" && deps.Redis != nil {
		s3Storage, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		uploads = s3Storage
		producer = deps.Producer(cfg)
	} else {
		log.Warn().Msg("S3 or Redis not configured, queued imports disabled")
	}

	handler := api.NewHandler(cfg, deps.Importer, uploads, producer)
	handler.AddHealthCheck("database", deps.DB.PingContext)
	if deps.Redis != nil {
		handler.AddHealthCheck("redis", deps.Redis.Ping)
	}

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	router.Use(api.RecoveryMiddleware())
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())

	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
