// Package app connects the stores an import needs. Every binary starts
// from here.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"driving-school-admin/internal/config"
	"driving-school-admin/internal/db"
	"driving-school-admin/internal/metrics"
	"driving-school-admin/internal/queue"
	"driving-school-admin/internal/reconcile"
	"driving-school-admin/internal/review"

	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	DB       *sql.DB
	Redis    *queue.RedisClient
	Students *db.StudentRepository
	Sessions *db.SessionRepository
	Review   review.Store
	Metrics  *metrics.Metrics
	Importer *reconcile.Importer
}

// New opens the database, migrates it and connects Redis when a host is
// configured. reg may be nil to skip metrics.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	conn, err := db.NewConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &App{DB: conn}

	if err := db.Migrate(ctx, conn, cfg.Database.Driver); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if cfg.Redis.Host != "" {
		a.Redis, err = queue.NewRedisClient(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	switch cfg.Import.ReviewBackend {
	case "memory":
		a.Review = review.NewMemoryStore()
	case "redis":
		if a.Redis == nil {
			a.Close()
			return nil, fmt.Errorf("review backend redis needs redis.host")
		}
		a.Review = review.NewRedisStore(a.Redis.Client(), cfg.Redis.KeyPrefix, cfg.Redis.ReviewTTL)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown review backend %q", cfg.Import.ReviewBackend)
	}

	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	a.Students = db.NewStudentRepository(conn)
	a.Sessions = db.NewSessionRepository(conn)
	a.Importer = reconcile.NewImporter(a.Students, a.Sessions, a.Review, reconcile.Options{
		HistoryLimit: cfg.Import.HistoryLimit,
		Metrics:      a.Metrics,
	})

	return a, nil
}

// Producer returns the import queue producer, or nil without Redis.
func (a *App) Producer(cfg *config.Config) *queue.Producer {
	if a.Redis == nil {
		return nil
	}
	return queue.NewProducer(a.Redis.Client(), cfg.Redis.ImportQueue, cfg.Redis.DLQSuffix)
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
