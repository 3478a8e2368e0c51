package app

import (
	"context"
	"path/filepath"
	"testing"

	"driving-school-admin/internal/config"
	"driving-school-admin/internal/review"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestNewWithSQLiteAndMemoryReview(t *testing.T) {
	t.Setenv("DATABASE_PASSWORD", "")
	cfg := mustConfig(t, "database:\n  driver: sqlite\n  path: "+filepath.Join(t.TempDir(), "school.db")+"\nimport:\n  review_backend: memory\n")

	a, err := New(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &review.MemoryStore{}, a.Review)
	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Producer(cfg), "no queue without redis")

	history, err := a.Importer.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNewRejectsRedisReviewWithoutRedis(t *testing.T) {
	cfg := mustConfig(t, "database:\n  driver: sqlite\n  path: "+filepath.Join(t.TempDir(), "school.db")+"\n")

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "redis.host")
}
