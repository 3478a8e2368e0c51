package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"driving-school-admin/internal/config"
	"driving-school-admin/internal/db"

	"github.com/stretchr/testify/require"
)

// SQLite opens a migrated database file in the test's temp dir.
func SQLite(t testing.TB) *sql.DB {
	t.Helper()

	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "school.db"),
	}}
	conn, err := db.NewConnection(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(context.Background(), conn, db.DriverSQLite))
	return conn
}
