package db

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// The students table belongs to the back office; these definitions cover
// the columns the import engine touches and are used for local SQLite
// databases and tests.
var schemas = map[string][]string{
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS students (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			student_identifier VARCHAR(64) NULL,
			name VARCHAR(255) NULL,
			birth_date VARCHAR(16) NULL,
			case_filed BOOLEAN NOT NULL DEFAULT FALSE,
			exam_results JSON NULL,
			INDEX idx_students_identifier (student_identifier)
		)`,
		`CREATE TABLE IF NOT EXISTS import_sessions (
			id VARCHAR(36) PRIMARY KEY,
			run_at BIGINT NOT NULL,
			sandbox BOOLEAN NOT NULL DEFAULT FALSE,
			payload JSON NOT NULL,
			INDEX idx_import_sessions_run_at (run_at)
		)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS students (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_identifier TEXT NULL,
			name TEXT NULL,
			birth_date TEXT NULL,
			case_filed INTEGER NOT NULL DEFAULT 0,
			exam_results TEXT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_students_identifier ON students(student_identifier)`,
		`CREATE TABLE IF NOT EXISTS import_sessions (
			id TEXT PRIMARY KEY,
			run_at INTEGER NOT NULL,
			sandbox INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_sessions_run_at ON import_sessions(run_at)`,
	},
}

// Migrate creates the tables used by the import engine when they are
// missing.
func Migrate(ctx context.Context, conn *sql.DB, driver string) error {
	statements, ok := schemas[driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", driver)
	}
	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
