package db

import (
	"database/sql"
	"fmt"

	"driving-school-admin/internal/config"
	"driving-school-admin/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	switch cfg.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedDriver, cfg.Database.Driver)
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
		db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
