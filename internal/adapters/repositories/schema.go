package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	platformdb "job-route-service/internal/platform/db"
)

type Dialect = platformdb.Dialect

const (
	DialectSQLite   = platformdb.DialectSQLite
	DialectPostgres = platformdb.DialectPostgres
)

var sqliteSchema = []string{
	`
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		scheduled_date TEXT NOT NULL,
		route_order INTEGER
	);
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_jobs_scheduled_date
	ON jobs(scheduled_date);
	`,
	`
	CREATE TABLE IF NOT EXISTS distance_cache (
        origin TEXT NOT NULL,
        destination TEXT NOT NULL,
        distance_meters REAL NOT NULL,
        duration_minutes REAL NOT NULL,
        source TEXT NOT NULL,
        PRIMARY KEY (origin, destination)
    );
	`,
	`
	CREATE TABLE IF NOT EXISTS geocode_cache (
        address TEXT PRIMARY KEY,
        lon REAL NOT NULL,
        lat REAL NOT NULL
    );
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_distance_cache_destination_origin
    ON distance_cache(destination, origin);
	`,
}

var postgresSchema = []string{
	`
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		scheduled_date DATE NOT NULL,
		route_order INTEGER
	);
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_jobs_scheduled_date
	ON jobs(scheduled_date);
	`,
	`
	CREATE TABLE IF NOT EXISTS distance_cache (
        origin TEXT NOT NULL,
        destination TEXT NOT NULL,
        distance_meters DOUBLE PRECISION NOT NULL,
        duration_minutes DOUBLE PRECISION NOT NULL,
        source TEXT NOT NULL,
        PRIMARY KEY (origin, destination)
    );
	`,
	`
	CREATE TABLE IF NOT EXISTS geocode_cache (
        address TEXT PRIMARY KEY,
        lon DOUBLE PRECISION NOT NULL,
        lat DOUBLE PRECISION NOT NULL
    );
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_distance_cache_destination_origin
    ON distance_cache(destination, origin);
	`,
}

// Initialize the database schema for the given dialect.
func InitSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	var statements []string
	switch dialect {
	case DialectSQLite:
		statements = sqliteSchema
	case DialectPostgres:
		statements = postgresSchema
	default:
		return fmt.Errorf("init schema: unknown dialect %q", dialect)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
