package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/platform/db"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"strings"
)

// SQLDistanceCache stores origin->destination results in the distance_cache
// table of either a SQLite or a Postgres database. Keys are used verbatim;
// callers normalize them.
type SQLDistanceCache struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewSqliteDistanceCache(conn *sql.DB) *SQLDistanceCache {
	return &SQLDistanceCache{DB: conn, Dialect: db.DialectSQLite}
}

func NewPostgresDistanceCache(conn *sql.DB) *SQLDistanceCache {
	return &SQLDistanceCache{DB: conn, Dialect: db.DialectPostgres}
}

func (s *SQLDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.sqlcache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("distance cache: db is nil")
	}
	if origin == "" {
		return nil, errors.New("get distance cache: origin must not be empty")
	}

	keys := uniqueKeys(destinations)
	if len(keys) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	// Only placeholders are interpolated; every value stays a bound parameter.
	q := fmt.Sprintf(`
	SELECT destination, distance_meters, duration_minutes, source
	FROM distance_cache
	WHERE origin = %s
		AND destination IN (%s);
	`, s.Dialect.Bind(1), s.Dialect.List(2, len(keys)))

	args := make([]any, 0, len(keys)+1)
	args = append(args, origin)
	for _, k := range keys {
		args = append(args, k)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get distance cache: query: %w", err)
	}
	defer rows.Close()

	hits := make(map[string]ports.DistanceResult, len(keys))
	for rows.Next() {
		var dest, source string
		var meters, minutes float64
		if err := rows.Scan(&dest, &meters, &minutes, &source); err != nil {
			return nil, fmt.Errorf("get distance cache: scan: %w", err)
		}
		hits[dest] = cachedResult(meters, minutes, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get distance cache: rows: %w", err)
	}

	return hits, nil
}

// PutMany inserts results for one origin in a single transaction. A pair that
// is already cached keeps its first value.
func (s *SQLDistanceCache) PutMany(ctx context.Context, origin string, results map[string]ports.DistanceResult) error {
	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}
	if origin == "" {
		return errors.New("put distance cache: origin must not be empty")
	}
	if len(results) == 0 {
		return nil
	}

	var q string
	switch s.Dialect {
	case db.DialectPostgres:
		q = `
		INSERT INTO distance_cache (origin, destination, distance_meters, duration_minutes, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (origin, destination) DO NOTHING;
		`
	case db.DialectSQLite:
		q = `
		INSERT OR IGNORE INTO distance_cache (origin, destination, distance_meters, duration_minutes, source)
		VALUES (?, ?, ?, ?, ?);
		`
	default:
		return fmt.Errorf("put distance cache: unknown dialect %q", s.Dialect)
	}

	return inTx(ctx, s.DB, q, func(stmt *sql.Stmt) error {
		for dest, r := range results {
			if strings.TrimSpace(dest) == "" {
				return errors.New("put distance cache: empty destination key")
			}
			if _, err := stmt.ExecContext(ctx, origin, dest, r.DistanceMeters, r.DurationMinutes, string(r.Source)); err != nil {
				return fmt.Errorf("put distance cache %q -> %q: %w", origin, dest, err)
			}
		}
		return nil
	})
}

// inTx prepares q inside a transaction, hands it to fn and commits when fn succeeds.
func inTx(ctx context.Context, conn *sql.DB, q string, fn func(*sql.Stmt) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// uniqueKeys trims and deduplicates keys, dropping empty ones and keeping order.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func cachedResult(meters, minutes float64, source string) ports.DistanceResult {
	return ports.DistanceResult{
		DistanceMeters:  meters,
		DurationMinutes: minutes,
		DurationText:    domain.FormatDuration(minutes),
		DistanceText:    domain.FormatDistance(meters),
		Source:          domain.Provenance(source),
	}
}
