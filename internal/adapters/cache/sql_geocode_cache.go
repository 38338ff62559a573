package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/platform/db"
	"job-route-service/internal/platform/obs"
	"strings"
)

// SQLGeocodeCache maps address strings to coordinates in the geocode_cache table.
type SQLGeocodeCache struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewSqliteGeocodeCache(conn *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: conn, Dialect: db.DialectSQLite}
}

func NewPostgresGeocodeCache(conn *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: conn, Dialect: db.DialectPostgres}
}

func (s *SQLGeocodeCache) GetMany(ctx context.Context, addresses []string) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.sqlcache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	keys := uniqueKeys(addresses)
	if len(keys) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	q := fmt.Sprintf(`
	SELECT address, lon, lat
	FROM geocode_cache
	WHERE address IN (%s);
	`, s.Dialect.List(1, len(keys)))

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: query: %w", err)
	}
	defer rows.Close()

	hits := make(map[string]domain.Coordinates, len(keys))
	for rows.Next() {
		var addr string
		var c domain.Coordinates
		if err := rows.Scan(&addr, &c.Lon, &c.Lat); err != nil {
			return nil, fmt.Errorf("get geocode cache: scan: %w", err)
		}
		hits[addr] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get geocode cache: rows: %w", err)
	}

	return hits, nil
}

// PutMany upserts coordinates; a newer geocode replaces the stored one.
func (s *SQLGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(results) == 0 {
		return nil
	}

	var q string
	switch s.Dialect {
	case db.DialectPostgres:
		q = `
		INSERT INTO geocode_cache (address, lon, lat)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET lon = EXCLUDED.lon, lat = EXCLUDED.lat;
		`
	case db.DialectSQLite:
		q = `
		INSERT INTO geocode_cache (address, lon, lat)
		VALUES (?, ?, ?)
		ON CONFLICT (address) DO UPDATE
		SET lon = excluded.lon, lat = excluded.lat;
		`
	default:
		return fmt.Errorf("put geocode cache: unknown dialect %q", s.Dialect)
	}

	return inTx(ctx, s.DB, q, func(stmt *sql.Stmt) error {
		for addr, c := range results {
			if strings.TrimSpace(addr) == "" {
				return errors.New("put geocode cache: empty address key")
			}
			if !c.Valid() {
				return fmt.Errorf("put geocode cache %q: coordinates out of range", addr)
			}
			if _, err := stmt.ExecContext(ctx, addr, c.Lon, c.Lat); err != nil {
				return fmt.Errorf("put geocode cache %q: %w", addr, err)
			}
		}
		return nil
	})
}
