package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"time"
)

// SQLJobRepository implements ports.JobRepository on SQLite or Postgres.
type SQLJobRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewSqliteJobRepository(db *sql.DB) *SQLJobRepository {
	return &SQLJobRepository{DB: db, Dialect: DialectSQLite}
}

func NewPostgresJobRepository(db *sql.DB) *SQLJobRepository {
	return &SQLJobRepository{DB: db, Dialect: DialectPostgres}
}

// Return all jobs scheduled on the given calendar day, ordered by id.
func (s *SQLJobRepository) ListJobs(ctx context.Context, day time.Time) (_ []*domain.Job, err error) {
	defer obs.Time(ctx, "jobs.ListJobs")(&err)

	if s.DB == nil {
		return nil, errors.New("job repository: DB is nil")
	}

	var query string
	switch s.Dialect {
	case DialectSQLite:
		query = `
		SELECT
			id,
			customer_name,
			address,
			scheduled_date,
			route_order
		FROM jobs
		WHERE scheduled_date = ?
		ORDER BY id;
		`
	case DialectPostgres:
		query = `
		SELECT id, customer_name, address, scheduled_date::text, route_order
		FROM jobs
		WHERE scheduled_date = $1::date
		ORDER BY id;
		`
	default:
		return nil, fmt.Errorf("list jobs: unknown dialect %q", s.Dialect)
	}

	rows, err := s.DB.QueryContext(ctx, query, day.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("list jobs: query jobs table: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0, 32)
	for rows.Next() {
		var (
			j     domain.Job
			date  string
			order sql.NullInt64
		)
		if err := rows.Scan(&j.ID, &j.CustomerName, &j.Address, &date, &order); err != nil {
			return nil, fmt.Errorf("list jobs: scan row: %w", err)
		}

		j.ScheduledDate, err = time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, fmt.Errorf("list jobs: job %q: parse scheduled_date %q: %w", j.ID, date, err)
		}
		if order.Valid {
			o := int(order.Int64)
			j.RouteOrder = &o
		}
		jobs = append(jobs, &j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: row iteration: %w", err)
	}

	return jobs, nil
}

// SaveRouteOrder writes every job's position atomically. An unknown job id
// aborts the whole update with ports.ErrNotFound.
func (s *SQLJobRepository) SaveRouteOrder(ctx context.Context, orders []domain.StopOrder) (err error) {
	defer obs.Time(ctx, "jobs.SaveRouteOrder")(&err)

	if s.DB == nil {
		return errors.New("job repository: DB is nil")
	}

	if len(orders) == 0 {
		return nil
	}

	if !s.Dialect.Valid() {
		return fmt.Errorf("save route order: unknown dialect %q", s.Dialect)
	}
	query := fmt.Sprintf(`UPDATE jobs SET route_order = %s WHERE id = %s;`, s.Dialect.Bind(1), s.Dialect.Bind(2))

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save route order: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("save route order: prepare update: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		res, err := stmt.ExecContext(ctx, o.Order, o.StopID)
		if err != nil {
			return fmt.Errorf("save route order: update id=%q: %w", o.StopID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("save route order: rows affected id=%q: %w", o.StopID, err)
		}
		if n == 0 {
			return fmt.Errorf("save route order: job %q: %w", o.StopID, ports.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save route order: commit tx: %w", err)
	}

	return nil
}
