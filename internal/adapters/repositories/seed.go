package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type JobSeed struct {
	ID            string `json:"id"`
	CustomerName  string `json:"customer_name"`
	Address       string `json:"address"`
	ScheduledDate string `json:"scheduled_date"`
}

// Populate the jobs table from a JSON file. Existing jobs with the same id
// are overwritten and their route order is cleared.
func SeedFromJSON(ctx context.Context, db *sql.DB, dialect Dialect, jsonPath string) (int, error) {
	if db == nil {
		return 0, errors.New("seed jobs: DB is nil")
	}

	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("seed jobs: read %q: %w", jsonPath, err)
	}

	var data []JobSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("seed jobs: parse json: %w", err)
	}

	rows := make([]JobSeed, 0, len(data))
	for i, item := range data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return 0, fmt.Errorf("seed jobs: item at index %d: id cannot be empty", i+1)
		}

		addr := strings.TrimSpace(item.Address)
		if addr == "" {
			return 0, fmt.Errorf("seed jobs: job %q: address cannot be empty", id)
		}

		day, err := time.Parse(time.DateOnly, strings.TrimSpace(item.ScheduledDate))
		if err != nil {
			return 0, fmt.Errorf("seed jobs: job %q: scheduled_date: %w", id, err)
		}

		rows = append(rows, JobSeed{
			ID:            id,
			CustomerName:  strings.TrimSpace(item.CustomerName),
			Address:       addr,
			ScheduledDate: day.Format(time.DateOnly),
		})
	}

	var query string
	switch dialect {
	case DialectSQLite:
		query = `
		INSERT OR REPLACE INTO jobs (
			id,
			customer_name,
			address,
			scheduled_date,
			route_order
		)
		VALUES (?, ?, ?, ?, NULL);
		`
	case DialectPostgres:
		query = `
		INSERT INTO jobs (id, customer_name, address, scheduled_date, route_order)
		VALUES ($1, $2, $3, $4::date, NULL)
		ON CONFLICT (id) DO UPDATE
		SET customer_name = EXCLUDED.customer_name,
			address = EXCLUDED.address,
			scheduled_date = EXCLUDED.scheduled_date,
			route_order = NULL;
		`
	default:
		return 0, fmt.Errorf("seed jobs: unknown dialect %q", dialect)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed jobs: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("seed jobs: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, j := range rows {
		if _, err := stmt.ExecContext(ctx, j.ID, j.CustomerName, j.Address, j.ScheduledDate); err != nil {
			return 0, fmt.Errorf("seed jobs: insert id=%q: %w", j.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed jobs: commit tx: %w", err)
	}

	return len(rows), nil
}
