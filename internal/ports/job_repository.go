package ports

import (
	"context"
	"errors"
	"job-route-service/internal/domain"
	"time"
)

var ErrNotFound = errors.New("not found")

// Port: a boundary for loading scheduled jobs and storing their visiting order.
type JobRepository interface {
	// Retrieve all jobs scheduled on the given calendar day.
	ListJobs(ctx context.Context, day time.Time) ([]*domain.Job, error)
	// Persist the 1-indexed route order for each listed job.
	SaveRouteOrder(ctx context.Context, orders []domain.StopOrder) error
}
