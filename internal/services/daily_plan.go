package services

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"log"
	"strings"
	"time"
)

type PlanDayRequest struct {
	Day          time.Time
	StartAddress string
}

// PlanDay loads the jobs scheduled on req.Day, orders them from the start
// address, and stores each job's 1-indexed position in the route.
func PlanDay(
	ctx context.Context,
	req PlanDayRequest,
	repo ports.JobRepository,
	optimizer *RouteOptimizer,
) (*domain.Route, error) {
	if repo == nil || optimizer == nil {
		return nil, errors.New("plan day: repository and optimizer must be non-nil")
	}

	if strings.TrimSpace(req.StartAddress) == "" {
		return nil, fmt.Errorf("plan day: %w: start address must be non-empty", ErrInvalidInput)
	}

	jobs, err := repo.ListJobs(ctx, req.Day)
	if err != nil {
		return nil, fmt.Errorf("plan day: list jobs: %w", err)
	}

	stops := make([]domain.Stop, 0, len(jobs))
	for _, j := range jobs {
		stops = append(stops, j.Stop())
	}

	route, err := optimizer.OptimizeRoute(ctx, OptimizeRouteRequest{
		StartAddress: req.StartAddress,
		Stops:        stops,
	})
	if err != nil {
		return nil, fmt.Errorf("plan day %s: %w", req.Day.Format(time.DateOnly), err)
	}

	if err := ApplyRouteOrder(ctx, repo, route); err != nil {
		return nil, fmt.Errorf("plan day: %w", err)
	}

	if route.Degraded() {
		log.Printf("op=plan_day day=%s quality=%s unresolved_legs=%d", req.Day.Format(time.DateOnly), route.Quality, len(route.UnresolvedLegs))
	}

	return route, nil
}

// ApplyRouteOrder hands the route's visiting order to the repository.
func ApplyRouteOrder(ctx context.Context, repo ports.JobRepository, route *domain.Route) error {
	if route == nil {
		return errors.New("apply route order: route must be non-nil")
	}

	orders := route.Orders()
	if len(orders) == 0 {
		return nil
	}

	if err := repo.SaveRouteOrder(ctx, orders); err != nil {
		return fmt.Errorf("apply route order: save: %w", err)
	}
	return nil
}
