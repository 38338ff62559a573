package services

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/metrics"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"log"
	"strings"
	"time"
)

var (
	// ErrInvalidInput is wrapped by every request validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCannotConstructRoute reports that too few travel costs were resolved to order the stops.
	ErrCannotConstructRoute = errors.New("cannot construct route")
)

// Tours with more stops than this are refined with 2-opt.
const twoOptMinStops = 3

type OptimizeRouteRequest struct {
	StartAddress string
	Stops        []domain.Stop
	// Optional per-call overrides of the optimizer's default thresholds.
	TimeThresholdPercent     *float64
	DistanceThresholdPercent *float64
}

// RouteOptimizer orders a day's stops to approximately minimize drive time.
// It holds no per-call state and is safe for concurrent use when its provider is.
type RouteOptimizer struct {
	provider    ports.DistanceProvider
	thresholds  Thresholds
	parallelism int
}

func NewRouteOptimizer(provider ports.DistanceProvider, thresholds Thresholds, parallelism int) *RouteOptimizer {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &RouteOptimizer{
		provider:    provider,
		thresholds:  thresholds,
		parallelism: parallelism,
	}
}

// OptimizeRoute computes a visiting order for req.Stops starting at req.StartAddress.
//
// The order is built greedily on a full pairwise cost matrix and refined with
// 2-opt. Hops that could not be priced still get a position in the order but
// are reported in Route.UnresolvedLegs and mark the route degraded. It fails
// with ErrCannotConstructRoute only when the start cannot be priced against
// any stop.
func (o *RouteOptimizer) OptimizeRoute(ctx context.Context, req OptimizeRouteRequest) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "route.optimize")(&err)
	started := time.Now()

	th, err := o.resolveThresholds(req)
	if err != nil {
		return nil, err
	}

	start, stops, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	var route *domain.Route
	switch len(stops) {
	case 0:
		route = emptyRoute(start)
	case 1:
		route, err = o.singleStopRoute(ctx, start, stops[0])
	default:
		route, err = o.multiStopRoute(ctx, start, stops, th)
	}
	if err != nil {
		return nil, fmt.Errorf("optimize route: %w", err)
	}

	metrics.RouteOptimizations.WithLabelValues(string(route.Quality)).Inc()
	metrics.RouteOptimizationDuration.Observe(time.Since(started).Seconds())

	return route, nil
}

func (o *RouteOptimizer) resolveThresholds(req OptimizeRouteRequest) (Thresholds, error) {
	th := o.thresholds
	if req.TimeThresholdPercent != nil {
		th.TimePercent = *req.TimeThresholdPercent
	}
	if req.DistanceThresholdPercent != nil {
		th.DistancePercent = *req.DistanceThresholdPercent
	}

	if th.TimePercent < 0 || th.TimePercent > 100 {
		return Thresholds{}, fmt.Errorf("optimize route: %w: time threshold %.2f outside [0,100]", ErrInvalidInput, th.TimePercent)
	}
	if th.DistancePercent < 0 || th.DistancePercent > 100 {
		return Thresholds{}, fmt.Errorf("optimize route: %w: distance threshold %.2f outside [0,100]", ErrInvalidInput, th.DistancePercent)
	}
	return th, nil
}

func validateRequest(req OptimizeRouteRequest) (string, []domain.Stop, error) {
	start := strings.TrimSpace(req.StartAddress)
	if start == "" {
		return "", nil, fmt.Errorf("optimize route: %w: start address must be non-empty", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(req.Stops))
	stops := make([]domain.Stop, 0, len(req.Stops))
	for i, s := range req.Stops {
		id := strings.TrimSpace(s.ID)
		addr := strings.TrimSpace(s.Address)
		if id == "" {
			return "", nil, fmt.Errorf("optimize route: %w: stop #%d has empty id", ErrInvalidInput, i+1)
		}
		if addr == "" {
			return "", nil, fmt.Errorf("optimize route: %w: stop %q has empty address", ErrInvalidInput, id)
		}
		if _, ok := seen[id]; ok {
			return "", nil, fmt.Errorf("optimize route: %w: duplicate stop id %q", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		stops = append(stops, domain.Stop{ID: id, Address: addr})
	}

	return start, stops, nil
}

func emptyRoute(start string) *domain.Route {
	return &domain.Route{
		StartAddress:      start,
		Stops:             []domain.Stop{},
		Segments:          []domain.Segment{},
		TotalDurationText: domain.FormatDuration(0),
		TotalDistanceText: domain.FormatDistance(0),
		Quality:           domain.QualityOptimized,
	}
}

func (o *RouteOptimizer) singleStopRoute(ctx context.Context, start string, stop domain.Stop) (*domain.Route, error) {
	m := newCostMatrix([]string{start, stop.Address})

	if sameAddress(start, stop.Address) {
		m.set(0, 1, zeroCost(ports.ProvenanceOf(o.provider)))
	} else {
		r, err := o.provider.GetDistance(ctx, start, stop.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: %q -> %q: %w", ErrCannotConstructRoute, start, stop.Address, err)
		}
		m.set(0, 1, r)
	}

	return assembleRoute(m, []domain.Stop{stop}, []int{1}), nil
}

func (o *RouteOptimizer) multiStopRoute(ctx context.Context, start string, stops []domain.Stop, th Thresholds) (*domain.Route, error) {
	addresses := make([]string, 0, len(stops)+1)
	addresses = append(addresses, start)
	for _, s := range stops {
		addresses = append(addresses, s.Address)
	}

	m, err := BuildCostMatrix(ctx, o.provider, addresses, o.parallelism)
	if err != nil {
		return nil, err
	}

	reachable := false
	for j := 1; j < m.Size(); j++ {
		if _, ok := m.At(0, j); ok {
			reachable = true
			break
		}
	}
	if !reachable {
		return nil, fmt.Errorf("%w: start %q unresolvable against every stop", ErrCannotConstructRoute, start)
	}

	tour, arbitrary := nearestNeighborTour(m, th)

	moves := 0
	if len(stops) > twoOptMinStops {
		tour, moves = twoOpt(m, tour)
	}

	total := m.Size() * (m.Size() - 1)
	log.Printf(
		"op=route.optimize stops=%d resolved=%d/%d arbitrary_steps=%d two_opt_moves=%d",
		len(stops), m.Resolved(), total, arbitrary, moves,
	)

	return assembleRoute(m, stops, tour), nil
}

// assembleRoute walks the final order and emits one Segment per priced hop.
// tour holds matrix indices; stops[k] sits at matrix index k+1.
func assembleRoute(m *CostMatrix, stops []domain.Stop, tour []int) *domain.Route {
	route := &domain.Route{
		StartAddress: m.Address(0),
		Stops:        make([]domain.Stop, 0, len(tour)),
		Segments:     make([]domain.Segment, 0, len(tour)),
	}

	estimated := false
	prev := 0
	prevID := ""
	for _, idx := range tour {
		stop := stops[idx-1]
		route.Stops = append(route.Stops, stop)

		c, ok := m.At(prev, idx)
		if !ok {
			route.UnresolvedLegs = append(route.UnresolvedLegs, domain.Leg{
				FromAddress: m.Address(prev),
				ToAddress:   m.Address(idx),
			})
		} else {
			route.Segments = append(route.Segments, domain.Segment{
				FromStopID:      prevID,
				ToStopID:        stop.ID,
				FromAddress:     m.Address(prev),
				ToAddress:       m.Address(idx),
				DurationMinutes: c.DurationMinutes,
				DistanceMeters:  c.DistanceMeters,
				DurationText:    textOr(c.DurationText, domain.FormatDuration(c.DurationMinutes)),
				DistanceText:    textOr(c.DistanceText, domain.FormatDistance(c.DistanceMeters)),
				Source:          c.Source,
			})
			route.TotalDurationMinutes += c.DurationMinutes
			route.TotalDistanceMeters += c.DistanceMeters
			if c.Source == domain.ProvenanceHeuristic {
				estimated = true
			}
		}

		prev = idx
		prevID = stop.ID
	}

	route.TotalDurationText = domain.FormatDuration(route.TotalDurationMinutes)
	route.TotalDistanceText = domain.FormatDistance(route.TotalDistanceMeters)

	switch {
	case len(route.UnresolvedLegs) > 0:
		route.Quality = domain.QualityDegraded
	case estimated:
		route.Quality = domain.QualityEstimated
	default:
		route.Quality = domain.QualityOptimized
	}

	return route
}

func textOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
