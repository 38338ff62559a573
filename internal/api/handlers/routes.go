package handlers

import (
	"job-route-service/internal/api/dto"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"job-route-service/internal/services"
	"net/http"
	"strings"
	"time"
)

type RouteHandler struct {
	Optimizer    *services.RouteOptimizer
	Repo         ports.JobRepository
	DefaultStart string
}

// Optimize orders an ad-hoc list of stops. Nothing is persisted.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.OptimizeRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := strings.TrimSpace(req.StartAddress)
	if start == "" {
		start = strings.TrimSpace(h.DefaultStart)
	}

	stops := make([]domain.Stop, 0, len(req.Stops))
	for _, s := range req.Stops {
		stops = append(stops, domain.Stop{ID: s.ID, Address: s.Address})
	}

	route, err := h.Optimizer.OptimizeRoute(r.Context(), services.OptimizeRouteRequest{
		StartAddress:             start,
		Stops:                    stops,
		TimeThresholdPercent:     req.TimeThresholdPercent,
		DistanceThresholdPercent: req.DistanceThresholdPercent,
	})
	if err != nil {
		writeServiceError(w, r, "routes.optimize", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.NewRouteResponse(route))
}

// Daily plans the jobs scheduled on one day and stores their route order.
func (h *RouteHandler) Daily(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.DailyRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	day, err := parseDay(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	start := strings.TrimSpace(req.StartAddress)
	if start == "" {
		start = strings.TrimSpace(h.DefaultStart)
	}
	if start == "" {
		writeError(w, r, http.StatusBadRequest, "start_address is required")
		return
	}

	route, err := services.PlanDay(r.Context(), services.PlanDayRequest{Day: day, StartAddress: start}, h.Repo, h.Optimizer)
	if err != nil {
		writeServiceError(w, r, "routes.daily", err)
		return
	}

	res := dto.NewRouteResponse(route)
	res.Date = day.Format(time.DateOnly)
	writeJSON(w, r, http.StatusOK, res)
}
