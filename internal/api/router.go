package api

import (
	"context"
	"job-route-service/internal/api/handlers"
	"job-route-service/internal/metrics"
	"job-route-service/internal/ports"
	"job-route-service/internal/services"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Repo         ports.JobRepository
	Optimizer    *services.RouteOptimizer
	DefaultStart string
	Mode         string
	Provider     string
	HealthCheck  func(ctx context.Context) error
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(deps RouterDeps) http.Handler {
	metrics.Register()
	mux := http.NewServeMux()

	healthHandler := &handlers.HealthHandler{Check: deps.HealthCheck, Mode: deps.Mode, Provider: deps.Provider}
	jobHandler := &handlers.JobHandler{Repo: deps.Repo}
	routeHandler := &handlers.RouteHandler{
		Optimizer:    deps.Optimizer,
		Repo:         deps.Repo,
		DefaultStart: deps.DefaultStart,
	}

	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/jobs", jobHandler.List)
	mux.HandleFunc("/routes/optimize", routeHandler.Optimize)
	mux.HandleFunc("/routes/daily", routeHandler.Daily)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return requestIDMiddleware(loggingMiddleware(mux))
}
