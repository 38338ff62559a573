package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"job-route-service/internal/adapters/cache"
	"job-route-service/internal/adapters/distance"
	"job-route-service/internal/adapters/repositories"
	"job-route-service/internal/api"
	"job-route-service/internal/config"
	"job-route-service/internal/platform/db"
	"job-route-service/internal/ports"
	"job-route-service/internal/services"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

// App holds the wired components of one process.
type App struct {
	Config    config.Config
	DB        *sql.DB
	Dialect   repositories.Dialect
	Repo      ports.JobRepository
	Provider  ports.DistanceProvider
	Optimizer *services.RouteOptimizer
	Handler   http.Handler

	providerName string
	closers      []func() error
}

// OpenStore opens the persistence backend selected by cfg.Mode and makes sure
// the schema exists.
func OpenStore(ctx context.Context, cfg config.Config) (*sql.DB, repositories.Dialect, error) {
	var (
		conn    *sql.DB
		dialect repositories.Dialect
		err     error
	)

	switch cfg.Mode {
	case config.ModeLive:
		dialect = repositories.DialectPostgres
		conn, err = db.Open(ctx, cfg.DatabaseURL)
	case config.ModeLocal:
		dialect = repositories.DialectSQLite
		if dir := filepath.Dir(cfg.SQLitePath); cfg.SQLitePath != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", fmt.Errorf("open store: create %q: %w", dir, err)
			}
		}
		conn, err = db.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, "", fmt.Errorf("open store: unknown mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open store: %w", err)
	}

	if err := repositories.InitSchema(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("open store: %w", err)
	}

	return conn, dialect, nil
}

// Build is the composition root: persistence strategy, distance provider
// stack, optimizer and HTTP handler.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}

	a := &App{Config: cfg}

	conn, dialect, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}
	a.DB = conn
	a.Dialect = dialect
	a.closers = append(a.closers, conn.Close)

	if dialect == repositories.DialectPostgres {
		a.Repo = repositories.NewPostgresJobRepository(conn)
	} else {
		a.Repo = repositories.NewSqliteJobRepository(conn)
	}

	inner, err := a.buildProvider(ctx)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build app: %w", err)
	}

	a.Provider = distance.NewCachingProvider(inner, distance.CachingOptions{
		BatchSize:      cfg.BatchSize,
		Parallelism:    cfg.Parallelism,
		RequestTimeout: cfg.RequestTimeout,
	})

	a.Optimizer = services.NewRouteOptimizer(a.Provider, services.Thresholds{
		TimePercent:     cfg.TimeThresholdPercent,
		DistancePercent: cfg.DistanceThresholdPercent,
	}, cfg.Parallelism)

	a.Handler = api.NewRouter(api.RouterDeps{
		Repo:         a.Repo,
		Optimizer:    a.Optimizer,
		DefaultStart: cfg.StartAddress,
		Mode:         string(cfg.Mode),
		Provider:     a.providerName,
		HealthCheck:  conn.PingContext,
	})

	log.Printf("app built: mode=%s provider=%s redis=%t", cfg.Mode, a.providerName, cfg.RedisURL != "")
	return a, nil
}

// buildProvider picks ORS with a persistent cache when a key is configured and
// falls back to the address heuristic otherwise.
func (a *App) buildProvider(ctx context.Context) (ports.DistanceProvider, error) {
	cfg := a.Config
	if !cfg.Live() {
		log.Println("ORS_API_KEY not set: using heuristic distances (routes will be marked estimated)")
		a.providerName = "heuristic"
		return distance.NewHeuristicProvider(), nil
	}

	var (
		dc ports.DistanceCache
		gc ports.GeocodeCache
	)
	switch {
	case cfg.RedisURL != "":
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		dc = cache.NewRedisDistanceCache(rdb)
		gc = cache.NewRedisGeocodeCache(rdb)
	case a.Dialect == repositories.DialectPostgres:
		dc = cache.NewPostgresDistanceCache(a.DB)
		gc = cache.NewPostgresGeocodeCache(a.DB)
	default:
		dc = cache.NewSqliteDistanceCache(a.DB)
		gc = cache.NewSqliteGeocodeCache(a.DB)
	}

	provider, err := distance.NewORSDistanceProvider(cfg.ORSAPIKey, distance.ORSOptions{
		BaseURL:                   cfg.ORSBaseURL,
		Timeout:                   cfg.RequestTimeout,
		RequestsPerMinute:         cfg.RequestsPerMinute,
		MaxDestinationsPerRequest: cfg.BatchSize - 1,
		DistanceCache:             dc,
		GeocodeCache:              gc,
	})
	if err != nil {
		return nil, err
	}

	a.providerName = "ors"
	return provider, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
