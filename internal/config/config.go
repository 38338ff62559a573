package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	// ModeLive persists jobs and caches in Postgres.
	ModeLive Mode = "live"
	// ModeLocal persists everything in a local SQLite file.
	ModeLocal Mode = "local"
)

// Config is the single object handed to the composition root.
type Config struct {
	Mode         Mode   `yaml:"mode"`
	DatabaseURL  string `yaml:"database_url"`
	SQLitePath   string `yaml:"db_path"`
	SeedPath     string `yaml:"seed_path"`
	Port         string `yaml:"port"`
	StartAddress string `yaml:"start_address"`

	ORSAPIKey         string `yaml:"ors_api_key"`
	ORSBaseURL        string `yaml:"ors_base_url"`
	RequestsPerMinute int    `yaml:"ors_requests_per_minute"`
	RedisURL          string `yaml:"redis_url"`

	TimeThresholdPercent     float64 `yaml:"time_threshold_percent"`
	DistanceThresholdPercent float64 `yaml:"distance_threshold_percent"`

	BatchSize      int           `yaml:"distance_batch_size"`
	Parallelism    int           `yaml:"distance_parallelism"`
	RequestTimeout time.Duration `yaml:"distance_timeout"`
}

// Get returns the environment value for key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func Default() Config {
	return Config{
		Mode:                     ModeLocal,
		SQLitePath:               "data/app.db",
		SeedPath:                 "data/seeds/jobs.json",
		Port:                     "8080",
		RequestsPerMinute:        40,
		TimeThresholdPercent:     10,
		DistanceThresholdPercent: 15,
		BatchSize:                25,
		Parallelism:              4,
		RequestTimeout:           8 * time.Second,
	}
}

// Load builds a Config from defaults, then environment variables, then the
// YAML file named by CONFIG_FILE if set. The result is validated.
func Load() (Config, error) {
	cfg := Default()

	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if path := Get("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Mode = Mode(strings.ToLower(Get("APP_MODE", string(c.Mode))))
	c.DatabaseURL = Get("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = Get("DB_PATH", c.SQLitePath)
	c.SeedPath = Get("SEED_PATH", c.SeedPath)
	c.Port = Get("PORT", c.Port)
	c.StartAddress = Get("START_ADDRESS", c.StartAddress)
	c.ORSAPIKey = Get("ORS_API_KEY", c.ORSAPIKey)
	c.ORSBaseURL = Get("ORS_BASE_URL", c.ORSBaseURL)
	c.RedisURL = Get("REDIS_URL", c.RedisURL)

	var err error
	if c.TimeThresholdPercent, err = getFloat("ROUTE_TIME_THRESHOLD_PCT", c.TimeThresholdPercent); err != nil {
		return err
	}
	if c.DistanceThresholdPercent, err = getFloat("ROUTE_DISTANCE_THRESHOLD_PCT", c.DistanceThresholdPercent); err != nil {
		return err
	}
	if c.BatchSize, err = getInt("DISTANCE_BATCH_SIZE", c.BatchSize); err != nil {
		return err
	}
	if c.Parallelism, err = getInt("DISTANCE_PARALLELISM", c.Parallelism); err != nil {
		return err
	}
	if c.RequestsPerMinute, err = getInt("ORS_REQUESTS_PER_MINUTE", c.RequestsPerMinute); err != nil {
		return err
	}
	if c.RequestTimeout, err = getDuration("DISTANCE_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	return nil
}

// applyFile overlays the fields present in a YAML file; absent fields keep their value.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}
	c.Mode = Mode(strings.ToLower(string(c.Mode)))
	return nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLive:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in live mode"))
		}
	case ModeLocal:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("DB_PATH is required in local mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q (want %q or %q)", c.Mode, ModeLive, ModeLocal))
	}

	if c.TimeThresholdPercent < 0 || c.TimeThresholdPercent > 100 {
		errs = append(errs, fmt.Errorf("time threshold %.2f outside [0,100]", c.TimeThresholdPercent))
	}
	if c.DistanceThresholdPercent < 0 || c.DistanceThresholdPercent > 100 {
		errs = append(errs, fmt.Errorf("distance threshold %.2f outside [0,100]", c.DistanceThresholdPercent))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("distance batch size must be positive, got %d", c.BatchSize))
	}
	if c.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("distance parallelism must be positive, got %d", c.Parallelism))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("distance timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("ORS requests per minute must be positive, got %d", c.RequestsPerMinute))
	}

	return errors.Join(errs...)
}

// Live reports whether an ORS key is configured.
func (c Config) Live() bool { return strings.TrimSpace(c.ORSAPIKey) != "" }

func getInt(key string, fallback int) (int, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
