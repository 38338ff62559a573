package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"log"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisDistancePrefix = "distance:"
	redisGeocodeKey     = "geocode"
)

type redisDistanceEntry struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationMinutes float64 `json:"duration_minutes"`
	Source          string  `json:"source"`
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisDistanceCache keeps one hash per origin, keyed by destination.
// It lets several service instances share resolved distances.
type RedisDistanceCache struct {
	rdb *redis.Client
}

func NewRedisDistanceCache(rdb *redis.Client) *RedisDistanceCache {
	return &RedisDistanceCache{rdb: rdb}
}

func (r *RedisDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (map[string]ports.DistanceResult, error) {
	if r.rdb == nil {
		return nil, errors.New("distance cache: redis client is nil")
	}

	if origin == "" {
		return nil, errors.New("get distance cache: origin must not be empty")
	}

	uniq := uniqueKeys(destinations)
	if len(uniq) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	vals, err := r.rdb.HMGet(ctx, redisDistancePrefix+origin, uniq...).Result()
	if err != nil {
		return nil, fmt.Errorf("get distance cache: hmget: %w", err)
	}

	out := make(map[string]ports.DistanceResult, len(uniq))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var e redisDistanceEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Printf("distance cache: skip corrupt entry origin=%q dest=%q err=%v", origin, uniq[i], err)
			continue
		}
		out[uniq[i]] = cachedResult(e.DistanceMeters, e.DurationMinutes, e.Source)
	}

	return out, nil
}

// PutMany stores results with HSETNX, so an existing entry is never replaced.
func (r *RedisDistanceCache) PutMany(ctx context.Context, origin string, results map[string]ports.DistanceResult) error {
	if r.rdb == nil {
		return errors.New("distance cache: redis client is nil")
	}

	if origin == "" {
		return errors.New("insert distance cache: origin must not be empty")
	}

	if len(results) == 0 {
		return nil
	}

	key := redisDistancePrefix + origin
	pipe := r.rdb.TxPipeline()
	for dest, res := range results {
		if strings.TrimSpace(dest) == "" {
			return fmt.Errorf("insert distance cache: empty destination key")
		}

		data, err := json.Marshal(redisDistanceEntry{
			DistanceMeters:  res.DistanceMeters,
			DurationMinutes: res.DurationMinutes,
			Source:          string(res.Source),
		})
		if err != nil {
			return fmt.Errorf("insert distance cache dest=%q: marshal: %w", dest, err)
		}
		pipe.HSetNX(ctx, key, dest, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert distance cache: exec pipeline: %w", err)
	}
	return nil
}

// RedisGeocodeCache keeps every address in a single hash.
type RedisGeocodeCache struct {
	rdb *redis.Client
}

func NewRedisGeocodeCache(rdb *redis.Client) *RedisGeocodeCache {
	return &RedisGeocodeCache{rdb: rdb}
}

func (r *RedisGeocodeCache) GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	if r.rdb == nil {
		return nil, errors.New("geocode cache: redis client is nil")
	}

	uniq := uniqueKeys(addresses)
	if len(uniq) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	vals, err := r.rdb.HMGet(ctx, redisGeocodeKey, uniq...).Result()
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: hmget: %w", err)
	}

	out := make(map[string]domain.Coordinates, len(uniq))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var c domain.Coordinates
		if err := json.Unmarshal([]byte(raw), &c); err != nil || !c.Valid() {
			log.Printf("geocode cache: skip corrupt entry address=%q", uniq[i])
			continue
		}
		out[uniq[i]] = c
	}

	return out, nil
}

func (r *RedisGeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) error {
	if r.rdb == nil {
		return errors.New("geocode cache: redis client is nil")
	}

	if len(results) == 0 {
		return nil
	}

	fields := make(map[string]any, len(results))
	for addr, c := range results {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("insert geocode cache: empty address key")
		}

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("insert geocode cache coord=%q: marshal: %w", addr, err)
		}
		fields[addr] = string(data)
	}

	if err := r.rdb.HSet(ctx, redisGeocodeKey, fields).Err(); err != nil {
		return fmt.Errorf("insert geocode cache: hset: %w", err)
	}
	return nil
}
