package distance

import (
	"context"
	"encoding/json"
	"errors"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Addresses sit on the equator at the listed longitude. Lon 99 is geocodable
// but has no road route.
var orsLongitudes = map[string]float64{
	"1 Alpha Rd":   1,
	"2 Bravo Rd":   2,
	"3 Charlie Rd": 3,
	"4 Delta Rd":   4,
	"Unroutable":   99,
}

type orsStub struct {
	server         *httptest.Server
	geocodeCalls   atomic.Int32
	matrixCalls    atomic.Int32
	matrixFailures atomic.Int32
	failStatus     int

	mu        sync.Mutex
	geocodeBy map[string]int
}

// geocodesFor returns how many geocode requests asked for text.
func (s *orsStub) geocodesFor(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geocodeBy[text]
}

func newORSStub(t *testing.T) *orsStub {
	t.Helper()
	s := &orsStub{geocodeBy: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/geocode/search", func(w http.ResponseWriter, r *http.Request) {
		s.geocodeCalls.Add(1)
		if r.Header.Get("Authorization") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		text := r.URL.Query().Get("text")
		s.mu.Lock()
		s.geocodeBy[text]++
		s.mu.Unlock()

		lon, ok := orsLongitudes[text]
		features := []map[string]any{}
		if ok {
			features = append(features, map[string]any{
				"geometry": map[string]any{"coordinates": []float64{lon, 0}},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"features": features})
	})
	mux.HandleFunc("/v2/matrix/driving-car", func(w http.ResponseWriter, r *http.Request) {
		s.matrixCalls.Add(1)
		if s.matrixFailures.Load() > 0 {
			s.matrixFailures.Add(-1)
			w.WriteHeader(s.failStatus)
			return
		}

		var req matrixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		origin := req.Locations[req.Sources[0]]
		distances := make([]*float64, 0, len(req.Destinations))
		durations := make([]*float64, 0, len(req.Destinations))
		for _, idx := range req.Destinations {
			dest := req.Locations[idx]
			if dest[0] == 99 {
				distances = append(distances, nil)
				durations = append(durations, nil)
				continue
			}
			gap := math.Abs(dest[0] - origin[0])
			meters, seconds := gap*1000, gap*60
			distances = append(distances, &meters)
			durations = append(durations, &seconds)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"distances": [][]*float64{distances},
			"durations": [][]*float64{durations},
		})
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

type memDistanceCache struct {
	mu sync.Mutex
	m  map[ports.Pair]ports.DistanceResult
}

func (c *memDistanceCache) GetMany(_ context.Context, origin string, dests []string) (map[string]ports.DistanceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]ports.DistanceResult{}
	for _, d := range dests {
		if r, ok := c.m[ports.Pair{Origin: origin, Destination: d}]; ok {
			out[d] = r
		}
	}
	return out, nil
}

func (c *memDistanceCache) PutMany(_ context.Context, origin string, results map[string]ports.DistanceResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d, r := range results {
		c.m[ports.Pair{Origin: origin, Destination: d}] = r
	}
	return nil
}

type memGeocodeCache struct {
	mu sync.Mutex
	m  map[string]domain.Coordinates
}

func (c *memGeocodeCache) GetMany(_ context.Context, addrs []string) (map[string]domain.Coordinates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]domain.Coordinates{}
	for _, a := range addrs {
		if v, ok := c.m[a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

func (c *memGeocodeCache) PutMany(_ context.Context, results map[string]domain.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for a, v := range results {
		c.m[a] = v
	}
	return nil
}

func newTestORS(t *testing.T, stub *orsStub) (*ORSDistanceProvider, *memDistanceCache, *memGeocodeCache) {
	t.Helper()
	dc := &memDistanceCache{m: map[ports.Pair]ports.DistanceResult{}}
	gc := &memGeocodeCache{m: map[string]domain.Coordinates{}}

	p, err := NewORSDistanceProvider("test-key", ORSOptions{
		BaseURL:           stub.server.URL,
		RequestsPerMinute: 600000,
		DistanceCache:     dc,
		GeocodeCache:      gc,
	})
	require.NoError(t, err)
	return p, dc, gc
}

func TestORSGetDistances(t *testing.T) {
	stub := newORSStub(t)
	p, _, _ := newTestORS(t, stub)

	ab := ports.Pair{Origin: "1 Alpha Rd", Destination: "2 Bravo Rd"}
	ac := ports.Pair{Origin: "1 Alpha Rd", Destination: "3 Charlie Rd"}
	ca := ports.Pair{Origin: "3 Charlie Rd", Destination: "1 Alpha Rd"}

	res, err := p.GetDistances(context.Background(), []ports.Pair{ab, ac, ca})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.InDelta(t, 1.0, res[ab].DurationMinutes, 1e-9)
	assert.InDelta(t, 1000.0, res[ab].DistanceMeters, 1e-9)
	assert.Equal(t, domain.ProvenanceLive, res[ab].Source)
	assert.InDelta(t, 2.0, res[ac].DurationMinutes, 1e-9)
	assert.Equal(t, "2 mins", res[ca].DurationText)

	// One matrix row per distinct origin.
	assert.Equal(t, int32(2), stub.matrixCalls.Load())
}

func TestORSKeysResultsByCallerPairs(t *testing.T) {
	stub := newORSStub(t)
	p, _, _ := newTestORS(t, stub)

	messy := ports.Pair{Origin: " 1  Alpha Rd", Destination: "2 Bravo Rd "}
	res, err := p.GetDistances(context.Background(), []ports.Pair{messy})
	require.NoError(t, err)

	_, ok := res[messy]
	assert.True(t, ok)
}

func TestORSPartialResults(t *testing.T) {
	stub := newORSStub(t)
	p, _, _ := newTestORS(t, stub)

	ok := ports.Pair{Origin: "1 Alpha Rd", Destination: "2 Bravo Rd"}
	noRoute := ports.Pair{Origin: "1 Alpha Rd", Destination: "Unroutable"}
	noGeocode := ports.Pair{Origin: "1 Alpha Rd", Destination: "Atlantis"}
	badOrigin := ports.Pair{Origin: "Atlantis", Destination: "2 Bravo Rd"}

	res, err := p.GetDistances(context.Background(), []ports.Pair{ok, noRoute, noGeocode, badOrigin})
	require.NoError(t, err)

	assert.Len(t, res, 1)
	_, found := res[ok]
	assert.True(t, found)
}

func TestORSUsesCaches(t *testing.T) {
	stub := newORSStub(t)
	p, dc, gc := newTestORS(t, stub)
	ctx := context.Background()

	_, err := p.GetDistance(ctx, "1 Alpha Rd", "2 Bravo Rd")
	require.NoError(t, err)
	assert.Len(t, dc.m, 1)
	assert.Len(t, gc.m, 2)

	geocodes, matrices := stub.geocodeCalls.Load(), stub.matrixCalls.Load()

	r, err := p.GetDistance(ctx, "1 Alpha Rd", "2 Bravo Rd")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.DurationMinutes, 1e-9)
	assert.Equal(t, geocodes, stub.geocodeCalls.Load())
	assert.Equal(t, matrices, stub.matrixCalls.Load())

	// Reverse direction reuses coordinates but needs its own matrix row.
	_, err = p.GetDistance(ctx, "2 Bravo Rd", "1 Alpha Rd")
	require.NoError(t, err)
	assert.Equal(t, geocodes, stub.geocodeCalls.Load())
	assert.Equal(t, matrices+1, stub.matrixCalls.Load())
}

func TestORSRetriesTransientFailures(t *testing.T) {
	stub := newORSStub(t)
	stub.failStatus = http.StatusServiceUnavailable
	stub.matrixFailures.Store(2)
	p, _, _ := newTestORS(t, stub)

	r, err := p.GetDistance(context.Background(), "1 Alpha Rd", "3 Charlie Rd")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r.DurationMinutes, 1e-9)
	assert.Equal(t, int32(3), stub.matrixCalls.Load())
}

func TestORSDoesNotRetryClientErrors(t *testing.T) {
	stub := newORSStub(t)
	stub.failStatus = http.StatusBadRequest
	stub.matrixFailures.Store(1)
	p, _, _ := newTestORS(t, stub)

	_, err := p.GetDistance(context.Background(), "1 Alpha Rd", "3 Charlie Rd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUnresolved))
	assert.Equal(t, int32(1), stub.matrixCalls.Load())
}

func TestORSSameAddressIsFree(t *testing.T) {
	stub := newORSStub(t)
	p, _, _ := newTestORS(t, stub)

	r, err := p.GetDistance(context.Background(), "1 Alpha Rd", "1  Alpha Rd")
	require.NoError(t, err)
	assert.Zero(t, r.DurationMinutes)
	assert.Zero(t, stub.geocodeCalls.Load())
}

func TestORSRequiresKey(t *testing.T) {
	_, err := NewORSDistanceProvider("  ", ORSOptions{})
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&orsAPIError{Status: http.StatusTooManyRequests}))
	assert.True(t, retryable(&orsAPIError{Status: http.StatusBadGateway}))
	assert.False(t, retryable(&orsAPIError{Status: http.StatusNotFound}))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(errors.New("plain")))
}

func TestReadAPIErrorMessageShapes(t *testing.T) {
	cases := map[string]string{
		`{"error":"Daily quota reached"}`:                     "Daily quota reached",
		`{"error":{"code":6004,"message":"Too many points"}}`: "Too many points",
		`upstream unavailable`:                                "upstream unavailable",
	}
	for body, want := range cases {
		rec := httptest.NewRecorder()
		rec.Header().Set("Retry-After", "2")
		rec.WriteHeader(http.StatusTooManyRequests)
		_, _ = rec.WriteString(body)

		err := readAPIError(rec.Result(), "/v2/matrix/driving-car")
		var apiErr *orsAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, want, apiErr.Message)
		assert.Equal(t, 2*time.Second, apiErr.RetryAfter)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	}
}

func allPairs(addresses ...string) []ports.Pair {
	var pairs []ports.Pair
	for _, a := range addresses {
		for _, b := range addresses {
			if a != b {
				pairs = append(pairs, ports.Pair{Origin: a, Destination: b})
			}
		}
	}
	return pairs
}

func TestORSSharesGeocodesAcrossParallelBatches(t *testing.T) {
	stub := newORSStub(t)
	ors, err := NewORSDistanceProvider("test-key", ORSOptions{
		BaseURL:           stub.server.URL,
		RequestsPerMinute: 600000,
	})
	require.NoError(t, err)

	c := NewCachingProvider(ors, CachingOptions{BatchSize: 2, Parallelism: 4})
	addrs := []string{"1 Alpha Rd", "2 Bravo Rd", "3 Charlie Rd", "4 Delta Rd"}

	res, err := c.GetDistances(context.Background(), allPairs(addrs...))
	require.NoError(t, err)
	assert.Len(t, res, 12)

	for _, a := range addrs {
		assert.Equal(t, 1, stub.geocodesFor(a), "geocode requests for %q", a)
	}
}

// With the shipped defaults (40 requests per minute, 8s per request) a cold
// four-address matrix needs eight ORS calls, well over 8s of rate-limit waits.
func TestCachingORSColdCacheWithDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the production rate limit")
	}

	stub := newORSStub(t)
	ors, err := NewORSDistanceProvider("test-key", ORSOptions{
		BaseURL: stub.server.URL,
		Timeout: DefaultRequestTimeout,
	})
	require.NoError(t, err)

	c := NewCachingProvider(ors, CachingOptions{})
	addrs := []string{"1 Alpha Rd", "2 Bravo Rd", "3 Charlie Rd", "4 Delta Rd"}

	res, err := c.GetDistances(context.Background(), allPairs(addrs...))
	require.NoError(t, err)
	assert.Len(t, res, 12)
	assert.Equal(t, int32(4), stub.geocodeCalls.Load())
	assert.Equal(t, int32(4), stub.matrixCalls.Load())
}
