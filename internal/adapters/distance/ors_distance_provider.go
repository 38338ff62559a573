package distance

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultORSBaseURL  = "https://api.openrouteservice.org"
	defaultORSProfile  = "driving-car"
	defaultORSTimeout  = 10 * time.Second
	defaultORSPerMin   = 40
	defaultORSMaxDests = DefaultBatchSize - 1
	defaultORSCountry  = "US"
)

type ORSOptions struct {
	BaseURL string
	Profile string
	// Per-HTTP-request timeout.
	Timeout time.Duration
	// Client-side cap on ORS requests per minute (geocode and matrix combined).
	RequestsPerMinute int
	// Maximum destinations per matrix request; the origin takes the remaining slot.
	MaxDestinationsPerRequest int
	// ISO country code that bounds geocoding; "-" disables the boundary.
	Country       string
	DistanceCache ports.DistanceCache
	GeocodeCache  ports.GeocodeCache
}

// ORSDistanceProvider implements DistanceMatrixProvider using OpenRouteService.
//
// It coordinates:
//   - Address normalization
//   - Persistent geocode caching
//   - Persistent distance matrix caching
//   - Rate-limited external API calls with retry/backoff
//
// Lookups that fail for one address or one origin leave only the affected
// pairs unresolved. The provider is safe for concurrent use.
type ORSDistanceProvider struct {
	client        *orsClient
	profile       string
	country       string
	maxDests      int
	distanceCache ports.DistanceCache
	geocodeCache  ports.GeocodeCache

	// Geocodes are shared across concurrent batches and remembered for the
	// provider's lifetime, so each address costs at most one rate-limit token.
	geocodes singleflight.Group
	pointsMu sync.Mutex
	points   map[string]domain.Coordinates
}

func NewORSDistanceProvider(apiKey string, opts ORSOptions) (*ORSDistanceProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	if opts.BaseURL == "" {
		opts.BaseURL = defaultORSBaseURL
	}
	if opts.Profile == "" {
		opts.Profile = defaultORSProfile
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultORSTimeout
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = defaultORSPerMin
	}
	if opts.MaxDestinationsPerRequest <= 0 {
		opts.MaxDestinationsPerRequest = defaultORSMaxDests
	}
	switch opts.Country {
	case "":
		opts.Country = defaultORSCountry
	case "-":
		opts.Country = ""
	}

	provider := &ORSDistanceProvider{
		client:        newORSClient(apiKey, opts.BaseURL, opts.Timeout, opts.RequestsPerMinute),
		profile:       opts.Profile,
		country:       opts.Country,
		maxDests:      opts.MaxDestinationsPerRequest,
		distanceCache: opts.DistanceCache,
		geocodeCache:  opts.GeocodeCache,
		points:        make(map[string]domain.Coordinates),
	}

	return provider, nil
}

// TimesRequests reports that every HTTP attempt is bounded by the client
// timeout; rate-limit waits between attempts only follow the caller's context.
func (o *ORSDistanceProvider) TimesRequests() bool { return true }

func (o *ORSDistanceProvider) Provenance() domain.Provenance { return domain.ProvenanceLive }

// normalize ensures consistent cache keys by collapsing whitespace.
func (o *ORSDistanceProvider) normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Delegate to the batched path to reuse caching and matrix logic.
func (o *ORSDistanceProvider) GetDistance(
	ctx context.Context,
	origin string,
	destination string,
) (ports.DistanceResult, error) {
	key := ports.Pair{Origin: origin, Destination: destination}

	results, err := o.GetDistances(ctx, []ports.Pair{key})
	if err != nil {
		return ports.DistanceResult{}, fmt.Errorf("%w: get distances %q -> %q: %w", ports.ErrUnresolved, origin, destination, err)
	}

	result, ok := results[key]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("%w: no ORS result for %q -> %q", ports.ErrUnresolved, origin, destination)
	}

	return result, nil
}

// GetDistances resolves the given pairs, one matrix row per distinct origin.
// Results are keyed by the pairs exactly as passed in.
func (o *ORSDistanceProvider) GetDistances(
	ctx context.Context,
	pairs []ports.Pair,
) (_ map[ports.Pair]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "ors.GetDistances")(&err)

	out := make(map[ports.Pair]ports.DistanceResult, len(pairs))

	// normalized origin -> normalized destination -> callers' pairs
	wanted := make(map[string]map[string][]ports.Pair)
	origins := make([]string, 0)
	for _, p := range pairs {
		no, nd := o.normalize(p.Origin), o.normalize(p.Destination)
		if no == "" || nd == "" {
			continue
		}
		if no == nd {
			out[p] = ports.DistanceResult{
				DurationText: domain.FormatDuration(0),
				DistanceText: domain.FormatDistance(0),
				Source:       domain.ProvenanceLive,
			}
			continue
		}
		if _, ok := wanted[no]; !ok {
			wanted[no] = make(map[string][]ports.Pair)
			origins = append(origins, no)
		}
		wanted[no][nd] = append(wanted[no][nd], p)
	}

	for _, origin := range origins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dests := make([]string, 0, len(wanted[origin]))
		for d := range wanted[origin] {
			dests = append(dests, d)
		}

		row, err := o.distancesFrom(ctx, origin, dests)
		if err != nil {
			log.Printf("req_id=%s op=ors.GetDistances origin=%q destinations=%d err=%v", obs.RequestID(ctx), origin, len(dests), err)
		}

		for d, r := range row {
			for _, p := range wanted[origin][d] {
				out[p] = r
			}
		}
	}

	return out, nil
}

// distancesFrom computes distances from a single normalized origin to many
// normalized destinations. It returns whatever it could resolve together with
// the first error that prevented resolving the rest.
func (o *ORSDistanceProvider) distancesFrom(
	ctx context.Context,
	origin string,
	destinations []string,
) (map[string]ports.DistanceResult, error) {
	destinationHits := make(map[string]ports.DistanceResult)
	// Check persistent distance cache before issuing external API calls.
	if o.distanceCache != nil {
		hits, err := o.distanceCache.GetMany(ctx, origin, destinations)
		if err != nil {
			log.Printf("distance cache read failed: origin=%q err=%v", origin, err)
		} else {
			destinationHits = hits
		}
	}

	destinationMisses := make([]string, 0, len(destinations))
	for _, d := range destinations {
		if _, ok := destinationHits[d]; !ok {
			destinationMisses = append(destinationMisses, d)
		}
	}

	if len(destinationMisses) == 0 {
		return destinationHits, nil
	}

	needed := make([]string, 0, 1+len(destinationMisses))
	needed = append(needed, origin)
	needed = append(needed, destinationMisses...)

	coords, geoErr := o.resolveCoordinates(ctx, needed)

	originCoord, ok := coords[origin]
	if !ok {
		return destinationHits, fmt.Errorf("missing coordinate for origin %q: %w", origin, errors.Join(ports.ErrUnresolved, geoErr))
	}

	located := make([]string, 0, len(destinationMisses))
	locatedCoords := make([]domain.Coordinates, 0, len(destinationMisses))
	for _, d := range destinationMisses {
		if c, ok := coords[d]; ok {
			located = append(located, d)
			locatedCoords = append(locatedCoords, c)
		}
	}

	out := make(map[string]ports.DistanceResult, len(destinations))
	for k, v := range destinationHits {
		out[k] = v
	}

	var rowErr error
	// One origin->many matrix request per chunk of located destinations.
	for start := 0; start < len(located); start += o.maxDests {
		end := min(start+o.maxDests, len(located))

		fetched, err := o.fetchMatrixRow(ctx, originCoord, located[start:end], locatedCoords[start:end])
		if err != nil {
			rowErr = errors.Join(rowErr, fmt.Errorf("fetching matrix row: %w", err))
			continue
		}

		if o.distanceCache != nil && len(fetched) > 0 {
			if err := o.distanceCache.PutMany(ctx, origin, fetched); err != nil {
				log.Printf("distance cache write failed: %v", err)
			}
		}

		for k, v := range fetched {
			out[k] = v
		}
	}

	return out, errors.Join(geoErr, rowErr)
}

// resolveCoordinates returns coordinates for as many addresses as possible,
// reading and filling the geocode cache.
func (o *ORSDistanceProvider) resolveCoordinates(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	geocodeHits := make(map[string]domain.Coordinates)
	// Resolve coordinates via cache before calling ORS geocoding.
	if o.geocodeCache != nil {
		hits, err := o.geocodeCache.GetMany(ctx, addresses)
		if err != nil {
			log.Printf("geocode cache read failed: %v", err)
		} else {
			geocodeHits = hits
		}
	}

	geocodeMisses := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := geocodeHits[a]; !ok {
			geocodeMisses = append(geocodeMisses, a)
		}
	}

	coords := make(map[string]domain.Coordinates, len(addresses))
	for k, v := range geocodeHits {
		coords[k] = v
	}

	if len(geocodeMisses) == 0 {
		return coords, nil
	}

	fresh, err := o.geocodeMany(ctx, geocodeMisses)

	if o.geocodeCache != nil && len(fresh) > 0 {
		if err := o.geocodeCache.PutMany(ctx, fresh); err != nil {
			log.Printf("geocode cache write failed: %v", err)
		}
	}

	for k, v := range fresh {
		coords[k] = v
	}

	return coords, err
}
