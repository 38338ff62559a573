package distance

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"net/url"
)

// Matrix bodies index into Locations; the origin is always location 0.
type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
	Units        string      `json:"units,omitempty"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func newMatrixRequest(origin domain.Coordinates, dests []domain.Coordinates) matrixRequest {
	req := matrixRequest{
		Locations:    make([][]float64, 0, len(dests)+1),
		Sources:      []int{0},
		Destinations: make([]int, len(dests)),
		Metrics:      []string{"distance", "duration"},
		Units:        "m",
	}
	req.Locations = append(req.Locations, origin.CoordsToList())
	for i, d := range dests {
		req.Locations = append(req.Locations, d.CoordsToList())
		req.Destinations[i] = i + 1
	}
	return req
}

// fetchMatrixRow prices origin against each destination in one matrix call.
// Cells the router left null or negative are dropped from the result.
func (o *ORSDistanceProvider) fetchMatrixRow(
	ctx context.Context,
	originCoord domain.Coordinates,
	destinations []string,
	destinationCoords []domain.Coordinates,
) (map[string]ports.DistanceResult, error) {
	if len(destinations) != len(destinationCoords) {
		return nil, fmt.Errorf("matrix row: %d destinations but %d coordinates", len(destinations), len(destinationCoords))
	}
	out := make(map[string]ports.DistanceResult, len(destinations))
	if len(destinations) == 0 {
		return out, nil
	}

	var resp matrixResponse
	path := "/v2/matrix/" + o.profile
	if err := o.client.postJSON(ctx, path, newMatrixRequest(originCoord, destinationCoords), &resp); err != nil {
		return nil, fmt.Errorf("matrix row: %w", err)
	}

	distances, durations, err := resp.singleRow(len(destinations))
	if err != nil {
		return nil, fmt.Errorf("matrix row: %w", err)
	}

	for i, dest := range destinations {
		meters, seconds := distances[i], durations[i]
		if meters == nil || seconds == nil || *meters < 0 || *seconds < 0 {
			continue
		}
		minutes := *seconds / 60
		out[dest] = ports.DistanceResult{
			DistanceMeters:  *meters,
			DurationMinutes: minutes,
			DistanceText:    domain.FormatDistance(*meters),
			DurationText:    domain.FormatDuration(minutes),
			Source:          domain.ProvenanceLive,
		}
	}

	return out, nil
}

func (r matrixResponse) singleRow(width int) ([]*float64, []*float64, error) {
	if len(r.Distances) != 1 || len(r.Durations) != 1 {
		return nil, nil, fmt.Errorf("want one source row, got %d distance and %d duration rows", len(r.Distances), len(r.Durations))
	}
	if len(r.Distances[0]) != width || len(r.Durations[0]) != width {
		return nil, nil, fmt.Errorf("row width %d/%d, want %d", len(r.Distances[0]), len(r.Durations[0]), width)
	}
	return r.Distances[0], r.Durations[0], nil
}

// geocodeMany looks up each distinct normalized address. Failed lookups are
// missing from the map and joined into the returned error.
func (o *ORSDistanceProvider) geocodeMany(ctx context.Context, addresses []string) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.geocodeMany")(&err)

	out := make(map[string]domain.Coordinates, len(addresses))
	var failures []error

	for _, addr := range addresses {
		addr = o.normalize(addr)
		if _, done := out[addr]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		c, err := o.geocodeShared(ctx, addr)
		if err != nil {
			failures = append(failures, fmt.Errorf("geocode %q: %w", addr, err))
			continue
		}
		out[addr] = c
	}

	return out, errors.Join(failures...)
}

// geocodeShared answers from coordinates this provider already resolved and
// otherwise joins any lookup of the same address already in flight.
func (o *ORSDistanceProvider) geocodeShared(ctx context.Context, addr string) (domain.Coordinates, error) {
	if c, ok := o.knownPoint(addr); ok {
		return c, nil
	}

	v, err, _ := o.geocodes.Do(addr, func() (any, error) {
		// A flight for addr may have finished between the check above and Do.
		if c, ok := o.knownPoint(addr); ok {
			return c, nil
		}
		c, err := o.geocodeOne(ctx, addr)
		if err != nil {
			return nil, err
		}
		o.pointsMu.Lock()
		o.points[addr] = c
		o.pointsMu.Unlock()
		return c, nil
	})
	if err != nil {
		return domain.Coordinates{}, err
	}
	return v.(domain.Coordinates), nil
}

func (o *ORSDistanceProvider) knownPoint(addr string) (domain.Coordinates, bool) {
	o.pointsMu.Lock()
	defer o.pointsMu.Unlock()
	c, ok := o.points[addr]
	return c, ok
}

func (o *ORSDistanceProvider) geocodeOne(ctx context.Context, address string) (domain.Coordinates, error) {
	q := url.Values{}
	q.Set("text", address)
	q.Set("size", "1")
	if o.country != "" {
		q.Set("boundary.country", o.country)
	}

	var resp geocodeResponse
	if err := o.client.getJSON(ctx, "/geocode/search", q, &resp); err != nil {
		return domain.Coordinates{}, err
	}
	if len(resp.Features) == 0 {
		return domain.Coordinates{}, errors.New("no match")
	}

	pt := resp.Features[0].Geometry.Coordinates
	if len(pt) < 2 {
		return domain.Coordinates{}, fmt.Errorf("malformed point %v", pt)
	}
	c := domain.Coordinates{Lon: pt[0], Lat: pt[1]}
	if !c.Valid() {
		return domain.Coordinates{}, fmt.Errorf("point out of range: lon=%f lat=%f", c.Lon, c.Lat)
	}
	return c, nil
}
