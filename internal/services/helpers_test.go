package services

import (
	"job-route-service/internal/adapters/distance"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// lineProvider places every address on a number line; travel time is the gap
// in minutes and distance is 1000 m per minute.
func lineProvider(positions map[string]float64) *distance.MockDistanceProvider {
	pairs := make([]distance.MockPair, 0, len(positions)*len(positions))
	for a, pa := range positions {
		for b, pb := range positions {
			if a == b {
				continue
			}
			gap := math.Abs(pa - pb)
			pairs = append(pairs, distance.MockPair{From: a, To: b, Minutes: gap, Meters: gap * 1000})
		}
	}
	return distance.NewMockDistanceProvider(pairs)
}

func stopIDs(r *domain.Route) []string {
	ids := make([]string, 0, len(r.Stops))
	for _, s := range r.Stops {
		ids = append(ids, s.ID)
	}
	return ids
}

func assertPermutation(t *testing.T, in []domain.Stop, r *domain.Route) {
	t.Helper()
	want := make([]string, 0, len(in))
	for _, s := range in {
		want = append(want, s.ID)
	}
	got := stopIDs(r)
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got, "route must visit every stop exactly once")
}

func assertTotalsMatchSegments(t *testing.T, r *domain.Route) {
	t.Helper()
	var minutes, meters float64
	for _, s := range r.Segments {
		minutes += s.DurationMinutes
		meters += s.DistanceMeters
	}
	assert.InDelta(t, minutes, r.TotalDurationMinutes, 1e-9)
	assert.InDelta(t, meters, r.TotalDistanceMeters, 1e-9)
	assert.Equal(t, domain.FormatDuration(r.TotalDurationMinutes), r.TotalDurationText)
	assert.Equal(t, domain.FormatDistance(r.TotalDistanceMeters), r.TotalDistanceText)
	assert.Equal(t, len(r.Stops), len(r.Segments)+len(r.UnresolvedLegs))
}

func matrixFrom(n int, cost func(i, j int) (float64, bool)) *CostMatrix {
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = string(rune('A' + i))
	}
	m := newCostMatrix(addrs)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if c, ok := cost(i, j); ok {
				m.set(i, j, ports.DistanceResult{DurationMinutes: c, DistanceMeters: c * 1000, Source: domain.ProvenanceLive})
			}
		}
	}
	return m
}
