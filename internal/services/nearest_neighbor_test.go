package services

import (
	"job-route-service/internal/ports"
	"testing"

	"github.com/stretchr/testify/assert"
)

func result(minutes, meters float64) ports.DistanceResult {
	return ports.DistanceResult{DurationMinutes: minutes, DistanceMeters: meters}
}

func TestPreferCandidate(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name       string
		best, cand ports.DistanceResult
		want       bool
	}{
		{"within time, materially shorter", result(10, 1000), result(10.5, 800), true},
		{"within time, barely shorter", result(10, 1000), result(10.5, 900), false},
		{"within time, incumbent materially shorter", result(10.5, 800), result(10, 1000), false},
		{"outside time, shorter distance ignored", result(10, 1000), result(12, 100), false},
		{"outside time, faster wins", result(12, 100), result(10, 1000), true},
		{"exact tie keeps incumbent", result(10, 1000), result(10, 1000), false},
		{"same time, shorter distance", result(10, 1000), result(10, 990), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preferCandidate(tt.best, tt.cand, th))
		})
	}
}

func TestPreferCandidateZeroThresholds(t *testing.T) {
	th := Thresholds{}
	assert.False(t, preferCandidate(result(10, 1000), result(10.5, 10), th))
	assert.True(t, preferCandidate(result(10.5, 10), result(10, 1000), th))
}

func TestNearestNeighborTieBreak(t *testing.T) {
	costs := map[[2]int]ports.DistanceResult{
		{0, 1}: result(10, 1000),
		{0, 2}: result(10.5, 800),
		{1, 2}: result(5, 500),
		{2, 1}: result(5, 500),
	}
	m := newCostMatrix([]string{"S", "A", "B"})
	for k, v := range costs {
		m.set(k[0], k[1], v)
	}

	tour, arbitrary := nearestNeighborTour(m, DefaultThresholds())

	assert.Equal(t, []int{2, 1}, tour)
	assert.Zero(t, arbitrary)
}

func TestNearestNeighborFallsBackWhenStuck(t *testing.T) {
	m := newCostMatrix([]string{"S", "A", "B", "C"})
	m.set(0, 2, result(1, 100))

	tour, arbitrary := nearestNeighborTour(m, DefaultThresholds())

	assert.Equal(t, []int{2, 1, 3}, tour)
	assert.Equal(t, 2, arbitrary)
}

func TestMateriallyShorter(t *testing.T) {
	assert.True(t, materiallyShorter(85, 100, 15))
	assert.False(t, materiallyShorter(86, 100, 15))
	assert.False(t, materiallyShorter(100, 100, 0))
	assert.True(t, materiallyShorter(99, 100, 0))
}
