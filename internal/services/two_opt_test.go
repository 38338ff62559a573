package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoOptUntanglesLine(t *testing.T) {
	m := matrixFrom(5, func(i, j int) (float64, bool) {
		return math.Abs(float64(i - j)), true
	})

	tour, moves := twoOpt(m, []int{3, 1, 2, 4})

	assert.Equal(t, []int{1, 2, 3, 4}, tour)
	assert.Equal(t, 2, moves)
	assert.Equal(t, pathCost{minutes: 4}, tourCost(m, tour))
}

func TestTwoOptKeepsLocalOptimum(t *testing.T) {
	m := matrixFrom(5, func(i, j int) (float64, bool) {
		return math.Abs(float64(i - j)), true
	})

	tour, moves := twoOpt(m, []int{1, 2, 3, 4})

	assert.Equal(t, []int{1, 2, 3, 4}, tour)
	assert.Zero(t, moves)
}

func TestTwoOptEqualCostIsNotAMove(t *testing.T) {
	m := matrixFrom(5, func(i, j int) (float64, bool) { return 1, true })

	tour, moves := twoOpt(m, []int{4, 2, 3, 1})

	assert.Equal(t, []int{4, 2, 3, 1}, tour)
	assert.Zero(t, moves)
}

func asymmetricCost(i, j int) (float64, bool) {
	return float64((i*7+j*13)%11 + 1), true
}

func TestReversalCostsMatchFullRecompute(t *testing.T) {
	m := matrixFrom(7, asymmetricCost)
	path := []int{0, 4, 2, 6, 1, 5, 3}

	base := tourCost(m, path[1:])
	for i := 0; i < len(path)-2; i++ {
		for j := i + 2; j < len(path); j++ {
			before, after := reversalCosts(m, path, i, j)

			reversed := append([]int(nil), path...)
			reverse(reversed[i+1 : j+1])
			full := tourCost(m, reversed[1:])

			assert.InDelta(t, full.minutes-base.minutes, after.minutes-before.minutes, 1e-9, "i=%d j=%d", i, j)
		}
	}
}

func TestTwoOptNeverIncreasesCost(t *testing.T) {
	m := matrixFrom(8, asymmetricCost)
	start := []int{7, 6, 5, 4, 3, 2, 1}

	tour, _ := twoOpt(m, start)

	require.ElementsMatch(t, start, tour)
	after := tourCost(m, tour)
	before := tourCost(m, start)
	assert.False(t, before.less(after))
}

func TestTwoOptPrefersFewerMissingHops(t *testing.T) {
	// 2 -> 3 is unpriced; every other hop costs 10 minutes except 0 -> 2 -> 3.
	m := matrixFrom(4, func(i, j int) (float64, bool) {
		if i == 2 && j == 3 {
			return 0, false
		}
		return 10, true
	})

	tour, _ := twoOpt(m, []int{1, 2, 3})

	assert.Equal(t, 0, tourCost(m, tour).missing)
	assert.ElementsMatch(t, []int{1, 2, 3}, tour)
}

func TestPathCostOrdering(t *testing.T) {
	assert.True(t, pathCost{missing: 0, minutes: 100}.less(pathCost{missing: 1, minutes: 1}))
	assert.True(t, pathCost{minutes: 5}.less(pathCost{minutes: 6}))
	assert.False(t, pathCost{minutes: 6}.less(pathCost{minutes: 6}))
	assert.False(t, pathCost{minutes: 6 - costEpsilon/2}.less(pathCost{minutes: 6}))
}
