package services

import "job-route-service/internal/ports"

// Percentages used to prefer a shorter drive when travel times are comparable.
type Thresholds struct {
	TimePercent     float64
	DistancePercent float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{TimePercent: 10, DistancePercent: 15}
}

// nearestNeighborTour builds an initial visiting order over matrix indices 1..n
// using a greedy nearest-neighbor walk from index 0.
//
// Each step takes the unvisited stop with the shortest drive from the current
// position, except that a candidate within the time threshold of the incumbent
// wins when its distance is shorter by at least the distance threshold.
// When nothing is reachable from the current position, the lowest remaining
// index is taken so the walk always terminates; those steps are counted in
// the second return value.
func nearestNeighborTour(m *CostMatrix, th Thresholds) ([]int, int) {
	n := m.Size() - 1
	tour := make([]int, 0, n)
	if n <= 0 {
		return tour, 0
	}

	visited := make([]bool, n+1)
	visited[0] = true
	current := 0
	arbitrary := 0

	for len(tour) < n {
		best := -1
		var bestCost ports.DistanceResult

		// Candidates are scanned in input order so equal costs resolve deterministically.
		for cand := 1; cand <= n; cand++ {
			if visited[cand] {
				continue
			}
			c, ok := m.At(current, cand)
			if !ok {
				continue
			}
			if best == -1 || preferCandidate(bestCost, c, th) {
				best = cand
				bestCost = c
			}
		}

		if best == -1 {
			for cand := 1; cand <= n; cand++ {
				if !visited[cand] {
					best = cand
					break
				}
			}
			arbitrary++
		}

		tour = append(tour, best)
		visited[best] = true
		current = best
	}

	return tour, arbitrary
}

// preferCandidate reports whether cand should replace the incumbent best.
//
// Durations within th.TimePercent of the faster of the two are treated as
// comparable; between comparable candidates, one whose distance is at least
// th.DistancePercent shorter wins. Otherwise the shorter duration wins and
// exact duration ties go to the shorter distance, then to the incumbent.
func preferCandidate(best, cand ports.DistanceResult, th Thresholds) bool {
	faster := min(best.DurationMinutes, cand.DurationMinutes)
	gap := best.DurationMinutes - cand.DurationMinutes
	if gap < 0 {
		gap = -gap
	}

	if gap < faster*th.TimePercent/100 {
		if materiallyShorter(cand.DistanceMeters, best.DistanceMeters, th.DistancePercent) {
			return true
		}
		if materiallyShorter(best.DistanceMeters, cand.DistanceMeters, th.DistancePercent) {
			return false
		}
	}

	if cand.DurationMinutes != best.DurationMinutes {
		return cand.DurationMinutes < best.DurationMinutes
	}
	return cand.DistanceMeters < best.DistanceMeters
}

// materiallyShorter reports whether a is shorter than b by at least pct percent of b.
func materiallyShorter(a, b, pct float64) bool {
	if a >= b {
		return false
	}
	return b-a >= b*pct/100
}
