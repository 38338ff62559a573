package services

// Improvements smaller than this are float noise and never accepted.
const costEpsilon = 1e-9

// pathCost orders candidate paths: fewer unresolved hops first, then lower duration.
type pathCost struct {
	missing int
	minutes float64
}

func (a pathCost) add(b pathCost) pathCost {
	return pathCost{missing: a.missing + b.missing, minutes: a.minutes + b.minutes}
}

// less reports a strict improvement of a over b.
func (a pathCost) less(b pathCost) bool {
	if a.missing != b.missing {
		return a.missing < b.missing
	}
	return a.minutes < b.minutes-costEpsilon
}

func edgeCost(m *CostMatrix, from, to int) pathCost {
	c, ok := m.At(from, to)
	if !ok {
		return pathCost{missing: 1}
	}
	return pathCost{minutes: c.DurationMinutes}
}

// tourCost is the open-path cost start -> tour[0] -> ... -> tour[len-1].
func tourCost(m *CostMatrix, tour []int) pathCost {
	var total pathCost
	prev := 0
	for _, idx := range tour {
		total = total.add(edgeCost(m, prev, idx))
		prev = idx
	}
	return total
}

// twoOpt improves an open tour that starts at matrix index 0 by reversing
// contiguous sub-sequences while that strictly lowers the path cost.
// Passes repeat until a full pass accepts no move. The matrix is directional,
// so each candidate re-prices the reversed interior rather than assuming symmetry.
// Returns the improved tour and the number of accepted moves.
func twoOpt(m *CostMatrix, tour []int) ([]int, int) {
	path := make([]int, 0, len(tour)+1)
	path = append(path, 0)
	path = append(path, tour...)
	size := len(path)

	accepted := 0
	for {
		improved := false

		for i := 0; i < size-2; i++ {
			for j := i + 2; j < size; j++ {
				before, after := reversalCosts(m, path, i, j)
				if after.less(before) {
					reverse(path[i+1 : j+1])
					accepted++
					improved = true
				}
			}
		}

		if !improved {
			break
		}
	}

	return path[1:], accepted
}

// reversalCosts prices the hops touched by reversing path[i+1..j], before and after.
func reversalCosts(m *CostMatrix, path []int, i, j int) (pathCost, pathCost) {
	var before, after pathCost

	before = before.add(edgeCost(m, path[i], path[i+1]))
	after = after.add(edgeCost(m, path[i], path[j]))

	for k := i + 1; k < j; k++ {
		before = before.add(edgeCost(m, path[k], path[k+1]))
		after = after.add(edgeCost(m, path[k+1], path[k]))
	}

	if j+1 < len(path) {
		before = before.add(edgeCost(m, path[j], path[j+1]))
		after = after.add(edgeCost(m, path[i+1], path[j+1]))
	}

	return before, after
}

func reverse(s []int) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}
