package services

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 4

// CostMatrix holds directed travel costs between every pair of route locations.
// Index 0 is the start; indices 1..n are the stops in input order.
// A nil entry means the pair could not be resolved.
type CostMatrix struct {
	addresses []string
	entries   [][]*ports.DistanceResult
}

func newCostMatrix(addresses []string) *CostMatrix {
	entries := make([][]*ports.DistanceResult, len(addresses))
	for i := range entries {
		entries[i] = make([]*ports.DistanceResult, len(addresses))
	}
	return &CostMatrix{addresses: addresses, entries: entries}
}

// Size returns the number of locations, start included.
func (m *CostMatrix) Size() int { return len(m.addresses) }

// Address returns the address at index i.
func (m *CostMatrix) Address(i int) string { return m.addresses[i] }

// At returns the cost from i to j and whether it was resolved.
func (m *CostMatrix) At(i, j int) (ports.DistanceResult, bool) {
	if i == j {
		return ports.DistanceResult{}, false
	}
	e := m.entries[i][j]
	if e == nil {
		return ports.DistanceResult{}, false
	}
	return *e, true
}

func (m *CostMatrix) set(i, j int, r ports.DistanceResult) {
	m.entries[i][j] = &r
}

// Resolved counts the off-diagonal entries that hold a cost.
func (m *CostMatrix) Resolved() int {
	n := 0
	for i := range m.entries {
		for j := range m.entries[i] {
			if i != j && m.entries[i][j] != nil {
				n++
			}
		}
	}
	return n
}

// BuildCostMatrix resolves all ordered pairs among the given addresses.
//
// Batched providers receive every pair in a single call and are responsible for
// chunking; plain providers are queried pair by pair with bounded parallelism.
// Lookup failures leave the entry empty. An error is returned only when the
// context is done before the matrix is complete.
func BuildCostMatrix(
	ctx context.Context,
	provider ports.DistanceProvider,
	addresses []string,
	parallelism int,
) (*CostMatrix, error) {
	if provider == nil {
		return nil, errors.New("build cost matrix: provider must be non-nil")
	}

	m := newCostMatrix(addresses)
	n := len(addresses)
	if n < 2 {
		return m, nil
	}

	source := ports.ProvenanceOf(provider)

	type cell struct{ i, j int }
	byPair := make(map[ports.Pair][]cell)
	pairs := make([]ports.Pair, 0, n*(n-1))

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}

			// Two stops at the same address cost nothing to move between.
			if sameAddress(addresses[i], addresses[j]) {
				m.set(i, j, zeroCost(source))
				continue
			}

			p := ports.Pair{Origin: addresses[i], Destination: addresses[j]}
			if _, ok := byPair[p]; !ok {
				pairs = append(pairs, p)
			}
			byPair[p] = append(byPair[p], cell{i, j})
		}
	}

	if len(pairs) == 0 {
		return m, nil
	}

	results, err := resolvePairs(ctx, provider, pairs, parallelism)
	if err != nil {
		return nil, fmt.Errorf("build cost matrix: %w", err)
	}

	for p, r := range results {
		for _, c := range byPair[p] {
			m.set(c.i, c.j, r)
		}
	}

	return m, nil
}

func resolvePairs(
	ctx context.Context,
	provider ports.DistanceProvider,
	pairs []ports.Pair,
	parallelism int,
) (map[ports.Pair]ports.DistanceResult, error) {
	if mp, ok := provider.(ports.DistanceMatrixProvider); ok {
		results, err := mp.GetDistances(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("get matrix distances: %w", err)
		}
		return results, nil
	}

	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	found := make([]*ports.DistanceResult, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for idx, p := range pairs {
		g.Go(func() error {
			r, err := provider.GetDistance(gctx, p.Origin, p.Destination)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Printf("op=cost_matrix.resolve origin=%q destination=%q err=%v", p.Origin, p.Destination, err)
				return nil
			}
			found[idx] = &r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve pairs: %w", err)
	}

	out := make(map[ports.Pair]ports.DistanceResult, len(pairs))
	for idx, r := range found {
		if r != nil {
			out[pairs[idx]] = *r
		}
	}
	return out, nil
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

// zeroCost is the cost of a hop between identical addresses. It carries the
// provider's Source so a heuristic route never reads as live.
func zeroCost(source domain.Provenance) ports.DistanceResult {
	return ports.DistanceResult{
		DurationText: domain.FormatDuration(0),
		DistanceText: domain.FormatDistance(0),
		Source:       source,
	}
}
