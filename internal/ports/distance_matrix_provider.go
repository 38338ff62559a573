package ports

import "context"

// Directed address pair used as a lookup key.
type Pair struct {
	Origin      string
	Destination string
}

// Optional extension of DistanceProvider that supports batched lookups.
type DistanceMatrixProvider interface {
	DistanceProvider
	// Resolve many pairs at once. The returned map holds only the pairs that
	// could be priced; a missing key means the pair is unresolved. An error is
	// returned only when the whole call was abandoned (e.g. context cancellation).
	GetDistances(ctx context.Context, pairs []Pair) (map[Pair]DistanceResult, error)
}
