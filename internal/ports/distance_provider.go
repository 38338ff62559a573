package ports

import (
	"context"
	"errors"
	"job-route-service/internal/domain"
)

// ErrUnresolved reports that a travel cost for an address pair could not be determined.
// Callers must treat it as an unknown edge, never as a zero cost.
var ErrUnresolved = errors.New("distance unresolved")

// Travel cost between two addresses.
type DistanceResult struct {
	DurationMinutes float64
	DistanceMeters  float64
	DurationText    string
	DistanceText    string
	Source          domain.Provenance
}

// Contract for retrieving travel distance and duration between addresses.
type DistanceProvider interface {
	// Return travel distance and estimated duration from origin to destination.
	// Failures wrap ErrUnresolved.
	GetDistance(ctx context.Context, origin string, destination string) (DistanceResult, error)
}

// RequestTimer is implemented by providers that bound every outbound request
// themselves. Wrappers must not put one deadline around a whole call to such a
// provider: a single call can span several rate-limited requests.
type RequestTimer interface {
	TimesRequests() bool
}

// ProvenanceReporter is implemented by providers whose results all carry the
// same Source. Zero-cost hops that never reach the provider are tagged with it.
type ProvenanceReporter interface {
	Provenance() domain.Provenance
}

// ProvenanceOf returns the Source p reports, or ProvenanceLive when it reports none.
func ProvenanceOf(p DistanceProvider) domain.Provenance {
	if r, ok := p.(ProvenanceReporter); ok {
		if src := r.Provenance(); src != "" {
			return src
		}
	}
	return domain.ProvenanceLive
}
