package domain

// Provenance records where a travel cost came from.
type Provenance string

const (
	// Priced by a live distance matrix service.
	ProvenanceLive Provenance = "live"
	// Estimated from address text; not a real road distance.
	ProvenanceHeuristic Provenance = "heuristic"
)

// Quality summarizes how much a Route can be trusted.
type Quality string

const (
	// Every hop was priced by a live provider.
	QualityOptimized Quality = "optimized"
	// At least one hop was priced by the address-text heuristic.
	QualityEstimated Quality = "estimated"
	// At least one hop could not be priced; its position in the order is arbitrary.
	QualityDegraded Quality = "degraded"
)

// A single directed hop between two consecutive route positions.
// Segments are only produced for hops with a resolved cost.
type Segment struct {
	FromStopID      string
	ToStopID        string
	FromAddress     string
	ToAddress       string
	DurationMinutes float64
	DistanceMeters  float64
	DurationText    string
	DistanceText    string
	Source          Provenance
}

// A hop in the visiting order whose cost could not be resolved.
type Leg struct {
	FromAddress string
	ToAddress   string
}

// Represents the optimized visiting order for one day.
// Stops excludes the start location. TotalDurationMinutes and TotalDistanceMeters
// always equal the sums over Segments; unresolved hops are listed in UnresolvedLegs
// and contribute nothing to the totals.
type Route struct {
	StartAddress         string
	Stops                []Stop
	Segments             []Segment
	UnresolvedLegs       []Leg
	TotalDurationMinutes float64
	TotalDistanceMeters  float64
	TotalDurationText    string
	TotalDistanceText    string
	Quality              Quality
}

// Orders returns the 1-indexed position of every stop in visiting order.
func (r *Route) Orders() []StopOrder {
	out := make([]StopOrder, 0, len(r.Stops))
	for i, s := range r.Stops {
		out = append(out, StopOrder{StopID: s.ID, Order: i + 1})
	}
	return out
}

// Degraded reports whether any hop of the route is unpriced.
func (r *Route) Degraded() bool { return r.Quality == QualityDegraded }
