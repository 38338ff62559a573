package distance

import (
	"context"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Scale from similarity score to travel cost. One point is treated as one
// minute and a quarter mile of driving; only the relative order matters.
const (
	heuristicMinutesPerPoint = 1.0
	heuristicMetersPerPoint  = 402.336
)

var leadingNumber = regexp.MustCompile(`^\s*(\d+)`)

// HeuristicProvider estimates proximity from address text when no live distance
// service is configured. Results are tagged ProvenanceHeuristic; they do not
// model the road network and are only good for a rough ordering.
type HeuristicProvider struct{}

func NewHeuristicProvider() *HeuristicProvider { return &HeuristicProvider{} }

func (h *HeuristicProvider) Provenance() domain.Provenance { return domain.ProvenanceHeuristic }

func (h *HeuristicProvider) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.DistanceResult{}, fmt.Errorf("%w: %w", ports.ErrUnresolved, err)
	}
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return ports.DistanceResult{}, fmt.Errorf("%w: origin and destination must be non-empty", ports.ErrUnresolved)
	}

	score := AddressScore(origin, destination)
	minutes := score * heuristicMinutesPerPoint
	meters := score * heuristicMetersPerPoint

	return ports.DistanceResult{
		DurationMinutes: minutes,
		DistanceMeters:  meters,
		DurationText:    domain.FormatDuration(minutes),
		DistanceText:    domain.FormatDistance(meters),
		Source:          domain.ProvenanceHeuristic,
	}, nil
}

// AddressScore is 10 x the difference between the addresses' leading house
// numbers plus the character-level difference of their normalized text.
// Lower means closer. A missing house number on either side contributes nothing.
func AddressScore(a, b string) float64 {
	score := 0.0

	na, okA := houseNumber(a)
	nb, okB := houseNumber(b)
	if okA && okB {
		score += 10 * math.Abs(float64(na-nb))
	}

	score += float64(textDifference(normalizeAddress(a), normalizeAddress(b)))
	return score
}

func houseNumber(addr string) (int64, bool) {
	m := leadingNumber.FindStringSubmatch(addr)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeAddress lowercases, drops punctuation and collapses whitespace.
func normalizeAddress(addr string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(addr) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// textDifference counts mismatched positions over the shorter string plus the length gap.
func textDifference(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}

	diff := len(long) - len(short)
	for i := range short {
		if short[i] != long[i] {
			diff++
		}
	}
	return diff
}
