package distance

import (
	"context"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"sync"
)

type MockPair struct {
	From, To string
	Meters   float64
	Minutes  float64
}

// MockDistanceProvider serves fixed pair costs and counts lookups. Safe for concurrent use.
type MockDistanceProvider struct {
	mu    sync.Mutex
	m     map[ports.Pair]ports.DistanceResult
	fail  map[ports.Pair]bool
	calls map[ports.Pair]int
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[ports.Pair]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		m[ports.Pair{Origin: p.From, Destination: p.To}] = ports.DistanceResult{
			DistanceMeters:  p.Meters,
			DurationMinutes: p.Minutes,
			DurationText:    domain.FormatDuration(p.Minutes),
			DistanceText:    domain.FormatDistance(p.Meters),
			Source:          domain.ProvenanceLive,
		}
	}
	return &MockDistanceProvider{
		m:     m,
		fail:  map[ports.Pair]bool{},
		calls: map[ports.Pair]int{},
	}
}

// Fail makes every lookup of from -> to return ErrUnresolved.
func (p *MockDistanceProvider) Fail(from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[ports.Pair{Origin: from, Destination: to}] = true
}

// Calls returns the total number of lookups served.
func (p *MockDistanceProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// CallsFor returns how many times from -> to was looked up.
func (p *MockDistanceProvider) CallsFor(from, to string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[ports.Pair{Origin: from, Destination: to}]
}

func (p *MockDistanceProvider) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	key := ports.Pair{Origin: origin, Destination: destination}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[key]++

	if err := ctx.Err(); err != nil {
		return ports.DistanceResult{}, fmt.Errorf("%w: %w", ports.ErrUnresolved, err)
	}
	if p.fail[key] {
		return ports.DistanceResult{}, fmt.Errorf("%w: forced failure %q -> %q", ports.ErrUnresolved, origin, destination)
	}

	r, ok := p.m[key]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("%w: missing pair %q -> %q", ports.ErrUnresolved, origin, destination)
	}

	return r, nil
}
