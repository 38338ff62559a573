package distance

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/ports"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProvider blocks every lookup until release is closed.
type gatedProvider struct {
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedProvider) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return ports.DistanceResult{}, fmt.Errorf("%w: %w", ports.ErrUnresolved, ctx.Err())
	}
	return ports.DistanceResult{DurationMinutes: 3, DistanceMeters: 1500, Source: domain.ProvenanceLive}, nil
}

// batchRecorder is a DistanceMatrixProvider that records batch sizes.
type batchRecorder struct {
	*MockDistanceProvider
	mu      sync.Mutex
	batches []int
	fail    bool
}

func (b *batchRecorder) GetDistances(ctx context.Context, pairs []ports.Pair) (map[ports.Pair]ports.DistanceResult, error) {
	b.mu.Lock()
	b.batches = append(b.batches, len(pairs))
	b.mu.Unlock()

	if b.fail {
		return nil, errors.New("matrix service down")
	}

	out := make(map[ports.Pair]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		if r, err := b.GetDistance(ctx, p.Origin, p.Destination); err == nil {
			out[p] = r
		}
	}
	return out, nil
}

func gridPairs(n int) ([]MockPair, []ports.Pair) {
	var mock []MockPair
	var pairs []ports.Pair
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			from, to := fmt.Sprintf("%d Pine St", i), fmt.Sprintf("%d Pine St", j)
			mock = append(mock, MockPair{From: from, To: to, Minutes: float64(i + j), Meters: float64(100 * (i + j))})
			pairs = append(pairs, ports.Pair{Origin: from, Destination: to})
		}
	}
	return mock, pairs
}

func TestCachingProviderMemoizesSuccess(t *testing.T) {
	mock := NewMockDistanceProvider([]MockPair{{From: "A", To: "B", Meters: 1000, Minutes: 2}})
	c := NewCachingProvider(mock, CachingOptions{})
	ctx := context.Background()

	first, err := c.GetDistance(ctx, "A", "B")
	require.NoError(t, err)
	second, err := c.GetDistance(ctx, "A", "B")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.CallsFor("A", "B"))
	assert.Equal(t, 1, c.Len())
}

func TestCachingProviderDoesNotCacheFailures(t *testing.T) {
	mock := NewMockDistanceProvider(nil)
	c := NewCachingProvider(mock, CachingOptions{})
	ctx := context.Background()

	_, err := c.GetDistance(ctx, "A", "B")
	assert.True(t, errors.Is(err, ports.ErrUnresolved))
	_, err = c.GetDistance(ctx, "A", "B")
	assert.True(t, errors.Is(err, ports.ErrUnresolved))

	assert.Equal(t, 2, mock.CallsFor("A", "B"))
	assert.Zero(t, c.Len())
}

func TestCachingProviderIsDirectional(t *testing.T) {
	mock := NewMockDistanceProvider([]MockPair{
		{From: "A", To: "B", Meters: 1000, Minutes: 2},
		{From: "B", To: "A", Meters: 1200, Minutes: 3},
	})
	c := NewCachingProvider(mock, CachingOptions{})
	ctx := context.Background()

	ab, err := c.GetDistance(ctx, "A", "B")
	require.NoError(t, err)
	ba, err := c.GetDistance(ctx, "B", "A")
	require.NoError(t, err)

	assert.NotEqual(t, ab.DurationMinutes, ba.DurationMinutes)
	assert.Equal(t, 2, c.Len())
}

func TestCachingProviderSharesConcurrentLookups(t *testing.T) {
	inner := &gatedProvider{release: make(chan struct{})}
	c := NewCachingProvider(inner, CachingOptions{})
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.GetDistance(ctx, "A", "B")
			if err == nil && r.DurationMinutes != 3 {
				err = fmt.Errorf("unexpected result %+v", r)
			}
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingProviderBatchWaitsOnInflightSingle(t *testing.T) {
	inner := &gatedProvider{release: make(chan struct{})}
	c := NewCachingProvider(inner, CachingOptions{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetDistance(ctx, "A", "B")
	}()

	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	batchDone := make(chan map[ports.Pair]ports.DistanceResult)
	go func() {
		res, _ := c.GetDistances(ctx, []ports.Pair{{Origin: "A", Destination: "B"}})
		batchDone <- res
	}()

	close(inner.release)
	<-done
	res := <-batchDone

	assert.Len(t, res, 1)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingProviderTimeoutIsUnresolved(t *testing.T) {
	inner := &gatedProvider{release: make(chan struct{})}
	c := NewCachingProvider(inner, CachingOptions{RequestTimeout: 20 * time.Millisecond})

	_, err := c.GetDistance(context.Background(), "A", "B")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUnresolved))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(inner.release)
	_, err = c.GetDistance(context.Background(), "A", "B")
	assert.NoError(t, err, "timed out lookups must not poison the cache")
}

func TestCachingProviderGetDistancesPartial(t *testing.T) {
	mockPairs, pairs := gridPairs(4)
	mock := NewMockDistanceProvider(mockPairs)
	mock.Fail(pairs[0].Origin, pairs[0].Destination)
	c := NewCachingProvider(mock, CachingOptions{Parallelism: 3})

	res, err := c.GetDistances(context.Background(), append(pairs, pairs[1], ports.Pair{}))
	require.NoError(t, err)

	assert.Len(t, res, len(pairs)-1)
	_, ok := res[pairs[0]]
	assert.False(t, ok)
	assert.Equal(t, 1, mock.CallsFor(pairs[1].Origin, pairs[1].Destination))
}

func TestCachingProviderChunksMatrixBatches(t *testing.T) {
	mockPairs, pairs := gridPairs(4)
	rec := &batchRecorder{MockDistanceProvider: NewMockDistanceProvider(mockPairs)}
	c := NewCachingProvider(rec, CachingOptions{BatchSize: 5, Parallelism: 2})

	res, err := c.GetDistances(context.Background(), pairs)
	require.NoError(t, err)
	assert.Len(t, res, 12)

	total := 0
	for _, n := range rec.batches {
		assert.LessOrEqual(t, n, 5)
		total += n
	}
	assert.Equal(t, 12, total)
	assert.Len(t, rec.batches, 3)

	_, err = c.GetDistances(context.Background(), pairs)
	require.NoError(t, err)
	assert.Len(t, rec.batches, 3, "cached pairs must not be fetched again")
}

func TestCachingProviderFailedBatchLeavesPairsUnresolved(t *testing.T) {
	mockPairs, pairs := gridPairs(3)
	rec := &batchRecorder{MockDistanceProvider: NewMockDistanceProvider(mockPairs), fail: true}
	c := NewCachingProvider(rec, CachingOptions{BatchSize: 2})

	res, err := c.GetDistances(context.Background(), pairs)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, c.Len())
}

func TestCachingProviderRejectsEmptyAddresses(t *testing.T) {
	c := NewCachingProvider(NewMockDistanceProvider(nil), CachingOptions{})
	_, err := c.GetDistance(context.Background(), "", "B")
	assert.True(t, errors.Is(err, ports.ErrUnresolved))
}

// selfTimedRecorder answers batches slowly and bounds its own requests.
type selfTimedRecorder struct {
	*batchRecorder
	delay    time.Duration
	deadline atomic.Bool
}

func (s *selfTimedRecorder) TimesRequests() bool { return true }

func (s *selfTimedRecorder) GetDistances(ctx context.Context, pairs []ports.Pair) (map[ports.Pair]ports.DistanceResult, error) {
	if _, ok := ctx.Deadline(); ok {
		s.deadline.Store(true)
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.batchRecorder.GetDistances(ctx, pairs)
}

func TestCachingProviderLeavesSelfTimedBatchesUnbounded(t *testing.T) {
	mockPairs, pairs := gridPairs(3)
	inner := &selfTimedRecorder{
		batchRecorder: &batchRecorder{MockDistanceProvider: NewMockDistanceProvider(mockPairs)},
		delay:         60 * time.Millisecond,
	}
	c := NewCachingProvider(inner, CachingOptions{RequestTimeout: 20 * time.Millisecond})

	res, err := c.GetDistances(context.Background(), pairs)
	require.NoError(t, err)
	assert.Len(t, res, len(pairs))
	assert.False(t, inner.deadline.Load())
}

func TestCachingProviderReportsInnerProvenance(t *testing.T) {
	assert.Equal(t, domain.ProvenanceHeuristic, NewCachingProvider(NewHeuristicProvider(), CachingOptions{}).Provenance())
	assert.Equal(t, domain.ProvenanceLive, NewCachingProvider(NewMockDistanceProvider(nil), CachingOptions{}).Provenance())
}
