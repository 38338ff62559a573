package distance

import (
	"context"
	"errors"
	"fmt"
	"job-route-service/internal/domain"
	"job-route-service/internal/metrics"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize      = 25
	DefaultParallelism    = 4
	DefaultRequestTimeout = 8 * time.Second
)

type CachingOptions struct {
	// Maximum number of pairs sent to the wrapped provider in one batch.
	BatchSize int
	// Maximum number of batches (or single lookups) in flight at once.
	Parallelism int
	// Deadline applied to every call into the wrapped provider, unless that
	// provider times its own requests (ports.RequestTimer).
	RequestTimeout time.Duration
}

// pendingLookup is a pair lookup owned by one caller and awaited by the others.
type pendingLookup struct {
	done   chan struct{}
	result ports.DistanceResult
	ok     bool
}

// CachingProvider memoizes successful lookups of a wrapped provider for the
// lifetime of the process.
//
// Entries are keyed by the literal (origin, destination) pair, inserted once
// and never replaced or evicted. Concurrent requests for a pair that is already
// being resolved wait for that lookup instead of issuing their own. Failures are
// not cached. Batched requests are split into chunks of BatchSize and resolved
// with at most Parallelism chunks in flight; a failed chunk only leaves its own
// pairs unresolved.
type CachingProvider struct {
	next ports.DistanceProvider
	opts CachingOptions

	mu       sync.Mutex
	entries  map[ports.Pair]ports.DistanceResult
	inflight map[ports.Pair]*pendingLookup
}

func NewCachingProvider(next ports.DistanceProvider, opts CachingOptions) *CachingProvider {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	return &CachingProvider{
		next:     next,
		opts:     opts,
		entries:  make(map[ports.Pair]ports.DistanceResult),
		inflight: make(map[ports.Pair]*pendingLookup),
	}
}

// Len returns the number of cached pairs.
func (c *CachingProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachingProvider) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	if origin == "" || destination == "" {
		return ports.DistanceResult{}, fmt.Errorf("%w: origin and destination must be non-empty", ports.ErrUnresolved)
	}

	key := ports.Pair{Origin: origin, Destination: destination}
	owned, waiting, hits := c.claim([]ports.Pair{key})

	if r, ok := hits[key]; ok {
		return r, nil
	}

	if pl, ok := waiting[key]; ok {
		r, ok, err := awaitLookup(ctx, pl)
		if err != nil {
			return ports.DistanceResult{}, fmt.Errorf("%w: %w", ports.ErrUnresolved, err)
		}
		if !ok {
			return ports.DistanceResult{}, fmt.Errorf("%w: %q -> %q", ports.ErrUnresolved, origin, destination)
		}
		return r, nil
	}

	if len(owned) != 1 {
		return ports.DistanceResult{}, errors.New("caching provider: lookup neither cached, pending nor owned")
	}

	r, err := c.lookupOne(ctx, key)
	c.complete(key, r, err == nil)
	if err != nil {
		return ports.DistanceResult{}, err
	}
	return r, nil
}

// GetDistances resolves every pair it can; unresolved pairs are absent from the result.
func (c *CachingProvider) GetDistances(ctx context.Context, pairs []ports.Pair) (_ map[ports.Pair]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cache.GetDistances")(&err)

	uniq := dedupePairs(pairs)
	owned, waiting, hits := c.claim(uniq)

	out := make(map[ports.Pair]ports.DistanceResult, len(uniq))
	for p, r := range hits {
		out[p] = r
	}

	fetched, fetchErr := c.fetchOwned(ctx, owned)
	for p, r := range fetched {
		out[p] = r
	}

	for p, pl := range waiting {
		r, ok, werr := awaitLookup(ctx, pl)
		if werr != nil {
			return nil, fmt.Errorf("get distances: %w", werr)
		}
		if ok {
			out[p] = r
		}
	}

	if fetchErr != nil {
		return nil, fmt.Errorf("get distances: %w", fetchErr)
	}

	if missing := len(uniq) - len(out); missing > 0 {
		log.Printf("req_id=%s op=distance.cache.GetDistances pairs=%d unresolved=%d", obs.RequestID(ctx), len(uniq), missing)
	}

	return out, nil
}

// fetchOwned resolves pairs this caller claimed and completes every one of them,
// successful or not, so that waiters are always released.
func (c *CachingProvider) fetchOwned(ctx context.Context, owned []ports.Pair) (map[ports.Pair]ports.DistanceResult, error) {
	out := make(map[ports.Pair]ports.DistanceResult, len(owned))
	if len(owned) == 0 {
		return out, nil
	}

	var outMu sync.Mutex
	record := func(p ports.Pair, r ports.DistanceResult, ok bool) {
		c.complete(p, r, ok)
		if ok {
			outMu.Lock()
			out[p] = r
			outMu.Unlock()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)

	if mp, ok := c.next.(ports.DistanceMatrixProvider); ok {
		for _, batch := range chunkPairs(owned, c.opts.BatchSize) {
			g.Go(func() error {
				results := c.lookupBatch(gctx, mp, batch)
				for _, p := range batch {
					r, ok := results[p]
					record(p, r, ok)
				}
				return gctx.Err()
			})
		}
	} else {
		for _, p := range owned {
			g.Go(func() error {
				r, err := c.lookupOne(gctx, p)
				record(p, r, err == nil)
				return gctx.Err()
			})
		}
	}

	err := g.Wait()
	return out, err
}

func (c *CachingProvider) lookupOne(ctx context.Context, p ports.Pair) (ports.DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.DistanceResult{}, fmt.Errorf("%w: %w", ports.ErrUnresolved, err)
	}

	tctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	r, err := c.next.GetDistance(tctx, p.Origin, p.Destination)
	if err != nil {
		metrics.DistanceLookups.WithLabelValues("none", "unresolved").Inc()
		if errors.Is(err, ports.ErrUnresolved) {
			return ports.DistanceResult{}, err
		}
		return ports.DistanceResult{}, fmt.Errorf("%w: %q -> %q: %w", ports.ErrUnresolved, p.Origin, p.Destination, err)
	}

	metrics.DistanceLookups.WithLabelValues(string(r.Source), "ok").Inc()
	return r, nil
}

func (c *CachingProvider) lookupBatch(ctx context.Context, mp ports.DistanceMatrixProvider, batch []ports.Pair) map[ports.Pair]ports.DistanceResult {
	if ctx.Err() != nil {
		return nil
	}

	tctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	results, err := mp.GetDistances(tctx, batch)
	if err != nil {
		log.Printf("req_id=%s op=distance.cache.lookupBatch pairs=%d err=%v", obs.RequestID(ctx), len(batch), err)
		metrics.DistanceLookups.WithLabelValues("none", "unresolved").Add(float64(len(batch)))
		return nil
	}

	for _, p := range batch {
		if r, ok := results[p]; ok {
			metrics.DistanceLookups.WithLabelValues(string(r.Source), "ok").Inc()
		} else {
			metrics.DistanceLookups.WithLabelValues("none", "unresolved").Inc()
		}
	}
	return results
}

// withRequestTimeout bounds one call into the wrapped provider. Providers that
// time their own requests get the caller's context untouched, so rate-limit
// waits between their requests do not eat into a single deadline.
func (c *CachingProvider) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt, ok := c.next.(ports.RequestTimer); ok && rt.TimesRequests() {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.RequestTimeout)
}

// Provenance reports the wrapped provider's Source.
func (c *CachingProvider) Provenance() domain.Provenance {
	return ports.ProvenanceOf(c.next)
}

// claim splits pairs into cache hits, lookups already in flight, and lookups
// the caller now owns and must complete.
func (c *CachingProvider) claim(pairs []ports.Pair) ([]ports.Pair, map[ports.Pair]*pendingLookup, map[ports.Pair]ports.DistanceResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var owned []ports.Pair
	waiting := make(map[ports.Pair]*pendingLookup)
	hits := make(map[ports.Pair]ports.DistanceResult)

	for _, p := range pairs {
		if r, ok := c.entries[p]; ok {
			hits[p] = r
			metrics.DistanceCacheRequests.WithLabelValues("hit").Inc()
			continue
		}
		if pl, ok := c.inflight[p]; ok {
			waiting[p] = pl
			metrics.DistanceCacheRequests.WithLabelValues("shared").Inc()
			continue
		}
		c.inflight[p] = &pendingLookup{done: make(chan struct{})}
		owned = append(owned, p)
		metrics.DistanceCacheRequests.WithLabelValues("miss").Inc()
	}

	return owned, waiting, hits
}

func (c *CachingProvider) complete(p ports.Pair, r ports.DistanceResult, ok bool) {
	c.mu.Lock()
	if ok {
		if _, exists := c.entries[p]; !exists {
			c.entries[p] = r
		}
	}
	pl := c.inflight[p]
	delete(c.inflight, p)
	c.mu.Unlock()

	if pl != nil {
		pl.result = r
		pl.ok = ok
		close(pl.done)
	}
}

func awaitLookup(ctx context.Context, pl *pendingLookup) (ports.DistanceResult, bool, error) {
	select {
	case <-pl.done:
		return pl.result, pl.ok, nil
	case <-ctx.Done():
		return ports.DistanceResult{}, false, ctx.Err()
	}
}

func dedupePairs(pairs []ports.Pair) []ports.Pair {
	seen := make(map[ports.Pair]struct{}, len(pairs))
	out := make([]ports.Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Origin == "" || p.Destination == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func chunkPairs(pairs []ports.Pair, size int) [][]ports.Pair {
	chunks := make([][]ports.Pair, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		chunks = append(chunks, pairs[start:end])
	}
	return chunks
}
