// Package shard implements C10: routing a single logical add or search
// across the per-shard Index Store instances that make up one logical
// index, plus optional write replication.
package shard

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"logvault/internal/index"
	"logvault/pkg/types"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Router fans a logical operation out to one or more shard Stores.
type Router struct {
	cfg    types.ShardConfiguration
	shards []*index.Store
	logger *logrus.Logger

	rrCounter uint64 // BALANCED round-robin ingest cursor

	mu        sync.RWMutex
	outOfSync []bool // per-shard: missed a replicated write, needs re-sync

	tracer oteltrace.Tracer // optional; nil means untraced
}

// SetTracer attaches a tracer so each shard fanned out to in Search and
// Histogram gets its own child span. Left unset, the router runs untraced.
func (r *Router) SetTracer(tracer oteltrace.Tracer) {
	r.tracer = tracer
}

func (r *Router) startShardSpan(ctx context.Context, shardIdx int) (context.Context, oteltrace.Span) {
	if r.tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	ctx, span := r.tracer.Start(ctx, "shard_search")
	span.SetAttributes(attribute.Int("logvault.shard_index", shardIdx))
	return ctx, span
}

// NewRouter wires a Router over already-opened per-shard stores. len(stores)
// must equal cfg.NumberOfShards.
func NewRouter(cfg types.ShardConfiguration, stores []*index.Store, logger *logrus.Logger) *Router {
	return &Router{
		cfg:       cfg,
		shards:    stores,
		logger:    logger,
		outOfSync: make([]bool, len(stores)),
	}
}

func (r *Router) shardCount() int { return len(r.shards) }

// writeTargets returns the shard indices a record must be written to:
// exactly one unless replication is enabled, in which case
// ReplicationFactor consecutive shards (ring-wrapped) starting at the
// primary.
func (r *Router) writeTargets(rec *types.LogRecord) []int {
	primary := r.primaryShard(rec)
	if !r.cfg.ReplicationEnabled || r.cfg.ReplicationFactor <= 1 {
		return []int{primary}
	}
	n := r.shardCount()
	factor := r.cfg.ReplicationFactor
	if factor > n {
		factor = n
	}
	targets := make([]int, factor)
	for i := 0; i < factor; i++ {
		targets[i] = (primary + i) % n
	}
	return targets
}

func (r *Router) primaryShard(rec *types.LogRecord) int {
	n := r.shardCount()
	if n <= 1 {
		return 0
	}
	switch r.cfg.ShardingType {
	case types.ShardingTimeBased:
		return timeBucket(rec.Timestamp, r.cfg.TimeShardDuration, n)
	case types.ShardingSourceBased:
		return int(xxhash.Sum64String(rec.Source) % uint64(n))
	case types.ShardingBalanced:
		idx := atomic.AddUint64(&r.rrCounter, 1) - 1
		return int(idx % uint64(n))
	default:
		return 0
	}
}

func timeBucket(ts time.Time, bucketDuration time.Duration, n int) int {
	if bucketDuration <= 0 {
		bucketDuration = time.Hour
	}
	epoch := ts.UTC().UnixNano() / int64(bucketDuration)
	if epoch < 0 {
		epoch = -epoch
	}
	return int(epoch % int64(n))
}

// AddBatch writes every record to its target shard(s), applying
// replication quorum (majority) when enabled. A shard that fails a
// replicated write is marked out-of-sync rather than failing the whole
// batch, as long as quorum is met.
func (r *Router) AddBatch(ctx context.Context, records []*types.LogRecord) (int, error) {
	byShard := make(map[int][]*types.LogRecord)
	for _, rec := range records {
		for _, idx := range r.writeTargets(rec) {
			byShard[idx] = append(byShard[idx], rec)
		}
	}

	type result struct {
		idx int
		err error
	}
	resultsCh := make(chan result, len(byShard))
	for idx, recs := range byShard {
		go func(idx int, recs []*types.LogRecord) {
			_, err := r.shards[idx].AddBatch(ctx, recs)
			resultsCh <- result{idx: idx, err: err}
		}(idx, recs)
	}

	required := majority(len(byShard))
	if !r.cfg.ReplicationEnabled {
		required = len(byShard)
	}

	var succeeded int
	var firstErr error
	for i := 0; i < len(byShard); i++ {
		res := <-resultsCh
		if res.err != nil {
			firstErr = res.err
			r.markOutOfSync(res.idx)
			continue
		}
		succeeded++
	}

	if succeeded < required {
		return 0, firstErr
	}
	return len(records), nil
}

func majority(n int) int {
	if n == 0 {
		return 0
	}
	return n/2 + 1
}

func (r *Router) markOutOfSync(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outOfSync[idx] = true
}

// OutOfSyncShards returns the indices currently flagged for re-sync.
func (r *Router) OutOfSyncShards() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int
	for i, bad := range r.outOfSync {
		if bad {
			out = append(out, i)
		}
	}
	return out
}

// readTargets picks the shards a query must visit: under SOURCE_BASED
// sharding a filter naming exactly one source visits only that source's
// primary shard; TIME_BASED visits only shards whose bucket range
// overlaps [from, to]; everything else (BALANCED, no filter, or a filter
// naming several sources) fans out to every shard.
func (r *Router) readTargets(from, to time.Time, sourceFilter []string) []int {
	n := r.shardCount()
	if r.cfg.ShardingType == types.ShardingSourceBased && len(sourceFilter) == 1 {
		return []int{int(xxhash.Sum64String(sourceFilter[0]) % uint64(n))}
	}
	if r.cfg.ShardingType == types.ShardingTimeBased {
		set := make(map[int]struct{})
		bucketDuration := r.cfg.TimeShardDuration
		if bucketDuration <= 0 {
			bucketDuration = time.Hour
		}
		for t := from.Truncate(bucketDuration); !t.After(to); t = t.Add(bucketDuration) {
			set[timeBucket(t, bucketDuration, n)] = struct{}{}
		}
		targets := make([]int, 0, len(set))
		for idx := range set {
			targets = append(targets, idx)
		}
		sort.Ints(targets)
		return targets
	}
	targets := make([]int, n)
	for i := range targets {
		targets[i] = i
	}
	return targets
}

// Search fans a query out to every relevant shard and merges the results,
// re-sorting to preserve the timestamp-desc / record-id tie-break
// ordering contract across shard boundaries. With replication enabled,
// copies of one record are deduplicated by ID. Any shard that returns an
// error fails the whole search; reads do not fall back to a replica of
// the failed shard.
func (r *Router) Search(ctx context.Context, matcher index.Matcher, from, to time.Time, sourceFilter []string) ([]*types.LogRecord, error) {
	targets := r.readTargets(from, to, sourceFilter)
	var mu sync.Mutex
	var merged []*types.LogRecord
	var firstErr error

	var wg sync.WaitGroup
	for _, idx := range targets {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			spanCtx, span := r.startShardSpan(ctx, idx)
			defer span.End()
			recs, err := r.shards[idx].Search(spanCtx, matcher, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			merged = append(merged, recs...)
		}(idx)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	if r.cfg.ReplicationEnabled {
		merged = dedupeByID(merged)
	}
	sortMergedDesc(merged)
	return merged, nil
}

// Histogram fans out and sums bucket counts by aligned bucket start.
func (r *Router) Histogram(ctx context.Context, matcher index.Matcher, from, to time.Time, bucketDuration time.Duration, sourceFilter []string) ([]index.Bucket, error) {
	targets := r.readTargets(from, to, sourceFilter)
	totals := make(map[int64]int64)
	var order []int64

	for _, idx := range targets {
		spanCtx, span := r.startShardSpan(ctx, idx)
		buckets, err := r.shards[idx].Histogram(spanCtx, matcher, from, to, bucketDuration)
		span.End()
		if err != nil {
			return nil, err
		}
		for _, b := range buckets {
			key := b.Start.UnixNano()
			if _, seen := totals[key]; !seen {
				order = append(order, key)
			}
			totals[key] += b.Count
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]index.Bucket, 0, len(order))
	for _, key := range order {
		out = append(out, index.Bucket{Start: time.Unix(0, key).UTC(), Count: totals[key]})
	}
	return out, nil
}

// DeleteWhere fans a retention delete out to every shard owning one of
// the filter's sources (or every shard when unrestricted).
func (r *Router) DeleteWhere(filter index.DeleteFilter) (int, error) {
	targets := r.readTargets(time.Time{}, time.Now(), filter.Sources)
	var total int
	for _, idx := range targets {
		n, err := r.shards[idx].DeleteWhere(filter)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Fields, Sources, Levels union the catalog across every shard.
func (r *Router) Fields() []string  { return r.unionCatalog(func(s *index.Store) []string { return s.Fields() }) }
func (r *Router) Sources() []string { return r.unionCatalog(func(s *index.Store) []string { return s.Sources() }) }
func (r *Router) Levels() []string  { return r.unionCatalog(func(s *index.Store) []string { return s.Levels() }) }

func (r *Router) unionCatalog(get func(*index.Store) []string) []string {
	set := make(map[string]struct{})
	for _, s := range r.shards {
		for _, v := range get(s) {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func dedupeByID(recs []*types.LogRecord) []*types.LogRecord {
	seen := make(map[string]struct{}, len(recs))
	out := make([]*types.LogRecord, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sortMergedDesc(recs []*types.LogRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
}
