package search

import (
	"context"
	"time"

	"logvault/internal/query"
)

// StreamEvent is one message on a SearchStream channel. Total carries
// the last computed result's match count and is populated on "done" so
// a subscriber can verify it received a complete stream.
type StreamEvent struct {
	Kind  string // "page", "done", "error"
	Page  *Result
	Total int
	Err   error
}

// SearchStream re-runs the search on each tick, pushing a fresh page
// until the context is cancelled. Consumers typically fan this out
// over Server-Sent Events.
func (ex *Executor) SearchStream(ctx context.Context, plan *query.Plan, opts Options, interval time.Duration) <-chan StreamEvent {
	out := make(chan StreamEvent)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastTotal int
		emit := func() bool {
			res, err := ex.Search(ctx, plan, opts)
			if err != nil {
				select {
				case out <- StreamEvent{Kind: "error", Err: err}:
				case <-ctx.Done():
				}
				return false
			}
			select {
			case out <- StreamEvent{Kind: "page", Page: res, Total: res.Total}:
				lastTotal = res.Total
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				out <- StreamEvent{Kind: "done", Total: lastTotal}
				return
			case <-ticker.C:
				if !emit() {
					if ctx.Err() != nil {
						out <- StreamEvent{Kind: "done", Total: lastTotal}
					}
					return
				}
			}
		}
	}()
	return out
}

// HistogramEvent is one message on a HistogramStream channel. Total is
// the sum of Buckets' counts from the last "hist" snapshot, carried
// forward onto "done" so the final event's total matches the sum a
// subscriber would compute from the buckets it already received.
type HistogramEvent struct {
	Kind    string // "init", "hist", "done", "error"
	Buckets []BucketPoint
	Total   int64
	Err     error
}

// BucketPoint is the wire shape of one histogram bucket.
type BucketPoint struct {
	Start time.Time
	Count int64
}

// HistogramStream emits an empty "init" skeleton covering the
// requested range immediately, then a fresh "hist" snapshot on every
// tick until the context is cancelled.
func (ex *Executor) HistogramStream(ctx context.Context, plan *query.Plan, rng TimeRange, bucketDuration time.Duration, interval time.Duration) <-chan HistogramEvent {
	out := make(chan HistogramEvent)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		defer close(out)
		from, to := rng.Resolve(time.Now())
		if bucketDuration <= 0 {
			bucketDuration = IntervalFor(from, to)
		}

		skeleton := emptySkeleton(from, to, bucketDuration)
		select {
		case out <- HistogramEvent{Kind: "init", Buckets: skeleton}:
		case <-ctx.Done():
			return
		}

		var lastTotal int64
		emit := func() bool {
			buckets, err := ex.Histogram(ctx, plan, rng, bucketDuration)
			if err != nil {
				select {
				case out <- HistogramEvent{Kind: "error", Err: err}:
				case <-ctx.Done():
				}
				return false
			}
			points := make([]BucketPoint, len(buckets))
			var total int64
			for i, b := range buckets {
				points[i] = BucketPoint{Start: b.Start, Count: b.Count}
				total += b.Count
			}
			select {
			case out <- HistogramEvent{Kind: "hist", Buckets: points, Total: total}:
				lastTotal = total
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				out <- HistogramEvent{Kind: "done", Total: lastTotal}
				return
			case <-ticker.C:
				if !emit() {
					if ctx.Err() != nil {
						out <- HistogramEvent{Kind: "done", Total: lastTotal}
					}
					return
				}
			}
		}
	}()
	return out
}

func emptySkeleton(from, to time.Time, bucketDuration time.Duration) []BucketPoint {
	var points []BucketPoint
	start := from.Truncate(bucketDuration)
	for t := start; t.Before(to); t = t.Add(bucketDuration) {
		points = append(points, BucketPoint{Start: t, Count: 0})
	}
	return points
}
