// Package search implements C7: running parsed query plans against the
// index, paginating, streaming, and aggregating results.
package search

import (
	"context"
	"time"

	"logvault/internal/index"
	"logvault/internal/query"
	"logvault/pkg/types"

	apperrors "logvault/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Source is whatever the executor reads from: a single Index Store or a
// Shard Router, both of which expose this method set.
type Source interface {
	Search(ctx context.Context, matcher index.Matcher, from, to time.Time, sourceFilter []string) ([]*types.LogRecord, error)
	Histogram(ctx context.Context, matcher index.Matcher, from, to time.Time, bucketDuration time.Duration, sourceFilter []string) ([]index.Bucket, error)
	Fields() []string
	Sources() []string
	Levels() []string
}

// Executor runs plans against a Source.
type Executor struct {
	source Source
	tracer oteltrace.Tracer
}

func NewExecutor(source Source) *Executor {
	return &Executor{source: source}
}

// SetTracer attaches a tracer so Search/Histogram calls produce spans.
// Left unset, the executor runs untraced.
func (ex *Executor) SetTracer(tracer oteltrace.Tracer) {
	ex.tracer = tracer
}

func (ex *Executor) startSpan(ctx context.Context, operation string, sourceFilter []string) (context.Context, oteltrace.Span) {
	if ex.tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	ctx, span := ex.tracer.Start(ctx, operation)
	span.SetAttributes(attribute.StringSlice("logvault.source_filter", sourceFilter))
	return ctx, span
}

// TimeRange carries the request's time-window parameters; explicit
// Start/End win over the named TimeRange bucket when both are present.
type TimeRange struct {
	Named string // "1h", "3h", "12h", "24h", "7d", "30d"
	Start *time.Time
	End   *time.Time
}

var namedRanges = map[string]time.Duration{
	"1h": time.Hour, "3h": 3 * time.Hour, "12h": 12 * time.Hour,
	"24h": 24 * time.Hour, "7d": 7 * 24 * time.Hour, "30d": 30 * 24 * time.Hour,
}

const defaultRange = 30 * 24 * time.Hour

// Resolve computes the concrete [from, to) window, defaulting to the
// last 30 days when nothing is specified.
func (tr TimeRange) Resolve(now time.Time) (time.Time, time.Time) {
	if tr.Start != nil && tr.End != nil {
		return *tr.Start, *tr.End
	}
	if d, ok := namedRanges[tr.Named]; ok {
		return now.Add(-d), now
	}
	return now.Add(-defaultRange), now
}

// IntervalFor picks the histogram bucket width for a range when the
// client did not specify one: 1m up to 1h, 5m up to 3h, 15m up to 12h,
// 30m up to 24h, else daily.
func IntervalFor(from, to time.Time) time.Duration {
	span := to.Sub(from)
	switch {
	case span <= time.Hour:
		return time.Minute
	case span <= 3*time.Hour:
		return 5 * time.Minute
	case span <= 12*time.Hour:
		return 15 * time.Minute
	case span <= 24*time.Hour:
		return 30 * time.Minute
	default:
		return 24 * time.Hour
	}
}

// Result is one page of a search, plus the total match count.
type Result struct {
	Items    []*types.LogRecord
	Total    int
	Page     int
	PageSize int
}

// Options bundles pagination alongside the time range.
type Options struct {
	Range    TimeRange
	Page     int
	PageSize int
}

// Search executes plan and returns one page plus the total count.
func (ex *Executor) Search(ctx context.Context, plan *query.Plan, opts Options) (*Result, error) {
	ctx, span := ex.startSpan(ctx, "search", plan.SourceFilter())
	defer span.End()

	from, to := opts.Range.Resolve(time.Now())
	matcher := query.PlanMatcher{Expr: plan.Match}

	recs, err := ex.source.Search(ctx, matcher, from, to, plan.SourceFilter())
	if err != nil {
		return nil, err
	}

	recs, err = applyCommands(plan.Commands, recs)
	if err != nil {
		return nil, err
	}

	total := len(recs)
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Result{Items: recs[start:end], Total: total, Page: page, PageSize: pageSize}, nil
}

// Count returns just the total match count, skipping pagination.
func (ex *Executor) Count(ctx context.Context, plan *query.Plan, rng TimeRange) (int, error) {
	from, to := rng.Resolve(time.Now())
	recs, err := ex.source.Search(ctx, query.PlanMatcher{Expr: plan.Match}, from, to, plan.SourceFilter())
	if err != nil {
		return 0, err
	}
	recs, err = applyCommands(plan.Commands, recs)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Fields, Sources, Levels pass through the catalog enumerations.
func (ex *Executor) Fields() []string  { return ex.source.Fields() }
func (ex *Executor) Sources() []string { return ex.source.Sources() }
func (ex *Executor) Levels() []string  { return ex.source.Levels() }

// TimeAggregation divides the range into slotCount equal-width slots.
func (ex *Executor) TimeAggregation(ctx context.Context, plan *query.Plan, rng TimeRange, slotCount int) ([]index.Bucket, error) {
	from, to := rng.Resolve(time.Now())
	if slotCount <= 0 {
		slotCount = 1
	}
	bucketDuration := to.Sub(from) / time.Duration(slotCount)
	if bucketDuration <= 0 {
		bucketDuration = time.Second
	}
	return ex.source.Histogram(ctx, query.PlanMatcher{Expr: plan.Match}, from, to, bucketDuration, plan.SourceFilter())
}

// Histogram is the one-shot (non-streaming) equivalent of HistogramStream.
func (ex *Executor) Histogram(ctx context.Context, plan *query.Plan, rng TimeRange, bucketDuration time.Duration) ([]index.Bucket, error) {
	ctx, span := ex.startSpan(ctx, "histogram", plan.SourceFilter())
	defer span.End()

	from, to := rng.Resolve(time.Now())
	if bucketDuration <= 0 {
		bucketDuration = IntervalFor(from, to)
	}
	return ex.source.Histogram(ctx, query.PlanMatcher{Expr: plan.Match}, from, to, bucketDuration, plan.SourceFilter())
}

func cancelledIfDone(ctx context.Context, component, op string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Cancelled(component, op)
	}
	return nil
}
