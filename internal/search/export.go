package search

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"logvault/internal/query"
	"logvault/pkg/types"
)

// exportPageSize is how many records each fetch writes out. Each fetch
// runs Executor.Search again, which loads every matching record before
// slicing out the page, so the whole result set is held in memory once
// per fetch.
const exportPageSize = 1000

// ExportCSV streams every matching record to w as CSV, fetching pages
// from the source until exhausted or ctx is cancelled. Columns are
// id, timestamp, level, source, host, message, followed by a sorted
// union of every field key seen across the exported set; a first pass
// over the pages collects those keys before any row is written.
func (ex *Executor) ExportCSV(ctx context.Context, plan *query.Plan, rng TimeRange, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	fieldSet := map[string]struct{}{}
	if err := ex.paginate(ctx, plan, rng, func(res *Result) error {
		for _, k := range unionFieldKeys(res.Items) {
			fieldSet[k] = struct{}{}
		}
		return nil
	}); err != nil {
		return err
	}
	fieldCols := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fieldCols = append(fieldCols, k)
	}
	sort.Strings(fieldCols)

	headerWritten := false

	return ex.paginate(ctx, plan, rng, func(res *Result) error {
		if !headerWritten {
			header := append([]string{"id", "timestamp", "level", "source", "host", "message"}, fieldCols...)
			if err := writer.Write(header); err != nil {
				return err
			}
			headerWritten = true
		}
		for _, r := range res.Items {
			row := []string{r.ID, strconv.FormatInt(r.TimestampMillis(), 10), string(r.Level), r.Source, r.Host, r.Message}
			for _, k := range fieldCols {
				row = append(row, r.Fields[k])
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

// ExportJSON streams every matching record to w as a JSON array,
// fetching pages until exhausted or ctx is cancelled.
func (ex *Executor) ExportJSON(ctx context.Context, plan *query.Plan, rng TimeRange, w io.Writer) error {
	enc := json.NewEncoder(w)
	if _, err := w.Write([]byte("[")); err != nil {
		return err
	}
	first := true
	err := ex.paginate(ctx, plan, rng, func(res *Result) error {
		for _, r := range res.Items {
			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return err
				}
			}
			first = false
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("]"))
	return err
}

// paginate drives fetch across successive pages of the same plan/range
// until a page comes back short (the natural end-of-results signal).
func (ex *Executor) paginate(ctx context.Context, plan *query.Plan, rng TimeRange, fetch func(*Result) error) error {
	page := 1
	for {
		if err := cancelledIfDone(ctx, "search", "export"); err != nil {
			return err
		}
		res, err := ex.Search(ctx, plan, Options{Range: rng, Page: page, PageSize: exportPageSize})
		if err != nil {
			return err
		}
		if err := fetch(res); err != nil {
			return err
		}
		if len(res.Items) < exportPageSize {
			return nil
		}
		page++
	}
}

func unionFieldKeys(recs []*types.LogRecord) []string {
	set := map[string]struct{}{}
	for _, r := range recs {
		for k := range r.Fields {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
