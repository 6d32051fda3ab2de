package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"logvault/internal/index"
	"logvault/internal/query"
	"logvault/internal/shard"
	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func openTestExecutor(t *testing.T) *Executor {
	t.Helper()
	dir := t.TempDir()
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	st, err := index.Open(index.Config{Dir: dir, ShardID: "s0", Codec: "none", MaxRecords: 1000, CommitInterval: time.Hour}, l)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := types.ShardConfiguration{ShardingType: types.ShardingBalanced, NumberOfShards: 1}
	router := shard.NewRouter(cfg, []*index.Store{st}, l)
	return NewExecutor(router)
}

func seedRecords(t *testing.T, ex *Executor, now time.Time) {
	t.Helper()
	recs := []*types.LogRecord{
		{ID: "1", Timestamp: now.Add(-3 * time.Minute), Level: types.LevelError, Source: "app.log", Message: "disk full", Fields: map[string]string{"latency": "120"}},
		{ID: "2", Timestamp: now.Add(-2 * time.Minute), Level: types.LevelInfo, Source: "app.log", Message: "request served", Fields: map[string]string{"latency": "40"}},
		{ID: "3", Timestamp: now.Add(-1 * time.Minute), Level: types.LevelError, Source: "db.log", Message: "connection refused", Fields: map[string]string{"latency": "300"}},
	}
	router := ex.source.(*shard.Router)
	_, err := router.AddBatch(context.Background(), recs)
	require.NoError(t, err)
}

func TestExecutor_SearchDefaultsTo30DayRangeAndPaginates(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "*"})
	require.NoError(t, err)

	res, err := ex.Search(context.Background(), plan, Options{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 2)
}

func TestExecutor_SearchAppliesFieldCompare(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "level=ERROR"})
	require.NoError(t, err)

	res, err := ex.Search(context.Background(), plan, Options{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	for _, r := range res.Items {
		require.Equal(t, types.LevelError, r.Level)
	}
}

func TestExecutor_StatsCommandCountsByGroup(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "* | stats count(message) by source"})
	require.NoError(t, err)

	res, err := ex.Search(context.Background(), plan, Options{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	for _, r := range res.Items {
		require.Contains(t, []string{"app.log", "db.log"}, r.Fields["source"])
	}
}

func TestExecutor_HeadLimitsResultCount(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "* | head 1"})
	require.NoError(t, err)

	res, err := ex.Search(context.Background(), plan, Options{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
}

func TestExecutor_EvalComputesDerivedField(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "* | eval doubled=latency*2"})
	require.NoError(t, err)

	res, err := ex.Search(context.Background(), plan, Options{Page: 1, PageSize: 10})
	require.NoError(t, err)
	for _, r := range res.Items {
		require.Contains(t, r.Fields, "doubled")
	}
}

func TestExecutor_EvalDoesNotMutateStoredRecord(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	evalPlan, err := query.Parse(query.ParseRequest{Query: "* | eval doubled=latency*2"})
	require.NoError(t, err)
	_, err = ex.Search(context.Background(), evalPlan, Options{Page: 1, PageSize: 10})
	require.NoError(t, err)

	plainPlan, err := query.Parse(query.ParseRequest{Query: "*"})
	require.NoError(t, err)
	res, err := ex.Search(context.Background(), plainPlan, Options{Page: 1, PageSize: 10})
	require.NoError(t, err)
	for _, r := range res.Items {
		require.NotContains(t, r.Fields, "doubled", "eval must not write back into the stored record")
	}
}

func TestIntervalFor_SelectsBucketWidthByRangeSpan(t *testing.T) {
	now := time.Now()
	require.Equal(t, time.Minute, IntervalFor(now.Add(-30*time.Minute), now))
	require.Equal(t, 5*time.Minute, IntervalFor(now.Add(-2*time.Hour), now))
	require.Equal(t, 15*time.Minute, IntervalFor(now.Add(-6*time.Hour), now))
	require.Equal(t, 30*time.Minute, IntervalFor(now.Add(-20*time.Hour), now))
	require.Equal(t, 24*time.Hour, IntervalFor(now.Add(-72*time.Hour), now))
}

func TestExecutor_ExportCSVIncludesHeaderAndRows(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "*"})
	require.NoError(t, err)

	var buf strings.Builder
	err = ex.ExportCSV(context.Background(), plan, TimeRange{}, &buf)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4) // header + 3 records
	require.Contains(t, lines[0], "message")
}

func TestExecutor_ExportJSONProducesArray(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "*"})
	require.NoError(t, err)

	var buf strings.Builder
	err = ex.ExportJSON(context.Background(), plan, TimeRange{}, &buf)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(buf.String(), "["))
	require.True(t, strings.HasSuffix(buf.String(), "]"))
}

func TestExecutor_SearchStreamEmitsPageThenDoneOnCancel(t *testing.T) {
	ex := openTestExecutor(t)
	seedRecords(t, ex, time.Now())

	plan, err := query.Parse(query.ParseRequest{Query: "*"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events := ex.SearchStream(ctx, plan, Options{Page: 1, PageSize: 10}, 10*time.Millisecond)

	first := <-events
	require.Equal(t, "page", first.Kind)
	require.Equal(t, 3, first.Page.Total)

	cancel()
	var sawDone bool
	var doneTotal int
	for ev := range events {
		if ev.Kind == "done" {
			sawDone = true
			doneTotal = ev.Total
		}
	}
	require.True(t, sawDone)
	require.Equal(t, 3, doneTotal, "done must carry the total from the last page emitted")
}

func TestExecutor_HistogramStreamDoneTotalMatchesLastHist(t *testing.T) {
	ex := openTestExecutor(t)
	now := time.Now()
	seedRecords(t, ex, now)

	plan, err := query.Parse(query.ParseRequest{Query: "*"})
	require.NoError(t, err)

	rng := TimeRange{Start: ptrTime(now.Add(-time.Hour)), End: ptrTime(now.Add(time.Hour))}
	ctx, cancel := context.WithCancel(context.Background())
	events := ex.HistogramStream(ctx, plan, rng, time.Minute, 10*time.Millisecond)

	init := <-events
	require.Equal(t, "init", init.Kind)

	hist := <-events
	require.Equal(t, "hist", hist.Kind)
	var histTotal int64
	for _, b := range hist.Buckets {
		histTotal += b.Count
	}
	require.Equal(t, histTotal, hist.Total)
	require.Equal(t, int64(3), hist.Total)

	cancel()
	var doneTotal int64
	for ev := range events {
		if ev.Kind == "done" {
			doneTotal = ev.Total
		}
	}
	require.Equal(t, hist.Total, doneTotal, "done must carry the same total as the last hist snapshot")
}

func ptrTime(t time.Time) *time.Time { return &t }
