package index

import (
	"context"
	"os"
	"testing"
	"time"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "logvault-index-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	st, err := Open(Config{
		Dir:            dir,
		ShardID:        "shard-0",
		Codec:          "zstd",
		MaxRecords:     1000,
		CommitInterval: time.Hour,
	}, l)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type fieldEqualsMatcher struct {
	field, value string
}

func (m fieldEqualsMatcher) Match(rec *types.LogRecord) bool {
	if m.field == "message" {
		return rec.Message == m.value
	}
	return rec.Fields[m.field] == m.value
}

func TestStore_AddAndSearch(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []*types.LogRecord{
		{ID: "1", Timestamp: base, Level: types.LevelInfo, Source: "app.log", Message: "hello world"},
		{ID: "2", Timestamp: base.Add(time.Second), Level: types.LevelError, Source: "app.log", Message: "boom"},
	}
	n, err := st.AddBatch(ctx, recs)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := st.Search(ctx, fieldEqualsMatcher{"message", "boom"}, base, base.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "2", got[0].ID)
	require.Equal(t, types.LevelError, got[0].Level)
}

func TestStore_SearchOrderingTimestampDescThenIDTieBreak(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := st.AddBatch(ctx, []*types.LogRecord{
		{ID: "b", Timestamp: base, Source: "x", Message: "m"},
		{ID: "a", Timestamp: base, Source: "x", Message: "m"},
		{ID: "c", Timestamp: base.Add(time.Minute), Source: "x", Message: "m"},
	})
	require.NoError(t, err)

	got, err := st.Search(ctx, MatchAll{}, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestStore_CommitPersistsAcrossReopen(t *testing.T) {
	dir, err := os.MkdirTemp("", "logvault-index-reopen-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	st, err := Open(Config{Dir: dir, ShardID: "s", Codec: "snappy", MaxRecords: 1, CommitInterval: time.Hour}, l)
	require.NoError(t, err)

	ctx := context.Background()
	ts := time.Now().UTC()
	_, err = st.AddBatch(ctx, []*types.LogRecord{{ID: "1", Timestamp: ts, Source: "a", Message: "x"}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened, err := Open(Config{Dir: dir, ShardID: "s", Codec: "snappy", MaxRecords: 1, CommitInterval: time.Hour}, l)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Search(ctx, MatchAll{}, ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].ID)
}

func TestStore_DeleteWhereTombstonesMatching(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	_, err := st.AddBatch(ctx, []*types.LogRecord{
		{ID: "1", Timestamp: old, Source: "app.log", Message: "old"},
		{ID: "2", Timestamp: recent, Source: "app.log", Message: "new"},
	})
	require.NoError(t, err)

	deleted, err := st.DeleteWhere(DeleteFilter{Sources: []string{"app.log"}, Before: time.Now().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	got, err := st.Search(ctx, MatchAll{}, old.Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "2", got[0].ID)
}

func TestStore_HistogramIncludesEmptyBuckets(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	_, err := st.AddBatch(ctx, []*types.LogRecord{
		{ID: "1", Timestamp: from.Add(5 * time.Minute), Source: "x", Message: "m"},
	})
	require.NoError(t, err)

	buckets, err := st.Histogram(ctx, MatchAll{}, from, to, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, buckets, 12)

	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	require.Equal(t, int64(1), total)
}

func TestStore_FieldsSourcesLevels(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	_, err := st.AddBatch(ctx, []*types.LogRecord{
		{ID: "1", Timestamp: time.Now(), Source: "app.log", Level: types.LevelError, Message: "m", Fields: map[string]string{"ip": "10.0.0.1"}},
	})
	require.NoError(t, err)

	require.Contains(t, st.Fields(), "ip")
	require.Contains(t, st.Sources(), "app.log")
	require.Contains(t, st.Levels(), "ERROR")
}
