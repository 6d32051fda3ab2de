package shard

import (
	"context"
	"os"
	"testing"
	"time"

	"logvault/internal/index"
	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T, n int) []*index.Store {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	stores := make([]*index.Store, n)
	for i := 0; i < n; i++ {
		dir, err := os.MkdirTemp("", "logvault-shard-*")
		require.NoError(t, err)
		t.Cleanup(func() { os.RemoveAll(dir) })
		st, err := index.Open(index.Config{Dir: dir, ShardID: "s", Codec: "none", MaxRecords: 1000, CommitInterval: time.Hour}, l)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		stores[i] = st
	}
	return stores
}

func TestRouter_SourceBasedRoutesConsistently(t *testing.T) {
	stores := openStores(t, 4)
	cfg := types.ShardConfiguration{ShardingType: types.ShardingSourceBased, NumberOfShards: 4}
	r := NewRouter(cfg, stores, logrus.New())

	rec := &types.LogRecord{ID: "1", Timestamp: time.Now(), Source: "app.log", Message: "m"}
	a := r.primaryShard(rec)
	b := r.primaryShard(rec)
	require.Equal(t, a, b, "same source must hash to the same shard every time")
}

func TestRouter_AddAndSearchAcrossShards(t *testing.T) {
	stores := openStores(t, 3)
	cfg := types.ShardConfiguration{ShardingType: types.ShardingSourceBased, NumberOfShards: 3}
	r := NewRouter(cfg, stores, logrus.New())
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []*types.LogRecord{
		{ID: "1", Timestamp: now, Source: "a.log", Message: "hello"},
		{ID: "2", Timestamp: now.Add(time.Second), Source: "b.log", Message: "world"},
		{ID: "3", Timestamp: now.Add(2 * time.Second), Source: "c.log", Message: "hello world"},
	}
	n, err := r.AddBatch(ctx, recs)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	got, err := r.Search(ctx, index.MatchAll{}, now.Add(-time.Minute), now.Add(time.Minute), nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "3", got[0].ID) // most recent first
}

func TestRouter_ReplicationWritesToReplicationFactorShards(t *testing.T) {
	stores := openStores(t, 4)
	cfg := types.ShardConfiguration{
		ShardingType:       types.ShardingBalanced,
		NumberOfShards:     4,
		ReplicationEnabled: true,
		ReplicationFactor:  2,
	}
	r := NewRouter(cfg, stores, logrus.New())
	ctx := context.Background()

	rec := &types.LogRecord{ID: "1", Timestamp: time.Now(), Source: "a", Message: "m"}
	targets := r.writeTargets(rec)
	require.Len(t, targets, 2)

	_, err := r.AddBatch(ctx, []*types.LogRecord{rec})
	require.NoError(t, err)

	got, err := r.Search(ctx, index.MatchAll{}, time.Now().Add(-time.Minute), time.Now().Add(time.Minute), nil)
	require.NoError(t, err)
	require.Len(t, got, 1, "replicated record must be deduplicated across shards")
}

func TestRouter_TimeBasedReadNarrowsShards(t *testing.T) {
	stores := openStores(t, 24)
	cfg := types.ShardConfiguration{ShardingType: types.ShardingTimeBased, NumberOfShards: 24, TimeShardDuration: time.Hour}
	r := NewRouter(cfg, stores, logrus.New())

	from := time.Now()
	to := from.Add(time.Hour)
	targets := r.readTargets(from, to, nil)
	require.LessOrEqual(t, len(targets), 2)
}
