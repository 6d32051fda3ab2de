package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*types.LogRecord
	failN   int // fail the first failN calls
	calls   int
}

func (f *fakeSink) AddBatch(_ context.Context, records []*types.LogRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return 0, errFlush
	}
	f.batches = append(f.batches, records)
	return len(records), nil
}

var errFlush = &flushErr{}

type flushErr struct{}

func (*flushErr) Error() string { return "simulated flush failure" }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestBuffer_FlushesAtCapacity(t *testing.T) {
	sink := &fakeSink{}
	b := New(2, time.Hour, sink, nil, testLogger())
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- b.Enqueue(ctx, &types.LogRecord{ID: "1", Source: "a"}) }()
	require.Eventually(t, func() bool { return b.Size() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, b.Enqueue(ctx, &types.LogRecord{ID: "2", Source: "a"}))
	require.NoError(t, <-firstErr)

	sink.mu.Lock()
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
	sink.mu.Unlock()
	require.Equal(t, 0, b.Size())
}

func TestBuffer_EnqueueWaitsForFlushBelowCapacity(t *testing.T) {
	sink := &fakeSink{}
	b := New(10, time.Hour, sink, nil, testLogger())
	ctx := context.Background()

	enqueueErr := make(chan error, 1)
	go func() { enqueueErr <- b.Enqueue(ctx, &types.LogRecord{ID: "1"}) }()

	require.Eventually(t, func() bool { return b.Size() == 1 }, time.Second, time.Millisecond)
	select {
	case <-enqueueErr:
		t.Fatal("Enqueue returned before the record was ever flushed to the sink")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, b.flush(ctx, "manual"))
	require.NoError(t, <-enqueueErr, "Enqueue must unblock once its batch reaches the sink")
}

func TestBuffer_StagesApplyBeforeSink(t *testing.T) {
	sink := &fakeSink{}
	upper := func(rec *types.LogRecord) *types.LogRecord {
		rec.Message = rec.Message + "!"
		return rec
	}
	b := New(1, time.Hour, sink, []Stage{upper}, testLogger())

	require.NoError(t, b.Enqueue(context.Background(), &types.LogRecord{ID: "1", Message: "hi"}))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, "hi!", sink.batches[0][0].Message)
}

func TestBuffer_FailedFlushRetainsBatch(t *testing.T) {
	sink := &fakeSink{failN: 1}
	b := New(1, time.Hour, sink, nil, testLogger())

	err := b.Enqueue(context.Background(), &types.LogRecord{ID: "1"})
	require.Error(t, err)
	require.Equal(t, 1, b.Size(), "record must not be lost on a failed flush")
}

func TestBuffer_ShutdownDrainsAndRefusesNewWork(t *testing.T) {
	sink := &fakeSink{}
	b := New(10, time.Hour, sink, nil, testLogger())
	ctx := context.Background()

	enqueueErr := make(chan error, 1)
	go func() { enqueueErr <- b.Enqueue(ctx, &types.LogRecord{ID: "1"}) }()
	require.Eventually(t, func() bool { return b.Size() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, <-enqueueErr)

	sink.mu.Lock()
	require.Len(t, sink.batches, 1)
	sink.mu.Unlock()

	err := b.Enqueue(ctx, &types.LogRecord{ID: "2"})
	require.Error(t, err)
}

func TestBuffer_IntervalFlushOnTicker(t *testing.T) {
	sink := &fakeSink{}
	b := New(100, 20*time.Millisecond, sink, nil, testLogger())
	ctx := context.Background()
	b.Run(ctx)
	defer b.Shutdown(ctx)

	require.NoError(t, b.Enqueue(ctx, &types.LogRecord{ID: "1"}))
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.batches) == 1
	}, time.Second, 5*time.Millisecond)
}
