// Package buffer implements C4: a bounded, size/interval-flushed queue
// sitting between the scanner and the index, running redaction and field
// extraction on each record as it flushes.
package buffer

import (
	"context"
	"sync"
	"time"

	apperrors "logvault/pkg/errors"
	"logvault/internal/metrics"
	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
)

// Sink accepts a committed batch, typically the shard router or a single
// Index Store in a single-shard deployment.
type Sink interface {
	AddBatch(ctx context.Context, records []*types.LogRecord) (int, error)
}

// Stage transforms one record in place before it reaches the sink
// (redaction then field extraction, applied in that order).
type Stage func(rec *types.LogRecord) *types.LogRecord

// pendingItem pairs a queued record with the channel its caller waits
// on. The channel receives exactly once, when the batch containing the
// record is handed to the sink successfully — never on mere admission.
type pendingItem struct {
	rec  *types.LogRecord
	done chan error
}

// Buffer is the bounded pending-record queue. Enqueue blocks once the
// queue is at capacity rather than dropping a record, and does not
// return success until the record's batch has actually reached the
// sink: callers that gate durability bookkeeping (the scanner's file
// offsets, a Kafka consumer's offset commit) on a nil Enqueue error get
// a true acknowledgement of acceptance, not just in-memory admission.
type Buffer struct {
	maxRecords    int
	flushInterval time.Duration
	sink          Sink
	stages        []Stage
	logger        *logrus.Logger

	mu       sync.Mutex
	notFull  *sync.Cond
	pending  []pendingItem
	oldest   time.Time
	closed   bool
	flushing bool

	stopTicker chan struct{}
	wg         sync.WaitGroup
}

// New builds a Buffer. Call Run to start the interval-flush loop and
// Shutdown to drain and stop it.
func New(maxRecords int, flushInterval time.Duration, sink Sink, stages []Stage, logger *logrus.Logger) *Buffer {
	b := &Buffer{
		maxRecords:    maxRecords,
		flushInterval: flushInterval,
		sink:          sink,
		stages:        stages,
		logger:        logger,
		stopTicker:    make(chan struct{}),
	}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Run starts the interval-flush background loop; call once.
func (b *Buffer) Run(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.maybeFlushOnInterval(ctx)
			case <-b.stopTicker:
				return
			}
		}
	}()
}

func (b *Buffer) maybeFlushOnInterval(ctx context.Context) {
	b.mu.Lock()
	due := len(b.pending) > 0 && time.Since(b.oldest) >= b.flushInterval
	b.mu.Unlock()
	if due {
		_ = b.flush(ctx, "interval")
	}
}

// Enqueue blocks while the queue is at capacity (backpressure), never
// drops a record, and refuses new work once shutdown has begun. It
// returns only once the record has been flushed to the sink — either
// synchronously, if admission crossed maxRecords, or later, once the
// interval ticker or a subsequent Enqueue drains the queue — so a nil
// error is a real acceptance acknowledgement, not just buffer admission.
func (b *Buffer) Enqueue(ctx context.Context, rec *types.LogRecord) error {
	item := pendingItem{rec: rec, done: make(chan error, 1)}

	b.mu.Lock()
	for len(b.pending) >= b.maxRecords && !b.closed {
		b.notFull.Wait()
	}
	if b.closed {
		b.mu.Unlock()
		metrics.RecordsDroppedTotal.WithLabelValues("shutdown").Inc()
		return apperrors.New(apperrors.CodeBackpressure, "buffer", "Enqueue", "buffer is shutting down")
	}
	if len(b.pending) == 0 {
		b.oldest = time.Now()
	}
	b.pending = append(b.pending, item)
	size := len(b.pending)
	b.mu.Unlock()

	metrics.RecordsIngestedTotal.WithLabelValues(rec.Source, "file").Inc()
	metrics.BufferSize.Set(float64(size))
	metrics.BufferUtilization.Set(float64(size) / float64(b.maxRecords))

	if size >= b.maxRecords {
		if err := b.flush(ctx, "size"); err != nil {
			return err
		}
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush is exclusive: a caller that finds another flush already running
// returns nil at once without flushing anything, and producers may keep
// enqueuing up to capacity while a flush runs. Every
// item in the flushed batch has its done channel signaled exactly once:
// nil on success, so waiting Enqueue callers can treat that as a
// durable-acceptance acknowledgement; on failure the item is left in
// pending, unsignaled, for a later flush attempt to pick up.
func (b *Buffer) flush(ctx context.Context, trigger string) error {
	b.mu.Lock()
	for b.flushing {
		b.mu.Unlock()
		return nil // another caller is already flushing this generation
	}
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.flushing = true
	items := b.pending
	b.pending = nil
	b.mu.Unlock()

	batch := make([]*types.LogRecord, len(items))
	for i, it := range items {
		rec := it.rec
		for _, stage := range b.stages {
			rec = stage(rec)
		}
		batch[i] = rec
	}

	_, err := b.sink.AddBatch(ctx, batch)

	b.mu.Lock()
	b.flushing = false
	if err != nil {
		// Put the batch back at the front so nothing is lost; the sink's
		// own retry/backpressure signal propagates to the caller.
		b.pending = append(items, b.pending...)
		b.notFull.Broadcast()
		b.mu.Unlock()
		b.logger.WithError(err).Warn("buffer flush failed, records retained")
		return err
	}
	size := len(b.pending)
	b.notFull.Broadcast()
	b.mu.Unlock()

	metrics.BufferFlushesTotal.WithLabelValues(trigger).Inc()
	metrics.BufferSize.Set(float64(size))
	metrics.BufferUtilization.Set(float64(size) / float64(b.maxRecords))

	for _, it := range items {
		it.done <- nil
	}
	return nil
}

// Shutdown drains all pending records, refusing further enqueues, then
// stops the interval-flush loop.
func (b *Buffer) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.notFull.Broadcast()
	b.mu.Unlock()

	close(b.stopTicker)
	b.wg.Wait()

	return b.flush(ctx, "shutdown")
}

// Size and Utilization report current queue occupancy for the /health
// endpoint and for scanner-side backpressure-aware pacing.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Buffer) Utilization() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxRecords == 0 {
		return 0
	}
	return float64(len(b.pending)) / float64(b.maxRecords)
}
