// Package index implements C3: an inverted index over tokenized fields,
// organized as append-only segments within one shard directory, with a
// row store for full record bodies and a manifest for recovery.
package index

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "logvault/pkg/errors"
	"logvault/pkg/compression"
	"logvault/pkg/types"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Matcher decides whether a record belongs in a result set. The query
// package produces Matchers from a parsed Plan.
type Matcher interface {
	Match(rec *types.LogRecord) bool
}

// MatchAll is the Matcher for "*" or an empty query.
type MatchAll struct{}

func (MatchAll) Match(*types.LogRecord) bool { return true }

// DeleteFilter selects records for DeleteWhere, used exclusively by
// retention.
type DeleteFilter struct {
	Sources []string // empty = all sources
	Before  time.Time
}

func (f DeleteFilter) matches(rec *types.LogRecord) bool {
	if !rec.Timestamp.Before(f.Before) {
		return false
	}
	if len(f.Sources) == 0 {
		return true
	}
	for _, s := range f.Sources {
		if s == rec.Source {
			return true
		}
	}
	return false
}

// Bucket is one histogram bucket.
type Bucket struct {
	Start time.Time
	Count int64
}

const maxCommitRetries = 3

// Store is one shard's index: a sequence of immutable committed
// segments plus one mutable active segment accepting writes.
type Store struct {
	dir            string
	shardID        string
	logger         *logrus.Logger
	codecName      string
	registry       *compression.Registry
	maxRecords     int
	commitInterval time.Duration

	mu       sync.RWMutex
	segments []*segment
	active   *segment
	nextSeg  int

	degraded bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config bundles the tunables for a single shard Store.
type Config struct {
	Dir            string
	ShardID        string
	Codec          string
	MaxRecords     int
	CommitInterval time.Duration
}

// Open creates or recovers a Store for one shard, quarantining any
// segment file that fails checksum or decode at open.
func Open(cfg Config, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CodeFileIO, "index", "Open", err.Error())
	}

	st := &Store{
		dir:            cfg.Dir,
		shardID:        cfg.ShardID,
		logger:         logger,
		codecName:      cfg.Codec,
		registry:       compression.NewRegistry(),
		maxRecords:     cfg.MaxRecords,
		commitInterval: cfg.CommitInterval,
		active:         newSegment("active-0"),
		stopCh:         make(chan struct{}),
	}

	if err := st.recover(); err != nil {
		return nil, err
	}
	st.nextSeg = len(st.segments)

	st.wg.Add(1)
	go st.commitLoop()

	return st, nil
}

func (st *Store) recover() error {
	m, err := loadManifest(st.dir)
	if err != nil {
		return apperrors.New(apperrors.CodeFileIO, "index", "recover", err.Error())
	}

	var live manifest
	for _, entry := range m.Segments {
		seg, err := st.loadSegment(entry)
		if err != nil {
			st.logger.WithError(err).WithField("segment", entry.File).Warn("quarantining corrupted segment")
			st.quarantine(entry.File)
			st.degraded = true
			continue
		}
		st.segments = append(st.segments, seg)
		live.Segments = append(live.Segments, entry)
	}
	if len(live.Segments) != len(m.Segments) {
		_ = live.save(st.dir)
	}
	return nil
}

func (st *Store) quarantine(file string) {
	src := filepath.Join(st.dir, file)
	dst := src + ".quarantined"
	_ = os.Rename(src, dst)
}

type segmentPayload struct {
	Records []*types.LogRecord
}

func (st *Store) loadSegment(entry manifestEntry) (*segment, error) {
	path := filepath.Join(st.dir, entry.File)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(raw) != entry.Checksum {
		return nil, apperrors.New(apperrors.CodeSegmentCorrupt, "index", "loadSegment", "checksum mismatch")
	}
	codec := st.registry.Get(entry.Codec)
	decompressed, err := codec.Decode(raw)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSegmentCorrupt, "index", "loadSegment", "decode failed")
	}

	var payload segmentPayload
	dec := gob.NewDecoder(bytes.NewReader(decompressed))
	if err := dec.Decode(&payload); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSegmentCorrupt, "index", "loadSegment", "gob decode failed")
	}

	seg := newSegment(entry.ID)
	seg.onDisk = true
	seg.path = path
	for _, rec := range payload.Records {
		seg.add(rec)
	}
	return seg, nil
}

// AddBatch appends records to the active segment. All records in the
// batch become visible to readers atomically once the active segment
// lock is released; the batch is durable only after the next commit.
func (st *Store) AddBatch(ctx context.Context, records []*types.LogRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.Cancelled("index", "AddBatch")
	}

	st.mu.Lock()
	for _, rec := range records {
		st.active.add(rec)
	}
	shouldCommit := len(st.active.order) >= st.maxRecords
	st.mu.Unlock()

	if shouldCommit {
		if err := st.Commit(); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// Commit flushes the active segment to disk and starts a fresh one.
// Retries fsync failures with exponential backoff; persistent failure
// surfaces as a retryable AppError so the buffer can apply backpressure.
func (st *Store) Commit() error {
	st.mu.Lock()
	if len(st.active.order) == 0 {
		st.mu.Unlock()
		return nil
	}
	toCommit := st.active
	st.active = newSegment(fmt.Sprintf("active-%d", st.nextSeg+1))
	st.nextSeg++
	st.mu.Unlock()

	id := fmt.Sprintf("seg-%d", st.nextSeg)
	var lastErr error
	backoff := 50 * time.Millisecond
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		if err := st.writeSegment(id, toCommit); err != nil {
			lastErr = err
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		st.mu.Lock()
		toCommit.id = id
		toCommit.onDisk = true
		st.segments = append(st.segments, toCommit)
		st.mu.Unlock()
		return nil
	}

	// Persistent failure: put the un-flushed records back so nothing is
	// silently lost, and surface a retryable error for backpressure.
	st.mu.Lock()
	st.active.order = append(toCommit.order, st.active.order...)
	for id, rec := range toCommit.records {
		st.active.records[id] = rec
	}
	st.mu.Unlock()

	return apperrors.Wrapf(lastErr, apperrors.CodeIndexCommit, "index", "Commit", "segment commit failed").WithRetryable(true)
}

func (st *Store) writeSegment(id string, seg *segment) error {
	seg.mu.RLock()
	recs := make([]*types.LogRecord, 0, len(seg.records))
	for _, rid := range seg.order {
		if rec, ok := seg.records[rid]; ok {
			recs = append(recs, rec)
		}
	}
	seg.mu.RUnlock()

	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(segmentPayload{Records: recs}); err != nil {
		return err
	}

	codec := st.registry.Get(st.codecName)
	compressed, err := codec.Encode(buf.Bytes())
	if err != nil {
		return err
	}

	file := id + ".seg"
	path := filepath.Join(st.dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	m, err := loadManifest(st.dir)
	if err != nil {
		return err
	}
	m.Segments = append(m.Segments, manifestEntry{
		ID: id, File: file, Codec: st.codecName,
		RecordCount: len(recs), Checksum: xxhash.Sum64(compressed),
	})

	return m.save(st.dir)
}

func (st *Store) commitLoop() {
	defer st.wg.Done()
	ticker := time.NewTicker(st.commitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := st.Commit(); err != nil {
				st.logger.WithError(err).Warn("periodic commit failed")
			}
		case <-st.stopCh:
			return
		}
	}
}

// Close stops the commit loop after flushing any pending records.
func (st *Store) Close() error {
	close(st.stopCh)
	st.wg.Wait()
	return st.Commit()
}

// Degraded reports whether any committed segment was quarantined at
// open, meaning search/histogram results may be incomplete.
func (st *Store) Degraded() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.degraded
}

func (st *Store) allSegments() []*segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*segment, 0, len(st.segments)+1)
	out = append(out, st.segments...)
	out = append(out, st.active)
	return out
}

// Search returns every live record matching matcher within [from, to],
// ordered timestamp-descending with record ID as the tie-break. Readers
// see a consistent snapshot of segments as they existed when Search was
// called; a concurrent commit does not retroactively add or remove rows
// from an in-flight call.
func (st *Store) Search(ctx context.Context, matcher Matcher, from, to time.Time) ([]*types.LogRecord, error) {
	if matcher == nil {
		matcher = MatchAll{}
	}
	var out []*types.LogRecord
	for _, seg := range st.allSegments() {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Cancelled("index", "Search")
		}
		if !seg.overlapsRange(from, to) {
			continue
		}
		for _, id := range seg.recordIDs() {
			rec, ok := seg.get(id)
			if !ok {
				continue
			}
			if rec.Timestamp.Before(from) || rec.Timestamp.After(to) {
				continue
			}
			if matcher.Match(rec) {
				out = append(out, rec)
			}
		}
	}
	sortRecordsDesc(out)
	return out, nil
}

// Histogram buckets matching records into bucketDuration-wide windows
// aligned to UTC epoch multiples, including empty buckets across the
// full [from, to) range.
func (st *Store) Histogram(ctx context.Context, matcher Matcher, from, to time.Time, bucketDuration time.Duration) ([]Bucket, error) {
	recs, err := st.Search(ctx, matcher, from, to)
	if err != nil {
		return nil, err
	}

	start := from.Truncate(bucketDuration)
	var buckets []Bucket
	for t := start; t.Before(to); t = t.Add(bucketDuration) {
		buckets = append(buckets, Bucket{Start: t})
	}
	if len(buckets) == 0 {
		buckets = append(buckets, Bucket{Start: start})
	}

	for _, rec := range recs {
		idx := int(rec.Timestamp.Sub(start) / bucketDuration)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		buckets[idx].Count++
	}
	return buckets, nil
}

// DeleteWhere tombstones every live record matching filter, across all
// segments including the active one. Tombstones are held in memory only:
// no merge step rewrites segment files, so a reopened Store sees the
// deleted records again.
func (st *Store) DeleteWhere(filter DeleteFilter) (int, error) {
	var deleted int
	for _, seg := range st.allSegments() {
		for _, id := range seg.recordIDs() {
			rec, ok := seg.get(id)
			if !ok {
				continue
			}
			if filter.matches(rec) {
				seg.tombstone(id)
				deleted++
			}
		}
	}
	return deleted, nil
}

// Fields enumerates every distinct field name seen in the term dictionary.
func (st *Store) Fields() []string {
	set := make(map[string]struct{})
	for _, seg := range st.allSegments() {
		seg.mu.RLock()
		for field := range seg.inverted {
			set[field] = struct{}{}
		}
		seg.mu.RUnlock()
	}
	return sortedKeys(set)
}

// Sources enumerates every distinct source value seen.
func (st *Store) Sources() []string {
	return st.distinctFieldValues("source")
}

// Levels enumerates every distinct level value seen.
func (st *Store) Levels() []string {
	return st.distinctFieldValues("level")
}

func (st *Store) distinctFieldValues(field string) []string {
	set := make(map[string]struct{})
	for _, seg := range st.allSegments() {
		seg.mu.RLock()
		if m, ok := seg.inverted[field]; ok {
			for tok := range m {
				set[tok] = struct{}{}
			}
		}
		seg.mu.RUnlock()
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
