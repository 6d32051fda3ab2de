package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"logvault/internal/buffer"
	"logvault/pkg/positions"
	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// stallingSink fails the first failN AddBatch calls, simulating a sink
// (index store, shard router) that rejects a flush.
type stallingSink struct {
	mu      sync.Mutex
	failN   int
	calls   int
	batches [][]*types.LogRecord
}

func (s *stallingSink) AddBatch(_ context.Context, records []*types.LogRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		return 0, errStallingSink
	}
	s.batches = append(s.batches, records)
	return len(records), nil
}

var errStallingSink = &stallingSinkErr{}

type stallingSinkErr struct{}

func (*stallingSinkErr) Error() string { return "simulated sink rejection" }

func TestParseLine_TimestampAndLevel(t *testing.T) {
	rec := parseLine("app.log", "2025-01-01T00:00:00Z INFO hello world")
	require.Equal(t, types.LevelInfo, rec.Level)
	require.Equal(t, "hello world", rec.Message)
	require.Equal(t, 2025, rec.Timestamp.Year())
}

func TestParseLine_FallbackWhenNoGrammarMatch(t *testing.T) {
	rec := parseLine("app.log", "just some free text")
	require.Equal(t, types.LevelUnknown, rec.Level)
	require.Equal(t, "just some free text", rec.Message)
	require.WithinDuration(t, time.Now(), rec.Timestamp, time.Minute)
}

func TestFingerprint_StableForSameFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, []byte("line one\n"), 0o644))

	a, err := fingerprint(path)
	require.NoError(t, err)
	b, err := fingerprint(path)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestDirectoryWorker_ScanTracksOffsetAndPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("2025-01-01T00:00:00Z INFO first\nincomplete-tail"), 0o644))

	posDir := t.TempDir()
	posStore, err := positions.Open(posDir, testLogger())
	require.NoError(t, err)

	var received []*types.LogRecord
	submit := func(_ context.Context, rec *types.LogRecord) error {
		received = append(received, rec)
		return nil
	}

	w := newDirectoryWorker(types.LogDirectoryConfig{ID: "d1", DirectoryPath: dir, FilePattern: "*.log"}, posStore, submit, testLogger())
	n, err := w.scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, received, 1)
	require.Equal(t, "first", received[0].Message)

	state, ok := posStore.Get(path)
	require.True(t, ok)
	require.Equal(t, "incomplete-tail", state.PartialLineBuffer)
}

func TestDirectoryWorker_SecondScanPicksUpNewBytesAndCompletesPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("2025-01-01T00:00:00Z INFO first\nincomp"), 0o644))

	posDir := t.TempDir()
	posStore, err := positions.Open(posDir, testLogger())
	require.NoError(t, err)

	var received []*types.LogRecord
	submit := func(_ context.Context, rec *types.LogRecord) error {
		received = append(received, rec)
		return nil
	}

	w := newDirectoryWorker(types.LogDirectoryConfig{ID: "d1", DirectoryPath: dir, FilePattern: "*.log"}, posStore, submit, testLogger())
	_, err = w.scan(context.Background())
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("lete line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = w.scan(context.Background())
	require.NoError(t, err)
	require.Len(t, received, 2)
	require.Equal(t, "incomplete line", received[1].Message)
}

func TestDirectoryWorker_OffsetNotAdvancedUntilSinkAccepts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	posDir := t.TempDir()
	posStore, err := positions.Open(posDir, testLogger())
	require.NoError(t, err)

	sink := &stallingSink{failN: 1}
	buf := buffer.New(1, time.Hour, sink, nil, testLogger())

	w := newDirectoryWorker(types.LogDirectoryConfig{ID: "d1", DirectoryPath: dir, FilePattern: "*.log"}, posStore, buf.Enqueue, testLogger())

	n, err := w.scan(context.Background())
	require.NoError(t, err) // scan() logs and swallows per-file errors
	require.Equal(t, 0, n, "the first line's flush was rejected, nothing counted as processed")

	state, ok := posStore.Get(path)
	require.True(t, ok)
	require.Equal(t, int64(0), state.LastByteOffset, "offset must not advance past a line the sink rejected")

	_, err = w.scan(context.Background())
	require.NoError(t, err)

	state, ok = posStore.Get(path)
	require.True(t, ok)
	require.Equal(t, int64(len("line one\nline two\n")), state.LastByteOffset)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.batches, 2, "one rejected attempt plus one accepted retry per line")
}

func TestDirectoryWorker_RotationResetsOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("2025-01-01T00:00:00Z INFO first\n"), 0o644))

	posDir := t.TempDir()
	posStore, err := positions.Open(posDir, testLogger())
	require.NoError(t, err)

	var received []*types.LogRecord
	submit := func(_ context.Context, rec *types.LogRecord) error {
		received = append(received, rec)
		return nil
	}

	w := newDirectoryWorker(types.LogDirectoryConfig{ID: "d1", DirectoryPath: dir, FilePattern: "*.log"}, posStore, submit, testLogger())
	_, err = w.scan(context.Background())
	require.NoError(t, err)

	// Simulate rotation: remove the file and recreate it with different content.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("2025-01-02T00:00:00Z INFO second\n"), 0o644))

	_, err = w.scan(context.Background())
	require.NoError(t, err)
	require.Len(t, received, 2)
	require.Equal(t, "second", received[1].Message)
}
