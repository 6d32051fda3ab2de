package scanner

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"logvault/pkg/positions"
	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
)

// Submit hands one parsed record to the buffer; it blocks under
// backpressure and returns an error only when the buffer refuses
// further work (shutdown) or the caller's context is done.
type Submit func(ctx context.Context, rec *types.LogRecord) error

// rotationGrace is how long an archived path#fingerprint entry stays in
// directoryWorker.rotated before expireRotatedState drops it.
const rotationGrace = 5 * time.Minute

// directoryWorker scans one configured directory. Scans of the same
// directory are serialized by mu; scans of distinct directories run
// concurrently because each has its own worker and goroutine.
type directoryWorker struct {
	cfg      types.LogDirectoryConfig
	posStore *positions.Store
	submit   Submit
	logger   *logrus.Logger

	mu       sync.Mutex
	rotated  map[string]time.Time // archived path#fingerprint -> archived_at
}

func newDirectoryWorker(cfg types.LogDirectoryConfig, posStore *positions.Store, submit Submit, logger *logrus.Logger) *directoryWorker {
	return &directoryWorker{cfg: cfg, posStore: posStore, submit: submit, logger: logger, rotated: make(map[string]time.Time)}
}

// scan enumerates matching files and processes each once, returning the
// total number of records successfully submitted.
func (w *directoryWorker) scan(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pattern := filepath.Join(w.cfg.DirectoryPath, w.cfg.FilePattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, path := range matches {
		n, err := w.scanFile(ctx, path)
		total += n
		if err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("scan of file failed, continuing with others")
		}
	}
	w.expireRotatedState()
	return total, nil
}

func (w *directoryWorker) scanFile(ctx context.Context, path string) (int, error) {
	fp, err := fingerprint(path)
	if err != nil {
		return 0, err
	}

	state, existed := w.posStore.Get(path)
	if !existed {
		state = &types.FileOffsetState{Path: path, Fingerprint: fp}
	} else if state.Fingerprint != fp {
		// Rotation: archive the old state under its own fingerprint for
		// the grace period, start the new file at offset 0.
		archiveKey := path + "#" + state.Fingerprint
		w.rotated[archiveKey] = time.Now()
		state = &types.FileOffsetState{Path: path, Fingerprint: fp}
	}

	processed, err := w.readFile(ctx, path, state)
	if setErr := w.posStore.Set(path, state); setErr != nil {
		w.logger.WithError(setErr).Warn("failed to persist offset state")
	}
	return processed, err
}

func (w *directoryWorker) readFile(ctx context.Context, path string, state *types.FileOffsetState) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if stat.Size() < state.LastByteOffset {
		// Truncated in place (not a rotation the fingerprint caught).
		state.LastByteOffset = 0
		state.PartialLineBuffer = ""
	}

	if _, err := f.Seek(state.LastByteOffset, io.SeekStart); err != nil {
		return 0, err
	}

	reader := bufio.NewReader(f)
	// LastByteOffset never moves past an incomplete or rejected line, so
	// those bytes are read again from the file here; PartialLineBuffer
	// only records them and is not prepended.
	var buf string
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		chunk, readErr := reader.ReadString('\n')
		if len(chunk) == 0 {
			break
		}
		if !strings.HasSuffix(chunk, "\n") {
			// Incomplete line at EOF: retained for next pass, offset not
			// advanced past it.
			buf += chunk
			break
		}

		line := buf + strings.TrimSuffix(strings.TrimSuffix(chunk, "\n"), "\r")
		buf = ""
		rec := parseLine(w.cfg.ID, line)

		if submitErr := w.submit(ctx, rec); submitErr != nil {
			state.PartialLineBuffer = line // redeliver this line next pass
			return processed, submitErr
		}

		state.LastByteOffset += int64(len(chunk))
		processed++

		if readErr != nil {
			break
		}
	}

	state.PartialLineBuffer = buf
	state.LastModified = stat.ModTime()
	state.LastSeen = time.Now()
	return processed, nil
}

func (w *directoryWorker) expireRotatedState() {
	for key, archivedAt := range w.rotated {
		if time.Since(archivedAt) > rotationGrace {
			delete(w.rotated, key)
		}
	}
}
