// Package scanner implements C5: directory enumeration, file tailing by
// byte offset, rotation detection, and on-demand scans, handing parsed
// records to the buffer. It also hosts the supplemental Kafka and
// container-log ingestion sources feeding the same Submit sink.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "logvault/pkg/errors"
	"logvault/internal/metrics"
	"logvault/pkg/positions"
	"logvault/pkg/types"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Scanner owns one directoryWorker per enabled LogDirectoryConfig plus
// an fsnotify watcher used to trigger near-real-time rescans on file
// writes between scheduled ticks.
type Scanner struct {
	posStore *positions.Store
	submit   Submit
	logger   *logrus.Logger

	mu      sync.RWMutex
	workers map[string]*directoryWorker
	cancels map[string]context.CancelFunc

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// New builds a Scanner. posStore must be exclusive to this Scanner
// instance.
func New(posStore *positions.Store, submit Submit, logger *logrus.Logger) (*Scanner, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeFileIO, "scanner", "New", "fsnotify init failed")
	}
	s := &Scanner{
		posStore: posStore,
		submit:   submit,
		logger:   logger,
		workers:  make(map[string]*directoryWorker),
		cancels:  make(map[string]context.CancelFunc),
		watcher:  watcher,
	}
	s.wg.Add(1)
	go s.watchLoop()
	return s, nil
}

// AddDirectory registers a directory config and starts its periodic
// scan timer. Calling it again for the same ID replaces the prior
// worker (used by config hot-reload).
func (s *Scanner) AddDirectory(cfg types.LogDirectoryConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.cancels[cfg.ID]; ok {
		cancel()
	}

	worker := newDirectoryWorker(cfg, s.posStore, s.submit, s.logger)
	s.workers[cfg.ID] = worker

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[cfg.ID] = cancel

	if err := s.watcher.Add(cfg.DirectoryPath); err != nil {
		s.logger.WithError(err).WithField("directory", cfg.DirectoryPath).Warn("fsnotify watch failed, falling back to timer only")
	}

	interval := time.Duration(cfg.ScanIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runScan(ctx, cfg.ID)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *Scanner) runScan(ctx context.Context, id string) {
	s.mu.RLock()
	worker, ok := s.workers[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	n, err := worker.scan(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("directory", id).Warn("directory scan encountered an error")
	}
	metrics.ScannerFilesTracked.Set(float64(len(s.posStore.All())))
	_ = n
}

// ScanNow preempts the timer for id and returns the number of records
// processed by this pass.
func (s *Scanner) ScanNow(ctx context.Context, id string) (int, error) {
	s.mu.RLock()
	worker, ok := s.workers[id]
	s.mu.RUnlock()
	if !ok {
		return 0, apperrors.New(apperrors.CodeNotFound, "scanner", "ScanNow", fmt.Sprintf("unknown directory config %q", id))
	}
	return worker.scan(ctx)
}

// ScanAll runs ScanNow for every registered directory and sums results.
func (s *Scanner) ScanAll(ctx context.Context) (int, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	total := 0
	for _, id := range ids {
		n, err := s.ScanNow(ctx, id)
		total += n
		if err != nil {
			s.logger.WithError(err).WithField("directory", id).Warn("scan-all: directory failed")
		}
	}
	return total, nil
}

func (s *Scanner) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.triggerDirectoryFor(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("fsnotify watcher error")
		}
	}
}

func (s *Scanner) triggerDirectoryFor(changedPath string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, worker := range s.workers {
		dir := worker.cfg.DirectoryPath
		if len(changedPath) >= len(dir) && changedPath[:len(dir)] == dir {
			go s.runScan(context.Background(), id)
			return
		}
	}
}

// Close stops every directory timer and the fsnotify watcher.
func (s *Scanner) Close() error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}
