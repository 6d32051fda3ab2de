// Package positions persists per-file scan offsets to a single
// offsets.db JSON file, owned exclusively by the scanner.
package positions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
)

// Store is the scanner's exclusive view of FileOffsetState, keyed by
// file path.
type Store struct {
	mu       sync.RWMutex
	path     string
	states   map[string]*types.FileOffsetState
	logger   *logrus.Logger
}

// Open loads offsets.db under dir, creating an empty store if it does
// not yet exist.
func Open(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		path:   filepath.Join(dir, "offsets.db"),
		states: make(map[string]*types.FileOffsetState),
		logger: logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var states map[string]*types.FileOffsetState
	if err := json.Unmarshal(data, &states); err != nil {
		s.logger.WithError(err).Warn("offsets.db unreadable, starting fresh")
		return nil
	}
	s.states = states
	return nil
}

// Get returns the tracked state for path, if any.
func (s *Store) Get(path string) (*types.FileOffsetState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[path]
	return st, ok
}

// Set records (or replaces) the state for path and persists the store.
func (s *Store) Set(path string, state *types.FileOffsetState) error {
	s.mu.Lock()
	s.states[path] = state
	s.mu.Unlock()
	return s.flush()
}

// Delete removes tracking for path once its grace period has elapsed.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	delete(s.states, path)
	s.mu.Unlock()
	return s.flush()
}

// All returns a snapshot of every tracked path's state.
func (s *Store) All() map[string]*types.FileOffsetState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*types.FileOffsetState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

func (s *Store) flush() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.states, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
