package index

import (
	"sort"
	"sync"
	"time"

	"logvault/pkg/types"
)

// postingEntry is one occurrence of a (field, token) pair.
type postingEntry struct {
	recordID  string
	timestamp time.Time
}

// segment is a unit of the index: a row store of full records plus an
// inverted index over their tokenized fields. The active segment is
// mutable; once committed a segment's records/index are never mutated
// again except for tombstone marks applied by retention.
type segment struct {
	mu         sync.RWMutex
	id         string
	minTS      time.Time
	maxTS      time.Time
	records    map[string]*types.LogRecord
	order      []string // insertion order, stable for same-instant ties before sort
	inverted   map[string]map[string][]postingEntry // field -> token -> postings
	tombstones map[string]struct{}
	onDisk     bool
	path       string // set once committed to disk
}

func newSegment(id string) *segment {
	return &segment{
		id:         id,
		records:    make(map[string]*types.LogRecord),
		inverted:   make(map[string]map[string][]postingEntry),
		tombstones: make(map[string]struct{}),
	}
}

func (s *segment) add(rec *types.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)

	if s.minTS.IsZero() || rec.Timestamp.Before(s.minTS) {
		s.minTS = rec.Timestamp
	}
	if rec.Timestamp.After(s.maxTS) {
		s.maxTS = rec.Timestamp
	}

	s.indexField("message", rec.Message, rec.ID, rec.Timestamp, true)
	s.indexField("level", string(rec.Level), rec.ID, rec.Timestamp, false)
	s.indexField("source", rec.Source, rec.ID, rec.Timestamp, false)
	for name, val := range rec.Fields {
		s.indexField(name, val, rec.ID, rec.Timestamp, true)
	}
}

func (s *segment) indexField(field, value, recordID string, ts time.Time, tokenize bool) {
	if value == "" {
		return
	}
	tokens := []string{value}
	if tokenize {
		tokens = append(tokens, tokenizeString(value)...)
	}
	m, ok := s.inverted[field]
	if !ok {
		m = make(map[string][]postingEntry)
		s.inverted[field] = m
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		m[tok] = append(m[tok], postingEntry{recordID: recordID, timestamp: ts})
	}
}

// recordIDs returns every live (non-tombstoned) record in the segment.
func (s *segment) recordIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		if _, dead := s.tombstones[id]; dead {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (s *segment) get(id string) (*types.LogRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, dead := s.tombstones[id]; dead {
		return nil, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

// tombstone marks id as deleted in memory; the segment file on disk is
// not rewritten.
func (s *segment) tombstone(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstones[id] = struct{}{}
}

func (s *segment) overlapsRange(from, to time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.minTS.IsZero() {
		return true
	}
	return !s.maxTS.Before(from) && !s.minTS.After(to)
}

// tokenizeString splits on whitespace and punctuation, lower-cased, for
// substring/word search over tokenized fields.
func tokenizeString(s string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if isWordRune(r) {
			cur = append(cur, toLowerRune(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// sortRecordsDesc orders by timestamp descending, record ID ascending as
// the tie-break.
func sortRecordsDesc(recs []*types.LogRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
}
