// Package redaction implements C1: applying grouped regex rules to field
// values before indexing.
//
// Redaction is hot-reloadable: Engine holds the active config behind an
// atomic.Pointer so a reload swaps in a new snapshot without blocking
// in-flight records, which keep processing under the snapshot they
// entered the pipeline with.
package redaction

import (
	"regexp"
	"sync/atomic"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
)

// MaskToken replaces every matched span.
const MaskToken = "<REDACTED>"

// compiledGroup is one group's patterns, pre-compiled; invalid patterns
// are dropped here with a warning so a bad rule never fails the pipeline.
type compiledGroup struct {
	fieldNames []string
	patterns   []*regexp.Regexp
}

// snapshot is the immutable, atomically-swapped active configuration.
type snapshot struct {
	groups []compiledGroup
}

// Engine applies redaction rules to field values.
type Engine struct {
	active *atomic.Pointer[snapshot]
	logger *logrus.Logger
}

// NewEngine builds an Engine from an initial grouped config.
func NewEngine(cfg types.RedactionConfig, logger *logrus.Logger) *Engine {
	e := &Engine{
		active: &atomic.Pointer[snapshot]{},
		logger: logger,
	}
	e.Reload(cfg)
	return e
}

// Reload atomically replaces the active configuration. Invalid regexes in
// a group are skipped with a warning, never a pipeline failure.
func (e *Engine) Reload(cfg types.RedactionConfig) {
	snap := &snapshot{groups: make([]compiledGroup, 0, len(cfg))}

	for key, group := range cfg {
		names, err := decodeGroupKey(key)
		if err != nil {
			e.logger.WithError(err).WithField("group", key).Warn("redaction group key invalid, skipping group")
			continue
		}

		cg := compiledGroup{fieldNames: names}
		for _, pattern := range group.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"group":   key,
					"pattern": pattern,
				}).Warn("invalid redaction pattern, skipping rule")
				continue
			}
			cg.patterns = append(cg.patterns, re)
		}
		if len(cg.patterns) > 0 {
			snap.groups = append(snap.groups, cg)
		}
	}

	e.active.Store(snap)
}

// Snapshot returns the config snapshot currently in effect, to be pinned
// for the lifetime of one record's processing.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{snap: e.active.Load()}
}

// Snapshot is a pinned view of the active redaction config.
type Snapshot struct {
	snap *snapshot
}

// Redact applies every group whose field-name set contains fieldName to
// value, returning the masked result. Groups are disjoint by contract so
// application order does not affect the final mask set.
// Redact is idempotent: redacting an already-redacted value is a no-op
// because the mask token itself never matches a rule pattern twice over.
func (s *Snapshot) Redact(fieldName, value string) string {
	if s == nil || s.snap == nil {
		return value
	}
	out := value
	for _, g := range s.snap.groups {
		if !containsField(g.fieldNames, fieldName) {
			continue
		}
		for _, re := range g.patterns {
			out = re.ReplaceAllString(out, MaskToken)
		}
	}
	return out
}

func containsField(names []string, field string) bool {
	for _, n := range names {
		if n == field {
			return true
		}
	}
	return false
}

// decodeGroupKey decodes a group key which is either a bare field name or
// a JSON-encoded array of field names.
func decodeGroupKey(key string) ([]string, error) {
	trimmed := key
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeJSONArray(trimmed)
	}
	return []string{key}, nil
}
