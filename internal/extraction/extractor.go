// Package extraction implements C2: deriving structured fields from a raw
// log record using configured extraction patterns.
package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
)

// compiledField is one FieldConfiguration with its pattern pre-compiled.
type compiledField struct {
	cfg     types.FieldConfiguration
	pattern *regexp.Regexp // nil when ExtractionPattern is empty
}

type snapshot struct {
	fields []compiledField
}

// Extractor runs every enabled field configuration against a record,
// hot-reloadable the same way redaction.Engine is.
type Extractor struct {
	active *atomic.Pointer[snapshot]
	logger *logrus.Logger
}

// NewExtractor builds an Extractor from an initial set of field configs.
func NewExtractor(fields []types.FieldConfiguration, logger *logrus.Logger) *Extractor {
	ex := &Extractor{active: &atomic.Pointer[snapshot]{}, logger: logger}
	ex.Reload(fields)
	return ex
}

// Reload atomically replaces the active field configuration set.
func (ex *Extractor) Reload(fields []types.FieldConfiguration) {
	snap := &snapshot{}
	for _, f := range fields {
		if !f.Enabled {
			continue
		}
		cf := compiledField{cfg: f}
		if f.ExtractionPattern != "" {
			re, err := regexp.Compile(f.ExtractionPattern)
			if err != nil {
				ex.logger.WithError(err).WithField("field", f.Name).Warn("invalid extraction pattern, skipping field")
				continue
			}
			cf.pattern = re
		}
		snap.fields = append(snap.fields, cf)
	}
	ex.active.Store(snap)
}

// Extract runs every enabled, compiled field configuration against
// record, returning the resulting field map (merged into record.Fields
// by the caller). A field whose value fails type coercion is dropped
// with a warning; the record still indexes.
func (ex *Extractor) Extract(record *types.LogRecord) map[string]string {
	snap := ex.active.Load()
	if snap == nil {
		return nil
	}

	out := make(map[string]string, len(snap.fields))
	for _, cf := range snap.fields {
		raw := sourceFieldValue(record, cf.cfg.SourceField)
		value := raw
		if cf.pattern != nil {
			m := cf.pattern.FindStringSubmatch(raw)
			if m == nil {
				continue
			}
			if len(m) > 1 {
				value = m[1]
			} else {
				value = m[0]
			}
		}

		coerced, ok := coerce(value, cf.cfg.FieldType)
		if !ok {
			ex.logger.WithFields(logrus.Fields{
				"field": cf.cfg.Name,
				"type":  cf.cfg.FieldType,
				"value": value,
			}).Warn("field coercion failed, dropping field")
			continue
		}
		out[cf.cfg.Name] = coerced
	}
	return out
}

// Tokenizable reports whether fieldName is configured as tokenized in the
// active snapshot. The index store does not consult it: segments tokenize
// every entry of record.Fields.
func (ex *Extractor) Tokenizable(fieldName string) bool {
	snap := ex.active.Load()
	if snap == nil {
		return false
	}
	for _, cf := range snap.fields {
		if cf.cfg.Name == fieldName {
			return cf.cfg.Tokenized
		}
	}
	return false
}

// Indexed reports whether fieldName is configured as searchable.
func (ex *Extractor) Indexed(fieldName string) bool {
	snap := ex.active.Load()
	if snap == nil {
		return false
	}
	for _, cf := range snap.fields {
		if cf.cfg.Name == fieldName {
			return cf.cfg.Indexed
		}
	}
	return false
}

func sourceFieldValue(record *types.LogRecord, sf types.SourceField) string {
	switch sf {
	case types.SourceFieldMessage:
		return record.Message
	case types.SourceFieldLevel:
		return string(record.Level)
	case types.SourceFieldSource:
		return record.Source
	case types.SourceFieldRaw:
		return record.Raw
	default:
		return ""
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func coerce(value string, ft types.FieldType) (string, bool) {
	switch ft {
	case types.FieldTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "", false
		}
		return value, true
	case types.FieldTypeDate:
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC().Format(time.RFC3339Nano), true
			}
		}
		return "", false
	case types.FieldTypeBoolean:
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return "true", true
		case "false", "0", "no":
			return "false", true
		default:
			return "", false
		}
	default: // STRING, or unknown type — keep as-is
		if value == "" {
			return "", false
		}
		return value, true
	}
}

// TestExtractionError is returned by the /fieldConfigurations/test
// endpoint when extraction fails for the provided sample.
type TestExtractionError struct {
	Field string
}

func (e *TestExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for field %q", e.Field)
}

// TestExtract runs a single (not-yet-saved) field configuration against a
// sample value, returning the extracted value for the
// POST /fieldConfigurations/test endpoint.
func TestExtract(cfg types.FieldConfiguration, sample string) (string, error) {
	value := sample
	if cfg.ExtractionPattern != "" {
		re, err := regexp.Compile(cfg.ExtractionPattern)
		if err != nil {
			return "", err
		}
		m := re.FindStringSubmatch(sample)
		if m == nil {
			return "", &TestExtractionError{Field: cfg.Name}
		}
		if len(m) > 1 {
			value = m[1]
		} else {
			value = m[0]
		}
	}
	coerced, ok := coerce(value, cfg.FieldType)
	if !ok {
		return "", &TestExtractionError{Field: cfg.Name}
	}
	return coerced, nil
}
