package redaction

import (
	"testing"

	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestEngine_RedactsMatchingGroup(t *testing.T) {
	cfg := types.RedactionConfig{
		"message": types.RedactionGroup{Patterns: []string{`password=\S+`}},
	}
	e := NewEngine(cfg, testLogger())
	snap := e.Snapshot()

	got := snap.Redact("message", "password=secret123 user=a")
	require.Equal(t, "<REDACTED> user=a", got)
}

func TestEngine_Idempotent(t *testing.T) {
	cfg := types.RedactionConfig{
		"message": types.RedactionGroup{Patterns: []string{`password=\S+`}},
	}
	e := NewEngine(cfg, testLogger())
	snap := e.Snapshot()

	once := snap.Redact("message", "password=secret123")
	twice := snap.Redact("message", once)
	require.Equal(t, once, twice)
}

func TestEngine_InvalidPatternSkipsRuleNotPipeline(t *testing.T) {
	cfg := types.RedactionConfig{
		"message": types.RedactionGroup{Patterns: []string{`(unclosed`, `password=\S+`}},
	}
	e := NewEngine(cfg, testLogger())
	snap := e.Snapshot()

	got := snap.Redact("message", "password=secret123")
	require.Equal(t, "<REDACTED>", got)
}

func TestEngine_JSONArrayGroupKey(t *testing.T) {
	cfg := types.RedactionConfig{
		`["message","raw"]`: types.RedactionGroup{Patterns: []string{`\d{4,}`}},
	}
	e := NewEngine(cfg, testLogger())
	snap := e.Snapshot()

	require.Equal(t, "card <REDACTED>", snap.Redact("message", "card 123456"))
	require.Equal(t, "card <REDACTED>", snap.Redact("raw", "card 123456"))
	require.Equal(t, "card 123456", snap.Redact("level", "card 123456"))
}

func TestEngine_HotReloadAtomic(t *testing.T) {
	e := NewEngine(types.RedactionConfig{}, testLogger())
	before := e.Snapshot()
	require.Equal(t, "plain", before.Redact("message", "plain"))

	e.Reload(types.RedactionConfig{
		"message": types.RedactionGroup{Patterns: []string{`plain`}},
	})

	// The snapshot pinned before reload keeps its pre-reload behavior.
	require.Equal(t, "plain", before.Redact("message", "plain"))

	after := e.Snapshot()
	require.Equal(t, "<REDACTED>", after.Redact("message", "plain"))
}
