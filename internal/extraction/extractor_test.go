package extraction

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

func TestExtractor_PatternWithCapturingGroup(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{
			Name:              "latency_ms",
			SourceField:       types.SourceFieldMessage,
			ExtractionPattern: `latency=(\d+)ms`,
			FieldType:         types.FieldTypeNumber,
			Enabled:           true,
		},
	}, testLogger())

	rec := &types.LogRecord{Message: "request complete latency=42ms status=200"}
	got := ex.Extract(rec)
	require.Equal(t, "42", got["latency_ms"])
}

func TestExtractor_NoCapturingGroupUsesFullMatch(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{
			Name:              "code",
			SourceField:       types.SourceFieldMessage,
			ExtractionPattern: `ERR\d{3}`,
			FieldType:         types.FieldTypeString,
			Enabled:           true,
		},
	}, testLogger())

	rec := &types.LogRecord{Message: "fault ERR502 detected"}
	got := ex.Extract(rec)
	require.Equal(t, "ERR502", got["code"])
}

func TestExtractor_CoercionFailureDropsFieldNotRecord(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{
			Name:        "count",
			SourceField: types.SourceFieldMessage,
			FieldType:   types.FieldTypeNumber,
			Enabled:     true,
		},
	}, testLogger())

	rec := &types.LogRecord{Message: "not-a-number"}
	got := ex.Extract(rec)
	_, ok := got["count"]
	require.False(t, ok)
}

func TestExtractor_BooleanCoercionVariants(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{Name: "ok", SourceField: types.SourceFieldMessage, FieldType: types.FieldTypeBoolean, Enabled: true},
	}, testLogger())

	for _, tc := range []struct {
		in   string
		want string
	}{
		{"yes", "true"}, {"no", "false"}, {"1", "true"}, {"0", "false"},
		{"true", "true"}, {"false", "false"},
	} {
		got := ex.Extract(&types.LogRecord{Message: tc.in})
		require.Equal(t, tc.want, got["ok"], "input %q", tc.in)
	}
}

func TestExtractor_DateCoercionToRFC3339(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{Name: "ts", SourceField: types.SourceFieldMessage, FieldType: types.FieldTypeDate, Enabled: true},
	}, testLogger())

	got := ex.Extract(&types.LogRecord{Message: "2024-01-02 15:04:05"})
	require.Equal(t, "2024-01-02T15:04:05Z", got["ts"])
}

func TestExtractor_DisabledFieldSkipped(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{Name: "x", SourceField: types.SourceFieldMessage, FieldType: types.FieldTypeString, Enabled: false},
	}, testLogger())

	got := ex.Extract(&types.LogRecord{Message: "hello"})
	_, ok := got["x"]
	require.False(t, ok)
}

func TestExtractor_InvalidPatternSkipsFieldNotAllFields(t *testing.T) {
	ex := NewExtractor([]types.FieldConfiguration{
		{Name: "bad", SourceField: types.SourceFieldMessage, ExtractionPattern: `(unclosed`, FieldType: types.FieldTypeString, Enabled: true},
		{Name: "good", SourceField: types.SourceFieldMessage, FieldType: types.FieldTypeString, Enabled: true},
	}, testLogger())

	got := ex.Extract(&types.LogRecord{Message: "hello"})
	_, badOK := got["bad"]
	require.False(t, badOK)
	require.Equal(t, "hello", got["good"])
}

func TestExtractor_HotReload(t *testing.T) {
	ex := NewExtractor(nil, testLogger())
	got := ex.Extract(&types.LogRecord{Message: "hello"})
	require.Empty(t, got)

	ex.Reload([]types.FieldConfiguration{
		{Name: "msg", SourceField: types.SourceFieldMessage, FieldType: types.FieldTypeString, Enabled: true},
	})
	got = ex.Extract(&types.LogRecord{Message: "hello"})
	require.Equal(t, "hello", got["msg"])
}

func TestTestExtract(t *testing.T) {
	cfg := types.FieldConfiguration{
		Name:              "latency_ms",
		ExtractionPattern: `latency=(\d+)ms`,
		FieldType:         types.FieldTypeNumber,
	}
	got, err := TestExtract(cfg, "latency=17ms")
	require.NoError(t, err)
	require.Equal(t, "17", got)

	_, err = TestExtract(cfg, "no match here")
	require.Error(t, err)
}
