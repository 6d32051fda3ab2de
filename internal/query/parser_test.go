package query

import (
	"testing"

	"logvault/pkg/types"

	"github.com/stretchr/testify/require"
)

func rec(msg string, fields map[string]string) *types.LogRecord {
	return &types.LogRecord{Message: msg, Fields: fields, Level: types.LevelInfo, Source: "app.log"}
}

func TestParse_EmptyOrStarMatchesEverything(t *testing.T) {
	for _, q := range []string{"", "*"} {
		plan, err := Parse(ParseRequest{Query: q})
		require.NoError(t, err)
		require.True(t, plan.Match.Evaluate(rec("anything", nil)))
	}
}

func TestParse_BareTermMatchesMessageOrFields(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "boom"})
	require.NoError(t, err)
	require.True(t, plan.Match.Evaluate(rec("it went boom", nil)))
	require.False(t, plan.Match.Evaluate(rec("all quiet", nil)))
	require.True(t, plan.Match.Evaluate(rec("quiet", map[string]string{"detail": "boom happened"})))
}

func TestParse_FieldComparisons(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "level=ERROR"})
	require.NoError(t, err)
	require.True(t, plan.Match.Evaluate(&types.LogRecord{Level: types.LevelError, Message: "x"}))
	require.False(t, plan.Match.Evaluate(&types.LogRecord{Level: types.LevelInfo, Message: "x"}))
}

func TestParse_NumericGreaterThan(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "latency>100"})
	require.NoError(t, err)
	require.True(t, plan.Match.Evaluate(rec("x", map[string]string{"latency": "150"})))
	require.False(t, plan.Match.Evaluate(rec("x", map[string]string{"latency": "50"})))
}

func TestParse_UnknownFieldComparisonIsFalseNotError(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "nosuchfield=1"})
	require.NoError(t, err)
	require.False(t, plan.Match.Evaluate(rec("x", nil)))
}

func TestParse_BooleanOperatorsAndParens(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "(level=ERROR OR level=FATAL) AND NOT source=debug.log"})
	require.NoError(t, err)
	require.True(t, plan.Match.Evaluate(&types.LogRecord{Level: types.LevelError, Source: "app.log"}))
	require.False(t, plan.Match.Evaluate(&types.LogRecord{Level: types.LevelInfo, Source: "app.log"}))
	require.False(t, plan.Match.Evaluate(&types.LogRecord{Level: types.LevelError, Source: "debug.log"}))
}

func TestParse_ImplicitAndBetweenBareTerms(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "boom level=ERROR"})
	require.NoError(t, err)
	require.True(t, plan.Match.Evaluate(&types.LogRecord{Message: "it went boom", Level: types.LevelError}))
	require.False(t, plan.Match.Evaluate(&types.LogRecord{Message: "all quiet", Level: types.LevelError}))
}

func TestParse_MismatchedParenthesesIsParseError(t *testing.T) {
	_, err := Parse(ParseRequest{Query: "(level=ERROR"})
	require.Error(t, err)
}

func TestParse_UnknownCommandIsParseError(t *testing.T) {
	_, err := Parse(ParseRequest{Query: "* | frobnicate"})
	require.Error(t, err)
}

func TestParse_InvalidRegexIsParseError(t *testing.T) {
	_, err := Parse(ParseRequest{Query: "(unclosed", IsRegex: true})
	require.Error(t, err)
}

func TestParse_RegexModeMatchesMessageOnly(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: `ERR\d+`, IsRegex: true})
	require.NoError(t, err)
	require.True(t, plan.Match.Evaluate(rec("fault ERR502", nil)))
	require.False(t, plan.Match.Evaluate(rec("fault ERRxyz", nil)))
}

func TestParse_PipelineCommands(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "* | where level=ERROR | stats count(message) by source | sort source asc | head 10"})
	require.NoError(t, err)
	require.Len(t, plan.Commands, 4)

	where, ok := plan.Commands[0].(WhereCommand)
	require.True(t, ok)
	require.True(t, where.Predicate.Evaluate(&types.LogRecord{Level: types.LevelError}))

	stats, ok := plan.Commands[1].(StatsCommand)
	require.True(t, ok)
	require.Equal(t, "count", stats.Agg)
	require.Equal(t, "source", stats.By)

	sortCmd, ok := plan.Commands[2].(SortCommand)
	require.True(t, ok)
	require.False(t, sortCmd.Desc)

	head, ok := plan.Commands[3].(HeadCommand)
	require.True(t, ok)
	require.Equal(t, 10, head.N)
}

func TestParse_EvalCommand(t *testing.T) {
	plan, err := Parse(ParseRequest{Query: "* | eval ratio=a/b"})
	require.NoError(t, err)
	ev, ok := plan.Commands[0].(EvalCommand)
	require.True(t, ok)
	require.Equal(t, "ratio", ev.Field)
	require.Equal(t, "a/b", ev.Expr)
}
