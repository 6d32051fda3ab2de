package query

import (
	"regexp"
	"strconv"
	"strings"

	"logvault/pkg/types"
)

// MatchExpr is one node of the boolean search-term tree.
type MatchExpr interface {
	Evaluate(rec *types.LogRecord) bool
}

// Plan is the parsed output of a search request: a match expression
// plus an ordered list of pipeline commands.
type Plan struct {
	Match    MatchExpr
	Commands []Command
}

// Command is one pipe-delimited stage following the search term.
type Command interface {
	isCommand()
}

type WhereCommand struct{ Predicate MatchExpr }
type StatsCommand struct {
	Agg   string // count, sum, avg, min, max
	Field string
	By    string // empty = no grouping
}
type SortCommand struct {
	Field string
	Desc  bool
}
type HeadCommand struct{ N int }
type TailCommand struct{ N int }
type EvalCommand struct {
	Field string
	Expr  string
}

func (WhereCommand) isCommand() {}
func (StatsCommand) isCommand() {}
func (SortCommand) isCommand()  {}
func (HeadCommand) isCommand()  {}
func (TailCommand) isCommand()  {}
func (EvalCommand) isCommand()  {}

// matchAll implements "*" or an empty query.
type matchAll struct{}

func (matchAll) Evaluate(*types.LogRecord) bool { return true }

type andExpr struct{ left, right MatchExpr }

func (e andExpr) Evaluate(rec *types.LogRecord) bool { return e.left.Evaluate(rec) && e.right.Evaluate(rec) }

type orExpr struct{ left, right MatchExpr }

func (e orExpr) Evaluate(rec *types.LogRecord) bool { return e.left.Evaluate(rec) || e.right.Evaluate(rec) }

type notExpr struct{ inner MatchExpr }

func (e notExpr) Evaluate(rec *types.LogRecord) bool { return !e.inner.Evaluate(rec) }

// termExpr is an unqualified token: matches message or any value in
// rec.Fields, case-insensitive substring. Every field is searched; the
// tokenized and indexed settings of a field configuration are not
// consulted.
type termExpr struct{ term string }

func (e termExpr) Evaluate(rec *types.LogRecord) bool {
	needle := strings.ToLower(e.term)
	if strings.Contains(strings.ToLower(rec.Message), needle) {
		return true
	}
	for _, v := range rec.Fields {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// regexExpr matches a compiled regex against message.
type regexExpr struct{ re *regexp.Regexp }

func (e regexExpr) Evaluate(rec *types.LogRecord) bool { return e.re.MatchString(rec.Message) }

type fieldCompareOp int

const (
	opEq fieldCompareOp = iota
	opNeq
	opGt
	opGte
	opLt
	opLte
)

// fieldCompareExpr implements field=value, field!=value, field>value,
// etc. Comparisons against an unknown or wrong-typed field evaluate to
// false, never an error.
type fieldCompareExpr struct {
	field string
	value string
	op    fieldCompareOp
}

// FieldValue exposes fieldValue's message/level/source/host/Fields
// lookup to callers outside the package, such as the search executor's
// stats/sort/eval command handling.
func FieldValue(rec *types.LogRecord, field string) (string, bool) {
	return fieldValue(rec, field)
}

func fieldValue(rec *types.LogRecord, field string) (string, bool) {
	switch field {
	case "message":
		return rec.Message, true
	case "level":
		return string(rec.Level), true
	case "source":
		return rec.Source, true
	case "host":
		return rec.Host, true
	default:
		v, ok := rec.Fields[field]
		return v, ok
	}
}

func (e fieldCompareExpr) Evaluate(rec *types.LogRecord) bool {
	actual, ok := fieldValue(rec, e.field)
	if !ok {
		return e.op == opNeq // absent field only ever satisfies !=
	}
	switch e.op {
	case opEq:
		return actual == e.value
	case opNeq:
		return actual != e.value
	case opGt, opGte, opLt, opLte:
		af, aok := strconv.ParseFloat(actual, 64)
		ef, eok := strconv.ParseFloat(e.value, 64)
		if aok && eok {
			return compareFloat(af, ef, e.op)
		}
		// Fall back to lexical comparison (covers ISO-8601 dates, which
		// sort correctly as strings).
		return compareString(actual, e.value, e.op)
	default:
		return false
	}
}

func compareFloat(a, b float64, op fieldCompareOp) bool {
	switch op {
	case opGt:
		return a > b
	case opGte:
		return a >= b
	case opLt:
		return a < b
	case opLte:
		return a <= b
	}
	return false
}

func compareString(a, b string, op fieldCompareOp) bool {
	switch op {
	case opGt:
		return a > b
	case opGte:
		return a >= b
	case opLt:
		return a < b
	case opLte:
		return a <= b
	}
	return false
}
