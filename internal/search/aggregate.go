package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"logvault/internal/query"
	"logvault/pkg/types"

	apperrors "logvault/pkg/errors"
)

// applyCommands runs the pipeline (where/stats/sort/head/tail/eval) over
// records already filtered by the index-level match and time range.
func applyCommands(cmds []query.Command, recs []*types.LogRecord) ([]*types.LogRecord, error) {
	for _, cmd := range cmds {
		var err error
		switch c := cmd.(type) {
		case query.WhereCommand:
			recs = applyWhere(c, recs)
		case query.StatsCommand:
			recs, err = applyStats(c, recs)
		case query.SortCommand:
			recs = applySort(c, recs)
		case query.HeadCommand:
			recs = applyHead(c, recs)
		case query.TailCommand:
			recs = applyTail(c, recs)
		case query.EvalCommand:
			recs, err = applyEval(c, recs)
		}
		if err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func applyWhere(c query.WhereCommand, recs []*types.LogRecord) []*types.LogRecord {
	matcher := query.PlanMatcher{Expr: c.Predicate}
	out := recs[:0:0]
	for _, r := range recs {
		if matcher.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func applySort(c query.SortCommand, recs []*types.LogRecord) []*types.LogRecord {
	sorted := make([]*types.LogRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		vi, _ := query.FieldValue(sorted[i], c.Field)
		vj, _ := query.FieldValue(sorted[j], c.Field)
		fi, iok := strconv.ParseFloat(vi, 64)
		fj, jok := strconv.ParseFloat(vj, 64)
		var cmp int
		if iok && jok {
			switch {
			case fi < fj:
				cmp = -1
			case fi > fj:
				cmp = 1
			}
		} else {
			switch {
			case vi < vj:
				cmp = -1
			case vi > vj:
				cmp = 1
			}
		}
		if c.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return sorted
}

func applyHead(c query.HeadCommand, recs []*types.LogRecord) []*types.LogRecord {
	if c.N < 0 || c.N >= len(recs) {
		return recs
	}
	return recs[:c.N]
}

func applyTail(c query.TailCommand, recs []*types.LogRecord) []*types.LogRecord {
	if c.N < 0 || c.N >= len(recs) {
		return recs
	}
	return recs[len(recs)-c.N:]
}

// applyStats reduces recs to one synthetic record per group (or a
// single record when By is empty), carrying the aggregate value in
// Fields["value"] and the grouping key in Fields[By].
func applyStats(c query.StatsCommand, recs []*types.LogRecord) ([]*types.LogRecord, error) {
	groups := map[string][]*types.LogRecord{}
	if c.By == "" {
		groups[""] = recs
	} else {
		for _, r := range recs {
			key, _ := query.FieldValue(r, c.By)
			groups[key] = append(groups[key], r)
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*types.LogRecord, 0, len(keys))
	for _, key := range keys {
		members := groups[key]
		val, err := aggregate(c.Agg, c.Field, members)
		if err != nil {
			return nil, err
		}
		fields := map[string]string{"value": formatFloat(val)}
		if c.By != "" {
			fields[c.By] = key
		}
		rec := &types.LogRecord{
			Message: fmt.Sprintf("%s(%s)=%s", c.Agg, c.Field, formatFloat(val)),
			Fields:  fields,
		}
		if len(members) > 0 {
			rec.Timestamp = members[0].Timestamp
			rec.Source = members[0].Source
		}
		out = append(out, rec)
	}
	return out, nil
}

func aggregate(agg, field string, recs []*types.LogRecord) (float64, error) {
	switch agg {
	case "count":
		return float64(len(recs)), nil
	case "sum", "avg", "min", "max":
		var sum, min, max float64
		n := 0
		for _, r := range recs {
			v, ok := query.FieldValue(r, field)
			if !ok {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			if n == 0 || f < min {
				min = f
			}
			if n == 0 || f > max {
				max = f
			}
			sum += f
			n++
		}
		switch agg {
		case "sum":
			return sum, nil
		case "avg":
			if n == 0 {
				return 0, nil
			}
			return sum / float64(n), nil
		case "min":
			return min, nil
		case "max":
			return max, nil
		}
	}
	return 0, apperrors.New(apperrors.CodeQueryParse, "search", "applyStats", "unknown aggregation: "+agg)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// applyEval adds a computed field. Supported expressions are a single
// binary arithmetic operation between two field references or numeric
// literals: a/b, a+b, a-b, a*b.
func applyEval(c query.EvalCommand, recs []*types.LogRecord) ([]*types.LogRecord, error) {
	op, left, right, err := parseEvalExpr(c.Expr)
	if err != nil {
		return nil, err
	}
	out := make([]*types.LogRecord, len(recs))
	for i, r := range recs {
		lv, lok := resolveOperand(r, left)
		rv, rok := resolveOperand(r, right)
		if !lok || !rok {
			out[i] = r
			continue
		}
		var result float64
		switch op {
		case '+':
			result = lv + rv
		case '-':
			result = lv - rv
		case '*':
			result = lv * rv
		case '/':
			if rv == 0 {
				out[i] = r
				continue
			}
			result = lv / rv
		}
		// Clone before writing the computed field: recs are the same
		// pointers the index store holds, and a stored record is
		// never mutated in place once written.
		cloned := r.Clone()
		if cloned.Fields == nil {
			cloned.Fields = map[string]string{}
		}
		cloned.Fields[c.Field] = formatFloat(result)
		out[i] = cloned
	}
	return out, nil
}

func parseEvalExpr(expr string) (byte, string, string, error) {
	for _, op := range []byte{'/', '*', '+', '-'} {
		if idx := strings.IndexByte(expr, op); idx > 0 {
			return op, strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+1:]), nil
		}
	}
	return 0, "", "", apperrors.New(apperrors.CodeQueryParse, "search", "applyEval", "unsupported eval expression: "+expr)
}

func resolveOperand(rec *types.LogRecord, operand string) (float64, bool) {
	if f, err := strconv.ParseFloat(operand, 64); err == nil {
		return f, true
	}
	v, ok := query.FieldValue(rec, operand)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
