package query

// SourceFilter best-effort extracts every top-level source=value
// equality ANDed into the match expression, used by the shard router to
// narrow SOURCE_BASED reads. Absence of a detectable filter simply means
// every shard is visited, which is always correct, just less targeted.
func (p *Plan) SourceFilter() []string {
	var sources []string
	var walk func(e MatchExpr)
	walk = func(e MatchExpr) {
		switch v := e.(type) {
		case andExpr:
			walk(v.left)
			walk(v.right)
		case fieldCompareExpr:
			if v.field == "source" && v.op == opEq {
				sources = append(sources, v.value)
			}
		}
	}
	if p.Match != nil {
		walk(p.Match)
	}
	return sources
}
