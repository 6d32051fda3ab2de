package query

import "logvault/pkg/types"

// PlanMatcher adapts a Plan's match expression to the index package's
// Matcher interface, so the search executor can hand a Plan straight to
// the Index Store / Shard Router.
type PlanMatcher struct {
	Expr MatchExpr
}

func (m PlanMatcher) Match(rec *types.LogRecord) bool {
	if m.Expr == nil {
		return true
	}
	return m.Expr.Evaluate(rec)
}
