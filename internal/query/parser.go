package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "logvault/pkg/errors"
)

// ParseRequest bundles the raw query text with the request-level flags
// that change how it parses.
type ParseRequest struct {
	Query   string
	IsRegex bool
}

// Parse translates query text into a Plan. Mismatched parentheses,
// unknown commands, and invalid regexes are reported here, at parse
// time, never deferred to execution.
func Parse(req ParseRequest) (*Plan, error) {
	query := strings.TrimSpace(req.Query)

	if req.IsRegex {
		if query == "" {
			query = ".*"
		}
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "invalid regex: "+err.Error())
		}
		return &Plan{Match: regexExpr{re: re}}, nil
	}

	segments := splitPipeline(query)
	if len(segments) == 0 || strings.TrimSpace(segments[0]) == "" || segments[0] == "*" {
		segments = append([]string{"*"}, segments[1:]...)
	}

	match, err := parseSearchTerm(segments[0])
	if err != nil {
		return nil, err
	}

	plan := &Plan{Match: match}
	for _, seg := range segments[1:] {
		cmd, err := parseCommand(seg)
		if err != nil {
			return nil, err
		}
		plan.Commands = append(plan.Commands, cmd)
	}
	return plan, nil
}

// splitPipeline splits on top-level "|", ignoring pipes inside quotes.
func splitPipeline(s string) []string {
	var segs []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == '|' && !inQuote:
			segs = append(segs, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	segs = append(segs, strings.TrimSpace(cur.String()))
	return segs
}

func parseSearchTerm(s string) (MatchExpr, error) {
	if strings.TrimSpace(s) == "" || strings.TrimSpace(s) == "*" {
		return matchAll{}, nil
	}
	p := &exprParser{lex: newLexer(s)}
	p.advance()
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "unexpected trailing input near "+p.tok.text)
	}
	return expr, nil
}

type exprParser struct {
	lex  *lexer
	tok  token
	depth int
}

func (p *exprParser) advance() {
	p.tok = p.lex.next()
}

func (p *exprParser) parseOr() (MatchExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (MatchExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.startsUnary() {
		if p.tok.kind == tokAnd {
			p.advance()
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andExpr{left: left, right: right}
	}
	return left, nil
}

// startsUnary reports whether the current token can begin another
// unary term, used to detect implicit ("space means AND") conjunction.
func (p *exprParser) startsUnary() bool {
	switch p.tok.kind {
	case tokWord, tokQuoted, tokLParen, tokNot, tokAnd:
		return true
	default:
		return false
	}
}

func (p *exprParser) parseUnary() (MatchExpr, error) {
	if p.tok.kind == tokNot {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (MatchExpr, error) {
	switch p.tok.kind {
	case tokLParen:
		p.depth++
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "mismatched parentheses")
		}
		p.depth--
		p.advance()
		return inner, nil
	case tokRParen:
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "mismatched parentheses")
	case tokQuoted:
		text := p.tok.text
		p.advance()
		return termExpr{term: text}, nil
	case tokWord:
		word := p.tok.text
		if word == "*" {
			p.advance()
			return matchAll{}, nil
		}
		// Look ahead for a comparison operator to detect field=value.
		save := *p.lex
		opTok := p.lex.next()
		if op, ok := compareOpFor(opTok.kind); ok {
			valTok := p.lex.next()
			if valTok.kind != tokWord && valTok.kind != tokQuoted {
				*p.lex = save
				p.advance()
				return termExpr{term: word}, nil
			}
			p.advance()
			return fieldCompareExpr{field: word, value: valTok.text, op: op}, nil
		}
		*p.lex = save
		p.advance()
		return termExpr{term: word}, nil
	default:
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", fmt.Sprintf("unexpected token %q", p.tok.text))
	}
}

func compareOpFor(k tokenKind) (fieldCompareOp, bool) {
	switch k {
	case tokEq:
		return opEq, true
	case tokNeq:
		return opNeq, true
	case tokGt:
		return opGt, true
	case tokGte:
		return opGte, true
	case tokLt:
		return opLt, true
	case tokLte:
		return opLte, true
	default:
		return 0, false
	}
}

var commandNamePattern = regexp.MustCompile(`^(\w+)\s*(.*)$`)

func parseCommand(seg string) (Command, error) {
	seg = strings.TrimSpace(seg)
	m := commandNamePattern.FindStringSubmatch(seg)
	if m == nil {
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "empty command")
	}
	name := strings.ToLower(m[1])
	rest := strings.TrimSpace(m[2])

	switch name {
	case "where":
		pred, err := parseSearchTerm(rest)
		if err != nil {
			return nil, err
		}
		return WhereCommand{Predicate: pred}, nil
	case "stats":
		return parseStats(rest)
	case "sort":
		return parseSort(rest)
	case "head":
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "head requires an integer")
		}
		return HeadCommand{N: n}, nil
	case "tail":
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "tail requires an integer")
		}
		return TailCommand{N: n}, nil
	case "eval":
		parts := strings.SplitN(rest, "=", 2)
		if len(parts) != 2 {
			return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "eval requires field=expr")
		}
		return EvalCommand{Field: strings.TrimSpace(parts[0]), Expr: strings.TrimSpace(parts[1])}, nil
	default:
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "unknown command: "+name)
	}
}

var statsPattern = regexp.MustCompile(`(?i)^(count|sum|avg|min|max)\s*\(\s*([\w.]*)\s*\)\s*(?:by\s+(\w+))?$`)

func parseStats(rest string) (Command, error) {
	m := statsPattern.FindStringSubmatch(rest)
	if m == nil {
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "invalid stats syntax")
	}
	return StatsCommand{Agg: strings.ToLower(m[1]), Field: m[2], By: m[3]}, nil
}

func parseSort(rest string) (Command, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "sort requires a field")
	}
	desc := true
	field := fields[0]
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "asc":
			desc = false
		case "desc":
			desc = true
		default:
			return nil, apperrors.New(apperrors.CodeQueryParse, "query", "Parse", "sort direction must be asc or desc")
		}
	}
	return SortCommand{Field: field, Desc: desc}, nil
}
