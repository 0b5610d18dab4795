// Package clause implements the structural grammar of //patina:spec
// directives: a comma-separated list of clauses, each an optional guard
// attribute, a keyword, a colon, and a value. Values are opaque payloads:
// this package decides their shape (expression, pattern, list, captures) but
// never their meaning, so a structurally valid spec survives a round trip
// through the formatter even when it is semantically invalid (wrong clause
// order, missing alias, and so on). Semantic validation lives in
// internal/spec.
package clause

import (
	"go/parser"
	"go/token"
)

// Keyword identifies a clause kind. The declaration order is the required
// clause order within a spec: requires < maintains < captures < binds <
// ensures. Unknown is never valid input but is representable so that the
// semantic parser can name the offending keyword in its diagnostic.
type Keyword int

const (
	KeywordUnknown Keyword = iota
	KeywordRequires
	KeywordMaintains
	KeywordCaptures
	KeywordBinds
	KeywordEnsures
)

var keywordNames = map[string]Keyword{
	"requires":  KeywordRequires,
	"maintains": KeywordMaintains,
	"captures":  KeywordCaptures,
	"binds":     KeywordBinds,
	"ensures":   KeywordEnsures,
}

func (k Keyword) String() string {
	switch k {
	case KeywordRequires:
		return "requires"
	case KeywordMaintains:
		return "maintains"
	case KeywordCaptures:
		return "captures"
	case KeywordBinds:
		return "binds"
	case KeywordEnsures:
		return "ensures"
	}
	return "unknown"
}

// Attr is one attribute prefixed to a clause, e.g. `when(debugChecks)`.
// Only `when` is meaningful; anything else is rejected by the semantic
// parser, not here.
type Attr struct {
	Name string
	Pos  Position
	Args Span
}

// Arg is one structurally parsed clause.
type Arg struct {
	Attrs   []Attr
	Keyword Keyword
	Name    string // literal keyword text, kept for unknown keywords
	Pos     Position
	Value   Value
}

// ValueKind discriminates the shape of a clause value.
type ValueKind int

const (
	// ValueExpr is a payload accepted by the expression grammar.
	ValueExpr ValueKind = iota
	// ValuePat is a payload accepted by the pattern grammar.
	ValuePat
	// ValueList is a bracketed list of expression payloads.
	ValueList
	// ValueCaptures is the capture sub-grammar.
	ValueCaptures
)

// Value is a clause value of one of the four shapes.
type Value struct {
	Kind     ValueKind
	Expr     Span
	Pat      Pattern
	List     []Span
	Captures CaptureList
}

// Pattern is a destructuring target: a single identifier or a parenthesized
// identifier list. The blank identifier is allowed.
type Pattern struct {
	Pos   Position
	Names []string
	Paren bool
}

// CaptureList is the value of a captures clause: one capture item, or a
// bracketed list of them.
type CaptureList struct {
	Bracketed bool
	Items     []CaptureItem
}

// CaptureItem is `<expression>` or `<expression> as <pattern>`. When no `as`
// is present Pat is nil and the semantic parser decides whether the source
// qualifies for an automatic alias.
type CaptureItem struct {
	Source Span
	HasAs  bool
	AsPos  Position
	Pat    *Pattern
}

// ParseArgs parses spec text into its clause list. Only structural errors
// are reported here: unbalanced delimiters, payloads that fit neither trial
// grammar, missing separators.
func ParseArgs(src string) ([]Arg, error) {
	stream, err := Lex(src)
	if err != nil {
		return nil, err
	}
	cur := NewCursor(stream)

	var args []Arg
	for !cur.Done() {
		arg, err := parseArg(&cur)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if cur.Done() {
			break
		}
		if t := cur.Next(); t.Kind != token.COMMA {
			return nil, errorf(t.Pos, "expected `,` between clauses, found `%s`", t.Text)
		}
	}
	return args, nil
}

func parseArg(cur *Cursor) (Arg, error) {
	var arg Arg

	// Attributes: IDENT followed immediately by a parenthesized argument
	// list. A keyword is always followed by `:`, so the lookahead is
	// unambiguous.
	for cur.Peek().Kind == token.IDENT && cur.PeekN(1).Kind == token.LPAREN {
		attr, err := parseAttr(cur)
		if err != nil {
			return arg, err
		}
		arg.Attrs = append(arg.Attrs, attr)
	}

	kw := cur.Next()
	if kw.Kind != token.IDENT {
		return arg, errorf(kw.Pos, "expected a clause keyword, found `%s`", kw.Text)
	}
	arg.Keyword = keywordNames[kw.Text]
	arg.Name = kw.Text
	arg.Pos = kw.Pos

	if t := cur.Next(); t.Kind != token.COLON {
		return arg, errorf(t.Pos, "expected `:` after `%s`", kw.Text)
	}

	var err error
	switch arg.Keyword {
	case KeywordCaptures:
		arg.Value, err = parseCaptures(cur)
	case KeywordBinds:
		arg.Value, err = parsePatOrExpr(cur)
	default:
		arg.Value, err = parseExprOrPat(cur)
	}
	return arg, err
}

func parseAttr(cur *Cursor) (Attr, error) {
	name := cur.Next()
	cur.Next() // LPAREN, guaranteed by the caller's lookahead
	lo := cur.Mark()
	depth := 1
	for {
		t := cur.Next()
		switch t.Kind {
		case token.EOF:
			return Attr{}, errorf(t.Pos, "unclosed `(` in attribute `%s`", name.Text)
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
		}
		if depth == 0 {
			return Attr{
				Name: name.Text,
				Pos:  name.Pos,
				Args: cur.s.Span(lo, cur.Mark()-1),
			}, nil
		}
	}
}

// collectSpan consumes tokens up to, but not including, the next top-level
// separator: a comma, or (when stopBrack is set) a closing bracket.
// Top-level means not nested inside (), [] or {}. Unbalanced delimiters are
// a grammar error.
func collectSpan(cur *Cursor, stopBrack bool) (Span, error) {
	lo := cur.Mark()
	depth := 0
	for {
		t := cur.Peek()
		switch t.Kind {
		case token.EOF:
			if depth > 0 {
				return Span{}, errorf(t.Pos, "unclosed delimiter in clause value")
			}
			return cur.s.Span(lo, cur.Mark()), nil
		case token.COMMA:
			if depth == 0 {
				return cur.s.Span(lo, cur.Mark()), nil
			}
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACE:
			if depth == 0 {
				return Span{}, errorf(t.Pos, "unmatched `%s`", t.Text)
			}
			depth--
		case token.RBRACK:
			if depth == 0 {
				if stopBrack {
					return cur.s.Span(lo, cur.Mark()), nil
				}
				return Span{}, errorf(t.Pos, "unmatched `]`")
			}
			depth--
		case token.SEMICOLON:
			return Span{}, errorf(t.Pos, "`;` is not valid in a spec; separate clauses with `,`")
		}
		cur.Next()
	}
}

// parseExprOrPat tries the expression grammar, then a bracketed expression
// list, then the pattern grammar. Each trial runs against a fork and commits
// only on success.
func parseExprOrPat(cur *Cursor) (Value, error) {
	probe := cur.Fork()
	if _, err := collectSpan(&probe, false); err != nil {
		return Value{}, err
	}
	if sp, ok := tryExpr(cur); ok {
		return Value{Kind: ValueExpr, Expr: sp}, nil
	}
	if cur.Peek().Kind == token.LBRACK {
		if list, ok := tryList(cur); ok {
			return Value{Kind: ValueList, List: list}, nil
		}
	}
	if pat, ok := tryPattern(cur); ok {
		return Value{Kind: ValuePat, Pat: pat}, nil
	}
	return Value{}, errorf(cur.Pos(), "expected an expression or a pattern")
}

// parsePatOrExpr tries the pattern grammar first; used for binds, where a
// bare identifier must read as a pattern.
func parsePatOrExpr(cur *Cursor) (Value, error) {
	probe := cur.Fork()
	if _, err := collectSpan(&probe, false); err != nil {
		return Value{}, err
	}
	if pat, ok := tryPattern(cur); ok {
		return Value{Kind: ValuePat, Pat: pat}, nil
	}
	if sp, ok := tryExpr(cur); ok {
		return Value{Kind: ValueExpr, Expr: sp}, nil
	}
	return Value{}, errorf(cur.Pos(), "expected a pattern or an expression")
}

// tryExpr speculatively reads one clause value and accepts it iff the Go
// expression grammar does.
func tryExpr(cur *Cursor) (Span, bool) {
	fork := cur.Fork()
	sp, err := collectSpan(&fork, false)
	if err != nil || sp.Empty() {
		return Span{}, false
	}
	if _, err := parser.ParseExpr(sp.Text()); err != nil {
		return Span{}, false
	}
	cur.Advance(fork)
	return sp, true
}

// tryList speculatively reads `[ value, value, ... ]` where each element is
// kept as a raw span. Used for the list forms of requires/maintains/ensures,
// which are not themselves Go expressions.
func tryList(cur *Cursor) ([]Span, bool) {
	fork := cur.Fork()
	fork.Next() // LBRACK
	var elems []Span
	for {
		if fork.Peek().Kind == token.RBRACK {
			fork.Next()
			cur.Advance(fork)
			return elems, true
		}
		sp, err := collectSpan(&fork, true)
		if err != nil || sp.Empty() {
			return nil, false
		}
		elems = append(elems, sp)
		switch fork.Peek().Kind {
		case token.COMMA:
			fork.Next()
		case token.RBRACK:
		default:
			return nil, false
		}
	}
}

// tryPattern speculatively parses a pattern and accepts it only when it ends
// at a clause boundary, so that e.g. `x.y` falls through to the expression
// grammar instead of being truncated to `x`.
func tryPattern(cur *Cursor) (Pattern, bool) {
	fork := cur.Fork()
	pat, err := parsePattern(&fork)
	if err != nil {
		return Pattern{}, false
	}
	if t := fork.Peek(); t.Kind != token.COMMA && t.Kind != token.EOF {
		return Pattern{}, false
	}
	cur.Advance(fork)
	return pat, true
}

func parsePattern(cur *Cursor) (Pattern, error) {
	t := cur.Peek()
	switch t.Kind {
	case token.IDENT:
		cur.Next()
		return Pattern{Pos: t.Pos, Names: []string{t.Text}}, nil
	case token.LPAREN:
		cur.Next()
		pat := Pattern{Pos: t.Pos, Paren: true}
		for {
			n := cur.Next()
			if n.Kind != token.IDENT {
				return Pattern{}, errorf(n.Pos, "expected an identifier in pattern, found `%s`", n.Text)
			}
			pat.Names = append(pat.Names, n.Text)
			sep := cur.Next()
			switch sep.Kind {
			case token.COMMA:
				if cur.Peek().Kind == token.RPAREN {
					cur.Next()
					return pat, nil
				}
			case token.RPAREN:
				return pat, nil
			default:
				return Pattern{}, errorf(sep.Pos, "expected `,` or `)` in pattern, found `%s`", sep.Text)
			}
		}
	}
	return Pattern{}, errorf(t.Pos, "expected a pattern")
}

// parseCaptures parses the capture sub-grammar. A bracketed value followed
// by a top-level `as` is one capture whose source is the whole bracketed
// expression (a Go composite literal such as `[]int{a, b} as old_pair`);
// otherwise brackets mean a list of captures.
func parseCaptures(cur *Cursor) (Value, error) {
	if cur.Peek().Kind != token.LBRACK {
		item, err := parseCaptureItem(cur, false)
		if err != nil {
			return Value{}, err
		}
		return capturesValue(CaptureList{Items: []CaptureItem{item}}), nil
	}

	// Trial: a single aliased capture. Committed only when an `as` alias is
	// present; a bare bracketed value is a list.
	fork := cur.Fork()
	if item, err := parseCaptureItem(&fork, false); err == nil && item.HasAs {
		cur.Advance(fork)
		return capturesValue(CaptureList{Items: []CaptureItem{item}}), nil
	}

	// Trial: a bracketed list of captures.
	listFork := cur.Fork()
	items, listErr := parseBracketedCaptures(&listFork)
	if listErr == nil {
		cur.Advance(listFork)
		return capturesValue(CaptureList{Bracketed: true, Items: items}), nil
	}

	// Fallback: a bracketed Go expression without an alias, e.g.
	// `captures: []int{a, b}`. Structurally fine; the semantic parser
	// reports the missing alias with a better message than a list error.
	exprFork := cur.Fork()
	if sp, err := collectSpan(&exprFork, false); err == nil && !sp.Empty() {
		if _, err := parser.ParseExpr(sp.Text()); err == nil {
			cur.Advance(exprFork)
			return capturesValue(CaptureList{Items: []CaptureItem{{Source: sp}}}), nil
		}
	}
	return Value{}, listErr
}

func capturesValue(list CaptureList) Value {
	return Value{Kind: ValueCaptures, Captures: list}
}

func parseBracketedCaptures(cur *Cursor) ([]CaptureItem, error) {
	cur.Next() // LBRACK
	var items []CaptureItem
	for {
		if cur.Peek().Kind == token.RBRACK {
			cur.Next()
			return items, nil
		}
		item, err := parseCaptureItem(cur, true)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		switch t := cur.Peek(); t.Kind {
		case token.COMMA:
			cur.Next()
		case token.RBRACK:
		default:
			return nil, errorf(t.Pos, "expected `,` or `]` in capture list, found `%s`", t.Text)
		}
	}
}

// parseCaptureItem reads one capture and splits it at the LAST top-level
// `as` before the next separator. The expression half may itself contain
// `as` in nested scopes (it is an ordinary Go identifier there), so only the
// final top-level occurrence introduces the alias.
func parseCaptureItem(cur *Cursor, insideBrackets bool) (CaptureItem, error) {
	sp, err := collectSpan(cur, insideBrackets)
	if err != nil {
		return CaptureItem{}, err
	}
	if sp.Empty() {
		return CaptureItem{}, errorf(sp.Pos(), "expected a capture expression")
	}

	toks := sp.Tokens()
	asIdx := -1
	depth := 0
	for i, t := range toks {
		switch t.Kind {
		case token.LPAREN, token.LBRACK, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACK, token.RBRACE:
			depth--
		case token.IDENT:
			if depth == 0 && t.Text == "as" {
				asIdx = i
			}
		}
	}
	if asIdx < 0 {
		return CaptureItem{Source: sp}, nil
	}

	asTok := toks[asIdx]
	source := sp.stream.Span(sp.Lo, sp.Lo+asIdx)
	patSpan := sp.stream.Span(sp.Lo+asIdx+1, sp.Hi)
	if source.Empty() {
		return CaptureItem{}, errorf(asTok.Pos, "missing expression before `as`")
	}
	if patSpan.Empty() {
		return CaptureItem{}, errorf(asTok.Pos, "missing pattern after `as`")
	}

	patCur := SubCursor(patSpan)
	pat, err := parsePattern(&patCur)
	if err != nil {
		return CaptureItem{}, err
	}
	if !patCur.Done() {
		t := patCur.Peek()
		return CaptureItem{}, errorf(t.Pos, "unexpected `%s` after capture pattern", t.Text)
	}

	return CaptureItem{Source: source, HasAs: true, AsPos: asTok.Pos, Pat: &pat}, nil
}
