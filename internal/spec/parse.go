package spec

import (
	"go/ast"
	"go/parser"

	"patina/internal/clause"
)

// DefaultAliasPrefix is prepended to a bare identifier capture to form its
// automatic alias: `captures: count` binds `old_count`.
const DefaultAliasPrefix = "old_"

// defaultBinding is the implicit result binding for bare-expression
// postconditions when no binds clause is in force.
const defaultBinding = "output"

// Options configures spec parsing.
type Options struct {
	// AliasPrefix overrides DefaultAliasPrefix when non-empty.
	AliasPrefix string
}

// Parser validates clause lists into Specs. The zero options give the
// stock behavior; a Parser is stateless and safe for reuse across items.
type Parser struct {
	aliasPrefix string
}

// NewParser returns a parser with the given options.
func NewParser(opts Options) *Parser {
	prefix := opts.AliasPrefix
	if prefix == "" {
		prefix = DefaultAliasPrefix
	}
	return &Parser{aliasPrefix: prefix}
}

// Parse is shorthand for parsing with default options.
func Parse(text string) (*Spec, error) {
	return NewParser(Options{}).Parse(text)
}

// Parse consumes the directive text and produces a validated Spec or a
// structured *Error. Clauses must appear in non-decreasing keyword order;
// captures and binds may appear at most once; guards are allowed only on
// requires, maintains and ensures.
func (p *Parser) Parse(text string) (*Spec, error) {
	args, err := clause.ParseArgs(text)
	if err != nil {
		return nil, grammarError(err)
	}

	sp := &Spec{}
	var bindsNames []string
	sawCaptures := false
	sawBinds := false
	prev := clause.KeywordUnknown

	for _, arg := range args {
		if arg.Keyword == clause.KeywordUnknown {
			return nil, newError(ErrUnknownKeyword, arg.Pos, "unknown clause keyword `%s`", arg.Name)
		}
		if prev != clause.KeywordUnknown && arg.Keyword < prev {
			return nil, newError(ErrOrdering, arg.Pos,
				"clauses are out of order: their order must be `requires`, `maintains`, `captures`, `binds`, `ensures`")
		}
		prev = arg.Keyword

		guard, gerr := p.parseGuard(arg)
		if gerr != nil {
			return nil, gerr
		}

		switch arg.Keyword {
		case clause.KeywordRequires:
			conds, err := p.conditions(arg, guard, nil)
			if err != nil {
				return nil, err
			}
			sp.Requires = append(sp.Requires, conds...)

		case clause.KeywordMaintains:
			conds, err := p.conditions(arg, guard, nil)
			if err != nil {
				return nil, err
			}
			sp.Maintains = append(sp.Maintains, conds...)

		case clause.KeywordCaptures:
			if guard != nil {
				return nil, newError(ErrGuardMisuse, arg.Attrs[0].Pos, "`when` guard is not supported on `captures`")
			}
			if sawCaptures {
				return nil, newError(ErrCardinality, arg.Pos,
					"at most one `captures` parameter is allowed; to capture multiple values, use a list: `captures: [expr1, expr2, ...]`")
			}
			sawCaptures = true
			caps, err := p.captures(arg)
			if err != nil {
				return nil, err
			}
			sp.Captures = append(sp.Captures, caps...)

		case clause.KeywordBinds:
			if guard != nil {
				return nil, newError(ErrGuardMisuse, arg.Attrs[0].Pos, "`when` guard is not supported on `binds`")
			}
			if sawBinds {
				return nil, newError(ErrCardinality, arg.Pos, "multiple `binds` parameters are not allowed")
			}
			sawBinds = true
			if arg.Value.Kind != clause.ValuePat {
				return nil, newError(ErrGrammar, arg.Pos, "`binds` expects a pattern")
			}
			bindsNames = arg.Value.Pat.Names

		case clause.KeywordEnsures:
			binding := bindsNames
			if binding == nil {
				binding = []string{defaultBinding}
			}
			conds, err := p.conditions(arg, guard, binding)
			if err != nil {
				return nil, err
			}
			sp.Ensures = append(sp.Ensures, conds...)
		}
	}

	return sp, nil
}

// parseGuard extracts the single optional `when` guard from a clause's
// attributes. Any other attribute name, or more than one guard, is a
// GuardMisuse error.
func (p *Parser) parseGuard(arg clause.Arg) (*Guard, *Error) {
	var guard *Guard
	for _, attr := range arg.Attrs {
		if attr.Name != "when" {
			return nil, newError(ErrGuardMisuse, attr.Pos, "unsupported attribute `%s`; only `when` is allowed", attr.Name)
		}
		if guard != nil {
			return nil, newError(ErrGuardMisuse, attr.Pos, "multiple `when` guards are not supported")
		}
		expr, err := parser.ParseExpr(attr.Args.Text())
		if err != nil {
			return nil, newError(ErrGrammar, attr.Pos, "`when` guard is not a valid expression")
		}
		guard = &Guard{Expr: expr, Text: attr.Args.Canonical()}
	}
	return guard, nil
}

// conditions expands a requires/maintains/ensures clause into its condition
// list. A list value contributes one condition per element, all sharing the
// clause's guard. The binding is non-nil for ensures: bare expressions are
// recorded with it as their synthesis pattern.
func (p *Parser) conditions(arg clause.Arg, guard *Guard, binding []string) ([]Condition, *Error) {
	var spans []clause.Span
	switch arg.Value.Kind {
	case clause.ValueExpr:
		spans = []clause.Span{arg.Value.Expr}
	case clause.ValueList:
		spans = arg.Value.List
	case clause.ValuePat:
		return nil, newError(ErrGrammar, arg.Value.Pat.Pos, "expected an expression, found a pattern")
	default:
		return nil, newError(ErrGrammar, arg.Pos, "expected an expression")
	}

	conds := make([]Condition, 0, len(spans))
	for _, span := range spans {
		pred, err := p.predicate(span, binding)
		if err != nil {
			return nil, err
		}
		conds = append(conds, Condition{Pred: pred, Guard: guard})
	}
	return conds, nil
}

// predicate classifies one payload. A func literal is an explicit predicate
// and must take no parameters (preconditions and invariants) or exactly one
// (postconditions); a bare expression is recorded for later synthesis.
func (p *Parser) predicate(span clause.Span, binding []string) (Predicate, *Error) {
	expr, err := parser.ParseExpr(span.Text())
	if err != nil {
		return Predicate{}, newError(ErrGrammar, span.Pos(), "condition is not a valid expression: %s", span.Canonical())
	}

	if fl, ok := expr.(*ast.FuncLit); ok {
		n := funcLitParams(fl)
		if binding == nil {
			if n != 0 {
				return Predicate{}, newError(ErrArity, span.Pos(),
					"precondition predicate must take no parameters, found %d", n)
			}
		} else if n != 1 {
			return Predicate{}, newError(ErrArity, span.Pos(),
				"postcondition predicate must take exactly one parameter, found %d", n)
		}
		return Predicate{Explicit: fl, Text: span.Canonical()}, nil
	}

	return Predicate{Expr: expr, Text: span.Canonical(), Params: binding}, nil
}

// captures interprets a captures clause into its bindings.
func (p *Parser) captures(arg clause.Arg) ([]Capture, *Error) {
	if arg.Value.Kind != clause.ValueCaptures {
		return nil, newError(ErrGrammar, arg.Pos, "expected captures")
	}
	items := arg.Value.Captures.Items
	caps := make([]Capture, 0, len(items))
	for _, item := range items {
		c, err := p.capture(item)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// capture resolves one capture item per the interpretation rules: a bare
// identifier gets an automatic prefixed alias; anything else must carry an
// explicit `as` pattern.
func (p *Parser) capture(item clause.CaptureItem) (Capture, *Error) {
	expr, err := parser.ParseExpr(item.Source.Text())
	if err != nil {
		return Capture{}, newError(ErrGrammar, item.Source.Pos(), "capture source is not a valid expression: %s", item.Source.Canonical())
	}

	if !item.HasAs {
		ident, ok := expr.(*ast.Ident)
		if !ok || ident.Name == "_" {
			return Capture{}, newError(ErrAliasRequired, item.Source.Pos(),
				"complex expressions require an explicit alias using `as`")
		}
		return Capture{
			Expr:  expr,
			Text:  item.Source.Canonical(),
			Names: []string{p.aliasPrefix + ident.Name},
		}, nil
	}

	return Capture{
		Expr:  expr,
		Text:  item.Source.Canonical(),
		Names: item.Pat.Names,
	}, nil
}

// funcLitParams counts the parameters of a func literal. A field without
// names still declares one parameter.
func funcLitParams(fl *ast.FuncLit) int {
	n := 0
	for _, f := range fl.Type.Params.List {
		if len(f.Names) == 0 {
			n++
		} else {
			n += len(f.Names)
		}
	}
	return n
}
