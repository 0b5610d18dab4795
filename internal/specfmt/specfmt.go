// Package specfmt canonically formats directive clause text. Formatting is
// purely structural: it normalizes spacing, optionally reorders clauses into
// keyword order, and breaks a spec across lines when it exceeds the width
// limit. Semantically invalid specs still format, as long as they parse
// structurally.
package specfmt

import (
	"sort"
	"strings"

	"patina/internal/clause"
)

// Config controls formatting output.
type Config struct {
	// MaxWidth is the rendered width above which the spec breaks into one
	// clause per line. It covers the clause text only, not the comment
	// marker the caller wraps around it.
	MaxWidth int

	// Indent prefixes each clause line in multi-line output.
	Indent string

	// TrailingComma adds a comma after the last clause in multi-line
	// output.
	TrailingComma bool

	// Reorder sorts clauses into canonical keyword order. The sort is
	// stable, so clauses of one kind keep their relative order.
	Reorder bool
}

// DefaultConfig mirrors the formatter's stock behavior.
func DefaultConfig() Config {
	return Config{
		MaxWidth:      80,
		Indent:        "\t",
		TrailingComma: true,
		Reorder:       false,
	}
}

// Format renders the clause text canonically under cfg. The result is either
// a single line, or one clause per line separated by newlines. Formatting is
// idempotent: formatting a formatted spec is a no-op.
func Format(text string, cfg Config) (string, error) {
	args, err := clause.ParseArgs(text)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}

	if cfg.Reorder {
		args = append([]clause.Arg(nil), args...)
		sort.SliceStable(args, func(i, j int) bool {
			return less(args[i].Keyword, args[j].Keyword)
		})
	}

	rendered := make([]string, len(args))
	for i, arg := range args {
		rendered[i] = renderArg(arg)
	}

	oneLine := strings.Join(rendered, ", ")
	if cfg.MaxWidth <= 0 || len(oneLine) <= cfg.MaxWidth {
		return oneLine, nil
	}

	var b strings.Builder
	for i, r := range rendered {
		b.WriteString(cfg.Indent)
		b.WriteString(r)
		if i < len(rendered)-1 || cfg.TrailingComma {
			b.WriteString(",")
		}
		if i < len(rendered)-1 {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// less orders known keywords canonically and keeps unknown keywords last.
func less(a, b clause.Keyword) bool {
	if a == clause.KeywordUnknown || b == clause.KeywordUnknown {
		return b == clause.KeywordUnknown && a != clause.KeywordUnknown
	}
	return a < b
}

func renderArg(arg clause.Arg) string {
	var b strings.Builder
	for _, attr := range arg.Attrs {
		b.WriteString(attr.Name)
		b.WriteString("(")
		b.WriteString(attr.Args.Canonical())
		b.WriteString(") ")
	}
	b.WriteString(arg.Name)
	b.WriteString(": ")
	b.WriteString(renderValue(arg.Value))
	return b.String()
}

func renderValue(v clause.Value) string {
	switch v.Kind {
	case clause.ValuePat:
		return renderPattern(v.Pat)
	case clause.ValueList:
		parts := make([]string, len(v.List))
		for i, s := range v.List {
			parts[i] = s.Canonical()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case clause.ValueCaptures:
		return renderCaptures(v.Captures)
	default:
		return v.Expr.Canonical()
	}
}

func renderPattern(p clause.Pattern) string {
	if !p.Paren {
		return p.Names[0]
	}
	return "(" + strings.Join(p.Names, ", ") + ")"
}

func renderCaptures(c clause.CaptureList) string {
	parts := make([]string, len(c.Items))
	for i, item := range c.Items {
		s := item.Source.Canonical()
		if item.HasAs {
			s += " as " + renderPattern(*item.Pat)
		}
		parts[i] = s
	}
	if !c.Bracketed {
		return parts[0]
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
