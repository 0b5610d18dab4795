// Package instrument rewrites an annotated function body into an equivalent
// body that enforces its contract: entry checks, an atomic capture-and-
// execute binding, exit checks, and the original result. The output is body
// source text; the rewrite layer splices it over the old body and formats
// the file, so the engine never worries about indentation or positions.
package instrument

import (
	"fmt"
	"strings"

	"patina/internal/spec"
)

// OutputPrefix is the reserved identifier prefix for result bindings. Specs
// may not bind names under this prefix, and its presence in a body marks the
// function as already instrumented.
const OutputPrefix = "__patina_output"

// capturePrefix is the reserved identifier prefix for the temporaries that
// hold multi-value capture sources until the body has run.
const capturePrefix = "__patina_cap"

// reservedPrefix covers every identifier the generated body may introduce.
const reservedPrefix = "__patina"

// Target describes the function being instrumented: its flattened result
// types, the literal results declaration for the body closure, and the
// original body block text (braces included).
type Target struct {
	Name        string
	Results     []string
	ResultsDecl string
	Body        string
}

// Body generates the instrumented body for one spec and target under the
// given backend policy. The protocol is fixed: requires checks, maintains
// entry checks, capture-and-execute, maintains exit checks, ensures checks,
// return.
func Body(sp *spec.Spec, tgt Target, be Backend) (string, error) {
	n := len(tgt.Results)
	if n == 0 && len(sp.Ensures) > 0 {
		return "", fmt.Errorf("function %s returns nothing, but the spec has an `ensures` clause", tgt.Name)
	}
	if err := validateAliases(sp); err != nil {
		return "", err
	}
	outputs := outputNames(n)

	var b strings.Builder
	b.WriteString("{\n")

	// Entry checks.
	for _, c := range sp.Requires {
		b.WriteString(be.BuildCheck(guardText(c), entryCond(c), "Precondition failed", c.Pred.Text))
	}
	for _, c := range sp.Maintains {
		b.WriteString(be.BuildCheck(guardText(c), entryCond(c), "Pre-invariant failed", c.Pred.Text))
	}

	// Capture-and-execute. All capture sources and the body see only the
	// function's original scope: single-value sources share one parallel
	// assignment (with the body itself when the function has at most one
	// result), and multi-value sources bind reserved temporaries at their
	// declared position, rebound to their aliases after the body.
	writeCapturesAndBody(&b, sp, tgt, outputs)

	// Exit checks.
	for _, c := range sp.Maintains {
		b.WriteString(be.BuildCheck(guardText(c), entryCond(c), "Post-invariant failed", c.Pred.Text))
	}
	for _, c := range sp.Ensures {
		cond, err := ensuresCond(c, tgt, outputs)
		if err != nil {
			return "", err
		}
		b.WriteString(be.BuildCheck(guardText(c), cond, "Postcondition failed", c.Pred.Text))
	}

	// Go rejects unused locals, and a spec need not mention every capture
	// in its exit checks, so each alias gets a blank-identifier use.
	if aliases := namedAliases(sp); len(aliases) > 0 {
		fmt.Fprintf(&b, "%s = %s\n", blankList(len(aliases)), strings.Join(aliases, ", "))
	}

	if n > 0 {
		fmt.Fprintf(&b, "return %s\n", strings.Join(outputs, ", "))
	}
	b.WriteString("}")
	return b.String(), nil
}

func outputNames(n int) []string {
	switch n {
	case 0:
		return nil
	case 1:
		return []string{OutputPrefix}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", OutputPrefix, i)
	}
	return names
}

func guardText(c spec.Condition) string {
	if c.Guard == nil {
		return ""
	}
	return c.Guard.Text
}

// entryCond renders a precondition/invariant as a boolean expression: bare
// expressions verbatim, explicit predicates as an immediate call.
func entryCond(c spec.Condition) string {
	if c.Pred.Explicit != nil {
		return fmt.Sprintf("(%s)()", c.Pred.Text)
	}
	return c.Pred.Text
}

// ensuresCond renders a postcondition check over the result bindings. A
// synthesized predicate gets the binds pattern as its parameters, typed by
// the target's result types; an explicit predicate is called as written.
func ensuresCond(c spec.Condition, tgt Target, outputs []string) (string, error) {
	args := strings.Join(outputs, ", ")

	if c.Pred.Explicit != nil {
		if len(tgt.Results) != 1 {
			return "", fmt.Errorf(
				"function %s returns %d values; an explicit predicate takes one parameter, use a bare expression with `binds` instead",
				tgt.Name, len(tgt.Results))
		}
		return fmt.Sprintf("(%s)(%s)", c.Pred.Text, args), nil
	}

	params := c.Pred.Params
	if len(params) != len(tgt.Results) {
		return "", fmt.Errorf(
			"function %s returns %d values, but the result binding has %d names (use `binds` to destructure)",
			tgt.Name, len(tgt.Results), len(params))
	}
	decls := make([]string, len(params))
	for i, p := range params {
		decls[i] = p + " " + tgt.Results[i]
	}
	return fmt.Sprintf("func(%s) bool { return %s }(%s)",
		strings.Join(decls, ", "), c.Pred.Text, args), nil
}

// writeCapturesAndBody emits the atomic binding step. Capture sources are
// evaluated in declaration order; none of the capture names, nor the result
// identifiers, are in scope while any source or the body evaluates. A
// multi-value source binds reserved temporaries at its declared position,
// and its aliases are rebound from the temporaries only after the body has
// run, so an alias can never shadow a name the body or a later source reads.
func writeCapturesAndBody(b *strings.Builder, sp *spec.Spec, tgt Target, outputs []string) {
	bodyCall := bodyClosureCall(tgt)

	// Group consecutive single-value captures into shared parallel
	// assignments; a multi-value source (e.g. a map index with its ok
	// bool) must be the sole right-hand side of its own assignment.
	var names, exprs []string
	flush := func() {
		if len(names) == 0 {
			return
		}
		op := ":="
		if allBlank(names) {
			op = "="
		}
		fmt.Fprintf(b, "%s %s %s\n", strings.Join(names, ", "), op, strings.Join(exprs, ", "))
		names, exprs = nil, nil
	}

	var rebinds []string
	nextTemp := 0
	for _, cb := range sp.Captures {
		if len(cb.Names) > 1 {
			flush()
			if allBlank(cb.Names) {
				fmt.Fprintf(b, "%s = %s\n", strings.Join(cb.Names, ", "), cb.Text)
				continue
			}
			temps := make([]string, len(cb.Names))
			for i := range temps {
				temps[i] = fmt.Sprintf("%s%d", capturePrefix, nextTemp)
				nextTemp++
			}
			fmt.Fprintf(b, "%s := %s\n", strings.Join(temps, ", "), cb.Text)
			rebinds = append(rebinds,
				fmt.Sprintf("%s := %s\n", strings.Join(cb.Names, ", "), strings.Join(temps, ", ")))
			continue
		}
		names = append(names, cb.Names[0])
		exprs = append(exprs, cb.Text)
	}

	switch len(outputs) {
	case 0:
		flush()
		fmt.Fprintf(b, "%s\n", bodyCall)
	case 1:
		// The body joins the trailing capture group in one simultaneous
		// binding.
		names = append(names, outputs[0])
		exprs = append(exprs, bodyCall)
		flush()
	default:
		// Go allows a multi-value call only as the sole right-hand side.
		flush()
		fmt.Fprintf(b, "%s := %s\n", strings.Join(outputs, ", "), bodyCall)
	}

	for _, r := range rebinds {
		b.WriteString(r)
	}
}

func allBlank(names []string) bool {
	for _, name := range names {
		if name != "_" {
			return false
		}
	}
	return true
}

// namedAliases lists every non-blank capture alias in declaration order.
func namedAliases(sp *spec.Spec) []string {
	var names []string
	for _, cb := range sp.Captures {
		for _, name := range cb.Names {
			if name != "_" {
				names = append(names, name)
			}
		}
	}
	return names
}

func blankList(n int) string {
	blanks := make([]string, n)
	for i := range blanks {
		blanks[i] = "_"
	}
	return strings.Join(blanks, ", ")
}

// bodyClosureCall wraps the original body in an immediately invoked closure
// that reuses the declared result list, so named results and naked returns
// keep working and the body's returns feed the result bindings.
func bodyClosureCall(tgt Target) string {
	if tgt.ResultsDecl == "" {
		return fmt.Sprintf("func() %s()", tgt.Body)
	}
	return fmt.Sprintf("func() %s %s()", tgt.ResultsDecl, tgt.Body)
}

func validateAliases(sp *spec.Spec) error {
	seen := make(map[string]bool)
	for _, cb := range sp.Captures {
		for _, name := range cb.Names {
			if name == "_" {
				continue
			}
			if strings.HasPrefix(name, reservedPrefix) {
				return fmt.Errorf("capture alias %s collides with a reserved identifier", name)
			}
			if seen[name] {
				return fmt.Errorf("duplicate capture alias %s", name)
			}
			seen[name] = true
		}
	}
	return nil
}
