// Package spec turns the structural clause list of a //patina:spec directive
// into a validated Spec value: the contract of one annotated function. All
// clause payloads stay opaque Go expressions; this package validates shape
// (clause order, cardinality, guard placement, predicate arity, capture
// aliasing), never meaning.
package spec

import "go/ast"

// Guard is a build-time boolean predicate attached to a single clause via a
// `when(...)` attribute. The instrumented check is wrapped so that it is
// skipped when the guard expression is false; a constant-false guard lets
// the compiler drop the check entirely.
type Guard struct {
	Expr ast.Expr
	Text string
}

// Predicate is one boolean check. Either the user supplied a func literal
// (Explicit), or a bare expression (Expr) that the instrumentation engine
// wraps in a synthesized, signature-typed func literal. Text is the clause's
// literal source, embedded in failure messages.
type Predicate struct {
	Explicit *ast.FuncLit
	Expr     ast.Expr
	Text     string

	// Params is the destructuring pattern for a synthesized postcondition:
	// the binds pattern in force when the clause was parsed, or the
	// implicit `output` binding. Empty for preconditions and invariants.
	Params []string
}

// Condition pairs a predicate with its optional guard.
type Condition struct {
	Pred  Predicate
	Guard *Guard
}

// Capture is a pre-state snapshot: an expression evaluated at function
// entry, bound to one or more names for use in postconditions.
type Capture struct {
	Expr  ast.Expr
	Text  string
	Names []string
}

// Spec is the parsed contract of one annotated item. It is immutable after
// Parse and consumed exactly once by the instrumentation engine.
type Spec struct {
	// Requires holds preconditions, checked at entry.
	Requires []Condition
	// Maintains holds invariants, checked at entry and again at exit.
	Maintains []Condition
	// Captures holds pre-state snapshots, bound atomically with the body.
	Captures []Capture
	// Ensures holds postconditions over the function result, checked at exit.
	Ensures []Condition
}

// IsEmpty reports whether the spec constrains nothing.
func (s *Spec) IsEmpty() bool {
	return len(s.Requires) == 0 && len(s.Maintains) == 0 &&
		len(s.Captures) == 0 && len(s.Ensures) == 0
}
