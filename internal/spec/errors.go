package spec

import (
	"fmt"

	"patina/internal/clause"
)

// ErrorKind classifies spec-processing failures. Every kind is detected
// while the spec is parsed; none is deferred to run time.
type ErrorKind int

const (
	// ErrGrammar: the clause stream does not match the clause grammar.
	ErrGrammar ErrorKind = iota
	// ErrOrdering: a clause keyword is out of the required order.
	ErrOrdering
	// ErrCardinality: captures or binds occurs more than once.
	ErrCardinality
	// ErrGuardMisuse: a guard on a clause that forbids it, a duplicate
	// guard, or an attribute that is not a guard.
	ErrGuardMisuse
	// ErrAliasRequired: a non-identifier capture source without `as`.
	ErrAliasRequired
	// ErrArity: a predicate func literal with the wrong parameter count.
	ErrArity
	// ErrUnknownKeyword: an unrecognized clause keyword.
	ErrUnknownKeyword
)

func (k ErrorKind) String() string {
	switch k {
	case ErrGrammar:
		return "grammar"
	case ErrOrdering:
		return "ordering"
	case ErrCardinality:
		return "cardinality"
	case ErrGuardMisuse:
		return "guard misuse"
	case ErrAliasRequired:
		return "alias required"
	case ErrArity:
		return "arity"
	case ErrUnknownKeyword:
		return "unknown keyword"
	}
	return "unknown"
}

// Error is a structured, position-carrying spec diagnostic. Positions are
// relative to the directive text; the rewrite layer anchors them to the
// enclosing file.
type Error struct {
	Kind ErrorKind
	Pos  clause.Position
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func newError(kind ErrorKind, pos clause.Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// grammarError wraps a structural clause error into the spec taxonomy.
func grammarError(err error) *Error {
	if ce, ok := err.(*clause.Error); ok {
		return &Error{Kind: ErrGrammar, Pos: ce.Pos, Msg: ce.Msg}
	}
	return &Error{Kind: ErrGrammar, Msg: err.Error()}
}
