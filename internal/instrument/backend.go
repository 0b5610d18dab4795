package instrument

import (
	"fmt"
	"strconv"
)

// Backend is the policy that turns one checked condition into spliceable
// code. The engine is agnostic to which policy is active; a Backend is a
// plain value selected once per run and threaded through.
//
// BuildCheck receives the guard expression text ("" when unguarded), the
// boolean condition expression, the failure label, and the clause's literal
// source text for the diagnostic message.
type Backend struct {
	Name       string
	BuildCheck func(guard, cond, label, repr string) string

	// Imports lists packages the generated checks reference; the rewrite
	// layer adds them to the instrumented file.
	Imports []string
}

// CheckAndPanic turns every check into a fatal assertion.
var CheckAndPanic = Backend{
	Name: "panic",
	BuildCheck: func(guard, cond, label, repr string) string {
		check := fmt.Sprintf("if !(%s) {\npanic(%s)\n}\n", cond, message(label, repr))
		return guardCheck(guard, check)
	},
}

// CheckAndReport turns every check into a non-fatal stderr diagnostic;
// execution continues past a failure.
var CheckAndReport = Backend{
	Name: "report",
	BuildCheck: func(guard, cond, label, repr string) string {
		check := fmt.Sprintf("if !(%s) {\nfmt.Fprintln(os.Stderr, %s)\n}\n", cond, message(label, repr))
		return guardCheck(guard, check)
	},
	Imports: []string{"fmt", "os"},
}

// NoCheck emits every check inside a permanently dead branch: zero runtime
// cost, but the predicate and any guard expression still participate in
// type checking, so a broken contract fails the build.
var NoCheck = Backend{
	Name: "off",
	BuildCheck: func(guard, cond, label, repr string) string {
		check := fmt.Sprintf("if !(%s) {\npanic(%s)\n}\n", cond, message(label, repr))
		return fmt.Sprintf("if false {\n%s}\n", guardCheck(guard, check))
	},
}

// ForName resolves a backend by its CLI/config name.
func ForName(name string) (Backend, error) {
	switch name {
	case "", "panic":
		return CheckAndPanic, nil
	case "report":
		return CheckAndReport, nil
	case "off":
		return NoCheck, nil
	}
	return Backend{}, fmt.Errorf("unknown backend %q (want panic, report, or off)", name)
}

func message(label, repr string) string {
	return strconv.Quote(label + ": " + repr)
}

func guardCheck(guard, check string) string {
	if guard == "" {
		return check
	}
	return fmt.Sprintf("if %s {\n%s}\n", guard, check)
}
