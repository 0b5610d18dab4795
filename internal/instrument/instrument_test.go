package instrument

import (
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patina/internal/spec"
)

func mustParse(t *testing.T, text string) *spec.Spec {
	t.Helper()
	sp, err := spec.Parse(text)
	require.NoError(t, err)
	return sp
}

// normalize runs a generated (or hand-written) body through gofmt inside a
// synthetic function so bodies can be compared independent of layout.
func normalize(t *testing.T, resultsDecl, body string) string {
	t.Helper()
	src := "package p\n\nfunc f() " + resultsDecl + " " + body + "\n"
	out, err := format.Source([]byte(src))
	require.NoError(t, err, "generated body does not parse:\n%s", src)
	return string(out)
}

// typecheck verifies that an import-free source file is valid Go, unused
// locals included.
func typecheck(t *testing.T, src string) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err, "generated code does not parse:\n%s", src)
	_, err = (&types.Config{}).Check("p", fset, []*ast.File{f}, nil)
	require.NoError(t, err, "generated code does not typecheck:\n%s", src)
}

func TestBodySimpleContract(t *testing.T) {
	sp := mustParse(t, "requires: x > 0, captures: count, ensures: output == old_count + 1")
	tgt := Target{
		Name:        "f",
		Results:     []string{"int"},
		ResultsDecl: "int",
		Body:        "{ return count + 1 }",
	}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)

	want := `{
		if !(x > 0) {
			panic("Precondition failed: x > 0")
		}
		old_count, __patina_output := count, func() int { return count + 1 }()
		if !(func(output int) bool { return output == old_count+1 }(__patina_output)) {
			panic("Postcondition failed: output == old_count + 1")
		}
		_ = old_count
		return __patina_output
	}`
	if diff := cmp.Diff(normalize(t, "int", want), normalize(t, "int", got)); diff != "" {
		t.Errorf("instrumented body mismatch (-want +got):\n%s", diff)
	}
}

func TestBodyMaintainsCheckedTwice(t *testing.T) {
	sp := mustParse(t, "maintains: s.valid()")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 0 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)

	assert.Contains(t, got, `panic("Pre-invariant failed: s.valid()")`)
	assert.Contains(t, got, `panic("Post-invariant failed: s.valid()")`)
	// Entry check precedes the body binding, exit check follows it.
	assert.Less(t,
		indexOf(t, got, "Pre-invariant"),
		indexOf(t, got, "__patina_output :="))
	assert.Greater(t,
		indexOf(t, got, "Post-invariant"),
		indexOf(t, got, "__patina_output :="))
}

func TestBodyCheckOrder(t *testing.T) {
	sp := mustParse(t, "requires: [a, b], maintains: c, ensures: [output > 0, output < 9]")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 1 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)

	order := []string{
		"Precondition failed: a",
		"Precondition failed: b",
		"Pre-invariant failed: c",
		"__patina_output :=",
		"Post-invariant failed: c",
		"Postcondition failed: output > 0",
		"Postcondition failed: output < 9",
		"return __patina_output",
	}
	last := -1
	for _, marker := range order {
		i := indexOf(t, got, marker)
		require.Greater(t, i, last, "marker %q out of order in:\n%s", marker, got)
		last = i
	}
}

func TestBodyCapturesShareBodyAssignment(t *testing.T) {
	sp := mustParse(t, "captures: [x, y as old_y]")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return x + y }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "old_x, old_y, __patina_output := x, y, func() int { return x + y }()")
	assert.Contains(t, got, "_, _ = old_x, old_y")
}

func TestBodyMultiValueCaptureOwnAssignment(t *testing.T) {
	sp := mustParse(t, "captures: [a, m[k] as (v, ok), b]")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 0 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)

	// Declaration order of the sources is preserved; the aliases of the
	// multi-value source appear only after the body binding.
	assert.Less(t, indexOf(t, got, "old_a := a"), indexOf(t, got, "__patina_cap0, __patina_cap1 := m[k]"))
	assert.Less(t, indexOf(t, got, "__patina_cap0, __patina_cap1 := m[k]"), indexOf(t, got, "old_b, __patina_output := b,"))
	assert.Less(t, indexOf(t, got, "old_b, __patina_output := b,"), indexOf(t, got, "v, ok := __patina_cap0, __patina_cap1"))
}

func TestBodyMultiValueCaptureAliasCannotShadow(t *testing.T) {
	// An alias named after a parameter must not be in scope while the body
	// or a later capture source evaluates.
	sp := mustParse(t, "captures: [m[0] as (count, ok), count]")
	tgt := Target{
		Name:        "f",
		Results:     []string{"int"},
		ResultsDecl: "int",
		Body:        "{ return count }",
	}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Less(t,
		indexOf(t, got, "old_count, __patina_output := count,"),
		indexOf(t, got, "count, ok := __patina_cap0, __patina_cap1"))
	typecheck(t, "package p\n\nfunc f(count int, m map[int]int) int "+got+"\n")
}

func TestBodyUnreadCaptureAliasCompiles(t *testing.T) {
	// A capture the exit checks never mention must not leave an unused
	// local behind.
	sp := mustParse(t, "captures: x, ensures: output > 0")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return x + 1 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "_ = old_x")
	typecheck(t, "package p\n\nfunc f(x int) int "+got+"\n")

	sp = mustParse(t, "captures: [x, y]")
	got, err = Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	typecheck(t, "package p\n\nfunc f(x, y int) int "+got+"\n")
}

func TestBodyMultipleResults(t *testing.T) {
	sp := mustParse(t, "binds: (sum, err), ensures: err == nil")
	tgt := Target{
		Name:        "f",
		Results:     []string{"int", "error"},
		ResultsDecl: "(int, error)",
		Body:        "{ return 1, nil }",
	}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "__patina_output0, __patina_output1 := func() (int, error) { return 1, nil }()")
	assert.Contains(t, got, "func(sum int, err error) bool { return err == nil }(__patina_output0, __patina_output1)")
	assert.Contains(t, got, "return __patina_output0, __patina_output1")
	normalize(t, "(int, error)", got)
}

func TestBodyNamedResultsPreserved(t *testing.T) {
	sp := mustParse(t, "ensures: s != \"\"")
	tgt := Target{
		Name:        "f",
		Results:     []string{"string"},
		ResultsDecl: "(s string)",
		Body:        "{ s = \"x\"; return }",
	}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "func() (s string) { s = \"x\"; return }()")
	normalize(t, "(s string)", got)
}

func TestBodyNoResults(t *testing.T) {
	sp := mustParse(t, "requires: x > 0, captures: x")
	tgt := Target{Name: "f", Body: "{ x++ }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "old_x := x")
	assert.Contains(t, got, "func() { x++ }()")
	assert.NotContains(t, got, "return")
	normalize(t, "", got)
}

func TestBodyEnsuresNeedsResults(t *testing.T) {
	sp := mustParse(t, "ensures: output > 0")
	_, err := Body(sp, Target{Name: "f", Body: "{}"}, CheckAndPanic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returns nothing")
}

func TestBodyExplicitEnsuresPredicate(t *testing.T) {
	sp := mustParse(t, "ensures: func(out int) bool { return out > 0 }")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 1 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "(func(out int) bool { return out > 0 })(__patina_output)")
}

func TestBodyExplicitPredicateMultiResultRejected(t *testing.T) {
	sp := mustParse(t, "ensures: func(out int) bool { return out > 0 }")
	tgt := Target{Name: "f", Results: []string{"int", "error"}, ResultsDecl: "(int, error)", Body: "{ return 1, nil }"}

	_, err := Body(sp, tgt, CheckAndPanic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use a bare expression with `binds`")
}

func TestBodyBindsArityMismatch(t *testing.T) {
	sp := mustParse(t, "ensures: output > 0")
	tgt := Target{Name: "f", Results: []string{"int", "error"}, ResultsDecl: "(int, error)", Body: "{ return 1, nil }"}

	_, err := Body(sp, tgt, CheckAndPanic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binding has 1 names")
}

func TestBodyExplicitZeroArgPrecondition(t *testing.T) {
	sp := mustParse(t, "requires: func() bool { return ready }")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 1 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Contains(t, got, "(func() bool { return ready })()")
}

func TestBodyGuardWrapsBothMaintainsCheckpoints(t *testing.T) {
	sp := mustParse(t, "when(debugChecks) maintains: s.valid()")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 0 }"}

	got, err := Body(sp, tgt, CheckAndPanic)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(got, "if debugChecks {"))
	normalize(t, "int", got)
}

func TestBodyReportBackend(t *testing.T) {
	sp := mustParse(t, "requires: x > 0")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 1 }"}

	got, err := Body(sp, tgt, CheckAndReport)
	require.NoError(t, err)
	assert.Contains(t, got, `fmt.Fprintln(os.Stderr, "Precondition failed: x > 0")`)
	assert.NotContains(t, got, "panic(")
	assert.Equal(t, []string{"fmt", "os"}, CheckAndReport.Imports)
}

func TestBodyNoCheckBackendInertButTyped(t *testing.T) {
	sp := mustParse(t, "when(debugChecks) requires: x > 0, ensures: output > x")
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return x + 1 }"}

	got, err := Body(sp, tgt, NoCheck)
	require.NoError(t, err)
	// Checks and guards are emitted inside dead branches so they still
	// type-check.
	assert.Equal(t, 2, strings.Count(got, "if false {"))
	assert.Contains(t, got, "if debugChecks {")
	assert.Less(t, indexOf(t, got, "if false {"), indexOf(t, got, "if debugChecks {"))
	assert.Contains(t, got, "x > 0")
	normalize(t, "int", got)
}

func TestBodyReservedAndDuplicateAliases(t *testing.T) {
	tgt := Target{Name: "f", Results: []string{"int"}, ResultsDecl: "int", Body: "{ return 1 }"}

	_, err := Body(mustParse(t, "captures: x as __patina_output"), tgt, CheckAndPanic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved identifier")

	_, err = Body(mustParse(t, "captures: [x as old, y as old]"), tgt, CheckAndPanic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate capture alias")
}

func TestForName(t *testing.T) {
	for name, want := range map[string]string{
		"":       "panic",
		"panic":  "panic",
		"report": "report",
		"off":    "off",
	} {
		be, err := ForName(name)
		require.NoError(t, err)
		assert.Equal(t, want, be.Name)
	}
	_, err := ForName("quiet")
	assert.Error(t, err)
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	i := strings.Index(s, sub)
	require.GreaterOrEqual(t, i, 0, "missing %q in:\n%s", sub, s)
	return i
}
