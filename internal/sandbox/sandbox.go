// Package sandbox evaluates instrumented code in an embedded interpreter so
// a contract can be exercised without compiling a binary. Checks fire the
// same way they would in a built program; a panicking check comes back as an
// ordinary error.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Runner interprets Go source with Yaegi under an import allowlist.
type Runner struct {
	allowed map[string]bool
}

// NewRunner returns a Runner restricted to side-effect-free stdlib packages,
// plus fmt and os, which instrumented code in report mode writes through.
func NewRunner() *Runner {
	return &Runner{
		allowed: map[string]bool{
			"bytes":         true,
			"encoding/json": true,
			"errors":        true,
			"fmt":           true,
			"math":          true,
			"os":            true,
			"regexp":        true,
			"sort":          true,
			"strconv":       true,
			"strings":       true,
			"time":          true,
			"unicode":       true,
		},
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	// Value is the printed value of the expression, empty when the
	// expression produced nothing.
	Value string

	Stdout string
	Stderr string
}

// Run evaluates src, then expr against the declarations src introduced.
// Interpreted stdout and stderr are captured into the Result. A panic raised
// by the interpreted code, including a failed contract check, is returned as
// an error rather than crashing the caller.
func (r *Runner) Run(ctx context.Context, src, expr string) (Result, error) {
	if err := r.validateImports(src); err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Result{}, fmt.Errorf("loading stdlib symbols: %w", err)
	}

	res := Result{}
	err := r.eval(ctx, func() error {
		if _, err := i.Eval(wrapSource(src)); err != nil {
			return fmt.Errorf("evaluating source: %w", err)
		}
		if expr == "" {
			return nil
		}
		v, err := i.Eval(expr)
		if err != nil {
			return fmt.Errorf("evaluating %s: %w", expr, err)
		}
		if v.IsValid() {
			res.Value = fmt.Sprintf("%v", v)
		}
		return nil
	})
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res, err
}

// eval runs fn on its own goroutine so a hung interpretation cannot outlive
// the context, and converts interpreted panics to errors.
func (r *Runner) eval(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- panicError(rec)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		var p interp.Panic
		if errors.As(err, &p) {
			return panicError(p.Value)
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("evaluation timed out: %w", ctx.Err())
	}
}

func panicError(v any) error {
	return fmt.Errorf("interpreted code panicked: %v", v)
}

// validateImports parses the import clauses of src and rejects any package
// outside the allowlist.
func (r *Runner) validateImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "sandbox.go", wrapSource(src), parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parsing source: %w", err)
	}

	var forbidden []string
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("bad import path %s", imp.Path.Value)
		}
		if !r.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %s (allowed: %s)",
			strings.Join(forbidden, ", "), strings.Join(r.allowedList(), ", "))
	}
	return nil
}

// wrapSource prepends a package clause when src is a bare snippet.
func wrapSource(src string) string {
	if strings.HasPrefix(strings.TrimSpace(src), "package ") {
		return src
	}
	return "package main\n\n" + src
}

func (r *Runner) allowedList() []string {
	pkgs := make([]string, 0, len(r.allowed))
	for pkg := range r.allowed {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}
