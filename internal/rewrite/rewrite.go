// Package rewrite applies contract annotations to Go source files. It finds
// functions carrying the spec directive in their doc comment, parses the
// clause text, and splices an instrumented body over the original one,
// reformatting the file afterwards.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/tools/go/ast/astutil"

	"patina/internal/instrument"
	"patina/internal/spec"
)

// Directive marks a doc comment as a contract spec. Clause text may follow
// it on the same line; every later line comment in the same doc group
// continues the spec.
const Directive = "//patina:spec"

// Diagnostic is one spec or instrumentation problem, positioned in the
// annotated file.
type Diagnostic struct {
	Path string
	Line int
	Col  int
	Func string
	Err  error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %v", d.Path, d.Line, d.Col, d.Func, d.Err)
}

// Options configures one rewrite pass.
type Options struct {
	Backend     instrument.Backend
	AliasPrefix string
	Log         *zap.Logger
}

// Result is the outcome of rewriting one file.
type Result struct {
	// Output is the full instrumented source, formatted. When nothing in
	// the file is annotated it is the input unchanged.
	Output []byte

	Changed   bool
	Annotated int

	// Diagnostics carries per-function failures. Functions that fail are
	// left untouched; the rest of the file is still rewritten.
	Diagnostics []Diagnostic
}

// annotation is one directive-carrying function before instrumentation.
type annotation struct {
	decl *ast.FuncDecl
	text string
	// lines anchors each line of text in the file, so clause positions
	// map back to real file positions.
	lines  []lineBase
	dirPos token.Position
	// start and end are the byte extent of the directive comment block,
	// from the directive marker through the last continuation comment.
	start int
	end   int
}

type lineBase struct {
	line int
	col  int
}

// File rewrites one annotated source file. A non-nil error means the file
// itself could not be processed; spec-level problems come back as
// Diagnostics instead.
func File(path string, src []byte, opts Options) (Result, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return Result{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	tf := fset.File(f.Pos())

	anns := findAnnotations(fset, f)
	if len(anns) == 0 {
		return Result{Output: src}, nil
	}

	sp := spec.NewParser(spec.Options{AliasPrefix: opts.AliasPrefix})

	type splice struct {
		lo, hi int
		text   string
	}
	var splices []splice
	res := Result{Annotated: len(anns)}

	for _, ann := range anns {
		name := ann.decl.Name.Name
		if ann.decl.Body == nil {
			log.Debug("skipping bodiless function", zap.String("func", name))
			continue
		}

		lbrace := tf.Offset(ann.decl.Body.Lbrace)
		rbrace := tf.Offset(ann.decl.Body.Rbrace) + 1
		bodyText := string(src[lbrace:rbrace])
		if strings.Contains(bodyText, instrument.OutputPrefix) {
			log.Debug("already instrumented", zap.String("func", name))
			continue
		}

		parsed, err := sp.Parse(ann.text)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, ann.diagnostic(path, name, err))
			continue
		}
		if parsed.IsEmpty() {
			log.Debug("empty spec", zap.String("func", name))
			continue
		}

		results, resultsDecl := resultsInfo(src, tf, ann.decl.Type.Results)
		body, err := instrument.Body(parsed, instrument.Target{
			Name:        name,
			Results:     results,
			ResultsDecl: resultsDecl,
			Body:        bodyText,
		}, opts.Backend)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, ann.diagnostic(path, name, err))
			continue
		}

		log.Debug("instrumenting function",
			zap.String("func", name),
			zap.String("file", path),
			zap.Int("line", ann.dirPos.Line))
		splices = append(splices, splice{lo: lbrace, hi: rbrace, text: body})
	}

	if len(splices) == 0 {
		res.Output = src
		return res, nil
	}

	// Splice back to front so earlier offsets stay valid.
	out := append([]byte(nil), src...)
	for i := len(splices) - 1; i >= 0; i-- {
		s := splices[i]
		out = append(out[:s.lo], append([]byte(s.text), out[s.hi:]...)...)
	}

	out, err = finish(path, out, opts.Backend.Imports)
	if err != nil {
		return Result{}, err
	}
	res.Output = out
	res.Changed = !bytes.Equal(out, src)
	return res, nil
}

// finish reparses the spliced source, adds the backend's imports, and
// formats the result.
func finish(path string, src []byte, imports []string) ([]byte, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("instrumented %s does not parse: %w", path, err)
	}
	for _, imp := range imports {
		astutil.AddImport(fset, f, imp)
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, f); err != nil {
		return nil, fmt.Errorf("formatting %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// findAnnotations collects every function whose doc comment carries the
// directive, assembling the clause text with per-line file anchors.
func findAnnotations(fset *token.FileSet, f *ast.File) []annotation {
	var anns []annotation
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Doc == nil {
			continue
		}
		if ann, ok := directiveText(fset, fd); ok {
			anns = append(anns, ann)
		}
	}
	return anns
}

func directiveText(fset *token.FileSet, fd *ast.FuncDecl) (annotation, bool) {
	ann := annotation{decl: fd}
	var b strings.Builder
	seen := false

	for _, c := range fd.Doc.List {
		if !seen {
			rest, ok := cutDirective(c.Text)
			if !ok {
				continue
			}
			seen = true
			ann.dirPos = fset.Position(c.Pos())
			ann.start = ann.dirPos.Offset
			ann.end = fset.Position(c.End()).Offset
			if strings.TrimSpace(rest) != "" {
				pos := fset.Position(c.Pos())
				b.WriteString(rest)
				ann.lines = append(ann.lines, lineBase{
					line: pos.Line,
					col:  pos.Column + len(c.Text) - len(rest),
				})
			}
			continue
		}

		// Continuation lines. Block comments end the spec.
		if !strings.HasPrefix(c.Text, "//") {
			break
		}
		rest := strings.TrimPrefix(c.Text, "//")
		trimmed := 2
		if strings.HasPrefix(rest, " ") {
			rest = rest[1:]
			trimmed++
		}
		pos := fset.Position(c.Pos())
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(rest)
		ann.lines = append(ann.lines, lineBase{line: pos.Line, col: pos.Column + trimmed})
		ann.end = fset.Position(c.End()).Offset
	}

	ann.text = b.String()
	return ann, seen
}

// cutDirective returns the text after the directive marker, and whether the
// comment is a directive at all.
func cutDirective(comment string) (string, bool) {
	if !strings.HasPrefix(comment, Directive) {
		return "", false
	}
	rest := comment[len(Directive):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return rest, true
}

// diagnostic maps a spec error's clause position back into file coordinates;
// anything without a position is anchored at the directive.
func (ann annotation) diagnostic(path, fn string, err error) Diagnostic {
	d := Diagnostic{Path: path, Line: ann.dirPos.Line, Col: ann.dirPos.Column, Func: fn, Err: err}
	var se *spec.Error
	if !errors.As(err, &se) {
		return d
	}
	pos := se.Pos
	if pos.Line >= 1 && pos.Line <= len(ann.lines) {
		base := ann.lines[pos.Line-1]
		d.Line = base.line
		d.Col = base.col + pos.Column - 1
	}
	return d
}

// resultsInfo flattens a function's result list into one type per returned
// value, plus the literal declaration text for the body closure.
func resultsInfo(src []byte, tf *token.File, res *ast.FieldList) ([]string, string) {
	if res == nil || len(res.List) == 0 {
		return nil, ""
	}
	decl := string(src[tf.Offset(res.Pos()):tf.Offset(res.End())])

	var types []string
	for _, field := range res.List {
		typ := string(src[tf.Offset(field.Type.Pos()):tf.Offset(field.Type.End())])
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			types = append(types, typ)
		}
	}
	return types, decl
}
