package rewrite

import (
	"bytes"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"patina/internal/specfmt"
)

// FormatFile canonically reformats every spec directive in one source file,
// leaving the rest of the file untouched. Directives whose clause text does
// not parse structurally come back as Diagnostics and keep their original
// text.
func FormatFile(path string, src []byte, cfg specfmt.Config) (Result, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return Result{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	tf := fset.File(f.Pos())

	anns := findAnnotations(fset, f)
	res := Result{Annotated: len(anns)}
	if len(anns) == 0 {
		res.Output = src
		return res, nil
	}

	out := append([]byte(nil), src...)
	for i := len(anns) - 1; i >= 0; i-- {
		ann := anns[i]
		formatted, err := specfmt.Format(ann.text, cfg)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics,
				ann.diagnostic(path, ann.decl.Name.Name, err))
			continue
		}

		indent := string(src[tf.Offset(tf.LineStart(ann.dirPos.Line)):ann.start])
		block := renderDirective(formatted, indent)
		out = append(out[:ann.start], append([]byte(block), out[ann.end:]...)...)
	}

	res.Output = out
	res.Changed = !bytes.Equal(out, src)
	return res, nil
}

// renderDirective turns formatted clause text back into a comment block. A
// single-line spec rides on the directive line; a multi-line spec puts the
// directive alone and one clause per continuation comment.
func renderDirective(formatted, indent string) string {
	if formatted == "" {
		return Directive
	}
	if !strings.Contains(formatted, "\n") {
		return Directive + " " + formatted
	}
	var b strings.Builder
	b.WriteString(Directive)
	for _, line := range strings.Split(formatted, "\n") {
		b.WriteString("\n")
		b.WriteString(indent)
		b.WriteString("// ")
		b.WriteString(line)
	}
	return b.String()
}
