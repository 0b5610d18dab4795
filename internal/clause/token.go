package clause

import (
	"fmt"
	"go/scanner"
	"go/token"
)

// Position is a line/column location within the spec text of one directive.
// Line and Column are 1-based. The rewrite layer translates these into file
// positions when it reports diagnostics.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Error is a structural (grammar-level) parse error, localized to a position
// within the spec text.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func errorf(pos Position, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Token is one lexical token of the spec text. Clause payloads are opaque Go
// expressions, so tokens follow Go lexical rules. Text is the exact source
// slice, and Off/End are byte offsets into the spec text so that spans can
// reproduce the original payload verbatim.
type Token struct {
	Kind token.Token
	Text string
	Off  int
	End  int
	Pos  Position
}

// Stream is the lexed spec text: the source string plus its token sequence.
// It is immutable after Lex; cursors and spans index into it.
type Stream struct {
	src  string
	toks []Token
	end  Position
}

// Lex tokenizes spec text. Semicolons inserted automatically at line ends are
// discarded (clause lists are comma-separated and may span comment lines);
// an explicit `;` is kept and rejected later by the grammar.
func Lex(src string) (*Stream, error) {
	fset := token.NewFileSet()
	file := fset.AddFile("spec", -1, len(src))

	var firstErr *Error
	handler := func(pos token.Position, msg string) {
		if firstErr == nil {
			firstErr = errorf(Position{pos.Line, pos.Column}, "%s", msg)
		}
	}

	var s scanner.Scanner
	s.Init(file, []byte(src), handler, 0)

	stream := &Stream{src: src}
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			p := file.Position(pos)
			stream.end = Position{p.Line, p.Column}
			break
		}
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}
		text := lit
		if text == "" {
			text = tok.String()
		}
		p := file.Position(pos)
		off := file.Offset(pos)
		stream.toks = append(stream.toks, Token{
			Kind: tok,
			Text: text,
			Off:  off,
			End:  off + len(text),
			Pos:  Position{p.Line, p.Column},
		})
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return stream, nil
}

// Len returns the number of tokens in the stream.
func (s *Stream) Len() int { return len(s.toks) }

// At returns the i-th token.
func (s *Stream) At(i int) Token { return s.toks[i] }

// Span returns the half-open token range [lo, hi).
func (s *Stream) Span(lo, hi int) Span { return Span{stream: s, Lo: lo, Hi: hi} }

// Span is a contiguous token range within a stream. Payload values (opaque
// host-language expressions) are carried around as spans so they can be
// forwarded verbatim, never reinterpreted.
type Span struct {
	stream *Stream
	Lo, Hi int
}

// Empty reports whether the span contains no tokens.
func (s Span) Empty() bool { return s.Lo >= s.Hi }

// Len returns the number of tokens in the span.
func (s Span) Len() int {
	if s.Empty() {
		return 0
	}
	return s.Hi - s.Lo
}

// Text returns the exact source text covered by the span, including the
// original spacing between its tokens.
func (s Span) Text() string {
	if s.Empty() {
		return ""
	}
	return s.stream.src[s.stream.toks[s.Lo].Off:s.stream.toks[s.Hi-1].End]
}

// Tokens returns the tokens of the span.
func (s Span) Tokens() []Token {
	if s.Empty() {
		return nil
	}
	return s.stream.toks[s.Lo:s.Hi]
}

// Pos returns the position of the first token, or the stream end for an
// empty span.
func (s Span) Pos() Position {
	if s.Empty() {
		return s.stream.end
	}
	return s.stream.toks[s.Lo].Pos
}

// Canonical renders the span with normalized spacing: adjacent tokens are
// separated by a single space exactly when the original text had whitespace
// between them. The rendering is deterministic and a fixed point, which is
// what the formatter's idempotence rests on.
func (s Span) Canonical() string {
	toks := s.Tokens()
	if len(toks) == 0 {
		return ""
	}
	out := make([]byte, 0, len(s.Text()))
	for i, t := range toks {
		if i > 0 && toks[i-1].End < t.Off {
			out = append(out, ' ')
		}
		out = append(out, t.Text...)
	}
	return string(out)
}
