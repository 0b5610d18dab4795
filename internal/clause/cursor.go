package clause

import "go/token"

// Cursor is a transactional read position over a token stream. Speculative
// parsing forks the cursor, attempts a grammar against the fork, and either
// advances the original to the fork (commit) or drops the fork (rollback).
// A failed trial therefore consumes no input.
//
// The limit bounds the cursor to a sub-range of the stream so that the same
// grammar functions can run over an extracted span (e.g. the pattern half of
// a capture item).
type Cursor struct {
	s     *Stream
	i     int
	limit int
}

// NewCursor returns a cursor over the whole stream.
func NewCursor(s *Stream) Cursor {
	return Cursor{s: s, limit: s.Len()}
}

// SubCursor returns a cursor bounded to the given span.
func SubCursor(sp Span) Cursor {
	return Cursor{s: sp.stream, i: sp.Lo, limit: sp.Hi}
}

// Fork returns an independent copy of the cursor.
func (c *Cursor) Fork() Cursor { return *c }

// Advance commits a fork: the cursor jumps to the fork's position.
func (c *Cursor) Advance(fork Cursor) { c.i = fork.i }

// Done reports whether the cursor has reached its limit.
func (c *Cursor) Done() bool { return c.i >= c.limit }

// Mark returns the current token index, for building spans.
func (c *Cursor) Mark() int { return c.i }

// Peek returns the current token without consuming it. At the limit it
// returns an EOF token positioned at the end of the range.
func (c *Cursor) Peek() Token { return c.PeekN(0) }

// PeekN returns the token n positions ahead without consuming anything.
func (c *Cursor) PeekN(n int) Token {
	if c.i+n >= c.limit {
		return Token{Kind: token.EOF, Pos: c.endPos()}
	}
	return c.s.At(c.i + n)
}

// Next consumes and returns the current token.
func (c *Cursor) Next() Token {
	t := c.Peek()
	if c.i < c.limit {
		c.i++
	}
	return t
}

// Pos returns the position of the current token, or the end of the range.
func (c *Cursor) Pos() Position { return c.Peek().Pos }

func (c *Cursor) endPos() Position {
	if c.limit < c.s.Len() {
		return c.s.At(c.limit).Pos
	}
	return c.s.end
}
