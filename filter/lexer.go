package filter

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// ErrSyntax is the sentinel wrapped by every parse error, so callers can
// distinguish a malformed filter expression from other failures.
var ErrSyntax = errors.New("filter: syntax error")

func syntaxErrorf(pos int, format string, args ...any) error {
	return errors.Wrap(ErrSyntax, fmt.Sprintf(format, args...)+fmt.Sprintf(" (offset %d)", pos))
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokIdent
	tokEq
	tokNe
	tokLt
	tokGt
	tokLe
	tokGe
	tokNumber
	tokString
)

type token struct {
	kind   tokenKind
	text   string
	number uint64
	pos    int
}

// lexer tokenizes a filter expression one token at a time. It has no
// lookahead buffer of its own; the parser keeps the current token.
type lexer struct {
	s   string
	pos int
}

func newLexer(s string) *lexer {
	return &lexer{s: s}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.s) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.s[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, pos: start}, nil
	case c == '&':
		if l.pos+1 < len(l.s) && l.s[l.pos+1] == '&' {
			l.pos += 2
			return token{kind: tokAnd, pos: start}, nil
		}
		return token{}, syntaxErrorf(start, "expected '&&'")
	case c == '|':
		if l.pos+1 < len(l.s) && l.s[l.pos+1] == '|' {
			l.pos += 2
			return token{kind: tokOr, pos: start}, nil
		}
		return token{}, syntaxErrorf(start, "expected '||'")
	case c == '=':
		if l.pos+1 < len(l.s) && l.s[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokEq, pos: start}, nil
		}
		return token{}, syntaxErrorf(start, "expected '=='")
	case c == '!':
		if l.pos+1 < len(l.s) && l.s[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokNe, pos: start}, nil
		}
		return token{}, syntaxErrorf(start, "expected '!='")
	case c == '<':
		l.pos++
		if l.pos < len(l.s) && l.s[l.pos] == '=' {
			l.pos++
			return token{kind: tokLe, pos: start}, nil
		}
		return token{kind: tokLt, pos: start}, nil
	case c == '>':
		l.pos++
		if l.pos < len(l.s) && l.s[l.pos] == '=' {
			l.pos++
			return token{kind: tokGe, pos: start}, nil
		}
		return token{kind: tokGt, pos: start}, nil
	case c == '"':
		l.pos++
		for l.pos < len(l.s) && l.s[l.pos] != '"' {
			l.pos++
		}
		if l.pos >= len(l.s) {
			return token{}, syntaxErrorf(start, "unterminated string literal")
		}
		text := l.s[start+1 : l.pos]
		l.pos++
		return token{kind: tokString, text: text, pos: start}, nil
	case isDigit(c):
		for l.pos < len(l.s) && isDigit(l.s[l.pos]) {
			l.pos++
		}
		n, err := strconv.ParseUint(l.s[start:l.pos], 10, 64)
		if err != nil {
			return token{}, syntaxErrorf(start, "number overflow")
		}
		return token{kind: tokNumber, number: n, pos: start}, nil
	case isAlpha(c) || c == '_':
		for l.pos < len(l.s) && (isAlnum(l.s[l.pos]) || l.s[l.pos] == '_') {
			l.pos++
		}
		return token{kind: tokIdent, text: l.s[start:l.pos], pos: start}, nil
	default:
		return token{}, syntaxErrorf(start, "invalid character %q", c)
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.s) && (l.s[l.pos] == ' ' || l.s[l.pos] == '\t') {
		l.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }
