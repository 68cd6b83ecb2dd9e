// Package scanner implements the lexer for the language: it turns a source
// file into a stream of tokens for the statement compiler (package
// lang/compiler) to consume. The scanner returns one token at a time from
// Scan and offers a cheap value-type snapshot (Clone) so the compiler can do
// one-token lookahead (e.g. to tell "ident :=" from "ident =") without
// re-lexing; asserting on token kinds is left to the compiler.
package scanner

import (
	"fmt"
	"go/scanner"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mna/corvid/lang/token"
)

// ErrorList collects scanning (and, by convention, compiling) errors. It is
// an alias for go/scanner.ErrorList so callers get its existing Sort/Err/
// string-formatting behavior for free instead of reinventing one.
type ErrorList = scanner.ErrorList

// PrintError prints each error in err (if it is an ErrorList) or err itself,
// one per line, to w.
var PrintError = scanner.PrintError

// Value carries the decoded literal payload of a token, when it has one.
type Value struct {
	Pos   token.Position
	Int   int64
	Float float64
	Str   string // decoded string/char literal, or the raw text of an identifier/keyword
}

// Scanner tokenizes a single source file. The zero value is not usable;
// call Init first.
type Scanner struct {
	filename string
	src      []byte
	err      func(token.Position, string)

	off, roff  int // byte offsets of cur and of the position after cur
	line, col  int
	cur        rune
}

// Init prepares s to scan src, reporting lexical errors to errHandler.
func (s *Scanner) Init(filename string, src []byte, errHandler func(token.Position, string)) {
	s.filename = filename
	s.src = src
	s.err = errHandler
	s.off = 0
	s.roff = 0
	s.line = 1
	s.col = 0
	s.cur = ' '
	s.advance()
}

// Clone returns a cheap value copy of the scanner's current state, so the
// statement compiler can peek one token ahead (e.g. "ident :=" vs "ident =")
// by scanning on the clone and discarding it.
func (s *Scanner) Clone() Scanner { return *s }

func (s *Scanner) pos() token.Position {
	return token.Position{Filename: s.filename, Line: s.line, Col: s.col}
}

func (s *Scanner) errorf(pos token.Position, format string, args ...interface{}) {
	if s.err != nil {
		s.err(pos, fmt.Sprintf(format, args...))
	}
}

// advance consumes the current rune and loads the next one into s.cur.
func (s *Scanner) advance() {
	if s.cur == '\n' {
		s.line++
		s.col = 0
	}
	s.off = s.roff
	if s.off >= len(s.src) {
		s.cur = -1 // EOF sentinel
		return
	}
	r, sz := rune(s.src[s.off]), 1
	if r >= utf8.RuneSelf {
		r, sz = utf8.DecodeRune(s.src[s.off:])
	}
	s.roff = s.off + sz
	s.cur = r
	s.col++
}

func (s *Scanner) peek() rune {
	if s.roff >= len(s.src) {
		return -1
	}
	r, sz := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, _ = utf8.DecodeRune(s.src[s.roff:])
	}
	_ = sz
	return r
}

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch {
		case s.cur == ' ' || s.cur == '\t' || s.cur == '\r' || s.cur == '\n':
			s.advance()
		case s.cur == '/' && s.peek() == '/':
			for s.cur != '\n' && s.cur >= 0 {
				s.advance()
			}
		case s.cur == '/' && s.peek() == '*':
			startPos := s.pos()
			s.advance()
			s.advance()
			closed := false
			for s.cur >= 0 {
				if s.cur == '*' && s.peek() == '/' {
					s.advance()
					s.advance()
					closed = true
					break
				}
				s.advance()
			}
			if !closed {
				s.errorf(startPos, "comment not terminated")
			}
		default:
			return
		}
	}
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isLetterOrDigit(r rune) bool { return isLetter(r) || isDigit(r) }

// Scan returns the next token and its associated value (for idents, literals
// and error positions; zero value otherwise).
func (s *Scanner) Scan() (token.Token, Value) {
	s.skipWhitespaceAndComments()
	pos := s.pos()
	val := Value{Pos: pos}

	if s.cur < 0 {
		return token.EOF, val
	}

	switch {
	case isLetter(s.cur):
		return s.scanIdent(pos)
	case isDigit(s.cur):
		return s.scanNumber(pos)
	case s.cur == '"':
		return s.scanString(pos)
	case s.cur == '\'':
		return s.scanChar(pos)
	}

	ch := s.cur
	s.advance()
	switch ch {
	case '+':
		if s.cur == '+' {
			s.advance()
			return token.INC, val
		}
		return s.switch2('=', token.PLUS, token.PLUS_EQ, pos, &val)
	case '-':
		if s.cur == '-' {
			s.advance()
			return token.DEC, val
		}
		return s.switch2('=', token.MINUS, token.MINUS_EQ, pos, &val)
	case '*':
		return s.switch2('=', token.STAR, token.STAR_EQ, pos, &val)
	case '/':
		return s.switch2('=', token.SLASH, token.SLASH_EQ, pos, &val)
	case '%':
		return s.switch2('=', token.PERCENT, token.PERCENT_EQ, pos, &val)
	case '&':
		if s.cur == '&' {
			s.advance()
			return token.AND, val
		}
		return s.switch2('=', token.AMPERSAND, token.AMP_EQ, pos, &val)
	case '|':
		if s.cur == '|' {
			s.advance()
			return token.OR, val
		}
		return s.switch2('=', token.PIPE, token.PIPE_EQ, pos, &val)
	case '^':
		return s.switch2('=', token.CIRCUMFLEX, token.CIRCUMFLEX_EQ, pos, &val)
	case '~':
		return token.TILDE, val
	case '<':
		if s.cur == '<' {
			s.advance()
			return s.switch2('=', token.LTLT, token.LTLT_EQ, pos, &val)
		}
		return s.switch2('=', token.LT, token.LE, pos, &val)
	case '>':
		if s.cur == '>' {
			s.advance()
			return s.switch2('=', token.GTGT, token.GTGT_EQ, pos, &val)
		}
		return s.switch2('=', token.GT, token.GE, pos, &val)
	case '=':
		return s.switch2('=', token.EQ, token.EQL, pos, &val)
	case '!':
		return s.switch2('=', token.NOT, token.NEQ, pos, &val)
	case ':':
		return s.switch2('=', token.COLON, token.ASSIGN, pos, &val)
	case '.':
		return token.DOT, val
	case ',':
		return token.COMMA, val
	case ';':
		return token.SEMI, val
	case '(':
		return token.LPAREN, val
	case ')':
		return token.RPAREN, val
	case '[':
		return token.LBRACK, val
	case ']':
		return token.RBRACK, val
	case '{':
		return token.LBRACE, val
	case '}':
		return token.RBRACE, val
	}

	s.errorf(pos, "unexpected character %#U", ch)
	return token.ILLEGAL, val
}

// switch2 returns tok1 if the next rune does not match want, advancing and
// returning tok2 if it does. The doubled-rune variants of some operators
// (++, --, &&, ||, <<, >>) are handled inline in Scan before switch2 is
// called.
func (s *Scanner) switch2(want rune, tok1, tok2 token.Token, pos token.Position, val *Value) (token.Token, Value) {
	if s.cur == want {
		s.advance()
		return tok2, *val
	}
	return tok1, *val
}

func (s *Scanner) scanIdent(pos token.Position) (token.Token, Value) {
	var sb strings.Builder
	for isLetterOrDigit(s.cur) {
		sb.WriteRune(s.cur)
		s.advance()
	}
	lit := sb.String()
	return token.Lookup(lit), Value{Pos: pos, Str: lit}
}
