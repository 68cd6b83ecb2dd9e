package scanner_test

import (
	"testing"

	"github.com/mna/corvid/lang/scanner"
	"github.com/mna/corvid/lang/token"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) ([]token.Token, []scanner.Value, []string) {
	t.Helper()
	var toks []token.Token
	var vals []scanner.Value
	var errs []string

	var s scanner.Scanner
	s.Init("test.cv", []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, pos.String()+": "+msg)
	})
	for {
		tok, val := s.Scan()
		toks = append(toks, tok)
		vals = append(vals, val)
		if tok == token.EOF {
			break
		}
	}
	return toks, vals, errs
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks, _, errs := scanAll(t, `+ += - -= ++ -- * / % & | ^ ~ << >> &= |= ^= <<= >>= && || ! == != < <= > >= = := . , : ; ( ) [ ] { }`)
	require.Empty(t, errs)
	want := []token.Token{
		token.PLUS, token.PLUS_EQ, token.MINUS, token.MINUS_EQ, token.INC, token.DEC,
		token.STAR, token.SLASH, token.PERCENT, token.AMPERSAND, token.PIPE, token.CIRCUMFLEX, token.TILDE,
		token.LTLT, token.GTGT, token.AMP_EQ, token.PIPE_EQ, token.CIRCUMFLEX_EQ, token.LTLT_EQ, token.GTGT_EQ,
		token.AND, token.OR, token.NOT, token.EQL, token.NEQ, token.LT, token.LE, token.GT, token.GE,
		token.EQ, token.ASSIGN, token.DOT, token.COMMA, token.COLON, token.SEMI,
		token.LPAREN, token.RPAREN, token.LBRACK, token.RBRACK, token.LBRACE, token.RBRACE,
		token.EOF,
	}
	require.Equal(t, want, toks)
}

func TestScanIdentsAndKeywords(t *testing.T) {
	toks, vals, errs := scanAll(t, `foo fn var weak _bar123`)
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.IDENT, token.FN, token.VAR, token.WEAK, token.IDENT, token.EOF}, toks)
	require.Equal(t, "foo", vals[0].Str)
	require.Equal(t, "_bar123", vals[4].Str)
}

func TestScanNumbers(t *testing.T) {
	toks, vals, errs := scanAll(t, `123 0x1F 0o17 0b101 3.14 1e10 1_000`)
	require.Empty(t, errs)
	require.Equal(t, []token.Token{
		token.INT, token.INT, token.INT, token.INT, token.FLOAT, token.FLOAT, token.INT, token.EOF,
	}, toks)
	require.Equal(t, int64(123), vals[0].Int)
	require.Equal(t, int64(31), vals[1].Int)
	require.Equal(t, int64(15), vals[2].Int)
	require.Equal(t, int64(5), vals[3].Int)
	require.InDelta(t, 3.14, vals[4].Float, 0.0001)
	require.Equal(t, int64(1000), vals[6].Int)
}

func TestScanStringsAndChars(t *testing.T) {
	toks, vals, errs := scanAll(t, `"hello\nworld" 'a' '\x41' 'A'`)
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.STRING, token.CHAR, token.CHAR, token.CHAR, token.EOF}, toks)
	require.Equal(t, "hello\nworld", vals[0].Str)
	require.Equal(t, int64('a'), vals[1].Int)
	require.Equal(t, int64('A'), vals[2].Int)
	require.Equal(t, int64('A'), vals[3].Int)
}

func TestScanComments(t *testing.T) {
	toks, _, errs := scanAll(t, "x // line comment\ny /* block\ncomment */ z")
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.IDENT, token.IDENT, token.IDENT, token.EOF}, toks)
}

func TestScanUnterminatedString(t *testing.T) {
	_, _, errs := scanAll(t, `"abc`)
	require.Len(t, errs, 1)
}

func TestScanIllegalCharacter(t *testing.T) {
	_, _, errs := scanAll(t, "@")
	require.Len(t, errs, 1)
}

func TestClonePeeksWithoutAdvancing(t *testing.T) {
	var s scanner.Scanner
	s.Init("test.cv", []byte("a := 1"), nil)

	clone := s.Clone()
	tok1, _ := clone.Scan()
	require.Equal(t, token.IDENT, tok1)
	tok2, _ := clone.Scan()
	require.Equal(t, token.ASSIGN, tok2)

	// the original scanner is untouched by scanning on the clone
	tok, _ := s.Scan()
	require.Equal(t, token.IDENT, tok)
}
