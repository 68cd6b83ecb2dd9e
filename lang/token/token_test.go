package token_test

import (
	"testing"

	"github.com/mna/corvid/lang/token"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	cases := []struct {
		ident string
		want  token.Token
	}{
		{"fn", token.FN},
		{"struct", token.STRUCT},
		{"weak", token.WEAK},
		{"notakeyword", token.IDENT},
		{"", token.IDENT},
	}
	for _, c := range cases {
		require.Equal(t, c.want, token.Lookup(c.ident))
	}
}

func TestCompoundAssignOp(t *testing.T) {
	cases := []struct {
		tok    token.Token
		want   token.Token
		wantOk bool
	}{
		{token.PLUS_EQ, token.PLUS, true},
		{token.GTGT_EQ, token.GTGT, true},
		{token.EQ, token.ILLEGAL, false},
		{token.IDENT, token.ILLEGAL, false},
	}
	for _, c := range cases {
		got, ok := token.CompoundAssignOp(c.tok)
		require.Equal(t, c.wantOk, ok)
		require.Equal(t, c.want, got)
	}
}

func TestGoString(t *testing.T) {
	require.Equal(t, "'+'", token.PLUS.GoString())
	require.Equal(t, "'break'", token.BREAK.GoString())
	require.Equal(t, "identifier", token.IDENT.GoString())
}
