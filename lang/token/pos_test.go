package token_test

import (
	"testing"

	"github.com/mna/corvid/lang/token"
	"github.com/stretchr/testify/require"
)

func TestPositionString(t *testing.T) {
	cases := []struct {
		pos  token.Position
		want string
	}{
		{token.Position{}, "-"},
		{token.Position{Filename: "a.cv"}, "a.cv"},
		{token.Position{Filename: "a.cv", Line: 3}, "a.cv:3"},
		{token.Position{Filename: "a.cv", Line: 3, Col: 5}, "a.cv:3:5"},
		{token.Position{Line: 3, Col: 5}, "3:5"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.pos.String())
	}
}

func TestIsValid(t *testing.T) {
	require.False(t, token.Position{}.IsValid())
	require.True(t, token.Position{Line: 1}.IsValid())
}
