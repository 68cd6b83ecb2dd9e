package scope_test

import (
	"testing"

	"github.com/mna/corvid/lang/scope"
	"github.com/stretchr/testify/require"
)

func TestEnterLeaveMonotonic(t *testing.T) {
	var s scope.Stack
	b0 := s.Enter(-1)
	require.Equal(t, 0, b0.Number)
	b1 := s.Enter(-1)
	require.Equal(t, 1, b1.Number)
	require.Equal(t, b0, b1.Parent())
	s.Leave()
	require.Equal(t, 0, s.CurrentNumber())
	s.Leave()
	require.Equal(t, -1, s.CurrentNumber())
}

func TestEnterInheritsEnclosingFunc(t *testing.T) {
	var s scope.Stack
	s.Enter(-1)    // module scope
	s.Enter(7)     // function body, fn ident offset 7
	s.Enter(-1)    // nested block inherits fn=7
	require.Equal(t, 7, s.EnclosingFunc())
}

func TestFrameSizeAccumulatesAcrossNestedBlocks(t *testing.T) {
	var s scope.Stack
	s.Enter(-1)
	s.Enter(3)
	s.AddLocalSize(8)
	s.Enter(-1)
	s.AddLocalSize(4)
	s.Leave()
	require.Equal(t, 12, s.FrameSize(3))
}

func TestLeaveOnEmptyStackPanics(t *testing.T) {
	var s scope.Stack
	require.Panics(t, func() { s.Leave() })
}

func TestBlockAtAndDepth(t *testing.T) {
	var s scope.Stack
	s.Enter(-1)
	s.Enter(-1)
	s.Enter(-1)
	require.Equal(t, 3, s.Depth())
	require.Equal(t, 2, s.BlockAt(0).Number)
	require.Equal(t, 0, s.BlockAt(2).Number)
	require.Nil(t, s.BlockAt(5))
}
