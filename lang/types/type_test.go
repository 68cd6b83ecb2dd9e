package types_test

import (
	"testing"

	"github.com/mna/corvid/lang/token"
	"github.com/mna/corvid/lang/types"
	"github.com/stretchr/testify/require"
)

func TestSizeOf(t *testing.T) {
	tab := types.NewTable()
	require.Equal(t, 1, types.SizeOf(tab.Builtin(types.Int8)))
	require.Equal(t, 8, types.SizeOf(tab.Builtin(types.Int)))
	require.Equal(t, 0, types.SizeOf(tab.Builtin(types.Void)))

	arr := tab.Add(types.Array, 0)
	arr.Base = tab.Builtin(types.Int32)
	arr.NumItems = 3
	require.Equal(t, 12, types.SizeOf(arr))

	st := tab.Add(types.Struct, 0)
	_, err := types.AddField(st, "x", tab.Builtin(types.Int))
	require.NoError(t, err)
	_, err = types.AddField(st, "y", tab.Builtin(types.Int8))
	require.NoError(t, err)
	require.Equal(t, 9, types.SizeOf(st))
}

func TestEquivalentIgnoresTypeIdent(t *testing.T) {
	tab := types.NewTable()
	a := tab.Add(types.Ptr, 0)
	a.Base = tab.Builtin(types.Int)
	a.TypeIdent = "MyIntPtr"

	b := tab.Add(types.Ptr, 0)
	b.Base = tab.Builtin(types.Int)

	require.True(t, types.Equivalent(a, b))
	require.True(t, types.Equivalent(b, a))
}

func TestEquivalentStructFieldOrderMatters(t *testing.T) {
	tab := types.NewTable()
	s1 := tab.Add(types.Struct, 0)
	_, _ = types.AddField(s1, "x", tab.Builtin(types.Int))
	_, _ = types.AddField(s1, "y", tab.Builtin(types.Int))

	s2 := tab.Add(types.Struct, 0)
	_, _ = types.AddField(s2, "y", tab.Builtin(types.Int))
	_, _ = types.AddField(s2, "x", tab.Builtin(types.Int))

	require.False(t, types.Equivalent(s1, s2))
}

func TestGarbageCollectedTransitivity(t *testing.T) {
	tab := types.NewTable()
	require.False(t, types.GarbageCollected(tab.Builtin(types.Int)))
	require.True(t, types.GarbageCollected(tab.Builtin(types.Str)))

	arrOfStr := tab.Add(types.Array, 0)
	arrOfStr.Base = tab.Builtin(types.Str)
	require.True(t, types.GarbageCollected(arrOfStr))

	st := tab.Add(types.Struct, 0)
	_, _ = types.AddField(st, "s", tab.Builtin(types.Str))
	require.True(t, types.GarbageCollected(st))

	weakPtr := tab.AddPtrTo(tab.Builtin(types.Int), 0, true)
	require.False(t, types.GarbageCollected(weakPtr))

	ownPtr := tab.AddPtrTo(tab.Builtin(types.Int), 0, false)
	require.True(t, types.GarbageCollected(ownPtr))
}

func TestCompatiblePointers(t *testing.T) {
	tab := types.NewTable()
	voidPtr := tab.AddPtrTo(tab.Builtin(types.Void), 0, false)
	intPtr := tab.AddPtrTo(tab.Builtin(types.Int), 0, false)
	nullT := tab.Builtin(types.Null)

	require.True(t, types.Compatible(voidPtr, intPtr, false))
	require.False(t, types.Compatible(intPtr, voidPtr, false))
	require.True(t, types.Compatible(voidPtr, intPtr, true))

	require.True(t, types.Compatible(intPtr, nullT, false))
}

func TestAddFieldRejectsDuplicateAndVoid(t *testing.T) {
	tab := types.NewTable()
	st := tab.Add(types.Struct, 0)
	_, err := types.AddField(st, "x", tab.Builtin(types.Int))
	require.NoError(t, err)

	_, err = types.AddField(st, "x", tab.Builtin(types.Int))
	require.Error(t, err)

	_, err = types.AddField(st, "y", tab.Builtin(types.Void))
	require.Error(t, err)
}

func TestTruncateRemovesBlockOwnedTypes(t *testing.T) {
	tab := types.NewTable()
	base := tab.Builtin(types.Int)
	_ = tab.Add(types.Ptr, 1)
	_ = tab.Add(types.Ptr, 2)
	tab.Truncate(1)
	require.Same(t, base, tab.Builtin(types.Int))
}

func TestOperatorValid(t *testing.T) {
	tab := types.NewTable()
	require.True(t, types.OperatorValid(token.PLUS, tab.Builtin(types.Str)))
	require.False(t, types.OperatorValid(token.MINUS, tab.Builtin(types.Str)))
	require.True(t, types.OperatorValid(token.AMPERSAND, tab.Builtin(types.Int)))
	require.False(t, types.OperatorValid(token.AMPERSAND, tab.Builtin(types.Real)))
	require.True(t, types.OperatorValid(token.AND, tab.Builtin(types.Bool)))
}
