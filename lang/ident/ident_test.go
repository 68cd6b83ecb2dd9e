package ident_test

import (
	"testing"

	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/types"
	"github.com/stretchr/testify/require"
)

func TestLookupShadowing(t *testing.T) {
	var tab ident.Table
	tab2 := types.NewTable()
	intT := tab2.Builtin(types.Int)

	ident.AllocVar(&tab, "x", intT, 0, 0, false)
	inner := ident.AllocVar(&tab, "x", intT, 1, 8, false)

	got := tab.Lookup("x")
	require.Same(t, inner, got)
}

func TestFreeBlockRemovesOwnedIdents(t *testing.T) {
	var tab ident.Table
	tabT := types.NewTable()
	intT := tabT.Builtin(types.Int)

	outer := ident.AllocVar(&tab, "a", intT, 0, 0, false)
	ident.AllocVar(&tab, "b", intT, 1, 0, false)

	tab.FreeBlock(1)
	require.Nil(t, tab.Lookup("b"))
	require.Same(t, outer, tab.Lookup("a"))
}

func TestFreeBlockRetainsPrototype(t *testing.T) {
	var tab ident.Table
	tabT := types.NewTable()
	fnT := tabT.Add(types.Fn, 0)

	proto := ident.DeclareFn(&tab, "foo", fnT, 0, 10)
	tab.FreeBlock(0)
	require.Same(t, proto, tab.Lookup("foo"))
	require.Len(t, tab.Unresolved(), 1)
}

func TestInBlockOldestToNewest(t *testing.T) {
	var tab ident.Table
	tabT := types.NewTable()
	intT := tabT.Builtin(types.Int)

	a := ident.AllocVar(&tab, "a", intT, 2, 0, false)
	b := ident.AllocVar(&tab, "b", intT, 2, 8, false)

	got := tab.InBlock(2)
	require.Equal(t, []*ident.Ident{a, b}, got)
}
