package extern_test

import (
	"testing"

	"github.com/mna/corvid/lang/extern"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := extern.NewRegistry()
	require.Equal(t, 0, reg.Len())

	one := func(args []any) (any, error) { return int64(1), nil }
	two := func(args []any) (any, error) { return int64(2), nil }

	require.Equal(t, 0, reg.Register("print", one))
	require.Equal(t, 1, reg.Register("len", two))
	require.Equal(t, 2, reg.Len())

	ext, ok := reg.Find("len")
	require.True(t, ok)
	require.Equal(t, "len", ext.Name)
	require.Equal(t, 1, ext.Index)

	_, ok = reg.Find("nope")
	require.False(t, ok)

	// re-registering keeps the index so compiled programs stay valid
	require.Equal(t, 0, reg.Register("print", two))
	require.Equal(t, 2, reg.Len())

	name, fn, err := reg.At(0)
	require.NoError(t, err)
	require.Equal(t, "print", name)
	v, err := fn(nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	_, _, err = reg.At(5)
	require.Error(t, err)
}
