package emit_test

import (
	"testing"

	"github.com/mna/corvid/lang/emit"
	"github.com/stretchr/testify/require"
)

func TestEmitAndPatch(t *testing.T) {
	fn := &emit.Funcode{Name: "main"}
	e := emit.NewEmitter(fn)

	e.Emit(emit.NOP, 0)
	e.EmitArg(emit.PUSHCONST, 0, +1)
	stub := e.Stub(emit.CJMP)
	e.Emit(emit.POP, -1)
	e.PatchHere(stub)
	e.Emit(emit.HALT, 0)

	require.Equal(t, 1, fn.MaxStack)

	op, arg, size := emit.Decode(fn.Code, 0)
	require.Equal(t, emit.NOP, op)
	require.Equal(t, 1, size)

	op, arg, size = emit.Decode(fn.Code, 1)
	require.Equal(t, emit.PUSHCONST, op)
	require.Equal(t, uint32(0), arg)
}

func TestAsmDasmRoundTrip(t *testing.T) {
	src := []byte(`program:
	constants:
		int 42

function: main 1 0 8 +entry
	locals:
		x
	code:
		pushlocal 0
		pushconst 0
		assign 0
		halt
`)
	prog, err := emit.Asm(src)
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)
	require.Equal(t, "main", prog.Functions[0].Name)
	require.True(t, prog.Functions[0].Entry)
	require.Equal(t, int64(42), prog.Constants[0])

	out, err := emit.Dasm(prog)
	require.NoError(t, err)

	prog2, err := emit.Asm(out)
	require.NoError(t, err)
	require.Equal(t, prog.Functions[0].Code, prog2.Functions[0].Code)
}

func TestConstantRoundTrip(t *testing.T) {
	prog := &emit.Program{}
	prog.AddConstant("hello, world")
	prog.AddConstant(int64(-3))
	prog.AddConstant(float64(2))
	prog.AddConstant(emit.DynArrayConst{ElemSize: 8, Elems: []any{int64(1), int64(2), int64(3)}})
	fn := prog.NewFunction("main")
	fn.Entry = true
	fn.ParamOffsets = []int{0, 8}
	e := emit.NewEmitter(fn)
	e.EmitArg(emit.PUSHCONST, 0, +1)
	e.Emit(emit.HALT, 0)

	out, err := emit.Dasm(prog)
	require.NoError(t, err)

	prog2, err := emit.Asm(out)
	require.NoError(t, err)
	require.Equal(t, prog.Constants, prog2.Constants)
	require.Equal(t, []int{0, 8}, prog2.Functions[0].ParamOffsets)
	require.Equal(t, fn.Code, prog2.Functions[0].Code)
}

func TestJumpTargetTranslation(t *testing.T) {
	src := []byte(`program:
function: f 0 0 0
	code:
		jmp 2
		nop
		halt
`)
	prog, err := emit.Asm(src)
	require.NoError(t, err)
	fn := prog.Functions[0]

	op, arg, _ := emit.Decode(fn.Code, 0)
	require.Equal(t, emit.JMP, op)
	// jmp (5 bytes) + nop (1 byte) = address 6, where halt (index 2) sits
	require.Equal(t, uint32(6), arg)
}
