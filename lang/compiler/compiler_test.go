package compiler_test

import (
	"strings"
	"testing"

	"github.com/mna/corvid/lang/compiler"
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/extern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string, reg compiler.Externs) (*emit.Program, error) {
	t.Helper()
	if reg == nil {
		reg = extern.NewRegistry()
	}
	c := compiler.NewCompiler("test.cv", []byte(src), reg)
	return c.CompileModule()
}

func mustCompile(t *testing.T, src string, reg compiler.Externs) *emit.Program {
	t.Helper()
	prog, err := compile(t, src, reg)
	require.NoError(t, err)
	return prog
}

func dasm(t *testing.T, prog *emit.Program) string {
	t.Helper()
	b, err := emit.Dasm(prog)
	require.NoError(t, err)
	return string(b)
}

func fnNamed(t *testing.T, prog *emit.Program, name string) *emit.Funcode {
	t.Helper()
	for _, fn := range prog.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no function named %q", name)
	return nil
}

func TestSimpleAssignmentFoldsConstant(t *testing.T) {
	prog := mustCompile(t, `fn main() { var x: int; x = 41 + 1 }`, nil)

	// the addition folded: the only constant is the result, stored through a
	// single refcount-aware assign with no standalone refcount adjustment
	require.Equal(t, []any{int64(42)}, prog.Constants)

	main := fnNamed(t, prog, "main")
	require.True(t, main.Entry)
	require.Equal(t, 8, main.FrameSize)

	out := dasm(t, prog)
	assert.Contains(t, out, "changerefcntassign 0")
	assert.NotContains(t, out, "increfcnt")
	assert.NotContains(t, out, "decrefcnt")
}

func TestShortVarDeclStringIsRefcounted(t *testing.T) {
	prog := mustCompile(t, `fn main() { s := "hello" }`, nil)
	require.Equal(t, []any{"hello"}, prog.Constants)

	// one increment at the declaration, one release at block exit
	out := dasm(t, prog)
	assert.Equal(t, 1, strings.Count(out, "increfcnt"), "%s", out)
	assert.Equal(t, 1, strings.Count(out, "decrefcnt"), "%s", out)
}

func TestForInOverArrayLiteral(t *testing.T) {
	prog := mustCompile(t, `
fn main() {
	a := []int{1, 2, 3};
	for i, v in a {
		if v == 2 { break }
	}
}`, nil)

	require.Len(t, prog.Constants, 3) // the literal, the index zero, and the 2 that v is compared against
	ac, ok := prog.Constants[0].(emit.DynArrayConst)
	require.True(t, ok, "first constant should be the array literal, got %T", prog.Constants[0])
	require.Equal(t, 8, ac.ElemSize)
	require.Equal(t, []any{int64(1), int64(2), int64(3)}, ac.Elems)

	out := dasm(t, prog)
	assert.Contains(t, out, "indexaddr 8")
	assert.Contains(t, out, "len")
	// the collection is released exactly once, at main's block exit
	assert.Equal(t, 1, strings.Count(out, "decrefcnt"), "%s", out)
}

func TestForInRequiresIterable(t *testing.T) {
	_, err := compile(t, `fn main() { for i, v in 42 { } }`, nil)
	require.ErrorContains(t, err, "not iterable")
}

func TestSwitchRequiresOrdinal(t *testing.T) {
	_, err := compile(t, `fn main() { x := 1.5; switch x { case 1.0: } }`, nil)
	require.ErrorContains(t, err, "ordinal")
}

func TestSwitchCaseRequiresConstant(t *testing.T) {
	_, err := compile(t, `fn main() { x := 1; y := 2; switch x { case y: } }`, nil)
	require.ErrorContains(t, err, "compile-time constant")
}

func TestStructuredReturn(t *testing.T) {
	prog := mustCompile(t, `
type P = struct{ x: int, y: int };

fn mk(): P {
	var p: P;
	p.x = 1;
	p.y = 2;
	return p
}

fn main() { }`, nil)

	mk := fnNamed(t, prog, "mk")
	// the hidden result-pointer slot is the only parameter
	require.Equal(t, []int{0}, mk.ParamOffsets)
	require.Equal(t, []string{"__result"}, mk.Locals)
	require.Equal(t, 1, mk.NumParams)
	require.Equal(t, 8+16, mk.FrameSize) // result pointer + p

	out := dasm(t, prog)
	assert.Contains(t, out, "assign 16") // the copy into the caller-owned slot
}

func TestNonVoidRequiresReturn(t *testing.T) {
	_, err := compile(t, `
fn mk(): int { var p: int }

fn main() { }`, nil)
	require.ErrorContains(t, err, "must return")
}

func TestUnresolvedPrototype(t *testing.T) {
	src := `
fn foo(): int;

fn main() { }`

	_, err := compile(t, src, nil)
	require.ErrorContains(t, err, "foo")

	reg := extern.NewRegistry()
	reg.Register("foo", func(args []any) (any, error) { return int64(7), nil })
	prog := mustCompile(t, src, reg)
	require.Equal(t, []string{"foo"}, prog.Externs)
	assert.Contains(t, dasm(t, prog), "callextern 0")
}

func TestForwardDeclarationResolvedByBody(t *testing.T) {
	prog := mustCompile(t, `
fn inc(x: int): int;

fn main() { inc(1) }

fn inc(x: int): int { return x + 1 }`, nil)

	// the prototype was satisfied by the later body, so nothing resolves
	// against the external registry
	require.Empty(t, prog.Externs)
	inc := fnNamed(t, prog, "inc")
	require.NotEmpty(t, inc.Code)

	_, err := compile(t, `
fn inc(x: int): int;

fn main() { }

fn inc(x: real): real { return x }`, nil)
	require.ErrorContains(t, err, "forward declaration")
}

func TestMainContract(t *testing.T) {
	for _, src := range []string{
		`fn main(x: int) { }`,
		`fn main(): int { return 1 }`,
	} {
		_, err := compile(t, src, nil)
		require.ErrorContains(t, err, "main", "source: %s", src)
	}

	_, err := compile(t, `fn foo() { }`, nil)
	require.ErrorContains(t, err, "no main function")
}

func TestBreakContinueOutsideLoop(t *testing.T) {
	_, err := compile(t, `fn main() { break }`, nil)
	require.ErrorContains(t, err, "break outside a loop")

	_, err = compile(t, `fn main() { continue }`, nil)
	require.ErrorContains(t, err, "continue outside a loop")
}

func TestUndeclaredIdentifier(t *testing.T) {
	_, err := compile(t, `fn main() { y = 1 }`, nil)
	require.ErrorContains(t, err, "undeclared identifier")
}

func TestBlockScopingShadowsAndExpires(t *testing.T) {
	// the inner x expires with its block, so the trailing assignment sees
	// nothing to assign to
	_, err := compile(t, `fn main() { { x := 1 }; x = 2 }`, nil)
	require.ErrorContains(t, err, "undeclared identifier")

	// shadowing an outer name in an inner block is fine
	mustCompile(t, `fn main() { x := 1; { x := 2; x = 3 }; x = 4 }`, nil)
}

func TestAssignIncompatibleTypes(t *testing.T) {
	_, err := compile(t, `fn main() { var x: int; x = "s" }`, nil)
	require.ErrorContains(t, err, "incompatible types")
}

func TestAssignToNonVariable(t *testing.T) {
	_, err := compile(t, `const k = 1; fn main() { k = 2 }`, nil)
	require.ErrorContains(t, err, "cannot be assigned to")
}

func TestIncDecRequiresInteger(t *testing.T) {
	_, err := compile(t, `fn main() { x := 1.5; x++ }`, nil)
	require.ErrorContains(t, err, "integer operand")

	mustCompile(t, `fn main() { x := 1; x++; x-- }`, nil)
}

func TestOperatorValidity(t *testing.T) {
	cases := []struct {
		src     string
		wantErr string
	}{
		{`fn main() { x := 1.5 % 2.0 }`, "not valid"},         // modulo on reals
		{`fn main() { x := true + false }`, "not valid"},      // additive on bools
		{`fn main() { x := "a" && "b" }`, "not valid"},        // logical on strings
		{`fn main() { s := "a" + "b" }`, ""},                  // + is valid on str
		{`fn main() { b := "a" < "b" }`, ""},                  // ordering on str
		{`fn main() { x := 1 << 2 }`, ""},                     // shifts on ints
		{`fn main() { x := 1.5 << 2.5 }`, "not valid"},        // shifts on reals
		{`fn main() { b := true && false || true }`, ""},      // logical on bools
	}
	for _, tc := range cases {
		_, err := compile(t, tc.src, nil)
		if tc.wantErr == "" {
			require.NoError(t, err, "source: %s", tc.src)
		} else {
			require.ErrorContains(t, err, tc.wantErr, "source: %s", tc.src)
		}
	}
}

func TestCompoundAssignment(t *testing.T) {
	prog := mustCompile(t, `fn main() { x := 1; x += 2; x *= 3; x <<= 1 }`, nil)
	out := dasm(t, prog)
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "mul")
	assert.Contains(t, out, "shl")
	// compound assignment duplicates the target address to load the old value
	assert.Contains(t, out, "dup")
}

func TestCallStatementDiscardsResult(t *testing.T) {
	prog := mustCompile(t, `
fn f(): int { return 3 }

fn main() { f() }`, nil)
	out := dasm(t, prog)
	assert.Contains(t, out, "pop")
}

func TestGlobalConstantInitializerSkipsRefcount(t *testing.T) {
	prog := mustCompile(t, `
var g: int = 42;

fn main() { g = g + 1 }`, nil)

	// the global initializer in the top-level function is a plain store
	top := prog.Functions[0]
	out := dasm(t, prog)
	require.Contains(t, out, "pushglobal")
	require.NotZero(t, top.FrameSize)
	assert.NotContains(t, out, "increfcnt")
}

func TestDuplicateField(t *testing.T) {
	_, err := compile(t, `type P = struct{ x: int, x: int }; fn main() { }`, nil)
	require.ErrorContains(t, err, "duplicate field")
}

func TestUnknownField(t *testing.T) {
	_, err := compile(t, `type P = struct{ x: int }; fn main() { var p: P; p.y = 1 }`, nil)
	require.ErrorContains(t, err, "unknown field")
}

func TestPointerTypesAndNull(t *testing.T) {
	mustCompile(t, `
type P = struct{ x: int };

fn main() {
	var p: ^P;
	if p == null { p = null }
}`, nil)

	// a weak pointer is not refcounted, so no release is emitted for it
	prog := mustCompile(t, `
type P = struct{ x: int };

fn main() { var w: weak ^P }`, nil)
	assert.NotContains(t, dasm(t, prog), "decrefcnt")
}
