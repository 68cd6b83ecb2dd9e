package machine_test

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/corvid/internal/filetest"
	"github.com/mna/corvid/lang/compiler"
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/extern"
	"github.com/mna/corvid/lang/machine"
	"github.com/stretchr/testify/require"
)

var testUpdateMachineTests = flag.Bool("test.update-machine-tests", false, "If set, updates the expected machine test results.")

// compileAndRun compiles src with a registry providing println (writing each
// call's arguments, space-separated, as one line to out) and executes the
// resulting program.
func compileAndRun(t *testing.T, name string, src []byte, out *bytes.Buffer) error {
	t.Helper()

	reg := extern.NewRegistry()
	reg.Register("println", func(args []any) (any, error) {
		for i, a := range args {
			if i > 0 {
				out.WriteString(" ")
			}
			fmt.Fprintf(out, "%v", a)
		}
		out.WriteString("\n")
		return nil, nil
	})

	comp := compiler.NewCompiler(name, src, reg)
	prog, err := comp.CompileModule()
	require.NoError(t, err)

	th := &machine.Thread{
		Name:     name,
		Stdout:   out,
		Stderr:   out,
		MaxSteps: 1_000_000,
		Externs:  reg,
	}
	return th.RunProgram(context.Background(), prog)
}

// TestRunSource compiles and runs each testdata/*.cv source and compares the
// println output against the corresponding golden file.
func TestRunSource(t *testing.T) {
	dir := "testdata"
	fis := filetest.SourceFiles(t, dir, ".cv")
	require.NotEmpty(t, fis)

	for _, fi := range fis {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(dir, fi.Name()))
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, compileAndRun(t, fi.Name(), src, &buf))
			filetest.DiffOutput(t, fi, buf.String(), dir, testUpdateMachineTests)
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	var buf bytes.Buffer
	err := compileAndRun(t, "divzero.cv", []byte(`
fn main() {
	x := 0;
	y := 10 / x;
	y++
}`), &buf)
	require.ErrorContains(t, err, "division by zero")
}

func TestStepLimit(t *testing.T) {
	reg := extern.NewRegistry()
	comp := compiler.NewCompiler("spin.cv", []byte(`fn main() { for true { } }`), reg)
	prog, err := comp.CompileModule()
	require.NoError(t, err)

	th := &machine.Thread{Name: "spin.cv", MaxSteps: 1000, Externs: reg}
	err = th.RunProgram(context.Background(), prog)
	require.ErrorContains(t, err, "cancelled")
}

func TestContextCancellation(t *testing.T) {
	reg := extern.NewRegistry()
	comp := compiler.NewCompiler("spin.cv", []byte(`fn main() { for true { } }`), reg)
	prog, err := comp.CompileModule()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	th := &machine.Thread{Name: "spin.cv", Externs: reg}
	err = th.RunProgram(ctx, prog)
	require.ErrorContains(t, err, "cancelled")
}

func TestIndexOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	err := compileAndRun(t, "oob.cv", []byte(`
fn main() {
	a := []int{1, 2, 3};
	x := a[5];
	x++
}`), &buf)
	require.ErrorContains(t, err, "out of range")
}

func TestRunAsmProgram(t *testing.T) {
	// a hand-assembled program exercising the machine without the compiler:
	// store 41+1 into the single global, then read it back through an extern
	src := []byte(`program:
	constants:
		int 41
		int 1

function: $module 3 0 8 +entry
	code:
		enterframe 8
		pushglobal 0
		pushconst 0
		pushconst 1
		add
		assign 0
		pushglobal 0
		deref
		call 1
		halt

function: check 1 1 8
	params:
		0
	locals:
		x
	code:
		enterframe 8
		callextern 0
		return 8
`)
	prog, err := emit.Asm(src)
	require.NoError(t, err)

	var got []any
	reg := extern.NewRegistry()
	reg.Register("check", func(args []any) (any, error) {
		got = append(got, args...)
		return nil, nil
	})

	th := &machine.Thread{Name: "asm", Externs: reg}
	require.NoError(t, th.RunProgram(context.Background(), prog))
	require.Equal(t, []any{int64(42)}, got)
}
