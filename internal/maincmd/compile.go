package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/corvid/lang/compiler"
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/extern"
	"github.com/mna/corvid/lang/machine"
	"github.com/mna/corvid/lang/scanner"
	"github.com/mna/mainer"
)

func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return CompileFiles(ctx, stdio, args...)
}

// CompileFiles compiles each file in turn, resolving prototypes against the
// standard extern registry, and prints the resulting program in its textual
// assembler form.
func CompileFiles(ctx context.Context, stdio mainer.Stdio, files ...string) error {
	for _, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		prog, _, err := compileFile(stdio, file)
		if err != nil {
			return err
		}
		b, err := emit.Dasm(prog)
		if err != nil {
			return printError(stdio, err)
		}
		if _, err := stdio.Stdout.Write(b); err != nil {
			return printError(stdio, err)
		}
	}
	return nil
}

func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return RunFile(ctx, stdio, args[0])
}

// RunFile compiles file and executes the resulting program on the virtual
// machine, with the standard externs writing to stdio.
func RunFile(ctx context.Context, stdio mainer.Stdio, file string) error {
	prog, reg, err := compileFile(stdio, file)
	if err != nil {
		return err
	}

	th := &machine.Thread{
		Name:    file,
		Stdout:  stdio.Stdout,
		Stderr:  stdio.Stderr,
		Externs: reg,
	}
	if err := th.RunProgram(ctx, prog); err != nil {
		return printError(stdio, err)
	}
	return nil
}

func compileFile(stdio mainer.Stdio, file string) (*emit.Program, *extern.Registry, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, printError(stdio, err)
	}
	reg := stdRegistry(stdio)
	comp := compiler.NewCompiler(file, src, reg)
	prog, err := comp.CompileModule()
	if err != nil {
		scanner.PrintError(stdio.Stderr, err)
		return nil, nil, err
	}
	return prog, reg, nil
}

// stdRegistry registers the host functions a program may declare as
// prototypes: print and println write their arguments to standard output,
// space-separated, println with a trailing newline.
func stdRegistry(stdio mainer.Stdio) *extern.Registry {
	reg := extern.NewRegistry()
	reg.Register("print", func(args []any) (any, error) {
		return nil, writeArgs(stdio, args, "")
	})
	reg.Register("println", func(args []any) (any, error) {
		return nil, writeArgs(stdio, args, "\n")
	})
	return reg
}

func writeArgs(stdio mainer.Stdio, args []any, suffix string) error {
	for i, a := range args {
		if i > 0 {
			if _, err := fmt.Fprint(stdio.Stdout, " "); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(stdio.Stdout, "%v", a); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(stdio.Stdout, suffix)
	return err
}
