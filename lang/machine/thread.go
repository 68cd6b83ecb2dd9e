// Package machine implements the stack-based virtual machine that executes
// the bytecode-compiled form of the source code: a byte-addressed frame and
// global arena per the compiler's slot layout, an operand stack, and the
// manual reference counting the compiler weaves through every assignment and
// scope exit.
package machine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/extern"
)

type Thread struct {
	// Name is an optional name that describes the thread, mostly for
	// debugging.
	Name string

	// Stdout and Stderr are the standard output abstractions for the thread.
	// If nil, os.Stdout and os.Stderr are used, respectively.
	Stdout io.Writer
	Stderr io.Writer

	// MaxSteps is the maximum number of "steps", a deliberately unspecified
	// measure of machine execution time, before the thread is cancelled. A
	// value <= 0 means no limit.
	MaxSteps int

	// Externs dispatches CALLEXTERN instructions. It must be the same
	// registry the program was compiled against, since the compiler bakes
	// registry indices into the emitted code.
	Externs *extern.Registry

	ctx       context.Context
	ctxCancel func()
	cancelled atomic.Bool

	steps, maxSteps uint64

	prog    *emit.Program
	consts  []any
	globals []any

	stdout io.Writer
	stderr io.Writer
}

// RunProgram executes p to completion: the implicit top-level function runs
// first, initializing globals and calling the entry point.
func (th *Thread) RunProgram(ctx context.Context, p *emit.Program) error {
	if th.prog != nil {
		return fmt.Errorf("thread %s is already executing a program", th.Name)
	}
	if len(p.Functions) == 0 {
		return fmt.Errorf("program has no functions")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	th.ctx = ctx
	th.ctxCancel = cancel
	th.init()

	consts, err := materializeConstants(p)
	if err != nil {
		return err
	}
	th.prog = p
	th.consts = consts

	top := p.Functions[0]
	th.globals = make([]any, top.FrameSize)
	_, _, err = th.run(top, th.globals)
	return err
}

func (th *Thread) init() {
	if th.MaxSteps <= 0 {
		th.maxSteps-- // (MaxUint64)
	} else {
		th.maxSteps = uint64(th.MaxSteps)
	}
	if th.Stdout != nil {
		th.stdout = th.Stdout
	} else {
		th.stdout = os.Stdout
	}
	if th.Stderr != nil {
		th.stderr = th.Stderr
	} else {
		th.stderr = os.Stderr
	}
	go func() {
		<-th.ctx.Done()
		th.cancelled.Store(true)
	}()
}

// materializeConstants creates the runtime value denoted by each program
// constant, once, so every PUSHCONST of the same index shares one handle.
func materializeConstants(p *emit.Program) ([]any, error) {
	consts := make([]any, len(p.Constants))
	for i, c := range p.Constants {
		switch c := c.(type) {
		case int64, float64:
			consts[i] = c
		case string:
			consts[i] = &Str{S: c, refs: 1}
		case emit.DynArrayConst:
			cells := make([]any, len(c.Elems)*c.ElemSize)
			for j, e := range c.Elems {
				cells[j*c.ElemSize] = e
			}
			consts[i] = &DynArray{Stride: c.ElemSize, Cells: cells, refs: 1}
		default:
			return nil, fmt.Errorf("unexpected constant %T: %[1]v", c)
		}
	}
	return consts, nil
}
