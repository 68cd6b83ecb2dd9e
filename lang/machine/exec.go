package machine

import (
	"context"
	"fmt"
	"strings"

	"github.com/mna/corvid/lang/emit"
)

// run executes fcode against frame (its zeroed local arena, arguments
// already copied in by the caller) and returns the value left on the operand
// stack at RETURN, if any. Code reaching this loop comes from the compiler
// or the assembler, so a malformed instruction stream is a bug in those, not
// a user error; the deferred recover turns the resulting panic into an error
// instead of tearing down the host process.
func (th *Thread) run(fcode *emit.Funcode, frame []any) (result any, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: invalid program: %v", fcode.Name, r)
		}
	}()

	var stack []any
	pop := func() any {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v any) { stack = append(stack, v) }

	pc := 0
	code := fcode.Code
	for pc < len(code) {
		th.steps++
		if th.steps >= th.maxSteps {
			th.ctxCancel()
			return nil, false, fmt.Errorf("thread cancelled: step limit reached")
		}
		if th.cancelled.Load() {
			return nil, false, fmt.Errorf("thread cancelled: %s", context.Cause(th.ctx))
		}

		op, arg, size := emit.Decode(code, pc)
		at := pc
		pc += size

		switch op {
		case emit.NOP, emit.ENTERFRAME:
			// frame is pre-allocated from Funcode.FrameSize, which holds the
			// same value ENTERFRAME's operand was patched with

		case emit.POP:
			pop()

		case emit.DUP:
			push(stack[len(stack)-1])

		case emit.SWAP:
			n := len(stack)
			stack[n-2], stack[n-1] = stack[n-1], stack[n-2]

		case emit.ADD, emit.SUB, emit.MUL, emit.DIV, emit.MOD,
			emit.BAND, emit.BOR, emit.BXOR, emit.SHL, emit.SHR,
			emit.LAND, emit.LOR:
			y := resolve(pop())
			x := resolve(pop())
			z, berr := binary(op, x, y)
			if berr != nil {
				return nil, false, th.errf(fcode, at, "%s", berr)
			}
			push(z)

		case emit.EQL, emit.NEQ, emit.LT, emit.LE, emit.GT, emit.GE:
			y := resolve(pop())
			x := resolve(pop())
			z, cerr := compare(op, x, y)
			if cerr != nil {
				return nil, false, th.errf(fcode, at, "%s", cerr)
			}
			push(z)

		case emit.LNOT:
			i, _ := asInt(pop())
			push(boolInt(i == 0))

		case emit.BNOT:
			i, _ := asInt(pop())
			push(^i)

		case emit.INC, emit.DEC:
			r := stack[len(stack)-1].(ref)
			i, _ := asInt(r.cells[r.off])
			if op == emit.INC {
				i++
			} else {
				i--
			}
			r.cells[r.off] = i

		case emit.DEREF:
			r := pop().(ref)
			push(r.cells[r.off])

		case emit.INCREFCNT:
			incref(stack[len(stack)-1])

		case emit.DECREFCNT:
			decref(stack[len(stack)-1])

		case emit.LEN:
			switch h := resolve(pop()).(type) {
			case *Str:
				push(int64(len(h.S)))
			case *DynArray:
				push(int64(h.Len()))
			default:
				return nil, false, th.errf(fcode, at, "len of non-collection %T", h)
			}

		case emit.HALT:
			return nil, false, nil

		case emit.PUSHCONST:
			push(th.consts[arg])

		case emit.PUSHLOCAL:
			push(ref{cells: frame, off: int(arg)})

		case emit.PUSHGLOBAL:
			push(ref{cells: th.globals, off: int(arg)})

		case emit.ASSIGN:
			v := pop()
			dst := pop().(ref)
			store(dst, v, int(arg))

		case emit.CHANGEREFCNTASSIGN:
			v := pop()
			dst := pop().(ref)
			incref(v)
			decref(dst.cells[dst.off])
			store(dst, v, int(arg))

		case emit.SWAPCHANGEREFCNTASSIGN:
			dst := pop().(ref)
			v := pop()
			decref(dst.cells[dst.off])
			store(dst, v, int(arg))

		case emit.JMP:
			pc = int(arg)

		case emit.CJMP:
			if !truthy(pop()) {
				pc = int(arg)
			}

		case emit.CALL:
			callee := th.prog.Functions[arg]
			nf := make([]any, callee.FrameSize)
			for i := len(callee.ParamOffsets) - 1; i >= 0; i-- {
				nf[callee.ParamOffsets[i]] = resolve(pop())
			}
			res, has, cerr := th.run(callee, nf)
			if cerr != nil {
				return nil, false, cerr
			}
			if has {
				push(res)
			}

		case emit.CALLEXTERN:
			if th.Externs == nil {
				return nil, false, th.errf(fcode, at, "no extern registry")
			}
			name, fn, eerr := th.Externs.At(int(arg))
			if eerr != nil {
				return nil, false, th.errf(fcode, at, "%s", eerr)
			}
			args := make([]any, len(fcode.ParamOffsets))
			for i, off := range fcode.ParamOffsets {
				args[i] = resolve(frame[off])
			}
			res, eerr := fn(args)
			if eerr != nil {
				return nil, false, fmt.Errorf("extern %s: %w", name, eerr)
			}
			if res != nil {
				push(res)
			}

		case emit.RETURN:
			if len(stack) > 0 {
				return stack[len(stack)-1], true, nil
			}
			return nil, false, nil

		case emit.FIELDADDR:
			r := pop().(ref)
			push(ref{cells: r.cells, off: r.off + int(arg)})

		case emit.INDEXADDR:
			idx, _ := asInt(pop())
			base := resolve(pop())
			switch b := base.(type) {
			case *DynArray:
				off := int(idx) * int(arg)
				if idx < 0 || off >= len(b.Cells) {
					return nil, false, th.errf(fcode, at, "index %d out of range [0, %d)", idx, b.Len())
				}
				push(ref{cells: b.Cells, off: off})
			case *Str:
				if idx < 0 || int(idx) >= len(b.S) {
					return nil, false, th.errf(fcode, at, "index %d out of range [0, %d)", idx, len(b.S))
				}
				push(ref{cells: b.chars(), off: int(idx) * int(arg)})
			case ref:
				push(ref{cells: b.cells, off: b.off + int(idx)*int(arg)})
			default:
				return nil, false, th.errf(fcode, at, "%T is not indexable", base)
			}

		case emit.NEWARRAY:
			push(&DynArray{Stride: int(arg)})

		default:
			return nil, false, th.errf(fcode, at, "illegal opcode %s", op)
		}
	}
	return nil, false, nil
}

func (th *Thread) errf(fcode *emit.Funcode, pc int, format string, args ...any) error {
	return fmt.Errorf("%s: +%d: %s", fcode.Name, pc, fmt.Sprintf(format, args...))
}

// store writes v through dst: a cell-range copy for an inline-structured
// value (size > 0 and the source is an address), a single-cell store
// otherwise.
func store(dst ref, v any, size int) {
	v = resolve(v)
	if src, ok := v.(ref); ok && size > 0 {
		copy(dst.cells[dst.off:dst.off+size], src.cells[src.off:src.off+size])
		return
	}
	dst.cells[dst.off] = v
}

func boolInt(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

func binary(op emit.Opcode, x, y any) (any, error) {
	if xs, ok := x.(*Str); ok {
		ys, ok := y.(*Str)
		if !ok || op != emit.ADD {
			return nil, fmt.Errorf("operator %s not applicable to %T and %T", op, x, y)
		}
		return &Str{S: xs.S + ys.S}, nil
	}

	if _, ok := x.(float64); ok {
		return binaryFloat(op, x, y)
	}
	if _, ok := y.(float64); ok {
		return binaryFloat(op, x, y)
	}

	xi, xok := asInt(x)
	yi, yok := asInt(y)
	if !xok || !yok {
		return nil, fmt.Errorf("operator %s not applicable to %T and %T", op, x, y)
	}
	switch op {
	case emit.ADD:
		return xi + yi, nil
	case emit.SUB:
		return xi - yi, nil
	case emit.MUL:
		return xi * yi, nil
	case emit.DIV:
		if yi == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return xi / yi, nil
	case emit.MOD:
		if yi == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return xi % yi, nil
	case emit.BAND:
		return xi & yi, nil
	case emit.BOR:
		return xi | yi, nil
	case emit.BXOR:
		return xi ^ yi, nil
	case emit.SHL:
		return xi << uint(yi), nil
	case emit.SHR:
		return xi >> uint(yi), nil
	case emit.LAND:
		return boolInt(xi != 0 && yi != 0), nil
	case emit.LOR:
		return boolInt(xi != 0 || yi != 0), nil
	}
	return nil, fmt.Errorf("illegal binary opcode %s", op)
}

func binaryFloat(op emit.Opcode, x, y any) (any, error) {
	xf, xok := asFloat(x)
	yf, yok := asFloat(y)
	if !xok || !yok {
		return nil, fmt.Errorf("operator %s not applicable to %T and %T", op, x, y)
	}
	switch op {
	case emit.ADD:
		return xf + yf, nil
	case emit.SUB:
		return xf - yf, nil
	case emit.MUL:
		return xf * yf, nil
	case emit.DIV:
		return xf / yf, nil
	}
	return nil, fmt.Errorf("operator %s not applicable to real operands", op)
}

func compare(op emit.Opcode, x, y any) (any, error) {
	if xs, ok := x.(*Str); ok {
		ys, ok := y.(*Str)
		if !ok {
			return nil, fmt.Errorf("cannot compare %T and %T", x, y)
		}
		return cmpResult(op, strings.Compare(xs.S, ys.S))
	}
	if xa, ok := x.(*DynArray); ok {
		ya, ok := y.(*DynArray)
		if !ok || (op != emit.EQL && op != emit.NEQ) {
			return nil, fmt.Errorf("cannot compare %T and %T", x, y)
		}
		return boolInt((xa == ya) == (op == emit.EQL)), nil
	}

	// pointer comparisons: two addresses are equal when they designate the
	// same cell; an address is never equal to null (a zeroed cell or the
	// folded null constant).
	_, xr := x.(ref)
	_, yr := y.(ref)
	if xr || yr {
		if op != emit.EQL && op != emit.NEQ {
			return nil, fmt.Errorf("cannot order pointers")
		}
		return boolInt(refsEqual(x, y) == (op == emit.EQL)), nil
	}
	if isNullish(x) && isNullish(y) {
		return cmpResult(op, 0)
	}

	if _, ok := x.(float64); ok {
		return compareFloat(op, x, y)
	}
	if _, ok := y.(float64); ok {
		return compareFloat(op, x, y)
	}

	xi, xok := asInt(x)
	yi, yok := asInt(y)
	if !xok || !yok {
		return nil, fmt.Errorf("cannot compare %T and %T", x, y)
	}
	switch {
	case xi < yi:
		return cmpResult(op, -1)
	case xi > yi:
		return cmpResult(op, +1)
	}
	return cmpResult(op, 0)
}

func compareFloat(op emit.Opcode, x, y any) (any, error) {
	xf, xok := asFloat(x)
	yf, yok := asFloat(y)
	if !xok || !yok {
		return nil, fmt.Errorf("cannot compare %T and %T", x, y)
	}
	switch {
	case xf < yf:
		return cmpResult(op, -1)
	case xf > yf:
		return cmpResult(op, +1)
	}
	return cmpResult(op, 0)
}

func refsEqual(x, y any) bool {
	xr, xok := x.(ref)
	yr, yok := y.(ref)
	if xok && yok {
		return &xr.cells[xr.off] == &yr.cells[yr.off]
	}
	return false
}

func cmpResult(op emit.Opcode, c int) (any, error) {
	switch op {
	case emit.EQL:
		return boolInt(c == 0), nil
	case emit.NEQ:
		return boolInt(c != 0), nil
	case emit.LT:
		return boolInt(c < 0), nil
	case emit.LE:
		return boolInt(c <= 0), nil
	case emit.GT:
		return boolInt(c > 0), nil
	case emit.GE:
		return boolInt(c >= 0), nil
	}
	return nil, fmt.Errorf("illegal comparison opcode %s", op)
}
