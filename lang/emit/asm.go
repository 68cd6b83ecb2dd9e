package emit

// This file implements a human-readable/writable form of a compiled
// program, used to test the statement compiler and the VM independently of
// each other. The format:
//
//	program:
//		constants:
//			string "abc"
//			int    1234
//			float  1.34
//
//	function: NAME <maxstack> <numparams> <framesize> [+entry]
//		locals:
//			x
//		code:
//			nop
//			jmp 3        # operand is an index into this function's code section
//			call 2

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var sections = map[string]bool{
	"program:":   true,
	"constants:": true,
	"function:":  true,
	"params:":    true,
	"locals:":    true,
	"code:":      true,
}

// Asm parses a compiled program from its textual assembler form.
func Asm(b []byte) (*Program, error) {
	a := asm{s: bufio.NewScanner(bytes.NewReader(b))}
	fields := a.next()
	a.program(fields)

	fields = a.next()
	fields = a.constants(fields)
	for a.err == nil && len(fields) > 0 && strings.EqualFold(fields[0], "function:") {
		fields = a.function(fields)
	}

	if a.err == nil && len(fields) > 0 {
		a.err = fmt.Errorf("unexpected section: %s", fields[0])
	}
	return a.p, a.err
}

type insn struct {
	op  Opcode
	arg uint32
}

type asm struct {
	s       *bufio.Scanner
	rawLine string
	p       *Program
	fn      *Funcode
	err     error
}

func (a *asm) program(fields []string) {
	if len(fields) == 0 || !strings.EqualFold(fields[0], "program:") {
		a.err = errors.New("expected program section")
		return
	}
	a.p = &Program{}
}

func (a *asm) constants(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "constants:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		switch fields[0] {
		case "int":
			v, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				a.err = fmt.Errorf("invalid int constant: %w", err)
				return fields
			}
			a.p.Constants = append(a.p.Constants, v)
		case "float":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				a.err = fmt.Errorf("invalid float constant: %w", err)
				return fields
			}
			a.p.Constants = append(a.p.Constants, v)
		case "string":
			// the quoted value may contain spaces, so re-extract it from the
			// raw line instead of the whitespace-split fields
			raw := strings.TrimSpace(a.rawLine)
			raw = strings.TrimSpace(strings.TrimPrefix(raw, "string"))
			if i := strings.Index(raw, "\t#"); i >= 0 {
				raw = strings.TrimSpace(raw[:i])
			}
			s, err := strconv.Unquote(raw)
			if err != nil {
				a.err = fmt.Errorf("invalid string constant: %w", err)
				return fields
			}
			a.p.Constants = append(a.p.Constants, s)
		case "array":
			if len(fields) < 2 {
				a.err = errors.New("array constant requires an element size")
				return fields
			}
			ac := DynArrayConst{ElemSize: int(a.int(fields[1]))}
			for _, f := range fields[2:] {
				if v, err := strconv.ParseInt(f, 10, 64); err == nil {
					ac.Elems = append(ac.Elems, v)
					continue
				}
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					a.err = fmt.Errorf("invalid array element: %w", err)
					return fields
				}
				ac.Elems = append(ac.Elems, v)
			}
			a.p.Constants = append(a.p.Constants, ac)
		default:
			a.err = fmt.Errorf("invalid constant type: %s", fields[0])
			return fields
		}
	}
	return fields
}

func (a *asm) function(fields []string) []string {
	if len(fields) < 5 {
		a.err = fmt.Errorf("invalid function header, want 5+ fields, got %d", len(fields))
		return a.next()
	}
	fn := &Funcode{
		Prog:      a.p,
		Name:      fields[1],
		MaxStack:  int(a.int(fields[2])),
		NumParams: int(a.int(fields[3])),
		FrameSize: int(a.int(fields[4])),
	}
	for _, f := range fields[5:] {
		if f == "+entry" {
			fn.Entry = true
		}
	}
	a.fn = fn

	fields = a.next()
	fields = a.params(fields)
	fields = a.locals(fields)
	fields = a.code(fields)

	a.p.Functions = append(a.p.Functions, fn)
	a.fn = nil
	return fields
}

func (a *asm) params(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "params:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		a.fn.ParamOffsets = append(a.fn.ParamOffsets, int(a.int(fields[0])))
	}
	return fields
}

func (a *asm) locals(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "locals:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		a.fn.Locals = append(a.fn.Locals, fields[0])
	}
	return fields
}

func (a *asm) code(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		return fields
	}

	var insns []insn
	var indexToAddr []int
	var addr int
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		op, ok := LookupOpcode(strings.ToLower(fields[0]))
		if !ok {
			a.err = fmt.Errorf("invalid opcode: %s", fields[0])
			return fields
		}
		var arg uint32
		if HasArg(op) {
			if len(fields) != 2 {
				a.err = fmt.Errorf("opcode %s requires one operand", fields[0])
				return fields
			}
			arg = uint32(a.uint(fields[1]))
		}
		indexToAddr = append(indexToAddr, addr)
		insns = append(insns, insn{op: op, arg: arg})
		addr += instrSize(op, arg)
	}

	for _, ins := range insns {
		op, arg := ins.op, ins.arg
		if IsJump(op) {
			if int(arg) >= len(indexToAddr) {
				a.err = fmt.Errorf("invalid jump target index %d", arg)
				return fields
			}
			arg = uint32(indexToAddr[arg])
		}
		a.fn.Code = appendInstr(a.fn.Code, op, arg)
	}
	return fields
}

func instrSize(op Opcode, arg uint32) int {
	return len(appendInstr(nil, op, arg))
}

func appendInstr(code []byte, op Opcode, arg uint32) []byte {
	fn := &Funcode{Code: code}
	e := NewEmitter(fn)
	if !HasArg(op) {
		e.Emit(op, 0)
	} else {
		e.EmitArg(op, arg, 0)
	}
	return fn.Code
}

func (a *asm) int(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return v
}

func (a *asm) uint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid unsigned integer %q: %w", s, err)
	}
	return v
}

func (a *asm) next() []string {
	a.rawLine = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) != 0 && !strings.HasPrefix(fields[0], "#") {
			for i, f := range fields {
				if strings.HasPrefix(f, "#") {
					fields = fields[:i]
					break
				}
			}
			a.rawLine = line
			return fields
		}
	}
	a.err = a.s.Err()
	return nil
}

// Dasm writes p to its textual assembler form.
func Dasm(p *Program) ([]byte, error) {
	d := dasm{p: p, buf: new(bytes.Buffer)}
	d.program()
	for _, fn := range p.Functions {
		d.write("\n")
		d.function(fn)
	}
	return d.buf.Bytes(), d.err
}

type dasm struct {
	p   *Program
	buf *bytes.Buffer
	err error
}

func (d *dasm) program() {
	d.write("program:\n")
	if len(d.p.Constants) > 0 {
		d.write("\tconstants:\n")
		for i, c := range d.p.Constants {
			switch c := c.(type) {
			case string:
				d.writef("\t\tstring\t%q\t# %03d\n", c, i)
			case int64:
				d.writef("\t\tint\t%d\t# %03d\n", c, i)
			case float64:
				d.writef("\t\tfloat\t%s\t# %03d\n", formatFloat(c), i)
			case DynArrayConst:
				d.writef("\t\tarray\t%d", c.ElemSize)
				for _, e := range c.Elems {
					switch e := e.(type) {
					case int64:
						d.writef(" %d", e)
					case float64:
						d.writef(" %s", formatFloat(e))
					default:
						d.err = fmt.Errorf("unsupported array element type %T", e)
						return
					}
				}
				d.writef("\t# %03d\n", i)
			default:
				d.err = fmt.Errorf("unsupported constant type %T", c)
				return
			}
		}
	}
}

func (d *dasm) function(fn *Funcode) {
	if d.err != nil {
		return
	}
	d.writef("function: %s %d %d %d", fn.Name, fn.MaxStack, fn.NumParams, fn.FrameSize)
	if fn.Entry {
		d.write(" +entry")
	}
	d.write("\n")

	if len(fn.ParamOffsets) > 0 {
		d.write("\tparams:\n")
		for i, off := range fn.ParamOffsets {
			d.writef("\t\t%d\t# %03d\n", off, i)
		}
	}

	if len(fn.Locals) > 0 {
		d.write("\tlocals:\n")
		for i, l := range fn.Locals {
			d.writef("\t\t%s\t# %03d\n", l, i)
		}
	}

	addrToIndex := make([]int, len(fn.Code)+1)
	for i := range addrToIndex {
		addrToIndex[i] = -1
	}
	var insns []insn
	for addr := 0; addr < len(fn.Code); {
		op, arg, size := Decode(fn.Code, addr)
		addrToIndex[addr] = len(insns)
		insns = append(insns, insn{op: op, arg: arg})
		addr += size
	}

	if len(insns) > 0 {
		d.write("\tcode:\n")
		for i, ins := range insns {
			op, arg := ins.op, ins.arg
			if !HasArg(op) {
				d.writef("\t\t%s\t# %03d\n", op, i)
				continue
			}
			if IsJump(op) {
				idx := addrToIndex[arg]
				if idx < 0 {
					d.err = fmt.Errorf("invalid jump target address %d in function %s", arg, fn.Name)
					return
				}
				arg = uint32(idx)
			}
			d.writef("\t\t%s %d\t# %03d\n", op, arg, i)
		}
	}
}

// formatFloat renders a float constant so it always round-trips as a float:
// a value with no fractional digits gets an explicit ".0" suffix, otherwise
// the assembler would read it back as an int.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (d *dasm) writef(format string, args ...any) { d.write(fmt.Sprintf(format, args...)) }

func (d *dasm) write(s string) {
	if d.err != nil {
		return
	}
	_, d.err = d.buf.WriteString(s)
}
