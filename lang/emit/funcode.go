package emit

// Funcode is the compiled output for a single function (including the
// implicit top-level "module" function that holds global initialization
// code and the entry point to main).
type Funcode struct {
	Prog *Program
	Name string

	Code []byte

	// Locals names the function's local slots, parameters first, for
	// disassembly only; the compiler addresses them by frame offset.
	Locals []string

	MaxStack  int
	NumParams int

	// FrameSize is the byte size of the local frame, patched into the
	// function's ENTERFRAME instruction once fnBlock knows the total (see
	// lang/scope.Stack.FrameSize).
	FrameSize int

	// ParamOffsets lists, in declaration order, the frame byte offset of each
	// parameter slot (the hidden result-pointer slot first when the function
	// has a structured result). A caller pushes arguments in this order, so
	// the machine pops them in reverse into the callee frame.
	ParamOffsets []int

	// Entry is true for the function bytecode begins execution at (the
	// resolved "main").
	Entry bool
}

// DynArrayConst is the constant-pool form of a dynamic-array literal whose
// elements all folded at compile time: the element byte size (needed to lay
// the elements out the way INDEXADDR will address them) plus one value per
// element.
type DynArrayConst struct {
	ElemSize int
	Elems    []any // int64 or float64
}

// Program is the full compiled output: every function plus the shared
// constant pool.
type Program struct {
	Functions []*Funcode
	Constants []any // int64, float64, string, or DynArrayConst

	// Externs names, in declaration order, every prototype ident that was
	// resolved against the external symbol registry rather than given a body.
	Externs []string
}

// AddConstant interns v into the program's constant pool, returning its
// index. Identical constants are not deduplicated: the statement compiler
// controls folding and decides when a literal is worth re-using.
func (p *Program) AddConstant(v any) int {
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// NewFunction appends a new Funcode to the program and returns it.
func (p *Program) NewFunction(name string) *Funcode {
	fn := &Funcode{Prog: p, Name: name}
	p.Functions = append(p.Functions, fn)
	return fn
}
