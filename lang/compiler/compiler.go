// Package compiler implements the fused single-pass statement compiler: it
// drives the type table, scope stack and identifier table while emitting
// bytecode, and inserts the reference-count maintenance required by every
// block exit, break, continue and return.
package compiler

import (
	"fmt"
	gotoken "go/token"

	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/scanner"
	"github.com/mna/corvid/lang/scope"
	"github.com/mna/corvid/lang/token"
	"github.com/mna/corvid/lang/types"
)

// ErrorList collects every error produced while compiling a module.
type ErrorList = scanner.ErrorList

// fatalError is the private sentinel panicked by fatal and recovered at the
// top of CompileModule; it is the Go analog of the source compiler's
// non-returning longjmp-based error handler; it never escapes CompileModule.
type fatalError struct{}

// External is consulted at end-of-module to resolve function prototypes that
// were never given a body.
type External struct {
	Name  string
	Index int
}

// Externs is the external symbol registry: find(name) -> External, or not
// found.
type Externs interface {
	Find(name string) (External, bool)
}

// Compiler holds all state serially mutated while compiling one module: the
// lexer, the type/scope/ident tables, the emitter, and the pending
// break/continue/return jump sets for the construct currently being parsed.
type Compiler struct {
	sc  *scanner.Scanner
	tok token.Token
	val scanner.Value

	types  *types.Table
	idents *ident.Table
	scopes *scope.Stack

	prog    *emit.Program
	fn      *emit.Funcode
	em      *emit.Emitter
	externs Externs

	// fnByOffset maps a function ident's Offset (its index into
	// prog.Functions, also the value stored as scope.Block.Fn) back to the
	// Ident that declared it, so returnStmt can recover the enclosing
	// function's Signature after scope.Stack.EnclosingFunc gives it only the
	// bare offset.
	fnByOffset map[int]*ident.Ident

	breaks, continues, returns *Gotos

	errs ErrorList
}

// builtinTypes names the primitive types pre-declared at module scope; a
// declaration can shadow them in an inner block like any other identifier.
var builtinTypes = [...]struct {
	name string
	kind types.Kind
}{
	{"int8", types.Int8}, {"int16", types.Int16}, {"int32", types.Int32}, {"int", types.Int},
	{"uint8", types.UInt8}, {"uint16", types.UInt16}, {"uint32", types.UInt32}, {"uint", types.UInt},
	{"bool", types.Bool}, {"char", types.Char},
	{"real32", types.Real32}, {"real", types.Real},
	{"fiber", types.Fiber},
}

// NewCompiler prepares a Compiler to compile src as filename, resolving
// unmatched function prototypes against externs.
func NewCompiler(filename string, src []byte, externs Externs) *Compiler {
	c := &Compiler{
		types:   types.NewTable(),
		idents:  &ident.Table{},
		scopes:  &scope.Stack{},
		prog:    &emit.Program{},
		externs: externs,
	}
	for _, bt := range builtinTypes {
		ident.DeclareType(c.idents, bt.name, c.types.Builtin(bt.kind), 0)
	}
	c.sc = &scanner.Scanner{}
	c.sc.Init(filename, src, func(pos token.Position, msg string) {
		c.errs.Add(goPos(pos), msg)
	})
	c.next()
	return c
}

// goPos adapts the compiler's single-file Position to go/token.Position, the
// type go/scanner.ErrorList (aliased as ErrorList) requires.
func goPos(p token.Position) gotoken.Position {
	return gotoken.Position{Filename: p.Filename, Line: p.Line, Column: p.Col}
}

func (c *Compiler) next() {
	c.tok, c.val = c.sc.Scan()
}

// peekAfter scans one token ahead on a cloned scanner, leaving c's own
// position untouched; used to tell "ident :=" from "ident =" and similar
// one-token-lookahead decisions without backtracking.
func (c *Compiler) peekAfter() (token.Token, scanner.Value) {
	clone := c.sc.Clone()
	return clone.Scan()
}

func (c *Compiler) check(tok token.Token) bool { return c.tok == tok }

func (c *Compiler) expect(tok token.Token) scanner.Value {
	if c.tok != tok {
		c.fatalf("expected %s, found %s", tok.GoString(), c.tok.GoString())
	}
	v := c.val
	c.next()
	return v
}

func (c *Compiler) fatalf(format string, args ...any) {
	pos := c.val.Pos
	msg := fmt.Sprintf(format, args...)
	c.errs.Add(goPos(pos), msg)
	panic(fatalError{})
}

// CompileModule compiles the whole source as a sequence of top-level
// declarations and statements, and returns the resulting program. On the
// first fatal diagnostic, compilation stops and the accumulated ErrorList is
// returned (the per-construct design never attempts error recovery, per the
// single-fatal-diagnostic contract).
func (c *Compiler) CompileModule() (prog *emit.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(fatalError); ok {
				err = c.errs.Err()
				return
			}
			panic(r)
		}
	}()

	// "$module" is the implicit top-level function (see emit.Funcode's doc
	// comment) that holds global-variable initialization code: module-scope
	// declarations are never inside any user function, so every global
	// initializer (see decl.go's varDecl; constant ones included, as a plain
	// store) needs somewhere of its own to emit into. It declares no
	// frame-relative locals (every module-scope var is global); its frame size
	// is the size of the global arena, patched in below once every global is
	// declared.
	modFn := c.prog.NewFunction("$module")
	c.fn = modFn
	c.em = emit.NewEmitter(modFn)

	c.scopes.Enter(-1) // block 0: module scope
	enterStub := c.em.Stub(emit.ENTERFRAME)

	c.module()

	// Every module-scope var (global) has been declared by now, so the
	// running total scopes tracked under key -1 (see decl.go's allocSlot) is
	// the final size of the global arena; patch it in, the same way fnBlock
	// patches a function's own ENTERFRAME once its body is fully parsed.
	globalSize := c.scopes.FrameSize(-1)
	c.em.Patch(enterStub, uint32(globalSize))
	modFn.FrameSize = globalSize

	c.resolveExterns()

	mainID := c.idents.Lookup("main")
	if mainID == nil || mainID.Kind != ident.Fn {
		c.fatalf("no main function declared")
	}
	c.em.EmitArg(emit.CALL, uint32(mainID.Offset), 0)
	c.collect(0)
	c.em.Emit(emit.HALT, 0)

	c.scopes.Leave()

	if err := c.errs.Err(); err != nil {
		return nil, err
	}
	return c.prog, nil
}
