package compiler

import (
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/token"
	"github.com/mna/corvid/lang/types"
)

// This file implements fnBlock, the compilation of a "fn" declaration's
// body, and resolveExterns, the end-of-module pass that gives every
// unresolved prototype a trampoline body calling out to the external symbol
// registry.

// fnBlock = "{" stmtList "}", compiling fn's body: params (and, for a
// structured result type, a hidden leading "__result" parameter holding the
// destination address, per expr.go's call convention) are declared as
// locals at offset 0 upward, an ENTERFRAME stub reserves space for the
// frame pending the final tally, and a dedicated returns Gotos collects
// every return statement's forward jump to the epilogue.
func (c *Compiler) fnBlock(fn *ident.Ident) {
	c.expect(token.LBRACE)
	b := c.scopes.Enter(fn.Offset)

	sig := fn.Type.Signature
	resultT := c.types.Builtin(types.Void)
	if len(sig.ResultTypes) > 0 {
		resultT = sig.ResultTypes[0]
	}

	isMain := fn.Name == "main"
	if isMain {
		if sig.IsMethod || len(sig.Params) != 0 || resultT.Kind != types.Void {
			c.fatalf("main must take no parameters and return nothing")
		}
		c.fn.Entry = true
	}

	enterStub := c.em.Stub(emit.ENTERFRAME)

	hasResultSlot := resultT.Kind.IsStructured()
	if hasResultSlot {
		resultPtrT := c.types.AddPtrTo(resultT, b.Number, true)
		off := c.allocSlot(resultPtrT, false)
		ident.AllocParam(c.idents, "__result", resultPtrT, b.Number, off)
		c.fn.ParamOffsets = append(c.fn.ParamOffsets, off)
		c.fn.Locals = append(c.fn.Locals, "__result")
	}
	for _, p := range sig.Params {
		off := c.allocSlot(p.Type, false)
		ident.AllocParam(c.idents, p.Name, p.Type, b.Number, off)
		c.fn.ParamOffsets = append(c.fn.ParamOffsets, off)
		c.fn.Locals = append(c.fn.Locals, p.Name)
	}

	outerReturns := c.returns
	c.returns = NewGotos(b.Number)

	c.stmtList()

	if !b.HasReturn && resultT.Kind != types.Void {
		c.fatalf("function %q must return a value of type %s on every path", fn.Name, resultT)
	}

	c.patchAllHere(c.returns)
	c.returns = outerReturns

	c.collect(b.Number)
	c.idents.FreeBlock(b.Number)
	c.types.Truncate(b.Number)

	frameSize := c.scopes.FrameSize(fn.Offset)
	c.em.Patch(enterStub, uint32(frameSize))
	c.fn.FrameSize = frameSize
	c.scopes.ResetFrameSize(fn.Offset)

	paramBytes := 0
	if hasResultSlot {
		paramBytes += types.SizeOf(c.types.Builtin(types.Ptr))
	}
	for _, p := range sig.Params {
		paramBytes += types.SizeOf(p.Type)
	}
	c.em.EmitArg(emit.RETURN, uint32(paramBytes), 0)

	c.fn.NumParams = len(sig.Params)
	if hasResultSlot {
		c.fn.NumParams++
	}

	c.scopes.Leave()
	c.expect(token.RBRACE)
}

// resolveExterns gives every function ident still awaiting a body (Ident.
// PrototypeOffset >= 0) a trampoline: its params (and hidden result slot, as
// for any other function) are declared as locals purely so they participate
// in the same frame/refcount accounting as a normal call, then a single
// CALLEXTERN invokes the matched external symbol. A name with no match is a
// fatal error.
func (c *Compiler) resolveExterns() {
	for _, fn := range c.idents.Unresolved() {
		ext, ok := c.externs.Find(fn.Name)
		if !ok {
			c.fatalf("unresolved external function %q", fn.Name)
		}

		funcode := c.prog.Functions[fn.Offset]
		outerEm, outerFn := c.em, c.fn
		c.fn = funcode
		c.em = emit.NewEmitter(funcode)

		b := c.scopes.Enter(fn.Offset)
		sig := fn.Type.Signature
		resultT := c.types.Builtin(types.Void)
		if len(sig.ResultTypes) > 0 {
			resultT = sig.ResultTypes[0]
		}

		enterStub := c.em.Stub(emit.ENTERFRAME)

		hasResultSlot := resultT.Kind.IsStructured()
		if hasResultSlot {
			resultPtrT := c.types.AddPtrTo(resultT, b.Number, true)
			off := c.allocSlot(resultPtrT, false)
			ident.AllocParam(c.idents, "__result", resultPtrT, b.Number, off)
			c.fn.ParamOffsets = append(c.fn.ParamOffsets, off)
			c.fn.Locals = append(c.fn.Locals, "__result")
		}
		for _, p := range sig.Params {
			off := c.allocSlot(p.Type, false)
			ident.AllocParam(c.idents, p.Name, p.Type, b.Number, off)
			c.fn.ParamOffsets = append(c.fn.ParamOffsets, off)
			c.fn.Locals = append(c.fn.Locals, p.Name)
		}

		c.prog.Externs = append(c.prog.Externs, fn.Name)
		c.em.EmitArg(emit.CALLEXTERN, uint32(ext.Index), 0)

		c.collect(b.Number)
		c.idents.FreeBlock(b.Number)
		c.types.Truncate(b.Number)

		frameSize := c.scopes.FrameSize(fn.Offset)
		c.em.Patch(enterStub, uint32(frameSize))
		c.fn.FrameSize = frameSize
		c.scopes.ResetFrameSize(fn.Offset)

		paramBytes := 0
		if hasResultSlot {
			paramBytes += types.SizeOf(c.types.Builtin(types.Ptr))
		}
		for _, p := range sig.Params {
			paramBytes += types.SizeOf(p.Type)
		}
		c.em.EmitArg(emit.RETURN, uint32(paramBytes), 0)

		c.fn.NumParams = len(sig.Params)
		if hasResultSlot {
			c.fn.NumParams++
		}

		c.scopes.Leave()
		fn.PrototypeOffset = -1

		c.em, c.fn = outerEm, outerFn
	}
}
