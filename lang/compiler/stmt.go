package compiler

import (
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/token"
	"github.com/mna/corvid/lang/types"
)

// This file implements the statement grammar: the block/scope plumbing
// shared by every construct, simple statements (short declaration,
// assignment, compound assignment, increment/decrement, call), and the
// control-flow forms (if, switch, for, break, continue, return). See
// lang/grammar/grammar.ebnf for the productions each function mirrors.

// closeScope emits the refcount releases for every Var owned by block, frees
// its idents and types, and pops it from the scope stack; every construct
// that opens a scope via scopes.Enter closes it this same way before
// resuming its enclosing scope.
func (c *Compiler) closeScope(block int) {
	c.collect(block)
	c.idents.FreeBlock(block)
	c.types.Truncate(block)
	c.scopes.Leave()
}

// lvalueBase unwraps a parseDesignator result to the type actually being
// assigned/incremented: the synthetic Ptr's Base for a non-structured
// designator, or the bare structured type (already an address) unchanged.
func (c *Compiler) lvalueBase(wrap *types.Type) *types.Type {
	if wrap.Kind.IsStructured() {
		return wrap
	}
	if wrap.Kind != types.Ptr || wrap.Base.Kind == types.Void {
		c.fatalf("left side cannot be assigned to")
	}
	return wrap.Base
}

// atStmtStart reports whether c.tok can begin a statement, used by stmtList
// to know when to stop without consuming a closing "}", "case" or "default".
func (c *Compiler) atStmtStart() bool {
	switch c.tok {
	case token.TYPE, token.CONST, token.VAR, token.LBRACE,
		token.IDENT, token.CIRCUMFLEX, token.WEAK, token.LBRACK, token.STR,
		token.STRUCT, token.INTERFACE, token.FN,
		token.IF, token.SWITCH, token.FOR,
		token.BREAK, token.CONTINUE, token.RETURN:
		return true
	default:
		return false
	}
}

// stmtList = stmt {";" stmt}.
func (c *Compiler) stmtList() {
	for c.atStmtStart() {
		c.stmt()
		if c.tok != token.SEMI {
			break
		}
		c.next()
	}
}

// block = "{" stmtList "}", opening and closing its own scope.
func (c *Compiler) block() {
	c.expect(token.LBRACE)
	b := c.scopes.Enter(-1)
	c.stmtList()
	c.closeScope(b.Number)
	c.expect(token.RBRACE)
}

// stmt dispatches on the first token.
func (c *Compiler) stmt() {
	switch c.tok {
	case token.TYPE:
		c.typeDecl()
	case token.CONST:
		c.constDecl()
	case token.VAR:
		c.varDecl()
	case token.LBRACE:
		c.block()
	case token.IF:
		c.ifStmt()
	case token.SWITCH:
		c.switchStmt()
	case token.FOR:
		c.forStmt()
	case token.BREAK:
		c.breakStmt()
	case token.CONTINUE:
		c.continueStmt()
	case token.RETURN:
		c.returnStmt()
	case token.IDENT, token.CIRCUMFLEX, token.WEAK, token.LBRACK, token.STR, token.STRUCT, token.INTERFACE, token.FN:
		c.simpleStmt()
	default:
		c.fatalf("expected statement, found %s", c.tok.GoString())
	}
}

// simpleStmt = shortVarDecl | designator (assignment | compoundAssignment |
// incDec | ) .
//
// A bare designator with none of the above following it must be a call
// (parseDesignator already leaves nothing for a plain value reference to do
// as a statement); its result, if any, is discarded.
func (c *Compiler) simpleStmt() {
	if c.tok == token.IDENT {
		if next, _ := c.peekAfter(); next == token.ASSIGN {
			c.shortVarDecl()
			return
		}
	}

	typ, _, isVar, isCall := c.parseDesignator()

	switch {
	case c.tok == token.EQ:
		if !isVar {
			c.fatalf("left side cannot be assigned to")
		}
		c.next()
		c.assignmentStmt(typ)
	case token.IsIncDec(c.tok):
		if !isVar {
			c.fatalf("left side cannot be assigned to")
		}
		c.incDecStmt(typ)
	default:
		if op, ok := token.CompoundAssignOp(c.tok); ok {
			if !isVar {
				c.fatalf("left side cannot be assigned to")
			}
			c.next()
			c.shortAssignmentStmt(typ, op)
			return
		}
		if !isCall {
			c.fatalf("assignment or function call expected")
		}
		if typ.Kind != types.Void {
			c.em.Emit(emit.POP, -1)
		}
	}
}

// shortVarDecl = ident ":=" expr, declaring a fresh local or global in the
// current block with the initializer's own type. A folded scalar initializer
// takes a plain store, bypassing the refcount path entirely, same as
// varDecl's shortcut; anything else has its refcount bumped in place, then
// is swap-assigned into the freshly allocated (and therefore
// prior-value-free) storage.
func (c *Compiler) shortVarDecl() {
	name := c.expectIdentName()
	c.expect(token.ASSIGN)

	rt, rc := c.parseExpr()
	global := c.scopes.EnclosingFunc() < 0
	block := c.scopes.CurrentNumber()
	offset := c.allocSlot(rt, global)
	id := ident.AllocVar(c.idents, name, rt, block, offset, global)

	if rc != nil && !types.GarbageCollected(rt) {
		c.doPushVarPtr(id)
		c.pushConst(rt, rc)
		c.em.EmitArg(emit.ASSIGN, uint32(storeSize(rt)), -2)
		return
	}

	c.materializeConst(rt, rc)
	c.em.Emit(emit.INCREFCNT, 0)
	c.doPushVarPtr(id)
	c.em.EmitArg(emit.SWAPCHANGEREFCNTASSIGN, uint32(storeSize(rt)), -2)
}

// storeSize returns the operand for the store opcodes: the byte size of the
// value for inline-structured types (which copy a cell range from the source
// address), 0 for single-slot scalars and handles.
func storeSize(t *types.Type) int {
	switch t.Kind {
	case types.Array, types.Struct, types.Interface:
		return types.SizeOf(t)
	}
	return 0
}

// assignmentStmt = designator "=" expr, lhsWrap being what parseDesignator
// already left on the stack (its address).
func (c *Compiler) assignmentStmt(lhsWrap *types.Type) {
	base := c.lvalueBase(lhsWrap)

	rt, rc := c.parseExpr()
	rc = c.doImplicitTypeConv(base, rt, rc)
	if err := types.AssertCompatible(base, rt, false); err != nil {
		c.fatalf("%s", err)
	}
	c.materializeConst(base, rc)
	c.em.EmitArg(emit.CHANGEREFCNTASSIGN, uint32(storeSize(base)), -2)
}

// shortAssignmentStmt = designator compoundAssignOp expr: duplicate the
// address, dereference it to load the current value, apply op between that
// and the parsed right-hand side (Real32 operands widened to Real for the
// operation, same as a plain binary expression), then changeRefCntAssign
// the result back into the original (unwidened) destination.
func (c *Compiler) shortAssignmentStmt(lhsWrap *types.Type, op token.Token) {
	base := c.lvalueBase(lhsWrap)

	c.em.Emit(emit.DUP, +1)
	c.em.Emit(emit.DEREF, 0)

	opT := base
	if base.Kind == types.Real32 {
		opT = c.types.Builtin(types.Real)
	}

	rt, rc := c.parseExpr()
	c.doApplyOperator(op, opT, nil, rt, rc)

	c.em.EmitArg(emit.CHANGEREFCNTASSIGN, uint32(storeSize(base)), -2)
}

// incDecStmt = designator ("++" | "--"), valid only for integer types.
func (c *Compiler) incDecStmt(lhsWrap *types.Type) {
	base := c.lvalueBase(lhsWrap)
	if !base.Kind.IsInteger() {
		c.fatalf("%s requires an integer operand, got %s", c.tok.GoString(), base)
	}
	op := emit.INC
	if c.tok == token.DEC {
		op = emit.DEC
	}
	c.next()
	c.em.Emit(op, 0)
	c.em.Emit(emit.POP, -1)
}

// ifStmt = "if" [shortVarDecl ";"] expr block ["else" (ifStmt | block)],
// wrapped in its own scope so a condition-local shortVarDecl's lifetime ends
// with the whole if/else chain.
func (c *Compiler) ifStmt() {
	c.expect(token.IF)
	b := c.scopes.Enter(-1)

	if c.tok == token.IDENT {
		if next, _ := c.peekAfter(); next == token.ASSIGN {
			c.shortVarDecl()
			c.expect(token.SEMI)
		}
	}

	condT, condC := c.parseExpr()
	c.materializeConst(condT, condC)
	if err := types.AssertCompatible(c.types.Builtin(types.Bool), condT, false); err != nil {
		c.fatalf("%s", err)
	}

	falseStub := c.em.Stub(emit.CJMP)
	c.block()

	if c.tok == token.ELSE {
		c.next()
		endStub := c.em.Stub(emit.JMP)
		c.em.PatchHere(falseStub)
		if c.tok == token.IF {
			c.ifStmt()
		} else {
			c.block()
		}
		c.em.PatchHere(endStub)
	} else {
		c.em.PatchHere(falseStub)
	}

	c.closeScope(b.Number)
}

// switchStmt = "switch" [shortVarDecl ";"] expr "{" {case} [default] "}".
// case = "case" expr {"," expr} ":" stmtList.
// default = "default" ":" stmtList.
//
// The selector is evaluated once and kept on the stack (duplicated for every
// equality test) until a matching case's body consumes it with a leading
// POP; no case falls through to the next. Dispatch is a chain of
// DUP+PUSHCONST+EQL+CJMP tests since the opcode vocabulary has no dedicated
// switch-dispatch instruction.
func (c *Compiler) switchStmt() {
	c.expect(token.SWITCH)
	b := c.scopes.Enter(-1)

	if c.tok == token.IDENT {
		if next, _ := c.peekAfter(); next == token.ASSIGN {
			c.shortVarDecl()
			c.expect(token.SEMI)
		}
	}

	selT, selC := c.parseExpr()
	c.materializeConst(selT, selC)
	if !selT.Kind.IsOrdinal() {
		c.fatalf("switch selector must be an ordinal type, got %s", selT)
	}

	c.expect(token.LBRACE)

	var switchEndStubs []int
	var nextCaseStubs []int

	for c.tok == token.CASE {
		for _, stub := range nextCaseStubs {
			c.em.PatchHere(stub)
		}
		nextCaseStubs = nil

		c.next()
		var bodyStubs []int
		for {
			c.em.Emit(emit.DUP, +1)
			caseT, caseC := c.parseExpr()
			if caseC == nil {
				c.fatalf("case expression must be a compile-time constant")
			}
			if err := types.AssertCompatible(selT, caseT, false); err != nil {
				c.fatalf("%s", err)
			}
			c.pushConst(selT, caseC)
			c.em.Emit(emit.EQL, -1)

			if c.tok == token.COMMA {
				c.next()
				failStub := c.em.Stub(emit.CJMP)
				bodyStubs = append(bodyStubs, c.em.Stub(emit.JMP))
				c.em.PatchHere(failStub)
				continue
			}
			nextCaseStubs = append(nextCaseStubs, c.em.Stub(emit.CJMP))
			break
		}

		for _, stub := range bodyStubs {
			c.em.PatchHere(stub)
		}
		c.expect(token.COLON)
		c.em.Emit(emit.POP, -1)
		c.stmtList()
		switchEndStubs = append(switchEndStubs, c.em.Stub(emit.JMP))
	}

	for _, stub := range nextCaseStubs {
		c.em.PatchHere(stub)
	}

	if c.tok == token.DEFAULT {
		c.next()
		c.expect(token.COLON)
		c.em.Emit(emit.POP, -1)
		c.stmtList()
	} else {
		c.em.Emit(emit.POP, -1)
	}

	c.expect(token.RBRACE)

	for _, stub := range switchEndStubs {
		c.em.PatchHere(stub)
	}

	c.closeScope(b.Number)
}

// forStmt = "for" (forHeader | forInHeader) block, with its own break/
// continue jump sets bound to the loop's own block so break/continue inside
// nested blocks release exactly the scopes they cross. The per-iteration
// back edge targets whatever forHeader/forInHeader designates (the index
// increment for a for-in loop, the post-statement when a C-style header has
// one, the condition otherwise).
func (c *Compiler) forStmt() {
	c.expect(token.FOR)
	b := c.scopes.Enter(-1)

	outerBreaks, outerContinues := c.breaks, c.continues
	c.breaks = NewGotos(b.Number)
	c.continues = NewGotos(b.Number)

	isForIn := false
	if c.tok == token.IDENT {
		if next, _ := c.peekAfter(); next == token.COMMA || next == token.IN {
			isForIn = true
		}
	}

	var backTarget, failStub int
	if isForIn {
		backTarget, failStub = c.forInHeader()
	} else {
		backTarget, failStub = c.forHeader()
	}

	c.block()

	c.patchAllHere(c.continues)
	c.continues = outerContinues

	c.em.EmitArg(emit.JMP, uint32(backTarget), 0)
	c.em.PatchHere(failStub)

	c.patchAllHere(c.breaks)
	c.breaks = outerBreaks

	c.closeScope(b.Number)
}

// forHeader = [shortVarDecl ";"] expr [";" simpleStmt], the C-style header.
// The post-statement sits textually between the condition and the body but
// must run after it, so its code is emitted there anyway and reached by a
// back edge from the body; a forward jump over it lets the first pass
// through the condition fall straight into the body without running it
// early.
func (c *Compiler) forHeader() (backTarget, failStub int) {
	if c.tok == token.IDENT {
		if next, _ := c.peekAfter(); next == token.ASSIGN {
			c.shortVarDecl()
			c.expect(token.SEMI)
		}
	} else if c.tok == token.SEMI {
		// empty init clause
		c.next()
	}

	condStart := c.em.Offset()
	sub := c.scopes.Enter(-1)
	condT, condC := c.parseExpr()
	c.materializeConst(condT, condC)
	if err := types.AssertCompatible(c.types.Builtin(types.Bool), condT, false); err != nil {
		c.fatalf("%s", err)
	}
	c.closeScope(sub.Number)

	failStub = c.em.Stub(emit.CJMP)
	backTarget = condStart

	if c.tok == token.SEMI {
		c.next()
		if c.atStmtStart() {
			toBody := c.em.Stub(emit.JMP)
			backTarget = c.em.Offset()

			sub2 := c.scopes.Enter(-1)
			c.simpleStmt()
			c.closeScope(sub2.Number)

			c.em.EmitArg(emit.JMP, uint32(condStart), 0)
			c.em.PatchHere(toBody)
		}
	}

	return backTarget, failStub
}

// forInHeader = (ident | ident "," ident) "in" expr, the collection-walking
// header. The collection value is stashed in a hidden local so it survives
// across iterations even when the header expression itself has no stable
// address (e.g. a call result); the hidden index local drives both the
// bounds check and the per-item address computation (the same device
// expr.go's call() uses for hidden result slots via allocTemp).
func (c *Compiler) forInHeader() (backTarget, failStub int) {
	block := c.scopes.CurrentNumber()

	name1 := c.expectIdentName()
	indexName, itemName := "__index", name1
	if c.tok == token.COMMA {
		c.next()
		indexName = name1
		itemName = c.expectIdentName()
	}
	c.expect(token.IN)

	intT := c.types.Builtin(types.Int)
	idxOff := c.allocSlot(intT, false)
	idxID := ident.AllocVar(c.idents, indexName, intT, block, idxOff, false)

	zero := types.IntConst(types.Int, 0)
	c.doPushVarPtr(idxID)
	c.pushConst(intT, &zero)
	c.em.EmitArg(emit.ASSIGN, 0, -2)

	condStart := c.em.Offset()
	sub := c.scopes.Enter(-1)

	collT, collC := c.parseExpr()
	c.materializeConst(collT, collC)
	if collT.Kind == types.Ptr {
		if !collT.Base.Kind.IsStructured() {
			c.em.Emit(emit.DEREF, 0)
		}
		collT = collT.Base
	}
	if !collT.Kind.IsStructured() || collT.Kind == types.Struct || collT.Kind == types.Interface {
		c.fatalf("%s is not iterable", collT)
	}

	collPtrT := c.types.AddPtrTo(collT, block, true)
	collOff := c.allocSlot(collPtrT, false)
	collID := ident.AllocVar(c.idents, "__collection", collPtrT, block, collOff, false)
	c.doPushVarPtr(collID)
	c.em.Emit(emit.SWAP, 0)
	c.em.EmitArg(emit.ASSIGN, 0, -2)

	switch collT.Kind {
	case types.Array:
		n := types.IntConst(types.Int, int64(collT.NumItems))
		c.pushConst(intT, &n)
	case types.DynArray, types.Str:
		c.doPushVarPtr(collID)
		c.em.Emit(emit.DEREF, 0)
		c.em.Emit(emit.LEN, 0)
	default:
		c.fatalf("%s is not iterable", collT)
	}

	c.doPushVarPtr(idxID)
	c.em.Emit(emit.DEREF, 0)
	c.em.Emit(emit.GT, -1)

	c.closeScope(sub.Number)
	failStub = c.em.Stub(emit.CJMP)

	itemT := collT.Base
	if collT.Kind == types.Str {
		itemT = c.types.Builtin(types.Char)
	}
	itemOff := c.allocSlot(itemT, false)
	itemID := ident.AllocVar(c.idents, itemName, itemT, block, itemOff, false)

	c.doPushVarPtr(collID)
	c.em.Emit(emit.DEREF, 0)
	c.doPushVarPtr(idxID)
	c.em.Emit(emit.DEREF, 0)
	c.em.EmitArg(emit.INDEXADDR, uint32(types.SizeOf(itemT)), -1)
	if !itemT.Kind.IsStructured() {
		c.em.Emit(emit.DEREF, 0)
	}
	c.em.Emit(emit.INCREFCNT, 0)
	c.doPushVarPtr(itemID)
	c.em.EmitArg(emit.SWAPCHANGEREFCNTASSIGN, uint32(storeSize(itemT)), -2)
	toBody := c.em.Stub(emit.JMP)

	backTarget = c.em.Offset()
	c.doPushVarPtr(idxID)
	c.em.Emit(emit.INC, 0)
	c.em.Emit(emit.POP, -1)
	c.em.EmitArg(emit.JMP, uint32(condStart), 0)
	c.em.PatchHere(toBody)

	return backTarget, failStub
}

// breakStmt = "break", only legal inside a for loop.
func (c *Compiler) breakStmt() {
	c.expect(token.BREAK)
	if c.breaks == nil {
		c.fatalf("break outside a loop")
	}
	c.collectDownTo(c.breaks.Block)
	c.breaks.Add(c.em.Stub(emit.JMP))
}

// continueStmt = "continue", only legal inside a for loop.
func (c *Compiler) continueStmt() {
	c.expect(token.CONTINUE)
	if c.continues == nil {
		c.fatalf("continue outside a loop")
	}
	c.collectDownTo(c.continues.Block)
	c.continues.Add(c.em.Stub(emit.JMP))
}

// returnStmt = "return" [expr], only legal inside a function body. A
// structured result is copied into the caller-owned "__result" slot (see
// expr.go's call and fnBlock's hidden parameter) and the slot's pointer is
// re-pushed as the function's return value, the result-register convention;
// a scalar result has its refcount bumped and is left on the stack for the
// caller to consume.
func (c *Compiler) returnStmt() {
	c.expect(token.RETURN)
	if b := c.scopes.Current(); b != nil {
		b.HasReturn = true
	}

	fnOffset := c.scopes.EnclosingFunc()
	if fnOffset < 0 {
		c.fatalf("return outside a function")
	}
	fn := c.fnByOffset[fnOffset]
	sig := fn.Type.Signature
	resultT := c.types.Builtin(types.Void)
	if len(sig.ResultTypes) > 0 {
		resultT = sig.ResultTypes[0]
	}

	var rt *types.Type
	var rc *types.Const
	if c.tok != token.SEMI && c.tok != token.RBRACE {
		rt, rc = c.parseExpr()
	} else {
		rt = c.types.Builtin(types.Void)
	}

	rc = c.doImplicitTypeConv(resultT, rt, rc)
	if err := types.AssertCompatible(resultT, rt, false); err != nil {
		c.fatalf("%s", err)
	}

	switch {
	case resultT.Kind.IsStructured():
		result := c.idents.Lookup("__result")
		if result == nil {
			c.fatalf("structured return outside a function with a result slot")
		}
		c.materializeConst(resultT, rc)
		c.doPushVarPtr(result)
		c.em.Emit(emit.DEREF, 0)
		c.em.Emit(emit.SWAP, 0)
		c.em.EmitArg(emit.ASSIGN, uint32(storeSize(resultT)), -2)
		c.doPushVarPtr(result)
		c.em.Emit(emit.DEREF, 0)
	case resultT.Kind != types.Void:
		c.materializeConst(resultT, rc)
		c.em.Emit(emit.INCREFCNT, 0)
	}

	c.collectDownTo(c.returns.Block)
	c.returns.Add(c.em.Stub(emit.JMP))
}
