package compiler

import (
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/token"
	"github.com/mna/corvid/lang/types"
)

// This file implements the expression compiler the statement compiler
// drives as an opaque collaborator: parseExpr/parseDesignator,
// doImplicitTypeConv, doApplyOperator and doPushVarPtr. The designator
// convention followed throughout: a designator of a non-structured type
// reports a synthetic Ptr wrapping the real type (the stack holds the
// address of a T, typed as ^T) while a designator of a structured type
// reports the bare type directly (a struct/array/string value already *is*
// an address, so no extra wrapping is needed). Plain expression consumers
// (binary/unary operands, call arguments) always see values, never this
// lvalue encoding; only parseDesignator exposes it, for simpleStmt/
// assignment to unwrap.
//
// Constant folding is lazy: a literal or named constant emits no code at
// all until it is combined with a non-constant operand or is otherwise
// forced to materialize (see materializeConst), so "x = 41 + 1" emits a
// single assignment of the folded 42.

// binPrecedence returns op's binding power for the precedence-climbing
// binary expression parser, or ok=false if op does not continue a binary
// expression.
func binPrecedence(tok token.Token) (int, bool) {
	switch tok {
	case token.OR:
		return 1, true
	case token.AND:
		return 2, true
	case token.EQL, token.NEQ, token.LT, token.LE, token.GT, token.GE:
		return 3, true
	case token.PLUS, token.MINUS, token.PIPE, token.CIRCUMFLEX:
		return 4, true
	case token.STAR, token.SLASH, token.PERCENT, token.AMPERSAND, token.LTLT, token.GTGT:
		return 5, true
	default:
		return 0, false
	}
}

var binOpcode = map[token.Token]emit.Opcode{
	token.PLUS: emit.ADD, token.MINUS: emit.SUB, token.STAR: emit.MUL, token.SLASH: emit.DIV,
	token.PERCENT: emit.MOD, token.AMPERSAND: emit.BAND, token.PIPE: emit.BOR, token.CIRCUMFLEX: emit.BXOR,
	token.LTLT: emit.SHL, token.GTGT: emit.SHR,
	token.EQL: emit.EQL, token.NEQ: emit.NEQ, token.LT: emit.LT, token.LE: emit.LE, token.GT: emit.GT, token.GE: emit.GE,
	token.AND: emit.LAND, token.OR: emit.LOR,
}

// parseExpr evaluates a (possibly constant) expression, emitting only the
// code needed for its non-constant part, and returns its type and, when the
// whole expression folded, the resulting constant.
func (c *Compiler) parseExpr() (*types.Type, *types.Const) {
	return c.binExpr(1)
}

func (c *Compiler) binExpr(minPrec int) (*types.Type, *types.Const) {
	lt, lc := c.operand()
	for {
		prec, ok := binPrecedence(c.tok)
		if !ok || prec < minPrec {
			return lt, lc
		}
		op := c.tok
		c.next()
		rt, rc := c.binExpr(prec + 1)
		lt, lc = c.doApplyOperator(op, lt, lc, rt, rc)
	}
}

// operand parses a single unary-level operand and collapses it to an
// r-value: a designator result still carrying the synthetic lvalue wrap
// (isVar with a Ptr type) is dereferenced once to the value it addresses.
func (c *Compiler) operand() (*types.Type, *types.Const) {
	typ, con, isVar, _ := c.unary()
	if isVar && typ.Kind == types.Ptr {
		c.em.Emit(emit.DEREF, 0)
		typ = typ.Base
	}
	return typ, con
}

func (c *Compiler) unary() (typ *types.Type, con *types.Const, isVar, isCall bool) {
	switch c.tok {
	case token.MINUS, token.NOT, token.TILDE:
		op := c.tok
		c.next()
		t, cn := c.operand()
		if !types.OperatorValid(op, t) {
			c.fatalf("operator %s not valid for type %s", op.GoString(), t)
		}
		if cn != nil {
			return t, foldUnary(op, t, cn), false, false
		}
		switch op {
		case token.MINUS:
			zc := zeroConst(t)
			c.pushConst(t, &zc)
			c.swapForSub()
			c.em.Emit(emit.SUB, -1)
		case token.NOT:
			c.em.Emit(emit.LNOT, 0)
		case token.TILDE:
			c.em.Emit(emit.BNOT, 0)
		}
		return t, nil, false, false
	default:
		return c.primary()
	}
}

// swapForSub turns a just-pushed [value, zero] stack into [zero, value] so
// the following SUB computes zero-value (i.e. negation) rather than
// value-zero.
func (c *Compiler) swapForSub() { c.em.Emit(emit.SWAP, 0) }

func (c *Compiler) primary() (typ *types.Type, con *types.Const, isVar, isCall bool) {
	switch c.tok {
	case token.INT:
		v := c.val.Int
		c.next()
		k := types.Int
		cn := types.IntConst(k, v)
		return c.types.Builtin(k), &cn, false, false
	case token.FLOAT:
		v := c.val.Float
		c.next()
		k := types.Real
		cn := types.RealConst(k, v)
		return c.types.Builtin(k), &cn, false, false
	case token.CHAR:
		v := c.val.Int
		c.next()
		cn := types.IntConst(types.Char, v)
		return c.types.Builtin(types.Char), &cn, false, false
	case token.STRING:
		v := c.val.Str
		c.next()
		idx := c.prog.AddConstant(v)
		cn := types.IntConst(types.Str, int64(idx))
		return c.types.Builtin(types.Str), &cn, false, false
	case token.TRUE, token.FALSE:
		v := int64(0)
		if c.tok == token.TRUE {
			v = 1
		}
		c.next()
		cn := types.IntConst(types.Bool, v)
		return c.types.Builtin(types.Bool), &cn, false, false
	case token.NULL:
		c.next()
		cn := types.NullConst()
		return c.types.Builtin(types.Null), &cn, false, false
	case token.LPAREN:
		c.next()
		typ, con = c.parseExpr()
		c.expect(token.RPAREN)
		return typ, con, false, false
	case token.LBRACK:
		return c.arrayLiteral()
	default:
		return c.designator()
	}
}

// parseDesignator is the l-value-aware variant used by simpleStmt: it
// parses a designator chain (identifier, "." field, "[" index "]", "^"
// deref, or a call), leaves its address (non-structured) or value
// (structured) on the stack, and reports whether it is assignable and
// whether it denotes a call.
func (c *Compiler) parseDesignator() (*types.Type, *types.Const, bool, bool) {
	return c.designator()
}

func (c *Compiler) designator() (typ *types.Type, con *types.Const, isVar, isCall bool) {
	name := c.expectIdentName()
	id := c.idents.Lookup(name)
	if id == nil {
		c.fatalf("undeclared identifier %q", name)
	}

	if id.Kind == ident.Fn {
		rt, rc := c.call(id)
		return rt, rc, false, true
	}

	switch id.Kind {
	case ident.Const:
		typ, con = id.Type, id.ConstVal
	case ident.Var:
		c.doPushVarPtr(id)
		typ = c.lvalueType(id.Type)
		isVar = true
	default:
		c.fatalf("%s is not a value", name)
	}

	for {
		switch c.tok {
		case token.DOT:
			c.next()
			fname := c.expectIdentName()
			base := c.normalize(typ, isVar)
			if base.Kind != types.Struct && base.Kind != types.Interface {
				c.fatalf("%s is not a struct or interface", base)
			}
			f := types.FindField(base, fname)
			if f == nil {
				c.fatalf("unknown field %q", fname)
			}
			c.em.EmitArg(emit.FIELDADDR, uint32(f.Offset), 0)
			typ, isVar, con = c.lvalueType(f.Type), true, nil

		case token.LBRACK:
			c.next()
			base := c.normalize(typ, isVar)
			var elemT *types.Type
			switch base.Kind {
			case types.Array, types.DynArray:
				elemT = base.Base
			case types.Str:
				elemT = c.types.Builtin(types.Char)
			default:
				c.fatalf("%s is not indexable", base)
			}
			idxT, idxC := c.parseExpr()
			if !idxT.Kind.IsInteger() {
				c.fatalf("index must be an integer, got %s", idxT)
			}
			c.materializeConst(idxT, idxC)
			c.expect(token.RBRACK)
			c.em.EmitArg(emit.INDEXADDR, uint32(types.SizeOf(elemT)), -1)
			typ, isVar, con = c.lvalueType(elemT), true, nil

		case token.CIRCUMFLEX:
			c.next()
			base := c.normalize(typ, isVar)
			if base.Kind != types.Ptr {
				c.fatalf("%s is not a pointer", base)
			}
			typ, isVar, con = c.lvalueType(base.Base), true, nil

		default:
			return typ, con, isVar, isCall
		}
	}
}

// lvalueType reports the type a designator reports for the value currently
// addressed on the stack: the bare type if it is structured (the value
// representation already is an address), or a synthetic pointer to it
// otherwise (the stack holds the address of a scalar).
func (c *Compiler) lvalueType(t *types.Type) *types.Type {
	if t.Kind.IsStructured() {
		return t
	}
	return c.types.AddPtrTo(t, c.scopes.CurrentNumber(), false)
}

// normalize collapses typ/isVar to the plain value it denotes, dereferencing
// the synthetic lvalue wrap exactly once when present. A real pointer value
// (e.g. the result of "p" where p: ^Struct) is returned as-is: its runtime
// value already equals the address of the structure it points to, so
// field/index access through it needs no further dereference.
func (c *Compiler) normalize(typ *types.Type, isVar bool) *types.Type {
	if isVar && typ.Kind == types.Ptr {
		c.em.Emit(emit.DEREF, 0)
		return typ.Base
	}
	return typ
}

// arrayLiteral parses "[" "]" ElemType "{" expr {"," expr} "}", an array
// composite literal. Every element must fold to a compile-time constant:
// the whole literal is interned as one constant-pool entry, the same way a
// string literal is. A literal containing a non-constant element (e.g. a
// variable reference) is rejected; building one at runtime would need to
// interleave each element's arbitrary side-effecting code with NEWARRAY/
// INDEXADDR/ASSIGN in source order, which the single-pass designator chain
// above cannot express without buffering code out of emission order.
// NEWARRAY itself is emitted only for variable declarations of
// dynamic-array type with no initializer (see decl.go).
func (c *Compiler) arrayLiteral() (*types.Type, *types.Const, bool, bool) {
	c.expect(token.LBRACK)
	c.expect(token.RBRACK)
	elemT := c.parseTypeExpr()
	if !elemT.Kind.IsOrdinal() && !elemT.Kind.IsReal() {
		c.fatalf("array literal requires ordinal or real elements, got %s", elemT)
	}
	c.expect(token.LBRACE)

	var elemConsts []*types.Const
	for c.tok != token.RBRACE {
		t, cn := c.parseExpr()
		if err := types.AssertCompatible(elemT, t, false); err != nil {
			c.fatalf("%s", err)
		}
		if cn == nil {
			c.fatalf("array literal element must be a compile-time constant")
		}
		elemConsts = append(elemConsts, cn)
		if c.tok == token.COMMA {
			c.next()
		} else {
			break
		}
	}
	c.expect(token.RBRACE)

	arrT := c.types.Add(types.DynArray, c.scopes.CurrentNumber())
	arrT.Base = elemT

	values := make([]any, len(elemConsts))
	for i, cn := range elemConsts {
		values[i] = constAny(elemT, cn)
	}
	idx := c.prog.AddConstant(emit.DynArrayConst{ElemSize: types.SizeOf(elemT), Elems: values})
	cn := types.IntConst(types.DynArray, int64(idx))
	return arrT, &cn, false, false
}

func constAny(t *types.Type, cn *types.Const) any {
	if t.Kind.IsReal() {
		return cn.Real
	}
	return cn.Int
}

// call parses "(" [expr {"," expr}] ")" against id's signature and emits
// the CALL sequence. When the result type is structured, a hidden result
// slot is allocated in the current block and its address is pushed before
// the arguments (the "__result" convention): the callee writes its
// structured return value directly into caller-owned storage instead of
// returning it by value.
func (c *Compiler) call(id *ident.Ident) (*types.Type, *types.Const) {
	sig := id.Type.Signature
	c.expect(token.LPAREN)

	resultT := c.types.Builtin(types.Void)
	if sig != nil && len(sig.ResultTypes) > 0 {
		resultT = sig.ResultTypes[0]
	}

	var resultSlot *ident.Ident
	if resultT.Kind.IsStructured() {
		resultSlot = c.allocTemp(resultT)
		c.doPushVarPtr(resultSlot)
	}

	n := 0
	for c.tok != token.RPAREN {
		argT, argC := c.parseExpr()
		c.materializeConst(argT, argC)
		if sig != nil && n < len(sig.Params) {
			if err := types.AssertCompatible(sig.Params[n].Type, argT, false); err != nil {
				c.fatalf("%s", err)
			}
		}
		n++
		if c.tok == token.COMMA {
			c.next()
		} else {
			break
		}
	}
	c.expect(token.RPAREN)

	hidden := 0
	if resultSlot != nil {
		hidden = 1
	}
	pushed := n + hidden
	result := 0
	if resultT.Kind != types.Void {
		// A structured result comes back as the pointer to the hidden slot
		// (the result-register convention, see returnStmt), a scalar as its
		// value; either way the call leaves exactly one value.
		result = 1
	}
	c.em.EmitArg(emit.CALL, uint32(id.Offset), result-pushed)
	return resultT, nil
}

// allocTemp declares an unnamed local of type t in the current block, used
// for call-site hidden result slots.
func (c *Compiler) allocTemp(t *types.Type) *ident.Ident {
	block := c.scopes.CurrentNumber()
	size := types.SizeOf(t)
	offset := c.scopes.FrameSize(c.scopes.EnclosingFunc())
	c.scopes.AddLocalSize(size)
	return ident.AllocVar(c.idents, "", t, block, offset, c.scopes.EnclosingFunc() < 0)
}

// doApplyOperator applies op to (lt, lc) and (rt, rc), folding the constant
// case at compile time with no code emitted ("x = 41 + 1" stores 42
// directly), or materializing both operands and emitting the opcode
// otherwise.
func (c *Compiler) doApplyOperator(op token.Token, lt *types.Type, lc *types.Const, rt *types.Type, rc *types.Const) (*types.Type, *types.Const) {
	if !types.OperatorValid(op, lt) {
		c.fatalf("operator %s not valid for type %s", op.GoString(), lt)
	}
	if !types.OperatorValid(op, rt) {
		c.fatalf("operator %s not valid for type %s", op.GoString(), rt)
	}
	symmetric := token.IsEquality(op) || token.IsOrdering(op)
	if err := types.AssertCompatible(lt, rt, symmetric); err != nil {
		c.fatalf("%s", err)
	}

	resultT := lt
	if isComparisonOp(op) {
		resultT = c.types.Builtin(types.Bool)
	} else if lt.Kind.IsReal() || rt.Kind.IsReal() {
		resultT = c.types.Builtin(types.Real)
	}

	// String constants carry a constant-pool index rather than their literal
	// value (see primary's STRING case), so no string operator is ever
	// folded: always materialize and let the machine's opcode handle it.
	if lt.Kind == types.Str || rt.Kind == types.Str {
		c.materializeOperands(lt, lc, rt, rc)
		c.em.Emit(binOpcode[op], -1)
		return resultT, nil
	}

	if lc != nil && rc != nil {
		return resultT, foldBinary(op, resultT, lt, rt, lc, rc)
	}

	c.materializeOperands(lt, lc, rt, rc)
	c.em.Emit(binOpcode[op], -1)
	return resultT, nil
}

// materializeOperands emits the deferred pushes for the operands of a binary
// operator so they end up on the stack in source order: when only the left
// operand folded, the right operand's code is already emitted, so the pushed
// constant must be swapped beneath it.
func (c *Compiler) materializeOperands(lt *types.Type, lc *types.Const, rt *types.Type, rc *types.Const) {
	if lc != nil && rc == nil {
		c.materializeConst(lt, lc)
		c.em.Emit(emit.SWAP, 0)
		return
	}
	c.materializeConst(lt, lc)
	c.materializeConst(rt, rc)
}

func isComparisonOp(op token.Token) bool {
	return token.IsEquality(op) || token.IsOrdering(op) || op == token.AND || op == token.OR
}

// doImplicitTypeConv widens/narrows src toward dest when they are
// Compatible but not Equivalent (e.g. Int32 toward Int, Real32 toward
// Real). This layer's responsibility is the compile-time decision of when a
// conversion is legal, so it updates constant representations only and
// otherwise leaves runtime values as emitted (the machine's scalar cells
// share one representation per numeric class, so no width-change
// instruction is needed).
func (c *Compiler) doImplicitTypeConv(dest, src *types.Type, con *types.Const) *types.Const {
	if con == nil || types.Equivalent(dest, src) {
		return con
	}
	if dest.Kind.IsReal() && src.Kind.IsInteger() {
		v := types.RealConst(dest.Kind, float64(con.Int))
		return &v
	}
	return con
}

// doPushVarPtr emits the address of id: a frame-relative local or an
// absolute global, per whether id was declared inside a function body.
func (c *Compiler) doPushVarPtr(id *ident.Ident) {
	if id.Global {
		c.em.EmitArg(emit.PUSHGLOBAL, uint32(id.Offset), +1)
	} else {
		c.em.EmitArg(emit.PUSHLOCAL, uint32(id.Offset), +1)
	}
}

// materializeConst emits the deferred PUSHCONST for a still-unmaterialized
// constant operand; it is a no-op when con is nil (the operand's code was
// already emitted when it was parsed).
func (c *Compiler) materializeConst(t *types.Type, con *types.Const) {
	if con == nil {
		return
	}
	c.pushConst(t, con)
}

// pushConst emits the constant's value. When con is nil (used for synthetic
// zero operands and unresolved index temporaries) the type's zero value is
// pushed.
func (c *Compiler) pushConst(t *types.Type, con *types.Const) {
	if con == nil {
		zc := zeroConst(t)
		con = &zc
	}
	// Str and DynArray constants already carry a constant-pool index in Int
	// (interned when the literal was parsed, see primary's STRING case and
	// arrayLiteral); every other kind is interned here, lazily, the first
	// time the value is actually needed on the stack.
	if t.Kind == types.Str || t.Kind == types.DynArray {
		c.em.EmitArg(emit.PUSHCONST, uint32(con.Int), +1)
		return
	}
	idx := c.prog.AddConstant(constAny(t, con))
	c.em.EmitArg(emit.PUSHCONST, uint32(idx), +1)
}

func zeroConst(t *types.Type) types.Const {
	if t.Kind.IsReal() {
		return types.RealConst(t.Kind, 0)
	}
	return types.IntConst(t.Kind, 0)
}

func foldUnary(op token.Token, t *types.Type, c *types.Const) *types.Const {
	switch op {
	case token.MINUS:
		if t.Kind.IsReal() {
			v := types.RealConst(t.Kind, -c.Real)
			return &v
		}
		v := types.IntConst(t.Kind, -c.Int)
		return &v
	case token.NOT:
		v := types.IntConst(t.Kind, boolToInt(c.Int == 0))
		return &v
	case token.TILDE:
		v := types.IntConst(t.Kind, ^c.Int)
		return &v
	}
	return c
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func foldBinary(op token.Token, resultT, lt, rt *types.Type, lc, rc *types.Const) *types.Const {
	if lt.Kind.IsReal() || resultT.Kind.IsReal() {
		lf, rf := asReal(lt, lc), asReal(rt, rc)
		switch op {
		case token.PLUS:
			v := types.RealConst(resultT.Kind, lf+rf)
			return &v
		case token.MINUS:
			v := types.RealConst(resultT.Kind, lf-rf)
			return &v
		case token.STAR:
			v := types.RealConst(resultT.Kind, lf*rf)
			return &v
		case token.SLASH:
			v := types.RealConst(resultT.Kind, lf/rf)
			return &v
		default:
			return foldRealCompare(op, lf, rf)
		}
	}

	li, ri := lc.Int, rc.Int
	switch op {
	case token.PLUS:
		v := types.IntConst(resultT.Kind, li+ri)
		return &v
	case token.MINUS:
		v := types.IntConst(resultT.Kind, li-ri)
		return &v
	case token.STAR:
		v := types.IntConst(resultT.Kind, li*ri)
		return &v
	case token.SLASH:
		v := types.IntConst(resultT.Kind, li/ri)
		return &v
	case token.PERCENT:
		v := types.IntConst(resultT.Kind, li%ri)
		return &v
	case token.AMPERSAND:
		v := types.IntConst(resultT.Kind, li&ri)
		return &v
	case token.PIPE:
		v := types.IntConst(resultT.Kind, li|ri)
		return &v
	case token.CIRCUMFLEX:
		v := types.IntConst(resultT.Kind, li^ri)
		return &v
	case token.LTLT:
		v := types.IntConst(resultT.Kind, li<<uint(ri))
		return &v
	case token.GTGT:
		v := types.IntConst(resultT.Kind, li>>uint(ri))
		return &v
	case token.AND:
		v := types.IntConst(resultT.Kind, boolToInt(li != 0 && ri != 0))
		return &v
	case token.OR:
		v := types.IntConst(resultT.Kind, boolToInt(li != 0 || ri != 0))
		return &v
	default:
		return foldIntCompare(op, li, ri)
	}
}

func asReal(t *types.Type, c *types.Const) float64 {
	if t.Kind.IsReal() {
		return c.Real
	}
	return float64(c.Int)
}

func foldIntCompare(op token.Token, l, r int64) *types.Const {
	var b bool
	switch op {
	case token.EQL:
		b = l == r
	case token.NEQ:
		b = l != r
	case token.LT:
		b = l < r
	case token.LE:
		b = l <= r
	case token.GT:
		b = l > r
	case token.GE:
		b = l >= r
	}
	v := types.IntConst(types.Bool, boolToInt(b))
	return &v
}

func foldRealCompare(op token.Token, l, r float64) *types.Const {
	var b bool
	switch op {
	case token.EQL:
		b = l == r
	case token.NEQ:
		b = l != r
	case token.LT:
		b = l < r
	case token.LE:
		b = l <= r
	case token.GT:
		b = l > r
	case token.GE:
		b = l >= r
	}
	v := types.IntConst(types.Bool, boolToInt(b))
	return &v
}

func (c *Compiler) expectIdentName() string {
	v := c.expect(token.IDENT)
	return v.Str
}
