package compiler

import (
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/token"
	"github.com/mna/corvid/lang/types"
)

// This file implements the module-level declaration forms
// (type/const/var/fn): fnBlock only ever runs as the body of a parsed "fn"
// declaration, so its driver lives here too. Kept minimal: one declaration
// per statement, no generics, no multiple return values beyond the single
// result type Signature models.

// module = {typeDecl | constDecl | varDecl | fnDecl}.
func (c *Compiler) module() {
	for c.tok != token.EOF {
		switch c.tok {
		case token.TYPE:
			c.typeDecl()
		case token.CONST:
			c.constDecl()
		case token.VAR:
			c.varDecl()
		case token.FN:
			c.fnDecl()
		default:
			c.fatalf("expected declaration, found %s", c.tok.GoString())
		}
		if c.tok == token.SEMI {
			c.next()
		}
	}
}

// typeDecl = "type" ident "=" typeExpr.
//
// The named ident is registered as a Forward type before its definition is
// parsed so a later "^Name" inside the definition itself (a self-referencing
// struct) resolves to the same Type value; DeepCopy then replaces it in
// place once the definition is known, preserving that pointer identity (see
// lang/types.DeepCopy's doc comment).
func (c *Compiler) typeDecl() {
	c.expect(token.TYPE)
	name := c.expectIdentName()
	block := c.scopes.CurrentNumber()

	fwd := c.types.Add(types.Forward, block)
	ident.DeclareType(c.idents, name, fwd, block)

	c.expect(token.EQ)
	def := c.parseTypeExpr()
	types.DeepCopy(fwd, def)
	fwd.TypeIdent = name
}

// constDecl = "const" ident "=" expr.
func (c *Compiler) constDecl() {
	c.expect(token.CONST)
	name := c.expectIdentName()
	c.expect(token.EQ)

	t, con := c.parseExpr()
	if con == nil {
		c.fatalf("const %q initializer is not a compile-time constant", name)
	}
	ident.DeclareConst(c.idents, name, t, c.scopes.CurrentNumber(), con)
}

// varDecl = "var" ident ":" typeExpr ["=" expr].
//
// An initializer that folds to a compile-time constant of a type that is not
// garbage-collected bypasses the runtime refcount path: a plain store into
// the variable's storage, with no increment/decrement pair, applied
// uniformly to globals and locals. A folded constant of a garbage-collected
// type (a string literal) still takes the refcounted path. A
// declared-but-uninitialized dynamic array starts from a fresh empty
// allocation rather than a null handle so len/index work uniformly.
func (c *Compiler) varDecl() {
	c.expect(token.VAR)
	name := c.expectIdentName()
	c.expect(token.COLON)
	t := c.parseTypeExpr()

	global := c.scopes.EnclosingFunc() < 0
	block := c.scopes.CurrentNumber()
	offset := c.allocSlot(t, global)
	id := ident.AllocVar(c.idents, name, t, block, offset, global)

	if c.tok != token.EQ {
		if t.Kind == types.DynArray {
			c.em.EmitArg(emit.NEWARRAY, uint32(types.SizeOf(t.Base)), +1)
			c.em.Emit(emit.INCREFCNT, 0)
			c.doPushVarPtr(id)
			c.em.EmitArg(emit.SWAPCHANGEREFCNTASSIGN, 0, -2)
		}
		return
	}
	c.next()

	rt, rc := c.parseExpr()
	rc = c.doImplicitTypeConv(t, rt, rc)
	if err := types.AssertCompatible(t, rt, false); err != nil {
		c.fatalf("%s", err)
	}

	if rc != nil && !types.GarbageCollected(t) {
		c.doPushVarPtr(id)
		c.pushConst(t, rc)
		c.em.EmitArg(emit.ASSIGN, uint32(storeSize(t)), -2)
		return
	}

	c.materializeConst(t, rc)
	c.em.Emit(emit.INCREFCNT, 0)
	c.doPushVarPtr(id)
	c.em.EmitArg(emit.SWAPCHANGEREFCNTASSIGN, uint32(storeSize(t)), -2)
}

// allocSlot assigns a fresh local frame offset (accumulating onto the
// current function's running frame size) or a fresh global address
// (accumulating onto module scope's, block 0's, running size) for a
// variable of type t.
func (c *Compiler) allocSlot(t *types.Type, global bool) int {
	size := types.SizeOf(t)
	var offset int
	if global {
		offset = c.scopes.FrameSize(-1)
	} else {
		offset = c.scopes.FrameSize(c.scopes.EnclosingFunc())
	}
	c.scopes.AddLocalSize(size)
	return offset
}

// fnDecl = "fn" ident "(" [param {"," param}] ")" [":" typeExpr] (fnBlock | ).
// param = ident ":" typeExpr.
//
// A declaration with no body (next token is not "{") is a prototype: it is
// left unresolved (Ident.PrototypeOffset >= 0) until a later declaration of
// the same name supplies the body, or CompileModule's resolveExterns pass
// matches it against the external symbol registry.
func (c *Compiler) fnDecl() {
	c.expect(token.FN)
	name := c.expectIdentName()

	sig := &types.Signature{}
	fnType := c.types.Add(types.Fn, c.scopes.CurrentNumber())
	fnType.Signature = sig
	fnType.TypeIdent = name

	c.expect(token.LPAREN)
	for c.tok != token.RPAREN {
		pname := c.expectIdentName()
		c.expect(token.COLON)
		pt := c.parseTypeExpr()
		if _, err := types.AddParam(sig, pname, pt, nil); err != nil {
			c.fatalf("%s", err)
		}
		if c.tok == token.COMMA {
			c.next()
		} else {
			break
		}
	}
	c.expect(token.RPAREN)

	if c.tok == token.COLON {
		c.next()
		sig.ResultTypes = []*types.Type{c.parseTypeExpr()}
	} else {
		sig.ResultTypes = []*types.Type{c.types.Builtin(types.Void)}
	}

	block := c.scopes.CurrentNumber()
	if prev := c.idents.Lookup(name); prev != nil && prev.Kind == ident.Fn &&
		prev.Block == block && prev.PrototypeOffset >= 0 {
		// the body for an earlier forward declaration: the signatures must
		// match, and the body compiles into the already-reserved slot
		if !types.Equivalent(prev.Type, fnType) {
			c.fatalf("function %q signature does not match its forward declaration", name)
		}
		if c.tok != token.LBRACE {
			c.fatalf("function %q is already declared", name)
		}
		prev.PrototypeOffset = -1
		outerEm, outerFn := c.em, c.fn
		c.fn = c.prog.Functions[prev.Offset]
		c.em = emit.NewEmitter(c.fn)
		c.fnBlock(prev)
		c.em, c.fn = outerEm, outerFn
		return
	}

	funcode := c.prog.NewFunction(name)
	offset := len(c.prog.Functions) - 1
	fn := ident.DeclareFn(c.idents, name, fnType, block, -1)
	fn.Offset = offset
	if c.fnByOffset == nil {
		c.fnByOffset = map[int]*ident.Ident{}
	}
	c.fnByOffset[offset] = fn

	if c.tok != token.LBRACE {
		fn.PrototypeOffset = offset
		return
	}

	outerEm, outerFn := c.em, c.fn
	c.fn = funcode
	c.em = emit.NewEmitter(funcode)
	c.fnBlock(fn)
	c.em, c.fn = outerEm, outerFn
}

// parseTypeExpr parses the minimal type-expression grammar needed to
// declare fields, parameters, results and variables: named references,
// pointers (optionally weak, "^" prefix), fixed/dynamic arrays
// ("[n]"/"[]"), str, struct, interface and bare fn signatures.
func (c *Compiler) parseTypeExpr() *types.Type {
	switch c.tok {
	case token.WEAK:
		c.next()
		c.expect(token.CIRCUMFLEX)
		base := c.parseTypeExpr()
		return c.types.AddPtrTo(base, c.scopes.CurrentNumber(), true)

	case token.CIRCUMFLEX:
		c.next()
		base := c.parseTypeExpr()
		return c.types.AddPtrTo(base, c.scopes.CurrentNumber(), false)

	case token.LBRACK:
		c.next()
		if c.tok == token.RBRACK {
			c.next()
			elem := c.parseTypeExpr()
			t := c.types.Add(types.DynArray, c.scopes.CurrentNumber())
			t.Base = elem
			return t
		}
		n := c.expect(token.INT).Int
		c.expect(token.RBRACK)
		elem := c.parseTypeExpr()
		t := c.types.Add(types.Array, c.scopes.CurrentNumber())
		t.Base = elem
		t.NumItems = int(n)
		return t

	case token.STR:
		c.next()
		return c.types.Builtin(types.Str)

	case token.STRUCT:
		return c.parseFieldedType(types.Struct)

	case token.INTERFACE:
		return c.parseFieldedType(types.Interface)

	case token.FN:
		return c.parseFnType()

	case token.IDENT:
		name := c.expectIdentName()
		id := c.idents.Lookup(name)
		if id == nil || id.Kind != ident.Type {
			c.fatalf("%q is not a type", name)
		}
		return id.Type

	default:
		c.fatalf("expected type, found %s", c.tok.GoString())
		return nil
	}
}

// parseFieldedType parses "{" {ident ":" typeExpr [","]} "}" for
// struct/interface bodies.
func (c *Compiler) parseFieldedType(kind types.Kind) *types.Type {
	c.next()
	t := c.types.Add(kind, c.scopes.CurrentNumber())
	c.expect(token.LBRACE)
	for c.tok != token.RBRACE {
		fname := c.expectIdentName()
		c.expect(token.COLON)
		ft := c.parseTypeExpr()
		if _, err := types.AddField(t, fname, ft); err != nil {
			c.fatalf("%s", err)
		}
		if c.tok == token.COMMA {
			c.next()
		}
	}
	c.expect(token.RBRACE)
	return t
}

// parseFnType parses a bare function-type signature "fn" "(" [typeExpr {","
// typeExpr}] ")" [":" typeExpr], used for fields/params/results of Fn kind
// (e.g. a callback field in a struct). Parameters in this position are
// unnamed since no call site binds them by name.
func (c *Compiler) parseFnType() *types.Type {
	c.next()
	sig := &types.Signature{}
	t := c.types.Add(types.Fn, c.scopes.CurrentNumber())
	t.Signature = sig

	c.expect(token.LPAREN)
	i := 0
	for c.tok != token.RPAREN {
		pt := c.parseTypeExpr()
		if _, err := types.AddParam(sig, syntheticParamName(i), pt, nil); err != nil {
			c.fatalf("%s", err)
		}
		i++
		if c.tok == token.COMMA {
			c.next()
		} else {
			break
		}
	}
	c.expect(token.RPAREN)

	if c.tok == token.COLON {
		c.next()
		sig.ResultTypes = []*types.Type{c.parseTypeExpr()}
	} else {
		sig.ResultTypes = []*types.Type{c.types.Builtin(types.Void)}
	}
	return t
}

func syntheticParamName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)])
}
