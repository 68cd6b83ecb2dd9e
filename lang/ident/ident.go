// Package ident implements the compiler's identifier table: an
// append-ordered list of named entities (variables, constants, functions,
// types), each tagged with the block that owns it, searched newest-to-oldest
// so inner scopes shadow outer ones.
package ident

import (
	"fmt"

	"github.com/dolthub/maphash"
	"github.com/mna/corvid/lang/types"
)

// Kind classifies what an Ident denotes.
type Kind uint8

const (
	Var Kind = iota
	Const
	Type
	Fn
	Module
)

var kindNames = [...]string{
	Var: "variable", Const: "constant", Type: "type", Fn: "function", Module: "module",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Ident is a named entity visible to the statement compiler.
type Ident struct {
	Kind Kind
	Name string
	Hash uint64
	Type *types.Type
	Block int

	// ConstVal holds the value for a Const ident, set at declaration time.
	ConstVal *types.Const

	// Offset is a frame offset for a local Var, or an absolute address for a
	// global Var; for a Fn it is its index into Program.Functions.
	Offset int

	// Global reports whether Offset addresses a global slot rather than a
	// frame-relative local; set by the statement compiler at declaration time
	// from whether a function body currently encloses the declaration.
	Global bool

	Exported bool

	// PrototypeOffset is >= 0 for a function ident declared without a body
	// yet (forward declaration or external). It must be resolved (the body
	// compiled, or an external of the same name found) before the module is
	// considered complete.
	PrototypeOffset int

	// next/prev link idents in append order; prev exists purely so Lookup's
	// newest-to-oldest shadowing walk is O(depth) instead of O(n) per
	// lookup.
	next, prev *Ident
}

var identHasher = maphash.NewHasher[string]()

// Table is the append-ordered, block-scoped identifier list.
type Table struct {
	first, last *Ident
}

// Lookup searches from newest to oldest so inner scopes shadow outer ones,
// and returns the first Ident named name, or nil.
func (t *Table) Lookup(name string) *Ident {
	h := identHasher.Hash(name)
	for i := t.last; i != nil; i = i.prev {
		if i.Hash == h && i.Name == name {
			return i
		}
	}
	return nil
}

// add appends a new Ident to the table.
func (t *Table) add(kind Kind, name string, ty *types.Type, block int) *Ident {
	id := &Ident{Kind: kind, Name: name, Hash: identHasher.Hash(name), Type: ty, Block: block, PrototypeOffset: -1}
	if t.first == nil {
		t.first, t.last = id, id
	} else {
		t.last.next = id
		id.prev = t.last
		t.last = id
	}
	return id
}

// AllocVar declares a new variable. The caller supplies offset (a frame
// offset for a local, an absolute address for a global) and global, per
// whether a function body currently encloses the declaration.
func AllocVar(t *Table, name string, ty *types.Type, block, offset int, global bool) *Ident {
	id := t.add(Var, name, ty, block)
	id.Offset = offset
	id.Global = global
	return id
}

// AllocParam declares a parameter as a local variable using the signature's
// parameter layout; the caller supplies the frame offset per the calling
// convention (see lang/compiler's fnBlock).
func AllocParam(t *Table, name string, ty *types.Type, block, offset int) *Ident {
	id := t.add(Var, name, ty, block)
	id.Offset = offset
	return id
}

// DeclareConst declares a named compile-time constant with its folded value.
func DeclareConst(t *Table, name string, ty *types.Type, block int, val *types.Const) *Ident {
	id := t.add(Const, name, ty, block)
	id.ConstVal = val
	return id
}

// DeclareType declares a named type alias/definition.
func DeclareType(t *Table, name string, ty *types.Type, block int) *Ident {
	return t.add(Type, name, ty, block)
}

// DeclareFn declares a function, possibly as a prototype (prototypeOffset >=
// 0) awaiting its body or an external match.
func DeclareFn(t *Table, name string, ty *types.Type, block, prototypeOffset int) *Ident {
	id := t.add(Fn, name, ty, block)
	id.PrototypeOffset = prototypeOffset
	return id
}

// FreeBlock removes every Ident owned by block (called on scope exit),
// retaining prototype function idents (PrototypeOffset >= 0) until module end
// for external resolution.
func (t *Table) FreeBlock(block int) {
	var newFirst, newLast *Ident
	for cur := t.first; cur != nil; {
		nxt := cur.next
		keep := cur.Block != block || (cur.Kind == Fn && cur.PrototypeOffset >= 0)
		if keep {
			cur.next, cur.prev = nil, nil
			if newFirst == nil {
				newFirst, newLast = cur, cur
			} else {
				newLast.next = cur
				cur.prev = newLast
				newLast = cur
			}
		}
		cur = nxt
	}
	t.first, t.last = newFirst, newLast
}

// Unresolved returns every remaining Ident with PrototypeOffset >= 0, i.e.
// forward-declared functions never given a body nor matched to an external.
// A successful compilation leaves this slice empty.
func (t *Table) Unresolved() []*Ident {
	var out []*Ident
	for cur := t.first; cur != nil; cur = cur.next {
		if cur.Kind == Fn && cur.PrototypeOffset >= 0 {
			out = append(out, cur)
		}
	}
	return out
}

// InBlock returns, oldest-to-newest, every Ident owned directly by block.
// Used by the reference-count inserter (package lang/compiler), which walks
// it backward so resources are released in reverse acquisition order.
func (t *Table) InBlock(block int) []*Ident {
	var out []*Ident
	for cur := t.first; cur != nil; cur = cur.next {
		if cur.Block == block {
			out = append(out, cur)
		}
	}
	return out
}
