package types

import (
	"fmt"

	"github.com/dolthub/maphash"
)

// maxFields and maxParams bound the number of fields a struct/interface may
// declare and the number of parameters a function signature may declare.
// Both are generous enough for any real program and exist only to turn a
// pathological declaration into a clean diagnostic instead of unbounded
// memory growth.
const (
	maxFields = 1 << 16
	maxParams = 1 << 8
)

var nameHasher = maphash.NewHasher[string]()

func hashName(name string) uint64 { return nameHasher.Hash(name) }

// Field is a named member of a Struct or Interface type.
type Field struct {
	Name   string
	Hash   uint64
	Type   *Type
	Offset int
}

// Param is a named, typed parameter of a function Signature. DefaultVal is
// non-nil when the declaration supplied a default; call sites never fill in
// a missing argument from it.
type Param struct {
	Name       string
	Hash       uint64
	Type       *Type
	DefaultVal *Const
}

// Signature describes a Fn type.
type Signature struct {
	IsMethod         bool
	OffsetFromSelf   int
	Params           []*Param
	NumDefaultParams int
	ResultTypes      []*Type
}

// Type is a compile-time type descriptor. Two Types are structurally
// equivalent (see Equivalent) independently of which declaration produced
// them; TypeIdent is purely informational and never affects equivalence.
type Type struct {
	Kind Kind

	// Block is the block number this descriptor was allocated in; the table
	// truncates all types whose Block matches a block being torn down.
	Block int

	// Base is the element/pointee type for Ptr, Array and DynArray.
	Base *Type

	// NumItems is the element count for Array.
	NumItems int

	// Weak marks a Ptr as a non-owning back-reference: it is never
	// refcounted.
	Weak bool

	// TypeIdent is the identifier this type was declared under, if any. Used
	// only for diagnostics and does not participate in Equivalent.
	TypeIdent string

	Fields    []*Field
	Signature *Signature
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	if t.TypeIdent != "" {
		return t.TypeIdent
	}
	switch t.Kind {
	case Ptr:
		prefix := "^"
		if t.Weak {
			prefix = "weak ^"
		}
		return prefix + t.Base.String()
	case Array:
		return fmt.Sprintf("[%d]%s", t.NumItems, t.Base.String())
	case DynArray:
		return "[]" + t.Base.String()
	default:
		return t.Kind.String()
	}
}

// Table is the append-only, block-scoped list of type descriptors owned by
// the compiler for the lifetime of a single module.
type Table struct {
	types []*Type
}

// NewTable returns a Table pre-seeded with the built-in primitive types, so
// callers can share single instances of e.g. Int or Bool rather than
// allocating a fresh descriptor per use.
func NewTable() *Table {
	tab := &Table{}
	for k := Kind(0); k < maxKind; k++ {
		tab.types = append(tab.types, &Type{Kind: k, Block: 0})
	}
	return tab
}

// Builtin returns the shared descriptor for a primitive kind (anything that
// is not Ptr, Array, DynArray, Struct, Interface or Fn).
func (tab *Table) Builtin(k Kind) *Type { return tab.types[k] }

// Add appends a new descriptor of kind k owned by block, and returns it.
func (tab *Table) Add(kind Kind, block int) *Type {
	t := &Type{Kind: kind, Block: block}
	tab.types = append(tab.types, t)
	return t
}

// AddPtrTo is a shortcut for Add(Ptr, block) with Base set to base.
func (tab *Table) AddPtrTo(base *Type, block int, weak bool) *Type {
	t := tab.Add(Ptr, block)
	t.Base = base
	t.Weak = weak
	return t
}

// DeepCopy replaces dst in place with a structural copy of src, duplicating
// owned field/param slices so later mutation of one does not affect the
// other, while preserving dst's own pointer identity (so existing references
// to dst remain valid, e.g. when resolving a Forward type in place).
func DeepCopy(dst, src *Type) {
	block := dst.Block
	*dst = *src
	dst.Block = block
	if src.Fields != nil {
		dst.Fields = make([]*Field, len(src.Fields))
		for i, f := range src.Fields {
			cp := *f
			dst.Fields[i] = &cp
		}
	}
	if src.Signature != nil {
		sig := *src.Signature
		sig.Params = make([]*Param, len(src.Signature.Params))
		for i, p := range src.Signature.Params {
			cp := *p
			sig.Params[i] = &cp
		}
		sig.ResultTypes = append([]*Type(nil), src.Signature.ResultTypes...)
		dst.Signature = &sig
	}
}

// Truncate removes every descriptor owned by block (and any later block,
// since blocks are torn down in LIFO order), called when a scope exits.
func (tab *Table) Truncate(block int) {
	i := 0
	for i < len(tab.types) && tab.types[i].Block < block {
		i++
	}
	tab.types = tab.types[:i]
}

// SizeOf returns the size in bytes of t's values per the primitive table,
// with Array/Struct/Interface computed from their element/field types. No
// padding is inserted: fields are laid out tightly in declaration order.
func SizeOf(t *Type) int {
	switch t.Kind {
	case Array:
		return t.NumItems * SizeOf(t.Base)
	case Struct, Interface:
		size := 0
		for _, f := range t.Fields {
			size += SizeOf(f.Type)
		}
		return size
	case DynArray, Fiber:
		return 8 // opaque handle
	default:
		return primitiveSize[t.Kind]
	}
}

// GarbageCollected reports whether t's values carry a reference count:
// Ptr (non-weak), Str, DynArray, Interface, Fiber, or any Array/Struct
// transitively containing one.
func GarbageCollected(t *Type) bool {
	switch t.Kind {
	case Ptr:
		return !t.Weak
	case Str, DynArray, Interface, Fiber:
		return true
	case Array:
		return GarbageCollected(t.Base)
	case Struct:
		for _, f := range t.Fields {
			if GarbageCollected(f.Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Equivalent reports whether two types are structurally identical: same
// kind, same base, same field/param names and types in order, same result
// types; for interfaces, the receiver slot is skipped when
// OffsetFromSelf == 0. TypeIdent never participates: named aliases are
// therefore transparent to Equivalent.
func Equivalent(l, r *Type) bool {
	if l == r {
		return true
	}
	if l == nil || r == nil {
		return false
	}
	if l.Kind != r.Kind {
		return false
	}
	switch l.Kind {
	case Ptr, Array, DynArray:
		if l.Kind == Array && l.NumItems != r.NumItems {
			return false
		}
		return Equivalent(l.Base, r.Base)
	case Struct:
		return equivalentFields(l.Fields, r.Fields)
	case Interface:
		lf, rf := l.Fields, r.Fields
		if l.Signature != nil && l.Signature.OffsetFromSelf == 0 && len(lf) > 0 {
			lf = lf[1:]
		}
		if r.Signature != nil && r.Signature.OffsetFromSelf == 0 && len(rf) > 0 {
			rf = rf[1:]
		}
		return equivalentFields(lf, rf)
	case Fn:
		return equivalentSignature(l.Signature, r.Signature)
	default:
		return true
	}
}

func equivalentFields(l, r []*Field) bool {
	if len(l) != len(r) {
		return false
	}
	for i := range l {
		// Both the hash and the name must match to accept: a hash collision
		// between differently named fields must not be treated as a match.
		if l[i].Hash != r[i].Hash || l[i].Name != r[i].Name || !Equivalent(l[i].Type, r[i].Type) {
			return false
		}
	}
	return true
}

func equivalentSignature(l, r *Signature) bool {
	if l == nil || r == nil {
		return l == r
	}
	if len(l.Params) != len(r.Params) || len(l.ResultTypes) != len(r.ResultTypes) {
		return false
	}
	for i := range l.Params {
		if l.Params[i].Hash != r.Params[i].Hash || l.Params[i].Name != r.Params[i].Name ||
			!Equivalent(l.Params[i].Type, r.Params[i].Type) {
			return false
		}
	}
	for i := range l.ResultTypes {
		if !Equivalent(l.ResultTypes[i], r.ResultTypes[i]) {
			return false
		}
	}
	return true
}

// Compatible reports whether a value of type src may be used where dst is
// expected. When symmetric is true (comparison contexts) the relation is
// also checked in reverse.
func Compatible(dst, src *Type, symmetric bool) bool {
	if Equivalent(dst, src) {
		return true
	}
	if dst.Kind.IsInteger() && src.Kind.IsInteger() {
		return true
	}
	if dst.Kind.IsReal() && src.Kind.IsReal() {
		return true
	}
	if dst.Kind == Ptr && dst.Base != nil && dst.Base.Kind == Void {
		return src.Kind == Ptr || src.Kind == Null
	}
	if dst.Kind == Ptr && src.Kind == Null {
		return true
	}
	if symmetric {
		return Compatible(src, dst, false)
	}
	return false
}

// AssertCompatible returns an error naming dst and src if Compatible would
// be false.
func AssertCompatible(dst, src *Type, symmetric bool) error {
	if Compatible(dst, src, symmetric) {
		return nil
	}
	return fmt.Errorf("incompatible types %s and %s", dst, src)
}

// FindField returns the field named name in t, or nil if not found.
func FindField(t *Type, name string) *Field {
	h := hashName(name)
	for _, f := range t.Fields {
		if f.Hash == h && f.Name == name {
			return f
		}
	}
	return nil
}

// AddField appends a new field to t, enforcing uniqueness, a non-void type,
// and that the type is fully resolved (not Forward).
func AddField(t *Type, name string, ft *Type) (*Field, error) {
	if len(t.Fields) >= maxFields {
		return nil, fmt.Errorf("too many fields in %s", t)
	}
	if ft.Kind == Void {
		return nil, fmt.Errorf("field %q cannot have void type", name)
	}
	if ft.Kind == Forward {
		return nil, fmt.Errorf("field %q has unresolved forward type", name)
	}
	if FindField(t, name) != nil {
		return nil, fmt.Errorf("duplicate field %q", name)
	}
	offset := 0
	if n := len(t.Fields); n > 0 {
		last := t.Fields[n-1]
		offset = last.Offset + SizeOf(last.Type)
	}
	f := &Field{Name: name, Hash: hashName(name), Type: ft, Offset: offset}
	t.Fields = append(t.Fields, f)
	return f, nil
}

// FindParam returns the parameter named name in sig, or nil if not found.
func FindParam(sig *Signature, name string) *Param {
	h := hashName(name)
	for _, p := range sig.Params {
		if p.Hash == h && p.Name == name {
			return p
		}
	}
	return nil
}

// AddParam appends a new parameter to sig, enforcing uniqueness and a
// fully-resolved, non-void type.
func AddParam(sig *Signature, name string, pt *Type, def *Const) (*Param, error) {
	if len(sig.Params) >= maxParams {
		return nil, fmt.Errorf("too many parameters")
	}
	if pt.Kind == Void {
		return nil, fmt.Errorf("parameter %q cannot have void type", name)
	}
	if pt.Kind == Forward {
		return nil, fmt.Errorf("parameter %q has unresolved forward type", name)
	}
	if FindParam(sig, name) != nil {
		return nil, fmt.Errorf("duplicate parameter %q", name)
	}
	p := &Param{Name: name, Hash: hashName(name), Type: pt, DefaultVal: def}
	sig.Params = append(sig.Params, p)
	if def != nil {
		sig.NumDefaultParams++
	}
	return p, nil
}
