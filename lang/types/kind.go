// Package types implements the compiler's type table: interned, block-scoped
// type descriptors, structural equivalence and compatibility, size/layout
// computation, and the operator validity rules that the statement compiler
// consults while emitting code.
package types

import "fmt"

// Kind is the closed tagged enumeration of type kinds the language supports.
type Kind int8

const (
	None Kind = iota
	Forward
	Void
	Null
	Int8
	Int16
	Int32
	Int
	UInt8
	UInt16
	UInt32
	UInt
	Bool
	Char
	Real32
	Real
	Ptr
	Array
	DynArray
	Str
	Struct
	Interface
	Fiber
	Fn

	maxKind
)

var kindNames = [...]string{
	None:      "none",
	Forward:   "forward",
	Void:      "void",
	Null:      "null",
	Int8:      "int8",
	Int16:     "int16",
	Int32:     "int32",
	Int:       "int",
	UInt8:     "uint8",
	UInt16:    "uint16",
	UInt32:    "uint32",
	UInt:      "uint",
	Bool:      "bool",
	Char:      "char",
	Real32:    "real32",
	Real:      "real",
	Ptr:       "ptr",
	Array:     "array",
	DynArray:  "dynarray",
	Str:       "str",
	Struct:    "struct",
	Interface: "interface",
	Fiber:     "fiber",
	Fn:        "fn",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// primitiveSize holds the byte size of every kind whose size does not depend
// on another type (see SizeOf for Array/Struct/Interface, which are
// computed from their element/field types).
var primitiveSize = [...]int{
	Void: 0,

	Int8:  1,
	UInt8: 1,
	Bool:  1,
	Char:  1,

	Int16:  2,
	UInt16: 2,

	Int32:  4,
	UInt32: 4,
	Real32: 4,

	Int:  8,
	UInt: 8,
	Real: 8,
	Ptr:  8,
	Str:  8,
	Fn:   8,
}

// IsInteger reports whether k is one of the signed or unsigned integer
// kinds.
func (k Kind) IsInteger() bool {
	switch k {
	case Int8, Int16, Int32, Int, UInt8, UInt16, UInt32, UInt:
		return true
	}
	return false
}

// IsReal reports whether k is a floating-point kind.
func (k Kind) IsReal() bool { return k == Real32 || k == Real }

// IsOrdinal reports whether k admits case-expression equality on a finite
// value set: integers, booleans, characters.
func (k Kind) IsOrdinal() bool { return k.IsInteger() || k == Bool || k == Char }

// IsStructured reports whether values of k are passed by address: arrays,
// dynamic arrays, strings, structs, interfaces.
func (k Kind) IsStructured() bool {
	switch k {
	case Array, DynArray, Str, Struct, Interface:
		return true
	}
	return false
}
