package types

// Const is a tagged union carrying a compile-time-known value, used both for
// constant folding during expression compilation and for direct
// initialization of global variables (bypassing the runtime refcount path).
type Const struct {
	Kind Kind // an integer/real kind, Bool, Char, Null, or Str/DynArray (Int is then a constant-pool index)

	Int  int64
	Real float64
	Ptr  bool // true if this constant represents the null pointer
}

// IntConst returns a Const holding an integer value of the given kind.
func IntConst(kind Kind, v int64) Const { return Const{Kind: kind, Int: v} }

// RealConst returns a Const holding a floating-point value of the given
// kind.
func RealConst(kind Kind, v float64) Const { return Const{Kind: kind, Real: v} }

// NullConst returns the Const representing the null pointer literal.
func NullConst() Const { return Const{Kind: Null, Ptr: true} }
