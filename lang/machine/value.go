package machine

// Runtime values are plain Go values: int64 for every integer, boolean and
// character kind, float64 for the real kinds, *Str and *DynArray for the
// reference-counted handles, and ref for an address (a frame, global or heap
// cell). A nil cell reads as the zero value of whatever scalar the program
// stored there, since frames and globals start zeroed.

// ref is the runtime form of an address: a cell slice (a frame, the global
// arena, or a handle's element cells) and a byte offset into it. Scalars
// occupy the single cell at their offset; inline-structured values (arrays,
// structs) span a cell range, addressed the way the compiler laid them out.
type ref struct {
	cells []any
	off   int
}

// Str is the handle for a string value. Interned constants start with one
// reference so scope-exit decrements never free them.
type Str struct {
	S string

	refs  int32
	freed bool
	cells []any // lazily built for element addressing
}

func (s *Str) String() string { return s.S }

// Refs returns the current reference count.
func (s *Str) Refs() int32 { return s.refs }

// Freed reports whether the refcount reached zero.
func (s *Str) Freed() bool { return s.freed }

// chars returns the byte cells of s, built on first use, so INDEXADDR can
// hand out element addresses the same way it does for arrays.
func (s *Str) chars() []any {
	if s.cells == nil {
		s.cells = make([]any, len(s.S))
		for i := 0; i < len(s.S); i++ {
			s.cells[i] = int64(s.S[i])
		}
	}
	return s.cells
}

// DynArray is the handle for a dynamic array value: element cells laid out
// with Stride bytes per element, matching the INDEXADDR addressing the
// compiler emits.
type DynArray struct {
	Stride int
	Cells  []any

	refs  int32
	freed bool
}

// Len returns the number of elements.
func (d *DynArray) Len() int {
	if d.Stride == 0 {
		return 0
	}
	return len(d.Cells) / d.Stride
}

// Refs returns the current reference count.
func (d *DynArray) Refs() int32 { return d.refs }

// Freed reports whether the refcount reached zero.
func (d *DynArray) Freed() bool { return d.freed }

// resolve unwraps an address to the handle it holds, when it holds one:
// structured values travel as addresses (see the compiler's designator
// convention), so an operand that ends up in a LEN, INDEXADDR, refcount or
// comparison position may be one indirection away from its *Str/*DynArray.
func resolve(v any) any {
	for {
		r, ok := v.(ref)
		if !ok || r.off < 0 || r.off >= len(r.cells) {
			return v
		}
		switch r.cells[r.off].(type) {
		case *Str, *DynArray:
			v = r.cells[r.off]
		default:
			return v
		}
	}
}

func incref(v any) {
	switch h := resolve(v).(type) {
	case *Str:
		h.refs++
	case *DynArray:
		h.refs++
	}
}

func decref(v any) {
	switch h := resolve(v).(type) {
	case *Str:
		if h.refs--; h.refs <= 0 {
			h.freed = true
		}
	case *DynArray:
		if h.refs--; h.refs <= 0 {
			h.freed = true
		}
	}
}

// asInt reads v as an integer, treating a nil (zeroed) cell as 0.
func asInt(v any) (int64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, true
	case int64:
		return v, true
	}
	return 0, false
}

// asFloat reads v as a float, widening integers, treating nil as 0.
func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func truthy(v any) bool {
	i, _ := asInt(v)
	return i != 0
}

// isNullish reports whether v reads as the null pointer: a zeroed cell or
// the folded null constant (which materializes as integer 0).
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	i, ok := v.(int64)
	return ok && i == 0
}
