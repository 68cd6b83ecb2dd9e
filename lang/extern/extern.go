// Package extern implements the external symbol registry the compiler
// consults at end-of-module to resolve function prototypes that were never
// given a body, and that the machine dispatches to when a CALLEXTERN
// instruction executes.
package extern

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/mna/corvid/lang/compiler"
)

// Fn is a host function callable from compiled code. It receives the
// trampoline's parameter slots in declaration order (the hidden result
// pointer first when the prototype has a structured result) and returns the
// value to leave on the operand stack, or nil for a void result.
type Fn func(args []any) (any, error)

type entry struct {
	name string
	fn   Fn
}

// Registry maps external names to host functions. Registration order is
// significant: it assigns the index a CALLEXTERN instruction carries.
type Registry struct {
	byName  *swiss.Map[string, int]
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: swiss.NewMap[string, int](8)}
}

// Register adds fn under name and returns its index. Registering a name a
// second time replaces the function but keeps the original index, so
// already-compiled programs keep dispatching correctly.
func (r *Registry) Register(name string, fn Fn) int {
	if i, ok := r.byName.Get(name); ok {
		r.entries[i].fn = fn
		return i
	}
	i := len(r.entries)
	r.entries = append(r.entries, entry{name: name, fn: fn})
	r.byName.Put(name, i)
	return i
}

// Find implements the compiler's Externs contract.
func (r *Registry) Find(name string) (compiler.External, bool) {
	i, ok := r.byName.Get(name)
	if !ok {
		return compiler.External{}, false
	}
	return compiler.External{Name: name, Index: i}, true
}

// At returns the name and function registered at index i.
func (r *Registry) At(i int) (string, Fn, error) {
	if i < 0 || i >= len(r.entries) {
		return "", nil, fmt.Errorf("extern: no symbol registered at index %d", i)
	}
	e := r.entries[i]
	return e.name, e.fn, nil
}

// Len returns the number of registered symbols.
func (r *Registry) Len() int { return len(r.entries) }
