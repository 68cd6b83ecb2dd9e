package compiler

import (
	"github.com/mna/corvid/lang/emit"
	"github.com/mna/corvid/lang/ident"
	"github.com/mna/corvid/lang/types"
)

// collect emits a refcount release for every Var owned directly by block
// whose type is garbage-collected: push its address, dereference,
// decrement, pop. Idents are released newest-to-oldest, so resources are
// torn down in the reverse order they were acquired.
func (c *Compiler) collect(block int) {
	ids := c.idents.InBlock(block)
	for i := len(ids) - 1; i >= 0; i-- {
		c.collectOne(ids[i])
	}
}

// collectDownTo walks the block stack from the current top downward,
// collecting each intermediate block, stopping before target is processed
// itself. Used by break/continue/return so a jump out of nested scopes
// releases exactly the scopes it skips over.
func (c *Compiler) collectDownTo(target int) {
	for b := c.scopes.Current(); b != nil && b.Number != target; b = b.Parent() {
		c.collect(b.Number)
	}
}

func (c *Compiler) collectOne(id *ident.Ident) {
	if id.Kind != ident.Var || !types.GarbageCollected(id.Type) {
		return
	}
	c.doPushVarPtr(id)
	c.em.Emit(emit.DEREF, 0)
	c.em.Emit(emit.DECREFCNT, 0)
	c.em.Emit(emit.POP, -1)
}
