package emit

import "encoding/binary"

// Emitter accumulates instructions for a single Funcode. Jumps and other
// patchable operands are always encoded on a fixed 4 bytes so their offset
// can be fixed up after the fact without shifting later code (see Patch).
type Emitter struct {
	fn    *Funcode
	stack int // running operand-stack depth estimate, for MaxStack
}

// NewEmitter returns an Emitter writing into fn.
func NewEmitter(fn *Funcode) *Emitter { return &Emitter{fn: fn} }

// Offset returns the next instruction's address, i.e. the current length of
// the code buffer.
func (e *Emitter) Offset() int { return len(e.fn.Code) }

// Emit appends op with no operand and returns its address.
func (e *Emitter) Emit(op Opcode, effect int) int {
	addr := e.Offset()
	e.fn.Code = append(e.fn.Code, byte(op))
	e.track(effect)
	return addr
}

// EmitArg appends op with an immediate operand and returns its address.
// Opcodes whose operand may later be patched (see FixedArg) are always
// encoded with a fixed 4-byte field so Patch can overwrite it once the real
// value is known; every other operand uses the shortest varint encoding.
func (e *Emitter) EmitArg(op Opcode, arg uint32, effect int) int {
	addr := e.Offset()
	e.fn.Code = append(e.fn.Code, byte(op))
	if FixedArg(op) {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], arg)
		e.fn.Code = append(e.fn.Code, buf[:]...)
	} else {
		e.fn.Code = binary.AppendUvarint(e.fn.Code, uint64(arg))
	}
	e.track(effect)
	return addr
}

// Stub emits a jump opcode with a placeholder target, to be patched later
// once the branch destination is known. It returns the address to pass to
// Patch.
func (e *Emitter) Stub(op Opcode) int { return e.EmitArg(op, 0, 0) }

// Patch overwrites the 4-byte operand of the jump instruction at addr (as
// returned by Stub) with target, the address execution should transfer to.
func (e *Emitter) Patch(addr int, target uint32) {
	binary.LittleEndian.PutUint32(e.fn.Code[addr+1:addr+5], target)
}

// PatchHere patches the jump at addr to target the next instruction to be
// emitted.
func (e *Emitter) PatchHere(addr int) { e.Patch(addr, uint32(e.Offset())) }

func (e *Emitter) track(effect int) {
	e.stack += effect
	if e.stack > e.fn.MaxStack {
		e.fn.MaxStack = e.stack
	}
}

// Decode reads a single instruction at addr, returning its opcode, operand
// (0 if it takes none) and total encoded size.
func Decode(code []byte, addr int) (op Opcode, arg uint32, size int) {
	op = Opcode(code[addr])
	if op < OpcodeArgMin {
		return op, 0, 1
	}
	if FixedArg(op) {
		return op, binary.LittleEndian.Uint32(code[addr+1 : addr+5]), 5
	}
	v, n := binary.Uvarint(code[addr+1:])
	return op, uint32(v), 1 + n
}
