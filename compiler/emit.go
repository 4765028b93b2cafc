package compiler

import (
	"fmt"
	"math/big"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/field"
	"github.com/rw0x0/swanky/ir"
	"github.com/rw0x0/swanky/utils"
)

// opInlineExpand is a pseudo opcode marking a resolved top-level call that
// the worker must expand from the callee's memoized body template. It never
// reaches the output file.
const opInlineExpand ir.Opcode = 0xff

// bodyOp is one resolved operation: a gate whose wires are already mapped
// to local slots. Workers encode these into segment bytes; body templates
// are stored as bodyOp lists with frame-relative slots.
type bodyOp struct {
	op    ir.Opcode
	field uint8

	out, in0, in1 uint32
	base, count   uint32

	// callee is the header function-table id for call and plugin records.
	callee uint32
	// def is the target of an opInlineExpand marker.
	def *defEntry
	// flattened slot lists for call, plugin and inline records
	outs, ins []uint32

	// value is a constant payload; wire keys public/witness input lookup.
	value *big.Int
	wire  uint64
	stmt  int
}

// emitter encodes resolved operations into a segment buffer. It is
// specialized over the party marker: the payload path is only reachable
// when the party embeds values, and reaching it otherwise is an internal
// consistency bug, not an input error.
type emitter[P Party] struct {
	party    P
	fields   []field.Field
	instance circuit.Inputs
	witness  circuit.Inputs

	buf  utils.OutputBuf
	nOps uint64
}

func (e *emitter[P]) reset() {
	e.buf.Reset()
	e.nOps = 0
}

// finish snapshots the buffer into a segment; the emitter can be reused
// afterwards.
func (e *emitter[P]) finish(kind ir.SegmentKind, seq int, funcID uint32, frameSize uint64) *ir.Segment {
	data := make([]byte, e.buf.Len())
	copy(data, e.buf.Bytes())
	return &ir.Segment{
		Kind:      kind,
		Seq:       seq,
		FuncID:    funcID,
		FrameSize: frameSize,
		NumOps:    e.nOps,
		Data:      data,
	}
}

func (e *emitter[P]) head(op ir.Opcode, fieldIdx uint8) {
	e.buf.AppendUint8(uint8(op))
	e.buf.AppendUint8(fieldIdx)
	e.nOps++
}

// payload appends one value payload. Calling this while compiling for a
// party that must not embed values would leak a secret, so it is fatal.
func (e *emitter[P]) payload(fieldIdx uint8, v *big.Int) {
	if !e.party.EmbedsValues() {
		panic(fmt.Sprintf("internal consistency violation: value payload emitted under %s party", e.party.PartyTag()))
	}
	e.fields[fieldIdx].Append(&e.buf, v)
}

func (e *emitter[P]) inputValue(op ir.Opcode, fieldIdx uint8, wire uint64, stmt int) (*big.Int, error) {
	pos := Pos{Func: "main", Index: stmt}
	var src circuit.Inputs
	var kind string
	if op == ir.OpPublic {
		src, kind = e.instance, "public"
	} else {
		src, kind = e.witness, "witness"
	}
	if src == nil {
		return nil, structuralf(pos, "no %s input source configured", kind)
	}
	v, ok := src.Value(fieldIdx, wire)
	if !ok {
		return nil, structuralf(pos, "missing %s input value for wire %d", kind, wire)
	}
	if !e.fields[fieldIdx].Contains(v) {
		return nil, structuralf(pos, "%s input for wire %d is not a canonical field element", kind, wire)
	}
	return v, nil
}

// encode appends one operation record. remap translates slots (nil for
// identity); scratch backs the remapped slot lists of call records.
func (e *emitter[P]) encode(b *bodyOp, remap func(uint32) uint32, scratch *arena[uint32]) error {
	r := func(s uint32) uint32 {
		if remap == nil {
			return s
		}
		return remap(s)
	}
	switch b.op {
	case ir.OpConst:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.out))
		if e.party.EmbedsValues() {
			e.payload(b.field, b.value)
		}
	case ir.OpAdd, ir.OpMul:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.out))
		e.buf.AppendUint32(r(b.in0))
		e.buf.AppendUint32(r(b.in1))
	case ir.OpAddConst, ir.OpMulConst:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.out))
		e.buf.AppendUint32(r(b.in0))
		if e.party.EmbedsValues() {
			e.payload(b.field, b.value)
		}
	case ir.OpCopy:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.out))
		e.buf.AppendUint32(r(b.in0))
	case ir.OpAssertZero:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.in0))
	case ir.OpPublic, ir.OpWitness:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.out))
		if e.party.EmbedsValues() {
			v, err := e.inputValue(b.op, b.field, b.wire, b.stmt)
			if err != nil {
				return err
			}
			e.payload(b.field, v)
		}
	case ir.OpNew, ir.OpDelete:
		e.head(b.op, b.field)
		e.buf.AppendUint32(r(b.base))
		e.buf.AppendUint32(b.count)
	case ir.OpCall, ir.OpPlugin:
		e.head(b.op, 0)
		e.buf.AppendUint32(b.callee)
		e.appendRanges(b.outs, remap, scratch)
		e.appendRanges(b.ins, remap, scratch)
	default:
		panic(fmt.Sprintf("encode of pseudo opcode %d", b.op))
	}
	return nil
}

// appendRanges run-length-compresses a flattened slot list into slot
// ranges. A list that was contiguous in a callee frame may scatter after
// remapping, so compression always happens after the remap.
func (e *emitter[P]) appendRanges(slots []uint32, remap func(uint32) uint32, scratch *arena[uint32]) {
	if remap != nil {
		mapped := scratch.alloc(len(slots))
		for i, s := range slots {
			mapped[i] = remap(s)
		}
		slots = mapped
	}
	runs := uint64(0)
	for i := 0; i < len(slots); {
		j := i + 1
		for j < len(slots) && slots[j] == slots[j-1]+1 {
			j++
		}
		runs++
		i = j
	}
	e.buf.AppendUint64(runs)
	for i := 0; i < len(slots); {
		j := i + 1
		for j < len(slots) && slots[j] == slots[j-1]+1 {
			j++
		}
		e.buf.AppendUint32(slots[i])
		e.buf.AppendUint32(uint32(j - i))
		i = j
	}
}

// frameRemap maps a callee's frame-relative slots into the caller's slot
// space: returns bind to the call's output slots, parameters to the input
// slots, internals to a block the caller reserved.
func frameRemap(d *defEntry, outs, ins []uint32, internalBase uint32) func(uint32) uint32 {
	nOut := uint32(d.numOut)
	nIn := uint32(d.numIn)
	return func(s uint32) uint32 {
		switch {
		case s < nOut:
			return outs[s]
		case s < nOut+nIn:
			return ins[s-nOut]
		default:
			return internalBase + (s - nOut - nIn)
		}
	}
}
