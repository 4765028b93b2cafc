package compiler

import (
	"fmt"
	"sync"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/ir"
)

// bodyTemplate is the compiled form of a function body: resolved operations
// with frame-relative slots. Linked definitions encode it once as their own
// segment; inline call sites splice a remapped copy into the caller.
type bodyTemplate struct {
	ops       []bodyOp
	frameSize uint64
}

// memoCache memoizes compiled bodies by definition identity. Compilation
// happens at most once per definition; concurrent requesters block on the
// first compiler's result.
type memoCache struct {
	mu sync.Mutex
	m  map[*defEntry]*memoEntry
}

type memoEntry struct {
	once sync.Once
	tmpl *bodyTemplate
	err  error
}

func newMemoCache() *memoCache {
	return &memoCache{m: make(map[*defEntry]*memoEntry)}
}

func (c *memoCache) get(d *defEntry, compile func() (*bodyTemplate, error)) (*bodyTemplate, error) {
	c.mu.Lock()
	e, ok := c.m[d]
	if !ok {
		e = &memoEntry{}
		c.m[d] = e
	}
	c.mu.Unlock()
	e.once.Do(func() {
		e.tmpl, e.err = compile()
	})
	return e.tmpl, e.err
}

// translateGate resolves one non-call gate against a wire map. Call gates
// take the separate binding path since they touch many wires at once.
func translateGate(t *DefTable, g *circuit.Gate, pos Pos, w *wireMap) (bodyOp, error) {
	b := bodyOp{field: g.Field, stmt: pos.Index}
	if int(g.Field) >= len(t.fields) {
		return b, structuralf(pos, "field index %d out of range (%d fields declared)", g.Field, len(t.fields))
	}
	resolveIn := func(id uint64) (uint32, error) {
		s, f, ok := w.resolve(id)
		if !ok {
			return 0, structuralf(pos, "undefined wire %d", id)
		}
		if f != g.Field {
			return 0, structuralf(pos, "wire %d is field %d, gate expects field %d", id, f, g.Field)
		}
		return s, nil
	}
	defineOut := func(id uint64) (uint32, error) {
		s, st := w.define(id, g.Field)
		switch st {
		case defineDuplicate:
			return 0, structuralf(pos, "wire %d assigned twice", id)
		case defineFieldClash:
			return 0, structuralf(pos, "wire %d was allocated under a different field", id)
		}
		return s, nil
	}
	var err error
	switch g.Kind {
	case circuit.GateConstant, circuit.GateAddConst, circuit.GateMulConst:
		if !t.fields[g.Field].Contains(g.Const) {
			return b, structuralf(pos, "constant %v is not a canonical element of field %d", g.Const, g.Field)
		}
		b.value = g.Const
		switch g.Kind {
		case circuit.GateConstant:
			b.op = ir.OpConst
		case circuit.GateAddConst:
			b.op = ir.OpAddConst
		default:
			b.op = ir.OpMulConst
		}
		if b.op != ir.OpConst {
			if b.in0, err = resolveIn(g.In0); err != nil {
				return b, err
			}
		}
		if b.out, err = defineOut(g.Out); err != nil {
			return b, err
		}
	case circuit.GateAdd, circuit.GateMul:
		b.op = ir.OpAdd
		if g.Kind == circuit.GateMul {
			b.op = ir.OpMul
		}
		if b.in0, err = resolveIn(g.In0); err != nil {
			return b, err
		}
		if b.in1, err = resolveIn(g.In1); err != nil {
			return b, err
		}
		if b.out, err = defineOut(g.Out); err != nil {
			return b, err
		}
	case circuit.GateCopy:
		b.op = ir.OpCopy
		if b.in0, err = resolveIn(g.In0); err != nil {
			return b, err
		}
		if b.out, err = defineOut(g.Out); err != nil {
			return b, err
		}
	case circuit.GateAssertZero:
		b.op = ir.OpAssertZero
		if b.in0, err = resolveIn(g.In0); err != nil {
			return b, err
		}
	case circuit.GatePublic, circuit.GateWitness:
		b.op = ir.OpPublic
		if g.Kind == circuit.GateWitness {
			b.op = ir.OpWitness
		}
		b.wire = g.Out
		if b.out, err = defineOut(g.Out); err != nil {
			return b, err
		}
	case circuit.GateNew:
		b.op = ir.OpNew
		if g.OutEnd < g.Out {
			return b, structuralf(pos, "malformed wire range %d..%d", g.Out, g.OutEnd)
		}
		count := g.OutEnd - g.Out + 1
		base, ok := w.reserve(g.Out, count, g.Field)
		if !ok {
			return b, structuralf(pos, "range %d..%d overlaps already-allocated wires", g.Out, g.OutEnd)
		}
		b.base, b.count = base, uint32(count)
	case circuit.GateDelete:
		b.op = ir.OpDelete
		if g.OutEnd < g.Out {
			return b, structuralf(pos, "malformed wire range %d..%d", g.Out, g.OutEnd)
		}
		count := g.OutEnd - g.Out + 1
		s, _, ok := w.resolve(g.Out)
		if !ok {
			return b, structuralf(pos, "delete of undefined wire %d", g.Out)
		}
		if !w.release(g.Out, count) {
			return b, structuralf(pos, "delete range %d..%d includes undefined wires", g.Out, g.OutEnd)
		}
		b.base, b.count = s, uint32(count)
	default:
		return b, structuralf(pos, "invalid gate kind %d", g.Kind)
	}
	return b, nil
}

// resolveCallBindings flattens a call's input ranges to caller slots and
// allocates slots for its outputs, checking per-wire field agreement with
// the callee's declaration. The returned slices come from scratch and must
// be copied if they outlive the caller's scope.
func resolveCallBindings(g *circuit.Gate, pos Pos, w *wireMap, callee *defEntry, scratch *arena[uint32]) (outs, ins []uint32, err error) {
	ins = scratch.alloc(int(callee.numIn))
	idx := 0
	for _, rg := range g.Ins {
		for id := rg.First; id <= rg.Last; id++ {
			s, f, ok := w.resolve(id)
			if !ok {
				return nil, nil, structuralf(pos, "undefined wire %d", id)
			}
			if f != callee.inFields[idx] {
				return nil, nil, structuralf(pos, "call to %q: input wire %d is field %d, parameter %d is field %d",
					g.Name, id, f, idx, callee.inFields[idx])
			}
			ins[idx] = s
			idx++
		}
	}
	outs = scratch.alloc(int(callee.numOut))
	idx = 0
	for _, rg := range g.Outs {
		for id := rg.First; id <= rg.Last; id++ {
			s, st := w.define(id, callee.outFields[idx])
			switch st {
			case defineDuplicate:
				return nil, nil, structuralf(pos, "wire %d assigned twice", id)
			case defineFieldClash:
				return nil, nil, structuralf(pos, "wire %d was allocated under a different field", id)
			}
			outs[idx] = s
			idx++
		}
	}
	return outs, ins, nil
}

func persist(s []uint32) []uint32 {
	out := make([]uint32, len(s))
	copy(out, s)
	return out
}

// callOpcode picks the record kind for a non-inlined call.
func callOpcode(callee *defEntry) ir.Opcode {
	if callee.isPlugin() {
		return ir.OpPlugin
	}
	return ir.OpCall
}

// compileBody compiles one function body into a template. Nested inline
// calls are expanded here, so templates contain only concrete operations;
// nested linked and plugin calls stay as call records.
func (t *DefTable) compileBody(d *defEntry, memo *memoCache) (*bodyTemplate, error) {
	stack := newScopeStack()
	h := stack.push(d)
	fr := h.frame()
	defer h.abandon()

	ops := make([]bodyOp, 0, d.totalOps)
	for i := range d.fn.Body {
		g := &d.fn.Body[i]
		pos := Pos{Func: d.fn.Name, Index: i}
		if g.Kind != circuit.GateCall {
			b, err := translateGate(t, g, pos, fr.wires)
			if err != nil {
				return nil, err
			}
			ops = append(ops, b)
			continue
		}
		callee := t.byName[g.Name] // existence and arity checked at freeze
		outs, ins, err := resolveCallBindings(g, pos, fr.wires, callee, fr.scratch)
		if err != nil {
			return nil, err
		}
		if callee.inline && callee != d {
			tmpl, err := memo.get(callee, func() (*bodyTemplate, error) {
				return t.compileBody(callee, memo)
			})
			if err != nil {
				return nil, err
			}
			base := fr.wires.allocBlock(callee.internal)
			remap := frameRemap(callee, outs, ins, base)
			for j := range tmpl.ops {
				ops = append(ops, remapBodyOp(&tmpl.ops[j], remap))
			}
		} else {
			ops = append(ops, bodyOp{
				op:     callOpcode(callee),
				callee: callee.id,
				outs:   persist(outs),
				ins:    persist(ins),
				stmt:   i,
			})
		}
	}
	frameSize, err := h.pop()
	if err != nil {
		return nil, err
	}
	if got := frameSize - (d.numOut + d.numIn); got != d.internal {
		panic(fmt.Sprintf("internal slot count for %q drifted: declared %d, compiled %d",
			d.fn.Name, d.internal, got))
	}
	return &bodyTemplate{ops: ops, frameSize: frameSize}, nil
}

// remapBodyOp rewrites a template operation into the enclosing frame's slot
// space. Slot lists are copied since the result outlives the template walk.
func remapBodyOp(b *bodyOp, remap func(uint32) uint32) bodyOp {
	out := *b
	switch b.op {
	case ir.OpCall, ir.OpPlugin:
		out.outs = make([]uint32, len(b.outs))
		for i, s := range b.outs {
			out.outs[i] = remap(s)
		}
		out.ins = make([]uint32, len(b.ins))
		for i, s := range b.ins {
			out.ins[i] = remap(s)
		}
	default:
		out.out = remap(b.out)
		out.in0 = remap(b.in0)
		out.in1 = remap(b.in1)
		out.base = remap(b.base)
	}
	return out
}
