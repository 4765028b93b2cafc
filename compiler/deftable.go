package compiler

import (
	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/field"
	"github.com/rw0x0/swanky/ir"
)

// defEntry is the frozen form of one function or plugin declaration. The
// table is built single-threaded before the worker pool starts and is
// read-only afterwards, so workers share it without locking.
type defEntry struct {
	fn  *circuit.Function
	pos int

	// id indexes the header function table; meaningful only for linked and
	// plugin definitions, the only ones call records can reference.
	id uint32

	numOut, numIn uint64
	// per-wire field tags in binding order: outputs first, then inputs
	outFields, inFields []uint8

	// internal is the number of frame slots the compiled body needs beyond
	// its declared output and input wires, including the slots consumed by
	// nested inline expansions. Computed here so inline call sites can
	// reserve caller slots before the body template exists.
	internal uint64
	// totalOps is the operation count of the body with inline expansion
	// applied; it drives the inline policy.
	totalOps uint64

	inline    bool
	recursive bool
}

func (d *defEntry) isPlugin() bool { return d.fn.Plugin != nil }

// linked definitions get their own body segment in the output file.
func (d *defEntry) isLinked() bool { return !d.inline && d.fn.Plugin == nil }

// DefTable is the frozen function/plugin definition table.
type DefTable struct {
	fields []field.Field
	byName map[string]*defEntry
	defs   []*defEntry
	linked []*defEntry
	decls  []ir.FuncDecl
}

// Decls returns the header function-table entries, in declaration order.
func (t *DefTable) Decls() []ir.FuncDecl { return t.decls }

func flattenCounts(cs []circuit.CountPerField, nFields int, pos Pos) ([]uint8, uint64, error) {
	var tags []uint8
	var total uint64
	for _, c := range cs {
		if int(c.Field) >= nFields {
			return nil, 0, structuralf(pos, "field index %d out of range (%d fields declared)", c.Field, nFields)
		}
		for i := uint64(0); i < c.Count; i++ {
			tags = append(tags, c.Field)
		}
		total += c.Count
	}
	return tags, total, nil
}

func rangeCount(rs []circuit.WireRange, pos Pos) (uint64, error) {
	var n uint64
	for _, r := range rs {
		if r.Last < r.First {
			return 0, structuralf(pos, "malformed wire range %d..%d", r.First, r.Last)
		}
		n += r.Count()
	}
	return n, nil
}

// buildDefTable freezes all declarations: it validates declared shapes,
// detects recursion, computes frame-size and operation-count statistics
// bottom-up over the call graph (declarations precede their uses, so the
// graph minus self-calls is processed in order) and fixes the inline
// policy per definition.
func buildDefTable(rel *circuit.Relation, fields []field.Field, inlineThreshold int) (*DefTable, error) {
	t := &DefTable{
		fields: fields,
		byName: make(map[string]*defEntry, len(rel.Functions)),
	}
	for pos, fn := range rel.Functions {
		declPos := Pos{Func: fn.Name, Index: -1}
		if _, dup := t.byName[fn.Name]; dup {
			return nil, structuralf(declPos, "duplicate function declaration")
		}
		d := &defEntry{fn: fn, pos: pos}
		var err error
		if d.outFields, d.numOut, err = flattenCounts(fn.Outputs, len(fields), declPos); err != nil {
			return nil, err
		}
		if d.inFields, d.numIn, err = flattenCounts(fn.Inputs, len(fields), declPos); err != nil {
			return nil, err
		}
		if fn.Plugin != nil && len(fn.Body) > 0 {
			return nil, structuralf(declPos, "plugin function has a gate body")
		}
		// register before scanning the body so self-recursive calls resolve
		t.byName[fn.Name] = d
		t.defs = append(t.defs, d)
		if fn.Plugin == nil {
			if err := t.analyzeBody(d); err != nil {
				return nil, err
			}
			d.inline = !d.recursive && d.totalOps <= uint64(inlineThreshold)
		}
	}
	for _, d := range t.defs {
		if !d.isLinked() && !d.isPlugin() {
			continue
		}
		d.id = uint32(len(t.decls))
		t.decls = append(t.decls, ir.FuncDecl{
			ID:      d.id,
			Name:    d.fn.Name,
			Outputs: d.fn.Outputs,
			Inputs:  d.fn.Inputs,
			Plugin:  d.fn.Plugin,
		})
		if d.isLinked() {
			t.linked = append(t.linked, d)
		}
	}
	return t, nil
}

// analyzeBody computes internal slot and operation counts, and performs the
// eager shape checks: gate kinds legal in bodies, call targets declared,
// call arities. Wire-level checks happen when the body is compiled.
func (t *DefTable) analyzeBody(d *defEntry) error {
	declared := d.numOut + d.numIn
	var newRanges []circuit.WireRange
	inNewRange := func(id uint64) bool {
		for _, r := range newRanges {
			if id >= r.First && id <= r.Last {
				return true
			}
		}
		return false
	}
	countDef := func(id uint64) {
		if id >= declared && !inNewRange(id) {
			d.internal++
		}
	}
	for i := range d.fn.Body {
		g := &d.fn.Body[i]
		pos := Pos{Func: d.fn.Name, Index: i}
		if g.Kind != circuit.GateCall && int(g.Field) >= len(t.fields) {
			return structuralf(pos, "field index %d out of range (%d fields declared)", g.Field, len(t.fields))
		}
		switch g.Kind {
		case circuit.GateConstant, circuit.GateAdd, circuit.GateMul,
			circuit.GateAddConst, circuit.GateMulConst, circuit.GateCopy:
			countDef(g.Out)
			d.totalOps++
		case circuit.GateAssertZero:
			d.totalOps++
		case circuit.GatePublic, circuit.GateWitness:
			return structuralf(pos, "%s input gates are only permitted at the top level", g.Kind)
		case circuit.GateNew:
			if g.OutEnd < g.Out {
				return structuralf(pos, "malformed wire range %d..%d", g.Out, g.OutEnd)
			}
			newRanges = append(newRanges, circuit.WireRange{First: g.Out, Last: g.OutEnd})
			d.internal += g.OutEnd - g.Out + 1
			d.totalOps++
		case circuit.GateDelete:
			return structuralf(pos, "delete directives are only permitted at the top level")
		case circuit.GateCall:
			callee, err := t.checkCall(g, pos)
			if err != nil {
				return err
			}
			if callee == d {
				d.recursive = true
			}
			for _, r := range g.Outs {
				for id := r.First; id <= r.Last; id++ {
					countDef(id)
				}
			}
			if callee != d && callee.inline {
				d.internal += callee.internal
				d.totalOps += callee.totalOps
			} else {
				d.totalOps++
			}
		default:
			return structuralf(pos, "invalid gate kind %d", g.Kind)
		}
	}
	return nil
}

// checkCall validates that a call's target exists and that the supplied
// range widths match the callee's declared arity.
func (t *DefTable) checkCall(g *circuit.Gate, pos Pos) (*defEntry, error) {
	callee, ok := t.byName[g.Name]
	if !ok {
		return nil, structuralf(pos, "call to undefined function %q", g.Name)
	}
	nOut, err := rangeCount(g.Outs, pos)
	if err != nil {
		return nil, err
	}
	nIn, err := rangeCount(g.Ins, pos)
	if err != nil {
		return nil, err
	}
	if nOut != callee.numOut {
		return nil, structuralf(pos, "call to %q: %d output wires bound, %d declared", g.Name, nOut, callee.numOut)
	}
	if nIn != callee.numIn {
		return nil, structuralf(pos, "call to %q: %d input wires bound, %d declared", g.Name, nIn, callee.numIn)
	}
	return callee, nil
}
