package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/ir"
)

// unit is one compilation unit: a linked function body or a bucket of
// resolved top-level statements. Units carry their source position so the
// merge stage can restore source order regardless of completion order.
type unit struct {
	seq  int
	kind ir.SegmentKind
	def  *defEntry
	ops  []bodyOp
}

// produce is the sequential layout pass. It emits one unit per linked
// function body (in declaration order, ahead of the top-level statements),
// then streams the top-level statements, resolving every wire against the
// root scope and bucketing the resolved forms into units. Because all slot
// assignment happens here, in source order, worker scheduling can never
// influence the output; workers only expand what is already resolved.
//
// The returned bound is the root scope's high-water slot count.
func (p *pipeline[P]) produce(ctx context.Context, units chan<- *unit) (uint64, error) {
	seq := 0
	for _, d := range p.defs.linked {
		if err := p.sendUnit(ctx, units, &unit{seq: seq, kind: ir.SegmentFunction, def: d}); err != nil {
			return 0, err
		}
		seq++
	}

	w := newWireMap(1 << 10)
	scratch := newArena[uint32](1 << 12)
	bucket := make([]bodyOp, 0, p.cfg.BucketSize)
	flush := func() error {
		if len(bucket) == 0 {
			return nil
		}
		u := &unit{seq: seq, kind: ir.SegmentTopLevel, ops: bucket}
		seq++
		bucket = make([]bodyOp, 0, p.cfg.BucketSize)
		scratch.reset()
		return p.sendUnit(ctx, units, u)
	}

	for stmt := 0; ; stmt++ {
		g, err := p.rel.Main.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading top-level statement %d: %w", stmt, err)
		}
		pos := Pos{Func: "main", Index: stmt}
		if g.Kind == circuit.GateCall {
			callee, err := p.defs.checkCall(g, pos)
			if err != nil {
				return 0, err
			}
			outs, ins, err := resolveCallBindings(g, pos, w, callee, scratch)
			if err != nil {
				return 0, err
			}
			if callee.inline {
				bucket = append(bucket, bodyOp{
					op:   opInlineExpand,
					def:  callee,
					outs: persist(outs),
					ins:  persist(ins),
					base: w.allocBlock(callee.internal),
					stmt: stmt,
				})
			} else {
				bucket = append(bucket, bodyOp{
					op:     callOpcode(callee),
					callee: callee.id,
					outs:   persist(outs),
					ins:    persist(ins),
					stmt:   stmt,
				})
			}
		} else {
			b, err := translateGate(p.defs, g, pos, w)
			if err != nil {
				return 0, err
			}
			bucket = append(bucket, b)
		}
		if len(bucket) >= p.cfg.BucketSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return w.bound(), nil
}

// sendUnit blocks until a dispatch credit is free, then queues the unit.
// Credits come back from the merge stage one write at a time, so a stalled
// writer stalls layout instead of letting completed segments pile up.
func (p *pipeline[P]) sendUnit(ctx context.Context, units chan<- *unit, u *unit) error {
	select {
	case <-p.tokens:
	case <-ctx.Done():
		return fmt.Errorf("compilation aborted: %w", ctx.Err())
	}
	select {
	case units <- u:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("compilation aborted: %w", ctx.Err())
	}
}
