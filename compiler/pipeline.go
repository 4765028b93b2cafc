package compiler

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/field"
	"github.com/rw0x0/swanky/ir"
)

// Config tunes the compilation pipeline. The zero value selects sane
// defaults; see setDefaults.
type Config struct {
	// Workers is the worker pool size, default available parallelism.
	Workers int
	// Window bounds the in-flight unit and segment count on each side of
	// the worker pool. Producers block rather than buffer beyond it, which
	// is what keeps memory proportional to the window instead of the
	// relation size.
	Window int
	// BucketSize is the number of resolved top-level statements grouped
	// into one unit.
	BucketSize int
	// InlineThreshold is the maximum expanded operation count for a
	// function body to be inlined at its call sites rather than linked.
	InlineThreshold int
	// Instance and Witness supply public and private input values. Only a
	// Prover compilation reads them.
	Instance circuit.Inputs
	Witness  circuit.Inputs
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Window <= 0 {
		c.Window = 2 * c.Workers
	}
	if c.BucketSize <= 0 {
		c.BucketSize = 1 << 12
	}
	if c.InlineThreshold <= 0 {
		c.InlineThreshold = 16
	}
}

// Stats summarizes a finished compilation.
type Stats struct {
	Functions  int
	Segments   uint64
	Operations uint64
	WireBound  uint64
}

// NewDefTable freezes a relation's function and plugin declarations. The
// result is immutable and shared by all workers; it also provides the
// header function table, which is why it is built before the output writer
// is opened.
func NewDefTable(rel *circuit.Relation, fields []field.Field, inlineThreshold int) (*DefTable, error) {
	if inlineThreshold <= 0 {
		c := Config{}
		c.setDefaults()
		inlineThreshold = c.InlineThreshold
	}
	return buildDefTable(rel, fields, inlineThreshold)
}

type pipeline[P Party] struct {
	party  P
	cfg    Config
	rel    *circuit.Relation
	defs   *DefTable
	fields []field.Field
	memo   *memoCache

	// tokens are dispatch credits: the layout pass takes one per unit and
	// the merge stage returns it once the unit's segment is written. At
	// most Window units are dispatched-but-unwritten at any time, which is
	// what bounds the merge reorder buffer alongside the channels.
	tokens chan struct{}
}

// Run compiles rel into out for the given party. The definition table must
// have been built with the same inline threshold as cfg carries. On error
// the caller owns aborting the writer; Run guarantees no further segments
// are written after the first failure and that buffered completed segments
// are discarded.
func Run[P Party](ctx context.Context, party P, rel *circuit.Relation, defs *DefTable, out *ir.Writer, cfg Config) (Stats, error) {
	cfg.setDefaults()
	p := &pipeline[P]{
		party:  party,
		cfg:    cfg,
		rel:    rel,
		defs:   defs,
		fields: defs.fields,
		memo:   newMemoCache(),
		tokens: make(chan struct{}, cfg.Window),
	}
	for i := 0; i < cfg.Window; i++ {
		p.tokens <- struct{}{}
	}

	g, ctx := errgroup.WithContext(ctx)
	units := make(chan *unit, cfg.Window)
	results := make(chan *ir.Segment, cfg.Window)

	var wireBound uint64
	g.Go(func() error {
		defer close(units)
		b, err := p.produce(ctx, units)
		wireBound = b
		return err
	})

	var workers sync.WaitGroup
	workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			defer workers.Done()
			return p.worker(ctx, units, results)
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	var stats Stats
	g.Go(func() error {
		return p.merge(ctx, results, out, &stats)
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	stats.WireBound = wireBound
	stats.Functions = len(defs.decls)
	return stats, nil
}

// worker pulls units off the queue and compiles each one independently,
// with its own emitter and scratch arena.
func (p *pipeline[P]) worker(ctx context.Context, units <-chan *unit, results chan<- *ir.Segment) error {
	e := &emitter[P]{
		party:    p.party,
		fields:   p.fields,
		instance: p.cfg.Instance,
		witness:  p.cfg.Witness,
	}
	scratch := newArena[uint32](1 << 12)
	for u := range units {
		seg, err := p.compileUnit(e, scratch, u)
		if err != nil {
			return err
		}
		select {
		case results <- seg:
		case <-ctx.Done():
			return ctx.Err()
		}
		scratch.reset()
	}
	return nil
}

func (p *pipeline[P]) compileUnit(e *emitter[P], scratch *arena[uint32], u *unit) (*ir.Segment, error) {
	e.reset()
	switch u.kind {
	case ir.SegmentFunction:
		tmpl, err := p.template(u.def)
		if err != nil {
			return nil, err
		}
		for i := range tmpl.ops {
			if err := e.encode(&tmpl.ops[i], nil, scratch); err != nil {
				return nil, err
			}
		}
		return e.finish(ir.SegmentFunction, u.seq, u.def.id, tmpl.frameSize), nil
	case ir.SegmentTopLevel:
		for i := range u.ops {
			b := &u.ops[i]
			if b.op != opInlineExpand {
				if err := e.encode(b, nil, scratch); err != nil {
					return nil, err
				}
				continue
			}
			tmpl, err := p.template(b.def)
			if err != nil {
				return nil, err
			}
			remap := frameRemap(b.def, b.outs, b.ins, b.base)
			for j := range tmpl.ops {
				if err := e.encode(&tmpl.ops[j], remap, scratch); err != nil {
					return nil, err
				}
			}
		}
		return e.finish(ir.SegmentTopLevel, u.seq, 0, 0), nil
	default:
		panic(fmt.Sprintf("invalid unit kind %d", u.kind))
	}
}

func (p *pipeline[P]) template(d *defEntry) (*bodyTemplate, error) {
	return p.memo.get(d, func() (*bodyTemplate, error) {
		return p.defs.compileBody(d, p.memo)
	})
}

// merge drains completed segments and hands them to the writer in strict
// source order. Out-of-order arrivals wait in the pending map; since the
// layout pass cannot dispatch a unit without a credit and credits are only
// returned here after a write, pending never holds more than Window
// segments. On cancellation buffered segments are discarded, never written.
func (p *pipeline[P]) merge(ctx context.Context, results <-chan *ir.Segment, out *ir.Writer, stats *Stats) error {
	pending := make(map[int]*ir.Segment)
	next := 0
	for seg := range results {
		pending[seg.Seq] = seg
		for {
			s, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := out.WriteSegment(s); err != nil {
				return err
			}
			stats.Segments++
			stats.Operations += s.NumOps
			next++
			p.tokens <- struct{}{}
		}
	}
	if ctx.Err() != nil {
		// aborted: drop whatever completed after the failure
		return nil
	}
	if len(pending) > 0 {
		return fmt.Errorf("merge lost %d segments: %w", len(pending), ErrResource)
	}
	return nil
}
