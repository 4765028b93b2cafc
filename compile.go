package swanky

import (
	"context"
	"fmt"
	"time"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/compiler"
	"github.com/rw0x0/swanky/field"
	"github.com/rw0x0/swanky/ir"
	"github.com/rw0x0/swanky/logger"
)

// Compile lowers rel into a binary IR file at outPath for the given party.
// The output is published atomically: outPath either holds a complete file
// or is untouched. A given relation compiles to byte-identical output for
// any worker count.
func Compile[P compiler.Party](ctx context.Context, party P, rel *circuit.Relation, outPath string, opts ...Option) (compiler.Stats, error) {
	log := logger.Logger()

	var cfg compiler.Config
	for _, o := range opts {
		o(&cfg)
	}

	fields := make([]field.Field, len(rel.Moduli))
	for i, m := range rel.Moduli {
		f, err := field.FromModulus(m)
		if err != nil {
			return compiler.Stats{}, fmt.Errorf("field %d: %w: %v", i, compiler.ErrStructural, err)
		}
		fields[i] = f
	}

	defs, err := compiler.NewDefTable(rel, fields, cfg.InlineThreshold)
	if err != nil {
		return compiler.Stats{}, err
	}

	out, err := ir.NewWriter(outPath, &ir.Header{
		Party:     party.PartyTag(),
		Fields:    fields,
		Functions: defs.Decls(),
	})
	if err != nil {
		return compiler.Stats{}, err
	}

	start := time.Now()
	stats, err := compiler.Run(ctx, party, rel, defs, out, cfg)
	if err != nil {
		out.Abort()
		return compiler.Stats{}, err
	}
	if err := out.Close(stats.WireBound); err != nil {
		return compiler.Stats{}, err
	}

	log.Info().
		Uint64("segments", stats.Segments).
		Uint64("operations", stats.Operations).
		Uint64("wireBound", stats.WireBound).
		Str("took", time.Since(start).String()).
		Msg("compiled relation")
	return stats, nil
}
