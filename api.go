// Package swanky compiles streaming circuit relations into the binary IR
// consumed by the proof backends. The entry point is Compile; the party type
// parameter decides whether input values are embedded in the output.
package swanky

import (
	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/compiler"
)

// Prover compilations embed instance and witness values in the IR.
type Prover = compiler.Prover

// Verifier compilations carry the same structure as the prover's but no
// value payloads.
type Verifier = compiler.Verifier

// Public compilations describe the relation alone, with neither party's
// values.
type Public = compiler.Public

// Stats summarizes a finished compilation.
type Stats = compiler.Stats

// Option adjusts compilation behavior.
type Option func(*compiler.Config)

// WithWorkers sets the worker pool size. Values below one select the
// available parallelism.
func WithWorkers(n int) Option {
	return func(c *compiler.Config) { c.Workers = n }
}

// WithWindow bounds the number of in-flight work units on each side of the
// worker pool. Peak memory grows with the window, not the relation size.
func WithWindow(n int) Option {
	return func(c *compiler.Config) { c.Window = n }
}

// WithBucketSize sets how many resolved top-level statements are grouped
// into one work unit.
func WithBucketSize(n int) Option {
	return func(c *compiler.Config) { c.BucketSize = n }
}

// WithInlineThreshold sets the expanded operation count below which a
// function body is inlined at its call sites instead of linked.
func WithInlineThreshold(n int) Option {
	return func(c *compiler.Config) { c.InlineThreshold = n }
}

// WithInstance supplies public input values. Required for prover
// compilations of relations that read instance wires.
func WithInstance(in circuit.Inputs) Option {
	return func(c *compiler.Config) { c.Instance = in }
}

// WithWitness supplies private input values. Required for prover
// compilations of relations that read witness wires.
func WithWitness(in circuit.Inputs) Option {
	return func(c *compiler.Config) { c.Witness = in }
}
