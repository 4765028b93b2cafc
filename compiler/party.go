package compiler

import "github.com/rw0x0/swanky/ir"

// The compilation pipeline is generic over a party marker, so whether value
// payloads exist in the output is fixed when the emitter type is
// instantiated, not by a runtime flag that could be forgotten. A verifier
// or public compilation has no code path that reads a witness value.

// Prover compiles with constant and witness payloads embedded.
type Prover struct{}

// Verifier compiles the circuit structure only; every value payload is
// structurally absent from the output.
type Verifier struct{}

// Public is like Verifier but tags the artifact as the public transcript.
type Public struct{}

func (Prover) PartyTag() ir.PartyTag   { return ir.PartyProver }
func (Verifier) PartyTag() ir.PartyTag { return ir.PartyVerifier }
func (Public) PartyTag() ir.PartyTag   { return ir.PartyPublic }

func (Prover) EmbedsValues() bool   { return true }
func (Verifier) EmbedsValues() bool { return false }
func (Public) EmbedsValues() bool   { return false }

// Party is the compile-time party selector. The union keeps it sealed to
// the three markers above.
type Party interface {
	Prover | Verifier | Public

	PartyTag() ir.PartyTag
	EmbedsValues() bool
}
