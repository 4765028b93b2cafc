// Package circuit defines the statement-level form of a parsed relation, the
// hand-off contract between the external front-end parser and the compiler.
//
// A Relation carries the declared field table, the function and plugin
// declarations (all declarations precede top-level statements), and a stream
// of top-level gates. The stream may be backed by memory or by a decoder over
// a file, so relations far larger than memory can be compiled.
package circuit

import (
	"io"
	"math/big"
)

// GateKind enumerates the statement variants a parsed relation can contain.
type GateKind uint8

const (
	_ GateKind = iota
	GateConstant
	GateAdd
	GateMul
	GateAddConst
	GateMulConst
	GateCopy
	GateAssertZero
	GatePublic
	GateWitness
	GateNew
	GateDelete
	GateCall
)

func (k GateKind) String() string {
	switch k {
	case GateConstant:
		return "constant"
	case GateAdd:
		return "add"
	case GateMul:
		return "mul"
	case GateAddConst:
		return "addc"
	case GateMulConst:
		return "mulc"
	case GateCopy:
		return "copy"
	case GateAssertZero:
		return "assert_zero"
	case GatePublic:
		return "public"
	case GateWitness:
		return "private"
	case GateNew:
		return "new"
	case GateDelete:
		return "delete"
	case GateCall:
		return "call"
	default:
		return "unknown"
	}
}

// WireRange is an inclusive range of source wire numbers.
type WireRange struct {
	First, Last uint64
}

// Count returns the number of wires in the range. Malformed ranges
// (Last < First) are rejected by the compiler, not here.
func (r WireRange) Count() uint64 {
	return r.Last - r.First + 1
}

// Gate is one statement. It is a tagged variant: which members are
// meaningful depends on Kind.
//
//	Constant:            Field, Out, Const
//	Add, Mul:            Field, Out, In0, In1
//	AddConst, MulConst:  Field, Out, In0, Const
//	Copy:                Field, Out, In0
//	AssertZero:          Field, In0
//	Public, Witness:     Field, Out
//	New, Delete:         Field, Out..OutEnd (inclusive range)
//	Call:                Name, Outs, Ins
type Gate struct {
	Kind   GateKind
	Field  uint8
	Out    uint64
	In0    uint64
	In1    uint64
	OutEnd uint64
	Const  *big.Int
	Name   string
	Outs   []WireRange
	Ins    []WireRange
}

// CountPerField declares how many wires of a given field a function accepts
// or returns. Declaration order is binding order.
type CountPerField struct {
	Field uint8
	Count uint64
}

// PluginBinding marks a function as implemented by an engine plugin rather
// than by a gate body.
type PluginBinding struct {
	Plugin    string
	Operation string
	Args      []string
}

// Function is a function or plugin declaration. Inside a body, wires
// 0..nOut-1 are the declared outputs, followed by the declared inputs, then
// any internal wires the body introduces. Bodies are pure circuit logic:
// public and witness input gates are only permitted at the top level.
type Function struct {
	Name    string
	Outputs []CountPerField
	Inputs  []CountPerField
	Body    []Gate
	Plugin  *PluginBinding
}

// NumOutputWires returns the total declared output wire count.
func (f *Function) NumOutputWires() uint64 {
	var n uint64
	for _, c := range f.Outputs {
		n += c.Count
	}
	return n
}

// NumInputWires returns the total declared input wire count.
func (f *Function) NumInputWires() uint64 {
	var n uint64
	for _, c := range f.Inputs {
		n += c.Count
	}
	return n
}

// Stream yields top-level gates in source order. Next returns io.EOF after
// the last gate.
type Stream interface {
	Next() (*Gate, error)
}

// Relation is a parsed relation ready for compilation.
type Relation struct {
	// Moduli is the declared field table, in declaration order.
	Moduli []*big.Int
	// Functions are all function and plugin declarations, in declaration
	// order. Declarations always precede the top-level statements.
	Functions []*Function
	// Main streams the top-level statements.
	Main Stream
}

type sliceStream struct {
	gates []Gate
	pos   int
}

// NewSliceStream wraps an in-memory gate list as a Stream.
func NewSliceStream(gates []Gate) Stream {
	return &sliceStream{gates: gates}
}

func (s *sliceStream) Next() (*Gate, error) {
	if s.pos >= len(s.gates) {
		return nil, io.EOF
	}
	g := &s.gates[s.pos]
	s.pos++
	return g, nil
}
