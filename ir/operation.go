// Package ir defines the packed binary intermediate representation consumed
// by the streaming proof engine: the operation vocabulary, the segment and
// header layout, and the file writer/reader.
package ir

import "math/big"

// Opcode enumerates the compiled operation records.
type Opcode uint8

const (
	_ Opcode = iota
	OpConst
	OpAdd
	OpMul
	OpAddConst
	OpMulConst
	OpCopy
	OpAssertZero
	OpPublic
	OpWitness
	OpNew
	OpDelete
	OpCall
	OpPlugin
)

func (op Opcode) String() string {
	switch op {
	case OpConst:
		return "const"
	case OpAdd:
		return "add"
	case OpMul:
		return "mul"
	case OpAddConst:
		return "addc"
	case OpMulConst:
		return "mulc"
	case OpCopy:
		return "copy"
	case OpAssertZero:
		return "assert_zero"
	case OpPublic:
		return "public"
	case OpWitness:
		return "witness"
	case OpNew:
		return "new"
	case OpDelete:
		return "delete"
	case OpCall:
		return "call"
	case OpPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// HasPayload reports whether records of this opcode carry an inline value
// payload when the file was compiled for the prover.
func (op Opcode) HasPayload() bool {
	switch op {
	case OpConst, OpAddConst, OpMulConst, OpPublic, OpWitness:
		return true
	}
	return false
}

// PartyTag identifies which party an IR file was compiled for.
type PartyTag uint8

const (
	PartyProver PartyTag = iota + 1
	PartyVerifier
	PartyPublic
)

func (p PartyTag) String() string {
	switch p {
	case PartyProver:
		return "prover"
	case PartyVerifier:
		return "verifier"
	case PartyPublic:
		return "public"
	default:
		return "unknown"
	}
}

// EmbedsValues reports whether files for this party carry value payloads.
// Only the prover's file does; verifier and public files describe circuit
// structure only.
func (p PartyTag) EmbedsValues() bool {
	return p == PartyProver
}

// SlotRange addresses Count consecutive local slots starting at First.
type SlotRange struct {
	First uint32
	Count uint32
}

// Operation is the decoded form of one operation record, produced by the
// reader. The compile path never materializes this type; workers encode
// records directly into segment buffers.
//
// Member use per opcode mirrors circuit.Gate: Out/In0/In1 for arithmetic,
// Base/Count for new and delete, Callee/Outs/Ins for call and plugin.
// Payload is non-nil only for payload opcodes in a prover file.
type Operation struct {
	Op      Opcode
	Field   uint8
	Out     uint32
	In0     uint32
	In1     uint32
	Base    uint32
	Count   uint32
	Callee  uint32
	Outs    []SlotRange
	Ins     []SlotRange
	Payload *big.Int
}

// SegmentKind distinguishes the two compilation unit shapes.
type SegmentKind uint8

const (
	SegmentFunction SegmentKind = iota + 1
	SegmentTopLevel
)

// Segment is one independently compiled, source-ordered chunk of the file.
// Data holds the already-encoded operation records.
type Segment struct {
	Kind SegmentKind
	// Seq is the unit's source position, used to restore source order before
	// writing. It is not serialized; file order is the order.
	Seq int
	// FuncID and FrameSize are meaningful for SegmentFunction only.
	FuncID    uint32
	FrameSize uint64
	NumOps    uint64
	Data      []byte
}
