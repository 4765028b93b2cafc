// Package field describes the prime fields a relation computes over.
//
// Every wire and operation in a relation is tagged with an index into the
// relation's field table. The table travels in the IR header so the proof
// engine can pick its arithmetic backend; well-known moduli additionally get
// a stable identifier so the engine does not have to compare modulus bytes.
package field

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"

	"github.com/rw0x0/swanky/utils"
)

// Stable identifiers for well-known moduli. Anything else is IDGeneric and
// is identified by its modulus bytes alone.
const (
	IDGeneric uint64 = iota
	IDF2
	IDF61p
	IDBN254Scalar
	IDBLS12377Scalar
)

// Field is one entry of a relation's field table.
type Field struct {
	ID      uint64
	Modulus *big.Int
	// ElemLen is the serialized width of one element, in bytes.
	ElemLen int
}

var (
	two  = big.NewInt(2)
	f61p = new(big.Int).SetUint64(1<<61 - 1)
)

// FromModulus builds a Field for the given prime modulus, recognizing
// well-known moduli.
func FromModulus(m *big.Int) (Field, error) {
	if m == nil || m.Cmp(two) < 0 {
		return Field{}, fmt.Errorf("field modulus must be at least 2, got %v", m)
	}
	f := Field{
		ID:      IDGeneric,
		Modulus: new(big.Int).Set(m),
		ElemLen: len(m.Bytes()),
	}
	switch {
	case m.Cmp(two) == 0:
		f.ID = IDF2
	case m.Cmp(f61p) == 0:
		f.ID = IDF61p
	case m.Cmp(ecc.BN254.ScalarField()) == 0:
		f.ID = IDBN254Scalar
	case m.Cmp(ecc.BLS12_377.ScalarField()) == 0:
		f.ID = IDBLS12377Scalar
	}
	return f, nil
}

// Contains reports whether v is a canonical element of the field.
func (f Field) Contains(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(f.Modulus) < 0
}

// Append serializes one element as exactly ElemLen little-endian bytes.
// The element must already be reduced.
func (f Field) Append(o *utils.OutputBuf, v *big.Int) {
	if !f.Contains(v) {
		panic(fmt.Sprintf("value %v is not a canonical element of field %v", v, f.Modulus))
	}
	o.AppendBigInt(f.ElemLen, v)
}

// Read deserializes one element and checks it is canonical.
func (f Field) Read(in *utils.InputBuf) (*big.Int, error) {
	v, err := in.ReadBigInt(f.ElemLen)
	if err != nil {
		return nil, err
	}
	if !f.Contains(v) {
		return nil, fmt.Errorf("element %v is not canonical in field %v", v, f.Modulus)
	}
	return v, nil
}

// Reduce returns v mod the field modulus as a fresh value.
func (f Field) Reduce(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, f.Modulus)
}
