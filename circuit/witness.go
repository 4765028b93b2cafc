package circuit

import "math/big"

// InputKey addresses one input value: the field it lives in and the
// top-level wire that receives it.
type InputKey struct {
	Field uint8
	Wire  uint64
}

// Inputs supplies values for public- and witness-input gates, keyed by the
// receiving top-level wire. Implementations must be safe for concurrent
// reads: the compiler queries them from multiple workers after the relation
// header is frozen.
type Inputs interface {
	Value(field uint8, wire uint64) (*big.Int, bool)
}

// MapInputs is an in-memory Inputs implementation. It must not be mutated
// once compilation starts.
type MapInputs map[InputKey]*big.Int

func (m MapInputs) Value(field uint8, wire uint64) (*big.Int, bool) {
	v, ok := m[InputKey{Field: field, Wire: wire}]
	return v, ok
}

// Set records a value; it returns the map to allow chained construction.
func (m MapInputs) Set(field uint8, wire uint64, v *big.Int) MapInputs {
	m[InputKey{Field: field, Wire: wire}] = v
	return m
}
