package circuit

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// On-disk interchange for parsed relations and input streams. The external
// parser writes these; the compiler reads them. The envelope is decoded
// eagerly, the top-level gates are decoded one record at a time so a
// relation never has to fit in memory.

var ErrDecode = errors.New("interchange decode error")

const (
	relationMagic = "swanky/relation"
	inputsMagic   = "swanky/inputs"

	// InterchangeVersion is the current version of the CBOR container.
	InterchangeVersion = 1
)

type cborEnvelope struct {
	Magic     string         `cbor:"1,keyasint"`
	Version   uint32         `cbor:"2,keyasint"`
	Moduli    [][]byte       `cbor:"3,keyasint"`
	Functions []cborFunction `cbor:"4,keyasint"`
}

type cborFunction struct {
	Name    string      `cbor:"1,keyasint"`
	Outputs [][2]uint64 `cbor:"2,keyasint"` // (field, count) pairs
	Inputs  [][2]uint64 `cbor:"3,keyasint"`
	Body    []cborGate  `cbor:"4,keyasint,omitempty"`
	Plugin  *cborPlugin `cbor:"5,keyasint,omitempty"`
}

type cborPlugin struct {
	Plugin    string   `cbor:"1,keyasint"`
	Operation string   `cbor:"2,keyasint"`
	Args      []string `cbor:"3,keyasint,omitempty"`
}

type cborGate struct {
	Kind   uint8       `cbor:"1,keyasint"`
	Field  uint8       `cbor:"2,keyasint,omitempty"`
	Out    uint64      `cbor:"3,keyasint,omitempty"`
	In0    uint64      `cbor:"4,keyasint,omitempty"`
	In1    uint64      `cbor:"5,keyasint,omitempty"`
	OutEnd uint64      `cbor:"6,keyasint,omitempty"`
	Const  []byte      `cbor:"7,keyasint,omitempty"` // big-endian
	Name   string      `cbor:"8,keyasint,omitempty"`
	Outs   [][2]uint64 `cbor:"9,keyasint,omitempty"`
	Ins    [][2]uint64 `cbor:"10,keyasint,omitempty"`
}

func toCborGate(g *Gate) cborGate {
	c := cborGate{
		Kind:   uint8(g.Kind),
		Field:  g.Field,
		Out:    g.Out,
		In0:    g.In0,
		In1:    g.In1,
		OutEnd: g.OutEnd,
		Name:   g.Name,
	}
	if g.Const != nil {
		c.Const = g.Const.Bytes()
	}
	for _, r := range g.Outs {
		c.Outs = append(c.Outs, [2]uint64{r.First, r.Last})
	}
	for _, r := range g.Ins {
		c.Ins = append(c.Ins, [2]uint64{r.First, r.Last})
	}
	return c
}

func fromCborGate(c *cborGate) Gate {
	g := Gate{
		Kind:   GateKind(c.Kind),
		Field:  c.Field,
		Out:    c.Out,
		In0:    c.In0,
		In1:    c.In1,
		OutEnd: c.OutEnd,
		Name:   c.Name,
	}
	if c.Const != nil {
		g.Const = new(big.Int).SetBytes(c.Const)
	}
	for _, r := range c.Outs {
		g.Outs = append(g.Outs, WireRange{First: r[0], Last: r[1]})
	}
	for _, r := range c.Ins {
		g.Ins = append(g.Ins, WireRange{First: r[0], Last: r[1]})
	}
	return g
}

func toCounts(cs []CountPerField) [][2]uint64 {
	out := make([][2]uint64, len(cs))
	for i, c := range cs {
		out[i] = [2]uint64{uint64(c.Field), c.Count}
	}
	return out
}

func fromCounts(cs [][2]uint64) []CountPerField {
	out := make([]CountPerField, len(cs))
	for i, c := range cs {
		out[i] = CountPerField{Field: uint8(c[0]), Count: c[1]}
	}
	return out
}

// WriteRelation encodes rel, draining rel.Main. Intended for the parser side
// and for tests.
func WriteRelation(w io.Writer, rel *Relation) error {
	enc := cbor.NewEncoder(w)
	env := cborEnvelope{
		Magic:   relationMagic,
		Version: InterchangeVersion,
	}
	for _, m := range rel.Moduli {
		env.Moduli = append(env.Moduli, m.Bytes())
	}
	for _, f := range rel.Functions {
		cf := cborFunction{
			Name:    f.Name,
			Outputs: toCounts(f.Outputs),
			Inputs:  toCounts(f.Inputs),
		}
		for i := range f.Body {
			cf.Body = append(cf.Body, toCborGate(&f.Body[i]))
		}
		if f.Plugin != nil {
			cf.Plugin = &cborPlugin{
				Plugin:    f.Plugin.Plugin,
				Operation: f.Plugin.Operation,
				Args:      f.Plugin.Args,
			}
		}
		env.Functions = append(env.Functions, cf)
	}
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encoding relation envelope: %w", err)
	}
	for {
		g, err := rel.Main.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(toCborGate(g)); err != nil {
			return fmt.Errorf("encoding gate: %w", err)
		}
	}
}

type decoderStream struct {
	dec *cbor.Decoder
	g   Gate
}

func (s *decoderStream) Next() (*Gate, error) {
	var c cborGate
	if err := s.dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding gate: %v: %w", err, ErrDecode)
	}
	s.g = fromCborGate(&c)
	return &s.g, nil
}

// ReadRelation decodes a relation envelope from r and returns a Relation
// whose Main stream lazily decodes the remaining gate records.
func ReadRelation(r io.Reader) (*Relation, error) {
	dec := cbor.NewDecoder(r)
	var env cborEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding relation envelope: %v: %w", err, ErrDecode)
	}
	if env.Magic != relationMagic {
		return nil, fmt.Errorf("not a relation file (magic %q): %w", env.Magic, ErrDecode)
	}
	if env.Version != InterchangeVersion {
		return nil, fmt.Errorf("unsupported relation version %d: %w", env.Version, ErrDecode)
	}
	rel := &Relation{Main: &decoderStream{dec: dec}}
	for _, m := range env.Moduli {
		rel.Moduli = append(rel.Moduli, new(big.Int).SetBytes(m))
	}
	for i := range env.Functions {
		cf := &env.Functions[i]
		f := &Function{
			Name:    cf.Name,
			Outputs: fromCounts(cf.Outputs),
			Inputs:  fromCounts(cf.Inputs),
		}
		for j := range cf.Body {
			f.Body = append(f.Body, fromCborGate(&cf.Body[j]))
		}
		if cf.Plugin != nil {
			f.Plugin = &PluginBinding{
				Plugin:    cf.Plugin.Plugin,
				Operation: cf.Plugin.Operation,
				Args:      cf.Plugin.Args,
			}
		}
		rel.Functions = append(rel.Functions, f)
	}
	return rel, nil
}

type cborInputEntry struct {
	Field uint8  `cbor:"1,keyasint"`
	Wire  uint64 `cbor:"2,keyasint"`
	Value []byte `cbor:"3,keyasint"` // big-endian
}

type cborInputsEnvelope struct {
	Magic   string `cbor:"1,keyasint"`
	Version uint32 `cbor:"2,keyasint"`
}

// WriteInputs encodes an input-value stream (public instance or private
// witness, the container does not distinguish).
func WriteInputs(w io.Writer, in MapInputs) error {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(cborInputsEnvelope{Magic: inputsMagic, Version: InterchangeVersion}); err != nil {
		return fmt.Errorf("encoding inputs envelope: %w", err)
	}
	for k, v := range in {
		e := cborInputEntry{Field: k.Field, Wire: k.Wire, Value: v.Bytes()}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding input entry: %w", err)
		}
	}
	return nil
}

// ReadInputs decodes an input-value stream into memory.
func ReadInputs(r io.Reader) (MapInputs, error) {
	dec := cbor.NewDecoder(r)
	var env cborInputsEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding inputs envelope: %v: %w", err, ErrDecode)
	}
	if env.Magic != inputsMagic {
		return nil, fmt.Errorf("not an inputs file (magic %q): %w", env.Magic, ErrDecode)
	}
	if env.Version != InterchangeVersion {
		return nil, fmt.Errorf("unsupported inputs version %d: %w", env.Version, ErrDecode)
	}
	out := make(MapInputs)
	for {
		var e cborInputEntry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decoding input entry: %v: %w", err, ErrDecode)
		}
		out.Set(e.Field, e.Wire, new(big.Int).SetBytes(e.Value))
	}
}
