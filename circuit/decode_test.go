package circuit

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s Stream) []Gate {
	t.Helper()
	var out []Gate
	for {
		g, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, *g)
	}
}

func TestRelationRoundTrip(t *testing.T) {
	rel := &Relation{
		Moduli: []*big.Int{big.NewInt(97), big.NewInt(2)},
		Functions: []*Function{
			{
				Name:    "square",
				Outputs: []CountPerField{{Field: 0, Count: 1}},
				Inputs:  []CountPerField{{Field: 0, Count: 1}},
				Body: []Gate{
					{Kind: GateMul, Field: 0, Out: 0, In0: 1, In1: 1},
				},
			},
			{
				Name:    "permute",
				Outputs: []CountPerField{{Field: 0, Count: 3}},
				Inputs:  []CountPerField{{Field: 0, Count: 3}},
				Plugin:  &PluginBinding{Plugin: "poseidon", Operation: "permute", Args: []string{"t=3"}},
			},
		},
		Main: NewSliceStream([]Gate{
			{Kind: GateWitness, Field: 0, Out: 0},
			{Kind: GateConstant, Field: 0, Out: 1, Const: big.NewInt(42)},
			{Kind: GateCall, Name: "square", Outs: []WireRange{{First: 2, Last: 2}}, Ins: []WireRange{{First: 0, Last: 0}}},
			{Kind: GateNew, Field: 0, Out: 10, OutEnd: 14},
			{Kind: GateDelete, Field: 0, Out: 10, OutEnd: 14},
		}),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRelation(&buf, rel))

	got, err := ReadRelation(&buf)
	require.NoError(t, err)
	require.Len(t, got.Moduli, 2)
	require.Zero(t, got.Moduli[0].Cmp(big.NewInt(97)))
	require.Len(t, got.Functions, 2)
	require.Equal(t, "square", got.Functions[0].Name)
	require.Equal(t, GateMul, got.Functions[0].Body[0].Kind)
	require.NotNil(t, got.Functions[1].Plugin)
	require.Equal(t, "poseidon", got.Functions[1].Plugin.Plugin)
	require.Equal(t, []string{"t=3"}, got.Functions[1].Plugin.Args)

	gates := drain(t, got.Main)
	require.Len(t, gates, 5)
	require.Equal(t, GateWitness, gates[0].Kind)
	require.Zero(t, gates[1].Const.Cmp(big.NewInt(42)))
	require.Equal(t, "square", gates[2].Name)
	require.Equal(t, []WireRange{{First: 0, Last: 0}}, gates[2].Ins)
	require.Equal(t, uint64(14), gates[3].OutEnd)
}

func TestReadRelationBadMagic(t *testing.T) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	require.NoError(t, enc.Encode(cborEnvelope{Magic: "something/else", Version: InterchangeVersion}))
	_, err := ReadRelation(&buf)
	require.ErrorIs(t, err, ErrDecode)
}

func TestReadRelationBadVersion(t *testing.T) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	require.NoError(t, enc.Encode(cborEnvelope{Magic: relationMagic, Version: 99}))
	_, err := ReadRelation(&buf)
	require.ErrorIs(t, err, ErrDecode)
}

func TestReadRelationGarbage(t *testing.T) {
	_, err := ReadRelation(bytes.NewReader([]byte("not cbor at all")))
	require.ErrorIs(t, err, ErrDecode)
}

func TestStreamDecodeError(t *testing.T) {
	rel := &Relation{
		Moduli: []*big.Int{big.NewInt(97)},
		Main:   NewSliceStream(nil),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRelation(&buf, rel))
	buf.WriteString("\xffgarbage")

	got, err := ReadRelation(&buf)
	require.NoError(t, err)
	_, err = got.Main.Next()
	require.ErrorIs(t, err, ErrDecode)
}

func TestInputsRoundTrip(t *testing.T) {
	in := make(MapInputs).
		Set(0, 0, big.NewInt(5)).
		Set(0, 7, big.NewInt(0)).
		Set(1, 1, big.NewInt(1))

	var buf bytes.Buffer
	require.NoError(t, WriteInputs(&buf, in))

	got, err := ReadInputs(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	v, ok := got.Value(0, 0)
	require.True(t, ok)
	require.Equal(t, int64(5), v.Int64())
	v, ok = got.Value(0, 7)
	require.True(t, ok)
	require.Zero(t, v.Sign())
	_, ok = got.Value(2, 0)
	require.False(t, ok)
}

func TestReadInputsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	require.NoError(t, enc.Encode(cborInputsEnvelope{Magic: relationMagic, Version: InterchangeVersion}))
	_, err := ReadInputs(&buf)
	require.ErrorIs(t, err, ErrDecode)
}
