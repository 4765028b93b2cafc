package ir

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/field"
	"github.com/rw0x0/swanky/utils"
)

func testHeader(t *testing.T, party PartyTag) *Header {
	t.Helper()
	f97, err := field.FromModulus(big.NewInt(97))
	require.NoError(t, err)
	f2, err := field.FromModulus(big.NewInt(2))
	require.NoError(t, err)
	return &Header{
		Party:  party,
		Fields: []field.Field{f97, f2},
		Functions: []FuncDecl{
			{
				ID:      0,
				Name:    "square",
				Outputs: []circuit.CountPerField{{Field: 0, Count: 1}},
				Inputs:  []circuit.CountPerField{{Field: 0, Count: 1}},
			},
			{
				ID:      1,
				Name:    "permute",
				Outputs: []circuit.CountPerField{{Field: 0, Count: 3}},
				Inputs:  []circuit.CountPerField{{Field: 0, Count: 3}},
				Plugin:  &circuit.PluginBinding{Plugin: "poseidon", Operation: "permute", Args: []string{"t=3"}},
			},
		},
	}
}

// addRecord encodes one field-0 add operation the way the compiler does.
func addRecord(out, in0, in1 uint32) []byte {
	var o utils.OutputBuf
	o.AppendUint8(uint8(OpAdd))
	o.AppendUint8(0)
	o.AppendUint32(out)
	o.AppendUint32(in0)
	o.AppendUint32(in1)
	return o.Bytes()
}

func TestWriteThenReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sieve")
	w, err := NewWriter(path, testHeader(t, PartyVerifier))
	require.NoError(t, err)

	require.NoError(t, w.WriteSegment(&Segment{
		Kind:      SegmentFunction,
		Seq:       0,
		FuncID:    0,
		FrameSize: 3,
		NumOps:    1,
		Data:      addRecord(0, 1, 1),
	}))
	require.NoError(t, w.WriteSegment(&Segment{
		Kind:   SegmentTopLevel,
		Seq:    1,
		NumOps: 2,
		Data:   append(addRecord(2, 0, 1), addRecord(3, 2, 2)...),
	}))
	require.NoError(t, w.Close(4))

	f, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, PartyVerifier, f.Header.Party)
	require.Equal(t, uint64(4), f.Header.WireBound)
	require.Len(t, f.Header.Fields, 2)
	require.Zero(t, f.Header.Fields[0].Modulus.Cmp(big.NewInt(97)))
	require.Equal(t, field.IDF2, f.Header.Fields[1].ID)
	require.Len(t, f.Header.Functions, 2)
	require.Equal(t, "square", f.Header.Functions[0].Name)
	require.Nil(t, f.Header.Functions[0].Plugin)
	require.NotNil(t, f.Header.Functions[1].Plugin)
	require.Equal(t, []string{"t=3"}, f.Header.Functions[1].Plugin.Args)

	require.Len(t, f.Segments, 2)
	require.Equal(t, SegmentFunction, f.Segments[0].Kind)
	require.Equal(t, uint64(3), f.Segments[0].FrameSize)
	require.Equal(t, SegmentTopLevel, f.Segments[1].Kind)

	ops, err := f.DecodeOps(f.Segments[1])
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, OpAdd, ops[0].Op)
	require.Equal(t, uint32(2), ops[0].Out)
	require.Equal(t, uint32(2), ops[1].In1)
}

func TestOutputOnlyAppearsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.sieve")
	w, err := NewWriter(path, testHeader(t, PartyPublic))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "output must not exist before Close")

	require.NoError(t, w.Close(0))
	_, err = os.Stat(path)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file must be gone after publish")
}

func TestAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.sieve")
	w, err := NewWriter(path, testHeader(t, PartyProver))
	require.NoError(t, err)
	require.NoError(t, w.WriteSegment(&Segment{Kind: SegmentTopLevel, NumOps: 1, Data: addRecord(1, 0, 0)}))
	w.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteAfterClosePanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sieve")
	w, err := NewWriter(path, testHeader(t, PartyPublic))
	require.NoError(t, err)
	require.NoError(t, w.Close(0))
	require.Panics(t, func() {
		_ = w.WriteSegment(&Segment{Kind: SegmentTopLevel})
	})
}

func TestDecodeRejectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sieve")
	w, err := NewWriter(path, testHeader(t, PartyPublic))
	require.NoError(t, err)
	require.NoError(t, w.Close(0))
	buf, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = Decode(buf[:len(buf)-1])
	require.Error(t, err, "truncated footer")

	bad := append([]byte(nil), buf...)
	bad[0] ^= 0xff
	_, err = Decode(bad)
	require.Error(t, err, "corrupt magic")

	_, err = Decode(buf[:8])
	require.Error(t, err, "short file")
}

// Length fields in a hostile file must be rejected before they size an
// allocation or index past the input.
func TestHostileLengthFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sieve")
	w, err := NewWriter(path, testHeader(t, PartyPublic))
	require.NoError(t, err)
	require.NoError(t, w.Close(0))
	f, err := ReadFile(path)
	require.NoError(t, err)

	// op count far beyond the segment body
	_, err = f.DecodeOps(&Segment{Kind: SegmentTopLevel, NumOps: 1 << 61, Data: []byte{0, 0}})
	require.ErrorContains(t, err, "op count")

	// call record claiming an absurd output-range count
	var o utils.OutputBuf
	o.AppendUint8(uint8(OpCall))
	o.AppendUint8(0)
	o.AppendUint32(0)
	o.AppendUint64(1 << 61)
	_, err = f.DecodeOps(&Segment{Kind: SegmentTopLevel, NumOps: 1, Data: o.Bytes()})
	require.ErrorContains(t, err, "range count")

	// function signature with an oversized count table
	o.Reset()
	o.AppendUint64(1 << 61)
	_, err = readCounts(utils.NewInputBuf(o.Bytes()))
	require.ErrorContains(t, err, "count-table length")

	// segment body length pointing past the end of the file, and one
	// large enough to wrap negative on conversion
	for _, bodyLen := range []uint64{1 << 40, 1 << 63} {
		o.Reset()
		o.AppendUint8(uint8(SegmentTopLevel))
		o.AppendUint64(bodyLen)
		_, err = readSegment(utils.NewInputBuf(o.Bytes()))
		require.Error(t, err)
	}
}

func TestProverPayloadDecoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sieve")
	hdr := testHeader(t, PartyProver)
	w, err := NewWriter(path, hdr)
	require.NoError(t, err)

	var o utils.OutputBuf
	o.AppendUint8(uint8(OpConst))
	o.AppendUint8(0)
	o.AppendUint32(0)
	hdr.Fields[0].Append(&o, big.NewInt(42))
	require.NoError(t, w.WriteSegment(&Segment{Kind: SegmentTopLevel, NumOps: 1, Data: o.Bytes()}))
	require.NoError(t, w.Close(1))

	f, err := ReadFile(path)
	require.NoError(t, err)
	ops, err := f.DecodeOps(f.Segments[0])
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.NotNil(t, ops[0].Payload)
	require.Equal(t, int64(42), ops[0].Payload.Int64())
}
