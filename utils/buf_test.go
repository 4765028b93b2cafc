package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufRoundTrip(t *testing.T) {
	var o OutputBuf
	o.AppendUint8(7)
	o.AppendUint32(0xdeadbeef)
	o.AppendUint64(1 << 50)
	o.AppendBytes([]byte("abc"))
	o.AppendUint32Slice([]uint32{1, 2, 3})

	in := NewInputBuf(o.Bytes())
	u8, err := in.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(7), u8)
	u32, err := in.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)
	u64, err := in.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<50), u64)
	b, err := in.ReadBytes(3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), b)
	s, err := in.ReadUint32Slice()
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, s)
	require.True(t, in.IsEnd())
}

func TestBigIntLittleEndian(t *testing.T) {
	var o OutputBuf
	o.AppendBigInt(4, big.NewInt(0x0102))
	require.Equal(t, []byte{0x02, 0x01, 0x00, 0x00}, o.Bytes())

	in := NewInputBuf(o.Bytes())
	v, err := in.ReadBigInt(4)
	require.NoError(t, err)
	require.Equal(t, int64(0x0102), v.Int64())
}

func TestAppendBigIntOverflowPanics(t *testing.T) {
	var o OutputBuf
	require.Panics(t, func() { o.AppendBigInt(1, big.NewInt(256)) })
}

func TestReadPastEnd(t *testing.T) {
	in := NewInputBuf([]byte{1, 2})
	_, err := in.ReadUint32()
	require.Error(t, err)
	// a failed read consumes nothing
	u8, err := in.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(1), u8)
}

func TestRemainingTracksReads(t *testing.T) {
	in := NewInputBuf([]byte{1, 2, 3, 4, 5})
	require.Equal(t, 5, in.Remaining())
	_, err := in.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, 4, in.Remaining())
	_, err = in.ReadUint32()
	require.NoError(t, err)
	require.Zero(t, in.Remaining())
	require.True(t, in.IsEnd())
}

func TestHostileLengthsRejected(t *testing.T) {
	// a slice count far past the buffer must fail before allocating
	var o OutputBuf
	o.AppendUint64(1 << 62)
	in := NewInputBuf(o.Bytes())
	_, err := in.ReadUint32Slice()
	require.Error(t, err)

	in = NewInputBuf([]byte{1, 2, 3})
	_, err = in.ReadBytes(1 << 40)
	require.Error(t, err)
	require.Equal(t, 3, in.Remaining())

	// lengths that wrapped negative on conversion from u64
	_, err = in.ReadBytes(-1)
	require.Error(t, err)
	_, err = in.ReadBigInt(-1)
	require.Error(t, err)
}

func TestReset(t *testing.T) {
	var o OutputBuf
	o.AppendUint64(42)
	require.Equal(t, 8, o.Len())
	o.Reset()
	require.Zero(t, o.Len())
	o.AppendUint8(1)
	require.Equal(t, []byte{1}, o.Bytes())
}
