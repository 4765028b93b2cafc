// Package utils provides small helpers shared across the compiler,
// most importantly the little-endian binary buffers used by the IR
// serialization code.
package utils

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// OutputBuf accumulates little-endian binary data in memory.
type OutputBuf struct {
	buf []byte
}

func (o *OutputBuf) AppendUint8(x uint8) {
	o.buf = append(o.buf, x)
}

func (o *OutputBuf) AppendUint32(x uint32) {
	o.buf = binary.LittleEndian.AppendUint32(o.buf, x)
}

func (o *OutputBuf) AppendUint64(x uint64) {
	o.buf = binary.LittleEndian.AppendUint64(o.buf, x)
}

func (o *OutputBuf) AppendBytes(b []byte) {
	o.buf = append(o.buf, b...)
}

// AppendBigInt appends x as exactly n little-endian bytes.
// x must fit in n bytes.
func (o *OutputBuf) AppendBigInt(n int, x *big.Int) {
	b := x.Bytes()
	if len(b) > n {
		panic(fmt.Sprintf("big int needs %d bytes, field element width is %d", len(b), n))
	}
	zbuf := make([]byte, n)
	for i := 0; i < len(b); i++ {
		zbuf[i] = b[len(b)-i-1]
	}
	o.buf = append(o.buf, zbuf...)
}

func (o *OutputBuf) AppendUint32Slice(x []uint32) {
	o.AppendUint64(uint64(len(x)))
	for _, v := range x {
		o.AppendUint32(v)
	}
}

func (o *OutputBuf) Len() int {
	return len(o.buf)
}

func (o *OutputBuf) Bytes() []byte {
	return o.buf
}

// Reset truncates the buffer while keeping its capacity, so a worker can
// reuse one buffer across segments.
func (o *OutputBuf) Reset() {
	o.buf = o.buf[:0]
}

// InputBuf reads back data written by OutputBuf. Short reads surface as
// errors rather than panics since the input may be an untrusted file.
type InputBuf struct {
	buf []byte
	off int
}

func NewInputBuf(buf []byte) *InputBuf {
	return &InputBuf{buf: buf}
}

// Remaining returns the number of unread bytes. Readers use it to bound
// length fields decoded from untrusted input before allocating.
func (i *InputBuf) Remaining() int {
	return len(i.buf) - i.off
}

func (i *InputBuf) take(n int) ([]byte, error) {
	if n < 0 || i.Remaining() < n {
		return nil, fmt.Errorf("truncated input: need %d bytes, have %d: %w", n, i.Remaining(), io.ErrUnexpectedEOF)
	}
	b := i.buf[i.off : i.off+n]
	i.off += n
	return b, nil
}

func (i *InputBuf) ReadUint8() (uint8, error) {
	b, err := i.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (i *InputBuf) ReadUint32() (uint32, error) {
	b, err := i.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (i *InputBuf) ReadUint64() (uint64, error) {
	b, err := i.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (i *InputBuf) ReadBytes(n int) ([]byte, error) {
	b, err := i.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBigInt reads an n-byte little-endian unsigned integer.
func (i *InputBuf) ReadBigInt(n int) (*big.Int, error) {
	b, err := i.take(n)
	if err != nil {
		return nil, err
	}
	zbuf := make([]byte, n)
	for j := 0; j < n; j++ {
		zbuf[j] = b[n-1-j]
	}
	return new(big.Int).SetBytes(zbuf), nil
}

func (i *InputBuf) ReadUint32Slice() ([]uint32, error) {
	n, err := i.ReadUint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(i.Remaining())/4 {
		return nil, fmt.Errorf("truncated slice of length %d: %w", n, io.ErrUnexpectedEOF)
	}
	x := make([]uint32, n)
	for j := range x {
		x[j], _ = i.ReadUint32()
	}
	return x, nil
}

func (i *InputBuf) IsEnd() bool {
	return i.Remaining() == 0
}
