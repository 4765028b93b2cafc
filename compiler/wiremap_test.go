package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWireMapDefineResolve(t *testing.T) {
	m := newWireMap(16)
	s0, st := m.define(100, 0)
	require.Equal(t, defineOK, st)
	s1, st := m.define(200, 1)
	require.Equal(t, defineOK, st)
	require.NotEqual(t, s0, s1)

	slot, f, ok := m.resolve(100)
	require.True(t, ok)
	require.Equal(t, s0, slot)
	require.Equal(t, uint8(0), f)

	slot, f, ok = m.resolve(200)
	require.True(t, ok)
	require.Equal(t, s1, slot)
	require.Equal(t, uint8(1), f)

	_, _, ok = m.resolve(300)
	require.False(t, ok)
}

func TestWireMapSingleAssignment(t *testing.T) {
	m := newWireMap(16)
	_, st := m.define(1, 0)
	require.Equal(t, defineOK, st)
	_, st = m.define(1, 0)
	require.Equal(t, defineDuplicate, st)
}

func TestWireMapReservedThenWritten(t *testing.T) {
	m := newWireMap(16)
	base, ok := m.reserve(10, 3, 0)
	require.True(t, ok)

	// reserved wires are not readable until written
	_, _, resolved := m.resolve(11)
	require.False(t, resolved)

	s, st := m.define(11, 0)
	require.Equal(t, defineOK, st)
	require.Equal(t, base+1, s)
	_, st = m.define(11, 0)
	require.Equal(t, defineDuplicate, st)

	_, st = m.define(12, 1)
	require.Equal(t, defineFieldClash, st)
}

func TestWireMapReserveContiguous(t *testing.T) {
	m := newWireMap(16)
	_, st := m.define(0, 0)
	require.Equal(t, defineOK, st)
	base, ok := m.reserve(5, 4, 0)
	require.True(t, ok)
	for i := uint64(0); i < 4; i++ {
		s, st := m.define(5+i, 0)
		require.Equal(t, defineOK, st)
		require.Equal(t, base+uint32(i), s)
	}

	// overlap with an existing wire is refused
	_, ok = m.reserve(8, 2, 0)
	require.False(t, ok)
}

func TestWireMapReleaseReuse(t *testing.T) {
	m := newWireMap(16)
	for id := uint64(0); id < 4; id++ {
		_, st := m.define(id, 0)
		require.Equal(t, defineOK, st)
	}
	require.Equal(t, uint64(4), m.bound())

	require.True(t, m.release(1, 2))
	_, _, ok := m.resolve(1)
	require.False(t, ok)

	// freed slots are reused, so the bound does not grow
	_, st := m.define(10, 0)
	require.Equal(t, defineOK, st)
	_, st = m.define(11, 0)
	require.Equal(t, defineOK, st)
	require.Equal(t, uint64(4), m.bound())

	// a released and reclaimed slot is writable again
	slot, _, ok := m.resolve(10)
	require.True(t, ok)
	require.True(t, slot == 1 || slot == 2)
}

func TestWireMapReleaseUnknown(t *testing.T) {
	m := newWireMap(16)
	_, st := m.define(0, 0)
	require.Equal(t, defineOK, st)
	require.False(t, m.release(0, 2))
}

func TestWireMapAllocBlock(t *testing.T) {
	m := newWireMap(16)
	_, st := m.define(0, 0)
	require.Equal(t, defineOK, st)
	base := m.allocBlock(5)
	require.Equal(t, uint32(1), base)
	require.Equal(t, uint64(6), m.bound())

	// anonymous blocks never alias mapped wires
	s, st := m.define(1, 0)
	require.Equal(t, defineOK, st)
	require.Equal(t, uint32(6), s)
}

func TestWireMapBoundIsHighWater(t *testing.T) {
	m := newWireMap(16)
	for id := uint64(0); id < 8; id++ {
		_, st := m.define(id, 0)
		require.Equal(t, defineOK, st)
	}
	require.True(t, m.release(0, 8))
	require.Equal(t, uint64(8), m.bound())
}
