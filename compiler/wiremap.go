package compiler

import (
	"github.com/bits-and-blooms/bitset"
)

// wireMap maps sparse, source-assigned wire numbers to compact local slots
// within one scope. Slots freed by delete directives are reused, so the
// map's footprint tracks the number of live wires, not the number of wire
// ids the source ever mentions.
//
// Wires follow a single-assignment discipline: a slot is reserved (by a
// range allocation), then written exactly once, then read any number of
// times. The assigned bitset tracks the written slots.
type wireMap struct {
	slots    map[uint64]uint32
	fieldOf  []uint8
	assigned *bitset.BitSet
	free     []uint32
	next     uint32
	high     uint32
	live     uint64
}

func newWireMap(hint int) *wireMap {
	return &wireMap{
		slots:    make(map[uint64]uint32, hint),
		assigned: bitset.New(uint(hint)),
	}
}

func (m *wireMap) newSlot(f uint8) uint32 {
	if n := len(m.free); n > 0 {
		s := m.free[n-1]
		m.free = m.free[:n-1]
		m.fieldOf[s] = f
		m.assigned.Clear(uint(s))
		return s
	}
	s := m.next
	m.next++
	if m.next > m.high {
		m.high = m.next
	}
	m.fieldOf = append(m.fieldOf, f)
	return s
}

// define assigns a slot to wire id and marks it written. If the id was
// reserved by a range allocation, the reserved slot is written instead. The
// second result is false when the wire was already written (a
// single-assignment violation) or was reserved under a different field.
func (m *wireMap) define(id uint64, f uint8) (uint32, defineStatus) {
	if s, ok := m.slots[id]; ok {
		if m.assigned.Test(uint(s)) {
			return s, defineDuplicate
		}
		if m.fieldOf[s] != f {
			return s, defineFieldClash
		}
		m.assigned.Set(uint(s))
		return s, defineOK
	}
	s := m.newSlot(f)
	m.slots[id] = s
	m.assigned.Set(uint(s))
	m.live++
	return s, defineOK
}

type defineStatus uint8

const (
	defineOK defineStatus = iota
	defineDuplicate
	defineFieldClash
)

// reserveWire adds a single unwritten wire, used for a frame's declared
// return wires. ok is false if the id already has a slot.
func (m *wireMap) reserveWire(id uint64, f uint8) (uint32, bool) {
	if _, ok := m.slots[id]; ok {
		return 0, false
	}
	s := m.newSlot(f)
	m.slots[id] = s
	m.live++
	return s, true
}

// reserve allocates a contiguous block of count slots for the inclusive
// source range first..first+count-1 without marking them written. The
// second result is false if any id in the range already has a slot.
func (m *wireMap) reserve(first uint64, count uint64, f uint8) (uint32, bool) {
	for i := uint64(0); i < count; i++ {
		if _, ok := m.slots[first+i]; ok {
			return 0, false
		}
	}
	// ranges always come from the bump frontier so the block is contiguous
	base := m.next
	for i := uint64(0); i < count; i++ {
		s := m.next
		m.next++
		m.fieldOf = append(m.fieldOf, f)
		m.slots[first+i] = s
	}
	if m.next > m.high {
		m.high = m.next
	}
	m.live += count
	return base, true
}

// allocBlock reserves count anonymous contiguous slots, used for the
// internal wires of an inlined callee. The expansion writes them without
// going through define, so no field tag is tracked for them.
func (m *wireMap) allocBlock(count uint64) uint32 {
	base := m.next
	for i := uint64(0); i < count; i++ {
		m.next++
		m.fieldOf = append(m.fieldOf, 0)
	}
	if m.next > m.high {
		m.high = m.next
	}
	return base
}

// resolve returns the slot and field of a written wire. ok is false when
// the id has no slot or was reserved but never written.
func (m *wireMap) resolve(id uint64) (slot uint32, f uint8, ok bool) {
	s, present := m.slots[id]
	if !present || !m.assigned.Test(uint(s)) {
		return 0, 0, false
	}
	return s, m.fieldOf[s], true
}

// release frees the slots of the inclusive range first..first+count-1.
// ok is false if any id in the range has no slot.
func (m *wireMap) release(first uint64, count uint64) bool {
	for i := uint64(0); i < count; i++ {
		if _, present := m.slots[first+i]; !present {
			return false
		}
	}
	for i := uint64(0); i < count; i++ {
		s := m.slots[first+i]
		delete(m.slots, first+i)
		m.free = append(m.free, s)
	}
	m.live -= count
	return true
}

// bound is the high-water slot count, the frame size the engine must
// provision.
func (m *wireMap) bound() uint64 {
	return uint64(m.high)
}
