package compiler

// A frame is the compilation scope of one function body: its wire map, its
// scratch arena and the definition being compiled. Frames form a strict
// LIFO stack; recursion re-enters the same definition with a fresh frame.
type frame struct {
	def     *defEntry
	wires   *wireMap
	scratch *arena[uint32]
	popped  bool
}

// scopeStack manages frames. Push binds the callee's declared wires,
// pop validates the returns and reclaims the frame's wire map and arena.
type scopeStack struct {
	frames []*frame
}

// scopeHandle is valid from push until the matching pop. Any use afterwards
// is a programming error and panics.
type scopeHandle struct {
	f *frame
	s *scopeStack
}

func newScopeStack() *scopeStack {
	return &scopeStack{}
}

func (s *scopeStack) depth() int { return len(s.frames) }

// push enters def's body. Within the frame, wires 0..numOut-1 are the
// declared returns (reserved, to be written by the body) and the next
// numIn wires are the parameters (bound by the caller, readable
// immediately).
func (s *scopeStack) push(def *defEntry) *scopeHandle {
	fr := &frame{
		def:     def,
		wires:   newWireMap(int(def.numOut+def.numIn) + 16),
		scratch: newArena[uint32](4096),
	}
	for i, f := range def.outFields {
		if _, ok := fr.wires.reserveWire(uint64(i), f); !ok {
			panic("fresh frame has colliding return wires")
		}
	}
	for i, f := range def.inFields {
		id := def.numOut + uint64(i)
		if _, st := fr.wires.define(id, f); st != defineOK {
			panic("fresh frame has colliding parameter wires")
		}
	}
	s.frames = append(s.frames, fr)
	return &scopeHandle{f: fr, s: s}
}

// frame returns the live frame behind the handle.
func (h *scopeHandle) frame() *frame {
	if h.f.popped {
		panic("use of scope handle after pop")
	}
	return h.f
}

// pop leaves the scope: it validates that every declared return wire was
// written, reports the frame size the engine must provision, and reclaims
// the frame's wire map and arena. The handle is dead afterwards.
func (h *scopeHandle) pop() (frameSize uint64, err error) {
	fr := h.f
	if fr.popped {
		panic("scope popped twice")
	}
	s := h.s
	if len(s.frames) == 0 || s.frames[len(s.frames)-1] != fr {
		panic("pop of non-top scope")
	}
	for i := uint64(0); i < fr.def.numOut; i++ {
		if _, _, ok := fr.wires.resolve(i); !ok {
			err = structuralf(Pos{Func: fr.def.fn.Name, Index: len(fr.def.fn.Body)},
				"return wire %d never assigned", i)
			break
		}
	}
	frameSize = fr.wires.bound()
	fr.wires = nil
	fr.scratch.reset()
	fr.popped = true
	s.frames = s.frames[:len(s.frames)-1]
	return frameSize, err
}

// abandon reclaims a frame on an error path without return validation.
func (h *scopeHandle) abandon() {
	fr := h.f
	if fr.popped {
		return
	}
	fr.wires = nil
	fr.scratch.reset()
	fr.popped = true
	if n := len(h.s.frames); n > 0 && h.s.frames[n-1] == fr {
		h.s.frames = h.s.frames[:n-1]
	}
}
