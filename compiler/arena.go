package compiler

// arena is a bump allocator handing out slices from large reusable blocks.
// Scopes and worker tasks each own one for operand-list scratch, so
// compiling a gate never allocates on its own; reset reclaims everything in
// bulk when the scope is popped or the task ends.
type arena[T any] struct {
	block     []T
	blockSize int
}

func newArena[T any](blockSize int) *arena[T] {
	return &arena[T]{blockSize: blockSize}
}

// alloc returns a zeroed slice of length n, valid until reset.
func (a *arena[T]) alloc(n int) []T {
	if n > a.blockSize {
		return make([]T, n)
	}
	if cap(a.block)-len(a.block) < n {
		a.block = make([]T, 0, a.blockSize)
	}
	off := len(a.block)
	a.block = a.block[:off+n]
	s := a.block[off : off+n : off+n]
	clear(s)
	return s
}

// reset reclaims the current block for reuse. Outstanding slices must not
// be used afterwards; fully retired blocks are left to the garbage
// collector.
func (a *arena[T]) reset() {
	a.block = a.block[:0]
}
