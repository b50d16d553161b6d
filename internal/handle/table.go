// Package handle implements a fixed-capacity table mapping generation
// checked handles to values.
//
// A handle is a non-zero uint64 whose remainder modulo the table size is the
// slot index. Each Add advances a monotonically increasing counter to the
// next value congruent to the chosen slot, so a handle that has been deleted
// is never confused with a later occupant of the same slot (until the
// counter wraps at the table's maximum).
package handle

// Table is not safe for concurrent use.
type Table[T any] struct {
	slots   []entry[T]
	free    []uint32 // ring buffer of free slot indexes, FIFO
	head    int
	nfree   int
	counter uint64
	max     uint64
}

type entry[T any] struct {
	handle uint64
	value  *T
}

// New creates a table with size slots, whose handles stay below max. It
// panics if size is not positive, or max does not leave room for at least
// two generations.
func New[T any](size int, max uint64) *Table[T] {
	if size <= 0 {
		panic("handle: size must be positive")
	}
	if max/2 < uint64(size) {
		panic("handle: max too small for size")
	}
	t := &Table[T]{
		slots:   make([]entry[T], size),
		free:    make([]uint32, size),
		nfree:   size,
		counter: 1,
		max:     max,
	}
	for i := range t.free {
		t.free[i] = uint32(i)
	}
	return t
}

// Add stores value and returns its handle, or 0 if every slot is taken.
func (t *Table[T]) Add(value *T) uint64 {
	if t.nfree == 0 {
		return 0
	}
	idx := t.free[t.head]
	t.head = (t.head + 1) % len(t.free)
	t.nfree--

	t.advance(idx)
	if t.counter >= t.max {
		t.counter = 0
		t.advance(idx)
	}

	e := &t.slots[idx]
	e.handle = t.counter
	e.value = value
	return t.counter
}

// advance moves the counter forward to the next value (strictly greater)
// that lands on slot idx.
func (t *Table[T]) advance(idx uint32) {
	size := uint64(len(t.slots))
	step := (size + uint64(idx) - t.counter%size) % size
	if step == 0 {
		step = size
	}
	t.counter += step
}

// Get returns the value for h, or nil if h is not live.
func (t *Table[T]) Get(h uint64) *T {
	if h == 0 {
		return nil
	}
	e := &t.slots[h%uint64(len(t.slots))]
	if e.handle != h {
		return nil
	}
	return e.value
}

// Del removes h. Deleting a stale or zero handle does nothing.
func (t *Table[T]) Del(h uint64) {
	if h == 0 {
		return
	}
	idx := h % uint64(len(t.slots))
	e := &t.slots[idx]
	if e.handle != h {
		return
	}
	*e = entry[T]{}
	t.free[(t.head+t.nfree)%len(t.free)] = uint32(idx)
	t.nfree++
}

// Len is the number of live handles.
func (t *Table[T]) Len() int { return len(t.slots) - t.nfree }

// Cap is the number of slots.
func (t *Table[T]) Cap() int { return len(t.slots) }
