package actorloop

// linked is implemented by types that carry their own FIFO link.
type linked[T any] interface {
	*T
	link() **T
}

// fifo is an intrusive singly linked queue. It is not synchronised; each
// instance belongs to one owner, or is guarded by a lock. An element may be
// in at most one fifo at a time.
type fifo[T any, P linked[T]] struct {
	head P
	tail P
	n    int
}

func (q *fifo[T, P]) empty() bool { return q.head == nil }

func (q *fifo[T, P]) len() int { return q.n }

// put appends x, reporting whether the queue was empty beforehand.
func (q *fifo[T, P]) put(x P) bool {
	*x.link() = nil
	q.n++
	if q.tail == nil {
		q.head, q.tail = x, x
		return true
	}
	*q.tail.link() = x
	q.tail = x
	return false
}

// putHead prepends x.
func (q *fifo[T, P]) putHead(x P) {
	*x.link() = q.head
	q.head = x
	if q.tail == nil {
		q.tail = x
	}
	q.n++
}

// get removes and returns the first element, or nil.
func (q *fifo[T, P]) get() P {
	x := q.head
	if x == nil {
		return nil
	}
	q.head = *x.link()
	if q.head == nil {
		q.tail = nil
	}
	*x.link() = nil
	q.n--
	return x
}

// splice moves every element of src onto the tail of q.
func (q *fifo[T, P]) splice(src *fifo[T, P]) {
	if src.head == nil {
		return
	}
	if q.tail == nil {
		q.head = src.head
	} else {
		*q.tail.link() = src.head
	}
	q.tail = src.tail
	q.n += src.n
	*src = fifo[T, P]{}
}

// splicePrepend moves every element of src in front of the head of q,
// keeping their order.
func (q *fifo[T, P]) splicePrepend(src *fifo[T, P]) {
	if src.head == nil {
		return
	}
	*src.tail.link() = q.head
	q.head = src.head
	if q.tail == nil {
		q.tail = src.tail
	}
	q.n += src.n
	*src = fifo[T, P]{}
}

// remove unlinks x by linear search, reporting whether it was found.
func (q *fifo[T, P]) remove(x P) bool {
	var prev P
	for cur := q.head; cur != nil; prev, cur = cur, *cur.link() {
		if cur != x {
			continue
		}
		next := *cur.link()
		if prev == nil {
			q.head = next
		} else {
			*prev.link() = next
		}
		if q.tail == x {
			q.tail = prev
		}
		*x.link() = nil
		q.n--
		return true
	}
	return false
}
