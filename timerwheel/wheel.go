// Package timerwheel implements a hierarchical timing wheel, in the layout
// long used by the Linux kernel: one 256 slot vector for the near future,
// and four 64 slot vectors covering progressively coarser ranges. Timers
// in the outer vectors are cascaded inward as time advances.
//
// Time is an opaque, monotonically increasing uint64 tick count (the
// callers in this module use milliseconds). Comparisons are wrap-safe.
//
// A Wheel is not safe for concurrent use.
package timerwheel

const (
	tvnBits = 6
	tvrBits = 8
	tvnSize = 1 << tvnBits
	tvrSize = 1 << tvrBits
	tvnMask = tvnSize - 1
	tvrMask = tvrSize - 1

	// MaxDelta bounds the value returned by [Wheel.NextInterrupt] when no
	// timer is pending, relative to the wheel's current time.
	MaxDelta = 1<<30 - 1

	maxTimeout = 0xffffffff
)

type (
	// Timer is a single timer. The zero value must be initialised with
	// [Timer.Init] before use. A Timer must not be copied while pending.
	Timer struct {
		prev    *Timer
		next    *Timer
		fn      func()
		expires uint64
	}

	// Wheel holds pending timers.
	Wheel struct {
		tv1     [tvrSize]Timer
		tv2     [tvnSize]Timer
		tv3     [tvnSize]Timer
		tv4     [tvnSize]Timer
		tv5     [tvnSize]Timer
		work    Timer
		jiffies uint64
		count   int
	}
)

// Init sets the function called when the timer fires. It panics if the
// timer is pending.
func (t *Timer) Init(fn func()) {
	if t.Pending() {
		panic("timerwheel: init of pending timer")
	}
	t.fn = fn
}

// Pending reports whether the timer is waiting to fire.
func (t *Timer) Pending() bool { return t.next != nil }

// Expires is the tick the timer was last scheduled for.
func (t *Timer) Expires() uint64 { return t.expires }

// New creates an empty wheel, positioned at now.
func New(now uint64) *Wheel {
	w := &Wheel{jiffies: now}
	for i := range w.tv1 {
		initHead(&w.tv1[i])
	}
	for _, tv := range w.outer() {
		for i := range tv {
			initHead(&tv[i])
		}
	}
	initHead(&w.work)
	return w
}

// Now is the next tick Run will process.
func (w *Wheel) Now() uint64 { return w.jiffies }

// Len is the number of pending timers.
func (w *Wheel) Len() int { return w.count }

// Add schedules t to fire at expires, first cancelling it if pending. It
// panics if t has no function.
func (w *Wheel) Add(t *Timer, expires uint64) {
	if t.fn == nil {
		panic("timerwheel: add of uninitialised timer")
	}
	w.Del(t)
	t.expires = expires
	w.insert(t)
	w.count++
}

// Mod is Add, returning whether t was pending beforehand. A pending timer
// already due at expires keeps its place in its bucket.
func (w *Wheel) Mod(t *Timer, expires uint64) bool {
	if t.Pending() && t.expires == expires {
		return true
	}
	pending := t.Pending()
	w.Add(t, expires)
	return pending
}

// Del cancels t, returning whether it was pending.
func (w *Wheel) Del(t *Timer) bool {
	if !t.Pending() {
		return false
	}
	unlink(t)
	w.count--
	return true
}

// Run advances the wheel to now (inclusive), calling every timer that
// expired along the way, in expiry order. Timer functions may add, modify
// or delete any timer, including themselves. Returns the number of timers
// fired.
func (w *Wheel) Run(now uint64) int {
	var fired int
	if w.count == 0 {
		// nothing to cascade
		if !before(now, w.jiffies) {
			w.jiffies = now + 1
		}
		return 0
	}
	for before(w.jiffies, now) || w.jiffies == now {
		index := int(w.jiffies & tvrMask)
		if index == 0 &&
			w.cascade(&w.tv2, w.index(0)) == 0 &&
			w.cascade(&w.tv3, w.index(1)) == 0 &&
			w.cascade(&w.tv4, w.index(2)) == 0 {
			w.cascade(&w.tv5, w.index(3))
		}
		w.jiffies++
		moveAll(&w.tv1[index], &w.work)
		for w.work.next != &w.work {
			t := w.work.next
			unlink(t)
			w.count--
			t.fn()
			fired++
		}
	}
	return fired
}

// NextInterrupt returns the earliest expiry among pending timers, or
// Now()+MaxDelta if there are none.
func (w *Wheel) NextInterrupt() uint64 {
	jiffies := w.jiffies
	expires := jiffies + MaxDelta
	found := false

	index := int(jiffies & tvrMask)
	slot := index
	for {
		if head := &w.tv1[slot]; head.next != head {
			expires = earliest(head, expires, false)
			found = true
			if index == 0 || slot < index {
				break
			}
			return expires
		}
		slot = (slot + 1) & tvrMask
		if slot == index {
			break
		}
	}

	if index != 0 {
		jiffies += uint64(tvrSize - index)
	}
	jiffies >>= tvrBits

	for _, tv := range w.outer() {
		index = int(jiffies & tvnMask)
		slot = index
		for {
			if head := &tv[slot]; head.next != head {
				expires = earliest(head, expires, true)
				found = true
			}
			if found {
				if index == 0 || slot < index {
					break
				}
				return expires
			}
			slot = (slot + 1) & tvnMask
			if slot == index {
				break
			}
		}
		if index != 0 {
			jiffies += uint64(tvnSize - index)
		}
		jiffies >>= tvnBits
	}

	return expires
}

func (w *Wheel) outer() [4]*[tvnSize]Timer {
	return [4]*[tvnSize]Timer{&w.tv2, &w.tv3, &w.tv4, &w.tv5}
}

// index is the slot of outer vector n due to cascade next.
func (w *Wheel) index(n int) int {
	return int((w.jiffies >> (tvrBits + n*tvnBits)) & tvnMask)
}

func (w *Wheel) insert(t *Timer) {
	expires := t.expires
	idx := expires - w.jiffies
	var head *Timer
	switch {
	case idx < tvrSize:
		head = &w.tv1[expires&tvrMask]
	case idx < 1<<(tvrBits+tvnBits):
		head = &w.tv2[(expires>>tvrBits)&tvnMask]
	case idx < 1<<(tvrBits+2*tvnBits):
		head = &w.tv3[(expires>>(tvrBits+tvnBits))&tvnMask]
	case idx < 1<<(tvrBits+3*tvnBits):
		head = &w.tv4[(expires>>(tvrBits+2*tvnBits))&tvnMask]
	case int64(idx) < 0:
		// already expired, due on the next run
		head = &w.tv1[w.jiffies&tvrMask]
	default:
		if idx > maxTimeout {
			idx = maxTimeout
			expires = idx + w.jiffies
		}
		head = &w.tv5[(expires>>(tvrBits+3*tvnBits))&tvnMask]
	}
	linkTail(head, t)
}

// cascade re-inserts every timer of tv[index], which now all fall within
// a finer vector.
func (w *Wheel) cascade(tv *[tvnSize]Timer, index int) int {
	moveAll(&tv[index], &w.work)
	for w.work.next != &w.work {
		t := w.work.next
		unlink(t)
		w.insert(t)
	}
	return index
}

func earliest(head *Timer, expires uint64, have bool) uint64 {
	for t := head.next; t != head; t = t.next {
		if !have || before(t.expires, expires) {
			expires = t.expires
			have = true
		}
	}
	return expires
}

// before reports whether a is earlier than b, tolerating wrap.
func before(a, b uint64) bool { return int64(a-b) < 0 }

func initHead(h *Timer) {
	h.next = h
	h.prev = h
}

func linkTail(head, t *Timer) {
	t.prev = head.prev
	t.next = head
	head.prev.next = t
	head.prev = t
}

func unlink(t *Timer) {
	t.prev.next = t.next
	t.next.prev = t.prev
	t.prev = nil
	t.next = nil
}

// moveAll splices every entry of src onto the tail of dst, leaving src
// empty.
func moveAll(src, dst *Timer) {
	if src.next == src {
		return
	}
	first, last := src.next, src.prev
	first.prev = dst.prev
	dst.prev.next = first
	last.next = dst
	dst.prev = last
	initHead(src)
}
