package wakeup

// Chan is a channel based wakeup, for engines that block in a select.
// Signals are coalesced into a single pending notification.
type Chan struct {
	c chan struct{}
}

// NewChan returns a ready to use Chan.
func NewChan() *Chan {
	return &Chan{c: make(chan struct{}, 1)}
}

// Signal makes C ready to receive, without blocking. It is safe to call from
// any goroutine.
func (x *Chan) Signal() {
	select {
	case x.c <- struct{}{}:
	default:
	}
}

// C receives once per batch of signals.
func (x *Chan) C() <-chan struct{} { return x.c }

// Drain discards any pending signal.
func (x *Chan) Drain() {
	select {
	case <-x.c:
	default:
	}
}
