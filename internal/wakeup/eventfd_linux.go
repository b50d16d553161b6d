//go:build linux

package wakeup

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by [EventFD.Signal] after Close.
var ErrClosed = errors.New("wakeup: closed")

// EventFD is an eventfd(2) based wakeup, for engines that wait in
// epoll_wait. The descriptor is non-blocking, and is meant to be registered
// for read readiness.
//
// Signals are coalesced: at most one write is outstanding until the next
// Drain.
type EventFD struct {
	// mu orders Signal's write before Close releases the descriptor.
	mu      sync.RWMutex
	fd      int
	pending atomic.Uint32
	closed  bool
	buf     [8]byte
}

// NewEventFD creates an eventfd, with close-on-exec set.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &EventFD{fd: fd}, nil
}

// FD is the descriptor to poll for readability.
func (x *EventFD) FD() int { return x.fd }

// Signal makes the descriptor readable. It is safe to call from any
// goroutine.
func (x *EventFD) Signal() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrClosed
	}
	if !x.pending.CompareAndSwap(0, 1) {
		return nil
	}
	var one uint64 = 1
	_, err := unix.Write(x.fd, (*[8]byte)(unsafe.Pointer(&one))[:])
	if err == unix.EAGAIN {
		// counter saturated, which still reads as ready
		err = nil
	}
	return err
}

// Drain resets the descriptor, and must only be called by the waiting
// goroutine.
func (x *EventFD) Drain() {
	x.pending.Store(0)
	for {
		if _, err := unix.Read(x.fd, x.buf[:]); err != nil {
			break
		}
	}
}

// Close releases the descriptor, once any in-flight Signal has returned.
// Subsequent signals fail with [ErrClosed].
func (x *EventFD) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return unix.Close(x.fd)
}
