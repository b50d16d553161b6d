//go:build linux

package poll

import (
	"fmt"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/internal/wakeup"
	"github.com/joeycumines/go-actorloop/timerwheel"
	"golang.org/x/sys/unix"
)

// item is the state of one descriptor. Mask changes requested by messages
// are applied to the epoll set just before the next wait.
type item struct {
	e       *engine
	timer   timerwheel.Timer
	victim  actorloop.PID
	fd      int
	newMask uint32
	curMask uint32
	changed bool
}

type engine struct {
	wake    *wakeup.EventFD
	wheel   *timerwheel.Wheel
	ctx     *actorloop.Context
	items   []*item
	changed []*item
	events  [256]unix.EpollEvent
	epfd    int
}

// Construct implements [actorloop.Engine].
func (Engine) Construct(rt *actorloop.Runtime) error {
	if _, ok := rt.Lookup(actorloop.Name(actorloop.NameSelect)); ok {
		return fmt.Errorf("poll: %w", actorloop.ErrNameTaken)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("poll: epoll_create1: %w", err)
	}
	wake, err := wakeup.NewEventFD()
	if err != nil {
		_ = unix.Close(epfd)
		return fmt.Errorf("poll: eventfd: %w", err)
	}
	e := &engine{
		epfd:  epfd,
		wake:  wake,
		wheel: timerwheel.New(actorloop.Millis()),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake.FD())}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake.FD(), &ev); err != nil {
		e.close()
		_ = wake.Close()
		return fmt.Errorf("poll: epoll_ctl: %w", err)
	}

	d, err := rt.NewDomain(EngineName, driver{e}, 1)
	if err != nil {
		e.close()
		_ = wake.Close()
		return err
	}
	rt.Register(d.Spawn(e, actorloop.Hungry()), actorloop.Name(actorloop.NameSelect))
	return nil
}

type driver struct{ e *engine }

func (x driver) Ingress() { _ = x.e.wake.Signal() }

func (x driver) Destroy() {
	x.e.close()
	_ = x.e.wake.Close()
}

func (e *engine) close() {
	if e.epfd >= 0 {
		_ = unix.Close(e.epfd)
		e.epfd = -1
	}
}

// Receive implements [actorloop.Handler].
func (e *engine) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	e.ctx = ctx
	defer func() { e.ctx = nil }()

	switch typ := msg.Type(); typ {
	case actorloop.MsgFDRegisterRead, actorloop.MsgFDRegisterWrite, actorloop.MsgFDUnregister:
		p, ok := msg.Payload().(actorloop.FDPayload)
		if !ok {
			ctx.Fatal("poll", fmt.Errorf("%w: %s without fd payload", actorloop.ErrUnexpectedMessage, typ))
		}
		if p.FD < 0 {
			ctx.Fatal("poll", fmt.Errorf("%w: %d", ErrBadFD, p.FD))
		}
		var mask uint32
		switch typ {
		case actorloop.MsgFDRegisterRead:
			mask = unix.EPOLLIN
		case actorloop.MsgFDRegisterWrite:
			mask = unix.EPOLLOUT
		default:
			p.Expires = 0
		}
		it := e.item(p.FD)
		e.schedule(it, p.Victim, mask, p.Expires)
		if mask == 0 {
			e.remove(it)
		}

	case actorloop.MsgQueueEmpty:
		e.block()

	case actorloop.MsgExit:
		e.close()
		ctx.Logger().Debug().
			Int("registered", e.wheel.Len()).
			Log("poll engine exited")
		return actorloop.Exit

	default:
		ctx.Fatal("poll", fmt.Errorf("%w: %s", actorloop.ErrUnexpectedMessage, typ))
	}
	return actorloop.Consumed
}

func (e *engine) item(fd int) *item {
	if fd >= len(e.items) {
		items := make([]*item, fd*2+1)
		copy(items, e.items)
		e.items = items
	}
	it := e.items[fd]
	if it == nil {
		it = &item{e: e, fd: fd}
		it.timer.Init(it.expired)
		e.items[fd] = it
	}
	return it
}

func (e *engine) schedule(it *item, victim actorloop.PID, mask uint32, expires uint64) {
	it.victim = victim
	it.newMask = mask
	if it.newMask != it.curMask && !it.changed {
		it.changed = true
		e.changed = append(e.changed, it)
	}
	if expires != 0 {
		e.wheel.Mod(&it.timer, expires)
	} else {
		e.wheel.Del(&it.timer)
	}
}

func (it *item) expired() {
	it.e.notify(it, actorloop.MsgFDTimeout)
}

// notify sends typ to the item's victim, ending the registration.
func (e *engine) notify(it *item, typ actorloop.MsgType) {
	victim := it.victim
	e.schedule(it, 0, 0, 0)
	e.remove(it)
	if victim != 0 {
		e.ctx.Send(victim, typ, actorloop.FDPayload{FD: it.fd})
	}
}

// remove takes fd out of the epoll set straight away, as its owner may
// close it, and the number may be reused, before the next wait.
func (e *engine) remove(it *item) {
	if it.curMask == 0 {
		return
	}
	it.curMask = 0
	switch err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, it.fd, nil); err {
	case nil, unix.EBADF, unix.ENOENT:
	default:
		e.ctx.Fatal("epoll_ctl", err)
	}
}

// apply brings the epoll set in line with the requested masks.
func (e *engine) apply() {
	for _, it := range e.changed {
		it.changed = false
		if it.newMask == it.curMask {
			continue
		}
		var err error
		switch {
		case it.newMask == 0:
			err = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, it.fd, nil)
			if err == unix.EBADF || err == unix.ENOENT {
				// closed before unregistering
				err = nil
			}
		case it.curMask == 0:
			err = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, it.fd, &unix.EpollEvent{Events: it.newMask, Fd: int32(it.fd)})
		default:
			err = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, it.fd, &unix.EpollEvent{Events: it.newMask, Fd: int32(it.fd)})
		}
		switch err {
		case nil:
			it.curMask = it.newMask
		case unix.EBADF, unix.EPERM:
			e.ctx.Logger().Err().
				Int("fd", it.fd).
				Err(err).
				Log("poll registration failed")
			it.curMask = 0
			e.notify(it, actorloop.MsgFDClose)
			it.changed = false
		default:
			e.ctx.Fatal("epoll_ctl", err)
		}
	}
	e.changed = e.changed[:0]
}

// block waits for readiness, a timer, or ingress, then reports whatever
// happened.
func (e *engine) block() {
	e.apply()

	timeout := -1
	if e.wheel.Len() != 0 {
		now := actorloop.Millis()
		if next := e.wheel.NextInterrupt(); next > now {
			timeout = int(min(next-now, timerwheel.MaxDelta))
		} else {
			timeout = 0
		}
	}

	var n int
	for {
		var err error
		n, err = unix.EpollWait(e.epfd, e.events[:], timeout)
		if err == nil {
			break
		}
		if err != unix.EINTR {
			e.ctx.Fatal("epoll_wait", err)
		}
	}

	for i := range n {
		fd := int(e.events[i].Fd)
		if fd == e.wake.FD() {
			e.wake.Drain()
			continue
		}
		if fd >= len(e.items) || e.items[fd] == nil || e.items[fd].curMask == 0 {
			continue
		}
		it := e.items[fd]
		switch ev := e.events[i].Events; {
		case ev&unix.EPOLLIN != 0:
			e.notify(it, actorloop.MsgFDRead)
		case ev&unix.EPOLLOUT != 0:
			e.notify(it, actorloop.MsgFDWrite)
		case ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0:
			e.notify(it, actorloop.MsgFDClose)
		}
	}

	e.wheel.Run(actorloop.Millis())
}
