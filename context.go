package actorloop

import (
	"slices"

	"github.com/joeycumines/logiface"
)

// Context is handed to a [Handler], and is only valid for the duration of
// the call. It identifies the running process and its domain.
type Context struct {
	domain *Domain
	proc   *process
}

// Self is the running process's PID.
func (c *Context) Self() PID { return c.proc.pid }

// Domain is the running process's domain.
func (c *Context) Domain() *Domain { return c.domain }

// Runtime is the runtime the process belongs to.
func (c *Context) Runtime() *Runtime { return c.domain.rt }

// Logger returns the runtime's logger, which may be nil (nil is safe to
// use).
func (c *Context) Logger() *logiface.Logger[logiface.Event] { return c.domain.rt.logger }

// Send queues a message for to, which may be a process, a domain
// broadcast, or a registered name. Delivery within the same domain is
// immediate. Messages to other domains are batched until the end of the
// current pass. Sending to an unregistered name, or a payload larger than
// [MaxPayloadSize], is fatal.
func (c *Context) Send(to PID, typ MsgType, payload Payload) {
	c.domain.send(to, typ, payload)
}

// Spawn creates a process in the running process's domain.
func (c *Context) Spawn(h Handler, opts ...SpawnOption) PID {
	return c.domain.spawn(h, resolveSpawnOptions(opts))
}

// Receive replaces the process's handler, and redelivers every deferred
// message, oldest first, ahead of anything else in the mailbox.
func (c *Context) Receive(h Handler) {
	if h == nil {
		c.domain.rt.fatal("receive", ErrNilHandler, c.proc.pid)
	}
	c.proc.handler = h
	c.proc.inbox.splicePrepend(&c.proc.deferred)
}

// Await enters a wait state: until a message of one of types arrives (any
// type, if none are given), incoming messages are set aside unseen. The
// first matching message is passed to resume instead of the regular
// handler. Unless resume awaits again, the wait then ends and the set-aside
// messages are redelivered in order. [MsgExit] is not set aside: unless
// awaited, it goes to the regular handler, and the wait continues.
func (c *Context) Await(resume Handler, types ...MsgType) {
	if resume == nil {
		c.domain.rt.fatal("await", ErrNilHandler, c.proc.pid)
	}
	c.proc.wait = waitState{
		resume: resume,
		types:  slices.Clone(types),
		active: true,
	}
}

// Waiting reports whether the process is in a wait state.
func (c *Context) Waiting() bool { return c.proc.wait.active }

// Register binds name (see [Name]) to the running process.
func (c *Context) Register(name PID) { c.domain.rt.Register(c.proc.pid, name) }

// LoopExit broadcasts [MsgExit] to every domain.
func (c *Context) LoopExit() { c.domain.rt.broadcastFrom(c.domain, MsgExit) }

// MemoryCollect broadcasts [MsgGC] to every domain, flushing immediately.
func (c *Context) MemoryCollect() {
	c.domain.rt.broadcastFrom(c.domain, MsgGC)
	c.domain.flush()
}

// MemoryStats is the number of bytes held by the message and process
// allocators.
func (c *Context) MemoryStats() uint64 { return c.domain.rt.MemoryStats() }

// Fatal logs err and panics with a [*FatalError]. Engines use it for
// conditions that leave them unable to continue.
func (c *Context) Fatal(op string, err error) {
	c.domain.rt.fatal(op, err, c.proc.pid)
}
