package actorloop

import (
	"slices"
	"sync/atomic"

	"github.com/joeycumines/go-actorloop/internal/handle"
	"github.com/joeycumines/go-actorloop/internal/msqueue"
	"github.com/joeycumines/go-actorloop/internal/slab"
	"github.com/joeycumines/go-actorloop/internal/spinlock"
)

// Domain is a group of processes executed by at most one worker at a time.
// Processes within a domain never run concurrently with each other.
//
// Domains are created by the runtime (the user domain) and by engines,
// via [Runtime.NewDomain]. Apart from [Domain.GID] and [Domain.Name], the
// exported methods are only for use while the domain is owned by the
// caller: during engine construction, or from one of its processes.
type Domain struct {
	node   msqueue.Node[Domain]
	rt     *Runtime
	driver Driver
	procs  *handle.Table[process]

	messages  *slab.Cache[msgChunk, *msgChunk]
	processes *slab.Cache[process, *process]

	live    *process // newest first
	hungry  []*process
	scratch []PID

	name string

	ctx   Context
	stats passStats

	// outbox holds messages for other domains, by gid, until flush.
	outbox [MaxDomains]fifo[Message, *Message]
	local  fifo[Message, *Message]
	busy   fifo[process, *process]

	remoteLock spinlock.Lock
	remote     fifo[Message, *Message]

	runLock spinlock.Lock
	retired atomic.Bool
	gid     int
	nlive   int
}

// GID is the domain id.
func (d *Domain) GID() int { return d.gid }

// Name is the name the domain was created with.
func (d *Domain) Name() string { return d.name }

// Spawn creates a process in this domain. Only valid while the domain is
// owned by the caller, e.g. within [Engine.Construct].
func (d *Domain) Spawn(h Handler, opts ...SpawnOption) PID {
	return d.spawn(h, resolveSpawnOptions(opts))
}

// Len is the number of live processes.
func (d *Domain) Len() int { return d.nlive }

func (d *Domain) spawn(h Handler, opts spawnOptions) PID {
	if h == nil {
		d.rt.fatal("spawn", ErrNilHandler, 0)
	}
	p := d.processes.Alloc()
	poff := d.procs.Add(p)
	if poff == 0 {
		d.processes.Free(p)
		d.rt.fatal("spawn", ErrNoSlots, Broadcast(d.gid))
	}
	p.pid = MakePID(d.gid, poff)
	p.domain = d
	p.handler = h

	p.succ = d.live
	if d.live != nil {
		d.live.prev = p
	}
	d.live = p
	d.nlive++

	if opts.hungry {
		p.hungry = true
		d.hungry = append(d.hungry, p)
	}
	return p.pid
}

func (d *Domain) freeProcess(p *process) {
	d.procs.Del(p.pid.Offset())

	if p.prev != nil {
		p.prev.succ = p.succ
	} else {
		d.live = p.succ
	}
	if p.succ != nil {
		p.succ.prev = p.prev
	}
	d.nlive--

	if p.busy {
		d.busy.remove(p)
	}
	if p.hungry {
		d.hungry = slices.DeleteFunc(d.hungry, func(v *process) bool { return v == p })
	}
	d.freeAll(&p.inbox)
	d.freeAll(&p.deferred)
	d.processes.Free(p)
}

func (d *Domain) allocMessage() *Message {
	c := d.messages.Alloc()
	c.msg.chunk = c
	return &c.msg
}

func (d *Domain) freeMessage(m *Message) {
	d.messages.Free(m.chunk)
}

func (d *Domain) freeAll(q *fifo[Message, *Message]) {
	for m := q.get(); m != nil; m = q.get() {
		d.freeMessage(m)
	}
}

// send implements Context.Send, for the domain's current owner.
func (d *Domain) send(to PID, typ MsgType, payload Payload) {
	to = d.rt.resolve(to)
	m := d.allocMessage()
	m.target = to
	m.typ = typ
	if err := m.setPayload(payload); err != nil {
		d.freeMessage(m)
		d.rt.fatal("send", err, to)
	}
	d.stats.sent++
	if gid := to.GID(); gid == d.gid {
		d.dispatch(m)
	} else {
		d.outbox[gid].put(m)
	}
}

// deliver puts m in p's inbox, scheduling p if it was idle.
func (d *Domain) deliver(p *process, m *Message) {
	if p.inbox.put(m) && !p.busy {
		p.busy = true
		d.busy.put(p)
	}
	d.stats.delivered++
}

// dispatch routes a message addressed to this domain, returning 1 if it was
// delivered (or acted upon), or 0 if it was dropped.
func (d *Domain) dispatch(m *Message) int {
	if poff := m.target.Offset(); poff != 0 {
		if p := d.procs.Get(poff); p != nil {
			d.deliver(p, m)
			return 1
		}
		d.drop(m, "no such process")
		return 0
	}

	if m.typ == MsgGC {
		d.freeMessage(m)
		d.messages.Drain()
		d.processes.Drain()
		d.rt.drainExternal()
		return 1
	}

	for p := d.live; p != nil; p = p.succ {
		c := d.allocMessage()
		c.copyFrom(m)
		d.deliver(p, c)
	}
	d.freeMessage(m)
	return 1
}

func (d *Domain) drop(m *Message, reason string) {
	d.stats.dropped++
	d.rt.logDrop(d, m, reason)
	d.freeMessage(m)
}

// dispatchLocal empties the local inbox, returning the count dispatched.
func (d *Domain) dispatchLocal() int {
	var n int
	for m := d.local.get(); m != nil; m = d.local.get() {
		n += d.dispatch(m)
	}
	return n
}

// runBusy runs every scheduled process, including those scheduled along
// the way.
func (d *Domain) runBusy() {
	for p := d.busy.get(); p != nil; p = d.busy.get() {
		p.busy = false
		d.ctx.proc = p
		p.run(&d.ctx)
	}
	d.ctx.proc = nil
}

// pass is one run of the domain: take in remote mail, run every process
// with mail, then flush outboxes. Returns the number of outboxes flushed.
func (d *Domain) pass() int {
	d.remoteLock.Lock()
	d.local.splice(&d.remote)
	d.remoteLock.Unlock()

	d.dispatchLocal()
	for {
		d.runBusy()
		if d.dispatchLocal() == 0 {
			break
		}
	}
	return d.flush()
}

// work is what a worker does with a domain it dequeued. If a pass sends
// nothing out, each hungry process is told the domain is idle, in turn,
// with a pass after each. Hungry processes typically block on some event
// source at that point.
func (d *Domain) work() {
	if d.pass() != 0 || len(d.hungry) == 0 {
		return
	}
	d.scratch = d.scratch[:0]
	for _, p := range d.hungry {
		d.scratch = append(d.scratch, p.pid)
	}
	for _, pid := range d.scratch {
		d.send(pid, MsgQueueEmpty, nil)
		d.pass()
	}
}

// flush moves each non-empty outbox to the remote inbox of its domain,
// waking that domain if it is not queued to run. Returns the number of
// outboxes moved.
func (d *Domain) flush() int {
	var n int
	for gid := range d.outbox {
		q := &d.outbox[gid]
		if q.empty() {
			continue
		}
		victim := d.rt.domain(gid)
		if victim == nil {
			for m := q.get(); m != nil; m = q.get() {
				d.drop(m, "no such domain")
			}
			continue
		}
		victim.remoteLock.Lock()
		victim.remote.splice(q)
		victim.remoteLock.Unlock()
		d.rt.ping(victim)
		n++
	}
	d.stats.flushed += uint64(n)
	return n
}

// release frees everything the domain holds. The domain must not be queued
// or running.
func (d *Domain) release() {
	for d.live != nil {
		d.freeProcess(d.live)
	}
	d.remoteLock.Lock()
	d.freeAll(&d.remote)
	d.remoteLock.Unlock()
	d.freeAll(&d.local)
	for gid := range d.outbox {
		d.freeAll(&d.outbox[gid])
	}
	d.messages.Drain()
	d.processes.Drain()
}
