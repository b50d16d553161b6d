package actorloop

import (
	"slices"
	"strconv"

	"github.com/joeycumines/go-actorloop/internal/slab"
)

// Result is returned by a [Handler] to say what became of the message.
type Result int

const (
	// Consumed releases the message.
	Consumed Result = iota + 1
	// Deferred keeps the message, in arrival order, until the process
	// changes its handler via [Context.Receive] or a wait ends.
	Deferred
	// Exit releases the message and terminates the process. Undelivered
	// messages in its mailbox are discarded.
	Exit
)

func (r Result) String() string {
	switch r {
	case Consumed:
		return "consumed"
	case Deferred:
		return "deferred"
	case Exit:
		return "exit"
	default:
		return "result(" + strconv.Itoa(int(r)) + ")"
	}
}

// Handler is a process's behaviour. Receive is only ever called by the
// worker that currently owns the process's domain, one message at a time.
type Handler interface {
	Receive(ctx *Context, msg *Message) Result
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx *Context, msg *Message) Result

// Receive calls f.
func (f HandlerFunc) Receive(ctx *Context, msg *Message) Result { return f(ctx, msg) }

// waitState is a selective receive in progress: messages whose type is not
// in types are deferred without being seen, and the first one that is goes
// to resume.
type waitState struct {
	resume Handler
	types  []MsgType
	active bool
}

func (w *waitState) accepts(t MsgType) bool {
	return len(w.types) == 0 || slices.Contains(w.types, t)
}

type process struct {
	slot     slab.Slot
	next     *process // busy queue
	prev     *process // live list
	succ     *process // live list
	domain   *Domain
	handler  Handler
	wait     waitState
	inbox    fifo[Message, *Message]
	deferred fifo[Message, *Message]
	pid      PID
	busy     bool
	hungry   bool
}

func (p *process) SlabSlot() *slab.Slot { return &p.slot }

func (p *process) link() **process { return &p.next }

// run delivers the inbox to the handler until it is empty, or the process
// exits.
func (p *process) run(ctx *Context) {
	d := p.domain
	for {
		m := p.inbox.get()
		if m == nil {
			return
		}

		h := p.handler
		resumed := false
		switch {
		case !p.wait.active:
		case p.wait.accepts(m.typ):
			h = p.wait.resume
			p.wait = waitState{}
			resumed = true
		case m.typ == MsgExit:
			// exit is never held back, it goes to the regular handler
		default:
			p.deferred.put(m)
			continue
		}

		switch r := h.Receive(ctx, m); r {
		case Consumed:
			d.freeMessage(m)
		case Deferred:
			p.deferred.put(m)
		case Exit:
			d.freeMessage(m)
			d.freeProcess(p)
			return
		default:
			d.rt.fatal("receive", ErrInvalidResult, p.pid)
		}

		if resumed && !p.wait.active {
			p.inbox.splicePrepend(&p.deferred)
		}
	}
}
