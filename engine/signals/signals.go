// Package signals implements the OS signal engine. Processes subscribe to
// a signal through the engine's process, registered as
// [actorloop.NameSignal], and receive [actorloop.MsgSignal] each time the
// signal arrives.
//
// A signal is only diverted from its previous disposition while a process
// is subscribed to it. Unsubscribing, or the engine exiting, restores it.
package signals

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/internal/wakeup"
)

// EngineName is the name the engine is registered under, in an
// [actorloop.EngineRegistry].
const EngineName = "signal"

// Engine is the [actorloop.Engine] for this package.
type Engine struct{}

var _ actorloop.Engine = Engine{}

// Name implements [actorloop.Engine].
func (Engine) Name() string { return EngineName }

// Construct implements [actorloop.Engine].
func (Engine) Construct(rt *actorloop.Runtime) error {
	if _, ok := rt.Lookup(actorloop.Name(actorloop.NameSignal)); ok {
		return fmt.Errorf("signals: %w", actorloop.ErrNameTaken)
	}
	e := &engine{
		c:    make(chan os.Signal, 64),
		wake: wakeup.NewChan(),
		subs: make(map[os.Signal]*subscription),
	}
	d, err := rt.NewDomain(EngineName, driver{e}, 1)
	if err != nil {
		return err
	}
	rt.Register(d.Spawn(e, actorloop.Hungry()), actorloop.Name(actorloop.NameSignal))
	return nil
}

// Register subscribes the running process to sig, replacing any other
// subscriber.
func Register(ctx *actorloop.Context, sig os.Signal) {
	ctx.Send(actorloop.Name(actorloop.NameSignal), actorloop.MsgSignalRegister, actorloop.SignalPayload{Signal: sig, Victim: ctx.Self()})
}

// Unregister cancels the subscription to sig, if the running process holds
// it.
func Unregister(ctx *actorloop.Context, sig os.Signal) {
	ctx.Send(actorloop.Name(actorloop.NameSignal), actorloop.MsgSignalUnregister, actorloop.SignalPayload{Signal: sig, Victim: ctx.Self()})
}

// RegisterFor is [Register] on behalf of victim, from outside the loop.
func RegisterFor(rt *actorloop.Runtime, victim actorloop.PID, sig os.Signal) error {
	return rt.Send(actorloop.Name(actorloop.NameSignal), actorloop.MsgSignalRegister, actorloop.SignalPayload{Signal: sig, Victim: victim})
}

// UnregisterFor is [Unregister], from outside the loop.
func UnregisterFor(rt *actorloop.Runtime, victim actorloop.PID, sig os.Signal) error {
	return rt.Send(actorloop.Name(actorloop.NameSignal), actorloop.MsgSignalUnregister, actorloop.SignalPayload{Signal: sig, Victim: victim})
}

// subscription diverts one signal to the engine. Each signal has its own
// channel, so it can be stopped independently of the others.
type subscription struct {
	c      chan os.Signal
	stop   chan struct{}
	victim actorloop.PID
}

type engine struct {
	c    chan os.Signal
	wake *wakeup.Chan
	subs map[os.Signal]*subscription
}

type driver struct{ e *engine }

func (x driver) Ingress() { x.e.wake.Signal() }

func (x driver) Destroy() { x.e.stopAll() }

// Receive implements [actorloop.Handler].
func (e *engine) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch typ := msg.Type(); typ {
	case actorloop.MsgSignalRegister, actorloop.MsgSignalUnregister:
		p, ok := msg.Payload().(actorloop.SignalPayload)
		if !ok || p.Signal == nil {
			ctx.Fatal("signals", fmt.Errorf("%w: %s without signal payload", actorloop.ErrUnexpectedMessage, typ))
		}
		if typ == actorloop.MsgSignalRegister {
			e.subscribe(p.Signal, p.Victim)
		} else {
			e.unsubscribe(p.Signal, p.Victim)
		}
		ctx.Logger().Debug().
			Stringer("signal", p.Signal).
			Stringer("victim", p.Victim).
			Stringer("type", typ).
			Log("signal subscription changed")

	case actorloop.MsgQueueEmpty:
		e.block(ctx)

	case actorloop.MsgExit:
		e.stopAll()
		return actorloop.Exit

	default:
		ctx.Fatal("signals", fmt.Errorf("%w: %s", actorloop.ErrUnexpectedMessage, typ))
	}
	return actorloop.Consumed
}

func (e *engine) subscribe(sig os.Signal, victim actorloop.PID) {
	if s := e.subs[sig]; s != nil {
		s.victim = victim
		return
	}
	s := &subscription{
		c:      make(chan os.Signal, 1),
		stop:   make(chan struct{}),
		victim: victim,
	}
	e.subs[sig] = s
	signal.Notify(s.c, sig)
	go func() {
		for {
			select {
			case <-s.stop:
				return
			case v := <-s.c:
				select {
				case e.c <- v:
				default:
					// full, signals coalesce
				}
			}
		}
	}()
}

func (e *engine) unsubscribe(sig os.Signal, victim actorloop.PID) {
	s := e.subs[sig]
	if s == nil || s.victim != victim {
		return
	}
	delete(e.subs, sig)
	signal.Stop(s.c)
	close(s.stop)
}

func (e *engine) stopAll() {
	for sig, s := range e.subs {
		delete(e.subs, sig)
		signal.Stop(s.c)
		close(s.stop)
	}
}

// block waits for a signal or ingress, then delivers every pending signal.
func (e *engine) block(ctx *actorloop.Context) {
	select {
	case sig := <-e.c:
		e.deliver(ctx, sig)
	case <-e.wake.C():
		return
	}
	for {
		select {
		case sig := <-e.c:
			e.deliver(ctx, sig)
		default:
			return
		}
	}
}

func (e *engine) deliver(ctx *actorloop.Context, sig os.Signal) {
	s := e.subs[sig]
	if s == nil {
		// unsubscribed while in flight
		return
	}
	ctx.Send(s.victim, actorloop.MsgSignal, actorloop.SignalPayload{Signal: sig})
}
