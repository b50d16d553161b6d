// Package poll implements the descriptor readiness engine. It owns a domain
// whose single process, registered as [actorloop.NameSelect], waits for
// registered file descriptors to become ready, and reports readiness and
// timeouts to the process that asked.
//
// Registrations are one-shot: after a descriptor is reported (ready, closed
// or timed out) it must be registered again to hear about it again.
//
//	case actorloop.MsgUser:
//		poll.RegisterRead(ctx, fd, time.Second)
//	case actorloop.MsgFDRead:
//		// fd is readable
//	case actorloop.MsgFDTimeout:
//		// nothing within a second
package poll

import (
	"errors"
	"time"

	"github.com/joeycumines/go-actorloop"
)

// EngineName is the name the engine is registered under, in an
// [actorloop.EngineRegistry].
const EngineName = "select"

var (
	// ErrUnsupported is returned by Construct on platforms without epoll.
	ErrUnsupported = errors.New("poll: unsupported platform")

	// ErrBadFD is raised (fatally) for a registration with a negative fd.
	ErrBadFD = errors.New("poll: bad file descriptor")
)

// Engine is the [actorloop.Engine] for this package.
type Engine struct{}

var _ actorloop.Engine = Engine{}

// Name implements [actorloop.Engine].
func (Engine) Name() string { return EngineName }

// RegisterRead asks for a [actorloop.MsgFDRead] once fd is readable. A
// positive timeout bounds the wait, after which [actorloop.MsgFDTimeout] is
// sent instead. Registering again replaces the previous registration.
func RegisterRead(ctx *actorloop.Context, fd int, timeout time.Duration) {
	send(ctx, actorloop.MsgFDRegisterRead, ctx.Self(), fd, timeout)
}

// RegisterWrite is [RegisterRead], for writability.
func RegisterWrite(ctx *actorloop.Context, fd int, timeout time.Duration) {
	send(ctx, actorloop.MsgFDRegisterWrite, ctx.Self(), fd, timeout)
}

// Unregister cancels any registration for fd. It must be called before
// closing a descriptor that may still be registered.
func Unregister(ctx *actorloop.Context, fd int) {
	send(ctx, actorloop.MsgFDUnregister, ctx.Self(), fd, 0)
}

// RegisterReadFor is [RegisterRead] on behalf of victim, from outside the
// loop.
func RegisterReadFor(rt *actorloop.Runtime, victim actorloop.PID, fd int, timeout time.Duration) error {
	return rt.Send(actorloop.Name(actorloop.NameSelect), actorloop.MsgFDRegisterRead, payload(victim, fd, timeout))
}

// RegisterWriteFor is [RegisterWrite] on behalf of victim, from outside the
// loop.
func RegisterWriteFor(rt *actorloop.Runtime, victim actorloop.PID, fd int, timeout time.Duration) error {
	return rt.Send(actorloop.Name(actorloop.NameSelect), actorloop.MsgFDRegisterWrite, payload(victim, fd, timeout))
}

// UnregisterFor is [Unregister], from outside the loop.
func UnregisterFor(rt *actorloop.Runtime, victim actorloop.PID, fd int) error {
	return rt.Send(actorloop.Name(actorloop.NameSelect), actorloop.MsgFDUnregister, payload(victim, fd, 0))
}

func send(ctx *actorloop.Context, typ actorloop.MsgType, victim actorloop.PID, fd int, timeout time.Duration) {
	ctx.Send(actorloop.Name(actorloop.NameSelect), typ, payload(victim, fd, timeout))
}

func payload(victim actorloop.PID, fd int, timeout time.Duration) actorloop.FDPayload {
	return actorloop.FDPayload{
		Victim:  victim,
		FD:      fd,
		Expires: actorloop.Deadline(timeout),
	}
}
