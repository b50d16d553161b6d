//go:build unix

// Package fileio implements the blocking file I/O engine. Requests are sent
// to the engine's process, registered as [actorloop.NameIO], which performs
// them on its own worker and replies to the requesting process with a
// message of the same type.
//
// Replies carry the outcome in [actorloop.IOPayload]: Ret is the syscall's
// return value (-1 on failure), and Errno the error, if any. Failed I/O is
// not a Go error.
package fileio

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/internal/wakeup"
	"golang.org/x/sys/unix"
)

// EngineName is the name the engine is registered under, in an
// [actorloop.EngineRegistry].
const EngineName = "io"

// Engine is the [actorloop.Engine] for this package.
type Engine struct{}

var _ actorloop.Engine = Engine{}

// Name implements [actorloop.Engine].
func (Engine) Name() string { return EngineName }

// Construct implements [actorloop.Engine].
func (Engine) Construct(rt *actorloop.Runtime) error {
	if _, ok := rt.Lookup(actorloop.Name(actorloop.NameIO)); ok {
		return fmt.Errorf("fileio: %w", actorloop.ErrNameTaken)
	}
	e := &engine{wake: wakeup.NewChan()}
	d, err := rt.NewDomain(EngineName, driver{e}, 1)
	if err != nil {
		return err
	}
	rt.Register(d.Spawn(e, actorloop.Hungry()), actorloop.Name(actorloop.NameIO))
	return nil
}

// Fsync flushes fd to storage. The reply is [actorloop.MsgIOFsync].
func Fsync(ctx *actorloop.Context, fd int) {
	request(ctx, actorloop.MsgIOFsync, actorloop.IOPayload{Victim: ctx.Self(), FD: fd})
}

// Open opens path. The reply is [actorloop.MsgIOOpen], with the new
// descriptor in FD and Ret. Close-on-exec is always set.
func Open(ctx *actorloop.Context, path string, flags int, mode uint32) {
	request(ctx, actorloop.MsgIOOpen, actorloop.IOPayload{Victim: ctx.Self(), Path: path, Flags: flags, Mode: mode})
}

// Pread reads up to len(buf) bytes at offset. The reply is
// [actorloop.MsgIOPread], with the count read in Ret. buf must not be
// touched until the reply arrives.
func Pread(ctx *actorloop.Context, fd int, buf []byte, offset int64) {
	request(ctx, actorloop.MsgIOPread, actorloop.IOPayload{Victim: ctx.Self(), FD: fd, Buf: buf, Count: len(buf), Offset: offset})
}

// Request sends a prepared request from outside the loop. The reply goes to
// p.Victim.
func Request(rt *actorloop.Runtime, typ actorloop.MsgType, p actorloop.IOPayload) error {
	return rt.Send(actorloop.Name(actorloop.NameIO), typ, p)
}

func request(ctx *actorloop.Context, typ actorloop.MsgType, p actorloop.IOPayload) {
	ctx.Send(actorloop.Name(actorloop.NameIO), typ, p)
}

type engine struct {
	wake *wakeup.Chan
}

type driver struct{ e *engine }

func (x driver) Ingress() { x.e.wake.Signal() }
func (x driver) Destroy() {}

// Receive implements [actorloop.Handler].
func (e *engine) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch typ := msg.Type(); typ {
	case actorloop.MsgIOFsync, actorloop.MsgIOOpen, actorloop.MsgIOPread:
		p, ok := msg.Payload().(actorloop.IOPayload)
		if !ok {
			ctx.Fatal("fileio", fmt.Errorf("%w: %s without io payload", actorloop.ErrUnexpectedMessage, typ))
		}
		out := p
		out.Ret, out.Errno = execute(typ, &out)
		ctx.Send(p.Victim, typ, out)

	case actorloop.MsgQueueEmpty:
		<-e.wake.C()

	case actorloop.MsgExit:
		return actorloop.Exit

	default:
		ctx.Fatal("fileio", fmt.Errorf("%w: %s", actorloop.ErrUnexpectedMessage, typ))
	}
	return actorloop.Consumed
}

// execute performs the request described by p, which it may update with
// results other than the return value.
func execute(typ actorloop.MsgType, p *actorloop.IOPayload) (int, syscall.Errno) {
	var (
		ret int
		err error
	)
	for {
		switch typ {
		case actorloop.MsgIOFsync:
			err = unix.Fsync(p.FD)
		case actorloop.MsgIOOpen:
			ret, err = unix.Open(p.Path, p.Flags|unix.O_CLOEXEC, p.Mode)
			if err == nil {
				p.FD = ret
			}
		case actorloop.MsgIOPread:
			if p.Count < 0 || p.Offset < 0 {
				return -1, syscall.EINVAL
			}
			ret, err = unix.Pread(p.FD, p.Buf[:min(p.Count, len(p.Buf))], p.Offset)
		}
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		var errno syscall.Errno
		if !errors.As(err, &errno) {
			errno = syscall.EIO
		}
		return -1, errno
	}
	return ret, 0
}
