// Package watch implements the filesystem notification engine, on top of
// fsnotify. Processes subscribe to a path (a file, or a directory and its
// entries) through the engine's process, registered as
// [actorloop.NameWatch], and receive [actorloop.MsgWatchEvent] for changes.
//
// Subscribing is acknowledged with a [actorloop.MsgWatchAdd] reply, whose
// Err is set if the path could not be watched.
package watch

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/internal/wakeup"
)

// EngineName is the name the engine is registered under, in an
// [actorloop.EngineRegistry].
const EngineName = "watch"

// Op describes a change, in [actorloop.WatchPayload.Op].
type Op uint32

// Change kinds, which may be combined.
const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

func (x Op) String() string {
	if x == 0 {
		return "none"
	}
	var b []byte
	for _, v := range [...]struct {
		op   Op
		name string
	}{
		{OpCreate, "create"},
		{OpWrite, "write"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
		{OpChmod, "chmod"},
	} {
		if x&v.op != 0 {
			if len(b) != 0 {
				b = append(b, '|')
			}
			b = append(b, v.name...)
		}
	}
	return string(b)
}

func convertOp(op fsnotify.Op) Op {
	var x Op
	if op.Has(fsnotify.Create) {
		x |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		x |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		x |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		x |= OpRename
	}
	if op.Has(fsnotify.Chmod) {
		x |= OpChmod
	}
	return x
}

// Engine is the [actorloop.Engine] for this package.
type Engine struct{}

var _ actorloop.Engine = Engine{}

// Name implements [actorloop.Engine].
func (Engine) Name() string { return EngineName }

// Construct implements [actorloop.Engine].
func (Engine) Construct(rt *actorloop.Runtime) error {
	if _, ok := rt.Lookup(actorloop.Name(actorloop.NameWatch)); ok {
		return fmt.Errorf("watch: %w", actorloop.ErrNameTaken)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	e := &engine{
		w:       w,
		wake:    wakeup.NewChan(),
		victims: make(map[string]actorloop.PID),
	}
	d, err := rt.NewDomain(EngineName, driver{e}, 1)
	if err != nil {
		_ = w.Close()
		return err
	}
	rt.Register(d.Spawn(e, actorloop.Hungry()), actorloop.Name(actorloop.NameWatch))
	return nil
}

// Add subscribes the running process to changes to path, replacing any
// other subscriber.
func Add(ctx *actorloop.Context, path string) {
	ctx.Send(actorloop.Name(actorloop.NameWatch), actorloop.MsgWatchAdd, actorloop.WatchPayload{Path: path, Victim: ctx.Self()})
}

// Remove cancels the subscription to path.
func Remove(ctx *actorloop.Context, path string) {
	ctx.Send(actorloop.Name(actorloop.NameWatch), actorloop.MsgWatchRemove, actorloop.WatchPayload{Path: path, Victim: ctx.Self()})
}

// AddFor is [Add] on behalf of victim, from outside the loop.
func AddFor(rt *actorloop.Runtime, victim actorloop.PID, path string) error {
	return rt.Send(actorloop.Name(actorloop.NameWatch), actorloop.MsgWatchAdd, actorloop.WatchPayload{Path: path, Victim: victim})
}

// RemoveFor is [Remove], from outside the loop.
func RemoveFor(rt *actorloop.Runtime, victim actorloop.PID, path string) error {
	return rt.Send(actorloop.Name(actorloop.NameWatch), actorloop.MsgWatchRemove, actorloop.WatchPayload{Path: path, Victim: victim})
}

type engine struct {
	w       *fsnotify.Watcher
	wake    *wakeup.Chan
	victims map[string]actorloop.PID
}

type driver struct{ e *engine }

func (x driver) Ingress() { x.e.wake.Signal() }
func (x driver) Destroy() { _ = x.e.w.Close() }

// Receive implements [actorloop.Handler].
func (e *engine) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch typ := msg.Type(); typ {
	case actorloop.MsgWatchAdd, actorloop.MsgWatchRemove:
		p, ok := msg.Payload().(actorloop.WatchPayload)
		if !ok {
			ctx.Fatal("watch", fmt.Errorf("%w: %s without watch payload", actorloop.ErrUnexpectedMessage, typ))
		}
		path := filepath.Clean(p.Path)
		if typ == actorloop.MsgWatchAdd {
			err := e.w.Add(path)
			if err == nil {
				e.victims[path] = p.Victim
			}
			ctx.Send(p.Victim, actorloop.MsgWatchAdd, actorloop.WatchPayload{Path: path, Err: err})
		} else if e.victims[path] == p.Victim {
			delete(e.victims, path)
			if err := e.w.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				ctx.Logger().Warning().
					Str("path", path).
					Err(err).
					Log("failed to remove watch")
			}
		}

	case actorloop.MsgQueueEmpty:
		e.block(ctx)

	case actorloop.MsgExit:
		_ = e.w.Close()
		return actorloop.Exit

	default:
		ctx.Fatal("watch", fmt.Errorf("%w: %s", actorloop.ErrUnexpectedMessage, typ))
	}
	return actorloop.Consumed
}

// block waits for a watcher event or ingress, then delivers every pending
// event.
func (e *engine) block(ctx *actorloop.Context) {
	select {
	case ev, ok := <-e.w.Events:
		if ok {
			e.event(ctx, ev)
		}
	case err, ok := <-e.w.Errors:
		if ok {
			e.failed(ctx, err)
		}
	case <-e.wake.C():
		return
	}
	for {
		select {
		case ev, ok := <-e.w.Events:
			if !ok {
				return
			}
			e.event(ctx, ev)
		case err, ok := <-e.w.Errors:
			if !ok {
				return
			}
			e.failed(ctx, err)
		default:
			return
		}
	}
}

// event delivers ev to the subscriber of its path, or of the directory
// holding it.
func (e *engine) event(ctx *actorloop.Context, ev fsnotify.Event) {
	victim, ok := e.victims[ev.Name]
	if !ok {
		victim, ok = e.victims[filepath.Dir(ev.Name)]
	}
	if !ok {
		return
	}
	ctx.Send(victim, actorloop.MsgWatchEvent, actorloop.WatchPayload{
		Path: ev.Name,
		Op:   uint32(convertOp(ev.Op)),
	})
}

// failed reports err to every subscriber, since fsnotify does not say
// which watch it concerns.
func (e *engine) failed(ctx *actorloop.Context, err error) {
	ctx.Logger().Warning().Err(err).Log("watcher error")
	for path, victim := range e.victims {
		ctx.Send(victim, actorloop.MsgWatchEvent, actorloop.WatchPayload{Path: path, Err: err})
	}
}
