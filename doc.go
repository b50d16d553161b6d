// Package actorloop is an in-process actor runtime.
//
// Processes are lightweight handlers with a mailbox, addressed by [PID].
// They exchange fixed-size messages, and are grouped into domains: a
// domain is executed by at most one worker goroutine at a time, so its
// processes never run concurrently with each other, and need no locking
// between themselves. Messages within a domain are delivered immediately.
// Messages to other domains are batched per destination, and handed over
// at the end of each pass.
//
// Engines (see the engine/ sub-packages) back dedicated domains with an OS
// event source, such as epoll, signals, or blocking file I/O, and translate
// its events into ordinary messages. An engine's process is "hungry": it is
// told when its domain has nothing else to do, and blocks on its source
// until either an event arrives, or another domain sends it mail.
//
// Basic usage:
//
//	rt, err := actorloop.New()
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//
//	pid, err := rt.Spawn(actorloop.HandlerFunc(func(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
//		if msg.Type() == actorloop.MsgExit {
//			return actorloop.Exit
//		}
//		fmt.Printf("%s got %s\n", ctx.Self(), msg.Data())
//		ctx.LoopExit()
//		return actorloop.Consumed
//	}))
//	if err != nil {
//		return err
//	}
//	_ = rt.Send(pid, actorloop.MsgUser, actorloop.Data("hello"))
//
//	return rt.Run(context.Background())
//
// Contract violations, such as sending to an unregistered name or
// returning an invalid [Result], are fatal: they are logged, then raised as
// a panic carrying a [*FatalError].
package actorloop
