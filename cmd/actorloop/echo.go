//go:build unix

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/engine/poll"
	"github.com/joeycumines/go-actorloop/engine/signals"
)

type echoOptions struct {
	*rootOptions
	listen string
	idle   time.Duration
}

func newEchoCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &echoOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Serve a TCP echo service",
		Long: `Serve a TCP echo service, with one process per connection, driven by
the poll engine. Runs until interrupted.

Example:
  actorloop echo --listen 127.0.0.1:7007 --idle 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "127.0.0.1:7007", "TCP address to listen on")
	cmd.Flags().DurationVar(&opts.idle, "idle", time.Minute, "close connections idle this long (0 for never)")

	return cmd
}

func runEcho(cmd *cobra.Command, opts *echoOptions) error {
	fd, addr, err := listenFD(opts.listen)
	if err != nil {
		return err
	}

	rt, err := opts.newRuntime([]string{poll.EngineName, signals.EngineName})
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	defer rt.Close()

	pid, err := rt.Spawn(&listener{fd: fd, idle: opts.idle})
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := rt.Send(pid, actorloop.MsgUser, nil); err != nil {
		return err
	}

	opts.logger.Notice().
		Str("addr", addr.String()).
		Log("listening")
	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return rt.Run(cmd.Context())
}

// listenFD opens a listening socket, returning a non-blocking descriptor
// owned by the caller.
func listenFD(address string) (int, net.Addr, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return -1, nil, err
	}
	defer l.Close()
	f, err := l.(*net.TCPListener).File()
	if err != nil {
		return -1, nil, err
	}
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return -1, nil, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, nil, err
	}
	return fd, l.Addr(), nil
}

// listener accepts connections, spawning a conn for each.
type listener struct {
	fd    int
	idle  time.Duration
	conns int
}

func (l *listener) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch msg.Type() {
	case actorloop.MsgUser:
		signals.Register(ctx, os.Interrupt)
		signals.Register(ctx, syscall.SIGTERM)
		poll.RegisterRead(ctx, l.fd, 0)

	case actorloop.MsgFDRead:
		l.accept(ctx)
		poll.RegisterRead(ctx, l.fd, 0)

	case actorloop.MsgFDClose:
		ctx.Logger().Err().
			Int("fd", l.fd).
			Log("listener failed")
		ctx.LoopExit()

	case actorloop.MsgSignal:
		p, _ := msg.Payload().(actorloop.SignalPayload)
		ctx.Logger().Notice().
			Stringer("signal", p.Signal).
			Int("connections", l.conns).
			Log("shutting down")
		ctx.LoopExit()

	case actorloop.MsgExit:
		_ = unix.Close(l.fd)
		return actorloop.Exit
	}
	return actorloop.Consumed
}

func (l *listener) accept(ctx *actorloop.Context) {
	for {
		nfd, _, err := unix.Accept(l.fd)
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EAGAIN):
			return
		default:
			ctx.Logger().Warning().
				Err(err).
				Log("accept failed")
			return
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			continue
		}
		l.conns++
		pid := ctx.Spawn(&conn{fd: nfd, idle: l.idle})
		ctx.Logger().Debug().
			Int("fd", nfd).
			Stringer("pid", pid).
			Log("connection accepted")
		ctx.Send(pid, actorloop.MsgUser, nil)
	}
}

// conn echoes one connection, until the peer closes it, it errors, or it
// sits idle.
type conn struct {
	pending []byte
	buf     [4096]byte
	fd      int
	idle    time.Duration
}

func (c *conn) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch msg.Type() {
	case actorloop.MsgUser:
		poll.RegisterRead(ctx, c.fd, c.idle)

	case actorloop.MsgFDRead:
		n, err := unix.Read(c.fd, c.buf[:])
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			poll.RegisterRead(ctx, c.fd, c.idle)
			return actorloop.Consumed
		case err != nil, n == 0:
			return c.close(ctx)
		}
		c.pending = append(c.pending, c.buf[:n]...)
		return c.flush(ctx)

	case actorloop.MsgFDWrite:
		return c.flush(ctx)

	case actorloop.MsgFDTimeout, actorloop.MsgFDClose, actorloop.MsgExit:
		return c.close(ctx)
	}
	return actorloop.Consumed
}

// flush writes as much pending data as the socket takes, then waits for
// either more input or more room.
func (c *conn) flush(ctx *actorloop.Context) actorloop.Result {
	for len(c.pending) != 0 {
		n, err := unix.Write(c.fd, c.pending)
		switch {
		case err == nil:
			c.pending = c.pending[n:]
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			poll.RegisterWrite(ctx, c.fd, c.idle)
			return actorloop.Consumed
		default:
			return c.close(ctx)
		}
	}
	c.pending = c.pending[:0]
	poll.RegisterRead(ctx, c.fd, c.idle)
	return actorloop.Consumed
}

func (c *conn) close(ctx *actorloop.Context) actorloop.Result {
	poll.Unregister(ctx, c.fd)
	_ = unix.Close(c.fd)
	ctx.Logger().Debug().
		Int("fd", c.fd).
		Log("connection closed")
	return actorloop.Exit
}
