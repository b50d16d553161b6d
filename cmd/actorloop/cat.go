//go:build unix

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/engine/fileio"
)

func newCatCommand(rootOpts *rootOptions) *cobra.Command {
	var chunk int

	cmd := &cobra.Command{
		Use:   "cat <file>...",
		Short: "Print files, read through the I/O engine",
		Long: `Print each file to standard output, in order. Files are opened and read
by the blocking I/O engine, on its own worker.

Example:
  actorloop cat --chunk 65536 go.mod go.sum`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chunk <= 0 {
				return fmt.Errorf("cat: chunk must be positive")
			}
			rt, err := rootOpts.newRuntime([]string{fileio.EngineName})
			if err != nil {
				return err
			}
			defer rt.Close()

			c := &catter{
				out:   cmd.OutOrStdout(),
				paths: args,
				buf:   make([]byte, chunk),
				fd:    -1,
			}
			pid, err := rt.Spawn(c)
			if err != nil {
				return err
			}
			if err := rt.Send(pid, actorloop.MsgUser, nil); err != nil {
				return err
			}
			if err := rt.Run(cmd.Context()); err != nil {
				return err
			}
			return c.err
		},
	}

	cmd.Flags().IntVar(&chunk, "chunk", 32*1024, "read size in bytes")

	return cmd
}

// catter opens, reads and closes each path in turn, one request at a time.
type catter struct {
	err    error
	out    io.Writer
	paths  []string
	buf    []byte
	offset int64
	fd     int
}

func (c *catter) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch msg.Type() {
	case actorloop.MsgUser:
		c.next(ctx)

	case actorloop.MsgIOOpen:
		p, _ := msg.Payload().(actorloop.IOPayload)
		if p.Errno != 0 {
			c.fail(ctx, fmt.Errorf("cat: open %s: %w", c.paths[0], p.Errno))
			break
		}
		c.fd = p.FD
		c.offset = 0
		fileio.Pread(ctx, c.fd, c.buf, c.offset)

	case actorloop.MsgIOPread:
		p, _ := msg.Payload().(actorloop.IOPayload)
		switch {
		case p.Errno != 0:
			c.fail(ctx, fmt.Errorf("cat: read %s: %w", c.paths[0], p.Errno))
		case p.Ret == 0:
			c.closeFD()
			c.paths = c.paths[1:]
			c.next(ctx)
		default:
			if _, err := c.out.Write(c.buf[:p.Ret]); err != nil {
				c.fail(ctx, err)
				break
			}
			c.offset += int64(p.Ret)
			fileio.Pread(ctx, c.fd, c.buf, c.offset)
		}

	case actorloop.MsgExit:
		c.closeFD()
		return actorloop.Exit
	}
	return actorloop.Consumed
}

func (c *catter) next(ctx *actorloop.Context) {
	if len(c.paths) == 0 {
		ctx.LoopExit()
		return
	}
	fileio.Open(ctx, c.paths[0], unix.O_RDONLY, 0)
}

func (c *catter) fail(ctx *actorloop.Context, err error) {
	c.err = err
	c.closeFD()
	ctx.LoopExit()
}

func (c *catter) closeFD() {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
}
