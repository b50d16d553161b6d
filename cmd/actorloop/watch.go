//go:build unix

package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/engine/signals"
	"github.com/joeycumines/go-actorloop/engine/watch"
)

func newWatchCommand(rootOpts *rootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch <path>...",
		Short: "Print filesystem changes",
		Long: `Print a line for each change to the given files or directories, until
interrupted, or until --count changes have been seen.

Example:
  actorloop watch --count 10 /tmp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := rootOpts.newRuntime([]string{watch.EngineName, signals.EngineName})
			if err != nil {
				return err
			}
			defer rt.Close()

			w := &watcher{out: cmd.OutOrStdout(), paths: args, count: count}
			pid, err := rt.Spawn(w)
			if err != nil {
				return err
			}
			if err := rt.Send(pid, actorloop.MsgUser, nil); err != nil {
				return err
			}
			if err := rt.Run(cmd.Context()); err != nil {
				return err
			}
			return w.err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many changes (0 for no limit)")

	return cmd
}

type watcher struct {
	err   error
	out   io.Writer
	paths []string
	count int
	seen  int
}

func (w *watcher) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch msg.Type() {
	case actorloop.MsgUser:
		signals.Register(ctx, os.Interrupt)
		signals.Register(ctx, syscall.SIGTERM)
		for _, path := range w.paths {
			watch.Add(ctx, path)
		}

	case actorloop.MsgWatchAdd:
		p, _ := msg.Payload().(actorloop.WatchPayload)
		if p.Err != nil {
			w.err = fmt.Errorf("watch: %s: %w", p.Path, p.Err)
			ctx.LoopExit()
			break
		}
		ctx.Logger().Info().
			Str("path", p.Path).
			Log("watching")

	case actorloop.MsgWatchEvent:
		p, _ := msg.Payload().(actorloop.WatchPayload)
		if p.Err != nil {
			fmt.Fprintf(w.out, "error\t%s\t%v\n", p.Path, p.Err)
			break
		}
		fmt.Fprintf(w.out, "%s\t%s\n", watch.Op(p.Op), p.Path)
		w.seen++
		if w.count > 0 && w.seen >= w.count {
			ctx.LoopExit()
		}

	case actorloop.MsgSignal:
		ctx.LoopExit()

	case actorloop.MsgExit:
		return actorloop.Exit
	}
	return actorloop.Consumed
}
