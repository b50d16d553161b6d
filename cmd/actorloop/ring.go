//go:build unix

package main

import (
	"fmt"
	"time"

	"github.com/pbnjay/memory"
	"github.com/spf13/cobra"

	"github.com/joeycumines/go-actorloop"
)

type ringOptions struct {
	*rootOptions
	procs int
	hops  int
}

func newRingCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &ringOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ring",
		Short: "Pass a token around a ring of processes",
		Long: `Spawn a ring of processes, and pass a counter around it until it
reaches zero, then report throughput and memory use.

Example:
  actorloop ring --procs 1000 --hops 10000000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRing(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.procs, "procs", "n", 1000, "number of processes in the ring")
	cmd.Flags().IntVar(&opts.hops, "hops", 1_000_000, "number of messages passed")

	return cmd
}

// member is one process of the ring.
type member struct {
	next actorloop.PID
}

func (m *member) Receive(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
	switch msg.Type() {
	case actorloop.MsgUser:
		n, _ := msg.Int()
		if n <= 0 {
			ctx.LoopExit()
			break
		}
		ctx.Send(m.next, actorloop.MsgUser, actorloop.Int(n-1))
	case actorloop.MsgExit:
		return actorloop.Exit
	}
	return actorloop.Consumed
}

func runRing(cmd *cobra.Command, opts *ringOptions) error {
	if opts.procs <= 0 || opts.hops < 0 {
		return fmt.Errorf("ring: procs must be positive and hops not negative")
	}
	rt, err := opts.newRuntime(nil, actorloop.WithMetrics(true))
	if err != nil {
		return err
	}
	defer rt.Close()

	members := make([]*member, opts.procs)
	pids := make([]actorloop.PID, opts.procs)
	for i := range members {
		members[i] = new(member)
		if pids[i], err = rt.Spawn(members[i]); err != nil {
			return err
		}
	}
	for i, m := range members {
		m.next = pids[(i+1)%len(pids)]
	}
	if err := rt.Send(pids[0], actorloop.MsgUser, actorloop.Int(opts.hops)); err != nil {
		return err
	}
	inUse := rt.MemoryStats()

	start := time.Now()
	if err := rt.Run(cmd.Context()); err != nil {
		return err
	}
	elapsed := time.Since(start)
	m := rt.Metrics()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "processes:   %d\n", opts.procs)
	fmt.Fprintf(out, "hops:        %d\n", opts.hops)
	fmt.Fprintf(out, "elapsed:     %s\n", elapsed)
	if elapsed > 0 {
		fmt.Fprintf(out, "rate:        %.0f msg/s\n", float64(opts.hops)/elapsed.Seconds())
	}
	fmt.Fprintf(out, "passes:      %d (p50 %s, p99 %s, max %s)\n", m.Passes.Count, m.Passes.P50, m.Passes.P99, m.Passes.Max)
	fmt.Fprintf(out, "delivered:   %d\n", m.Messages.Delivered)
	fmt.Fprintf(out, "allocator:   %d bytes\n", inUse)
	fmt.Fprintf(out, "pages:       %d messages, %d processes\n", m.MessageMemory.LivePages, m.ProcessMemory.LivePages)
	if total := memory.TotalMemory(); total != 0 {
		fmt.Fprintf(out, "system:      %d bytes\n", total)
	}
	return nil
}
