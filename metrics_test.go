package actorloop

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantile_warmup(t *testing.T) {
	q := newQuantile(0.5)
	assert.Zero(t, q.value())
	for _, v := range []float64{30, 10, 20} {
		q.observe(v)
	}
	assert.Equal(t, 20.0, q.value())
}

func TestQuantile_uniform(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, p := range []float64{0.5, 0.9, 0.99} {
		q := newQuantile(p)
		for range 100_000 {
			q.observe(r.Float64() * 1000)
		}
		assert.InDelta(t, p*1000, q.value(), 20, "p%v", p)
	}
}

func TestQuantile_clamp(t *testing.T) {
	assert.Equal(t, 0.0, newQuantile(-1).p)
	assert.Equal(t, 1.0, newQuantile(2).p)
}

func TestRateWindow(t *testing.T) {
	r := newRateWindow(time.Second, 100*time.Millisecond)
	now := r.start
	r.add(now, 10)
	r.add(now.Add(250*time.Millisecond), 10)
	assert.Equal(t, 20.0, r.rate(now.Add(500*time.Millisecond)))

	// the first bucket rolls out of the window
	assert.Equal(t, 10.0, r.rate(now.Add(time.Second+50*time.Millisecond)))

	// everything rolls out
	assert.Zero(t, r.rate(now.Add(time.Hour)))
}

func TestRuntime_Metrics(t *testing.T) {
	rt := newTestRuntime(t, WithMetrics(true))
	pid, err := rt.Spawn(exitOn(func(ctx *Context, msg *Message) Result {
		if v, _ := msg.Int(); v < 99 {
			ctx.Send(ctx.Self(), MsgUser, Int(v+1))
		} else {
			ctx.LoopExit()
		}
		return Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, rt.Send(pid, MsgUser, Int(0)))
	require.NoError(t, rt.Run(context.Background()))

	m := rt.Metrics()
	// 1 external, 99 self, 1 exit broadcast
	assert.Equal(t, uint64(101), m.Messages.Sent)
	assert.Equal(t, uint64(101), m.Messages.Delivered)
	assert.Zero(t, m.Messages.Dropped)
	assert.NotZero(t, m.Passes.Count)
	assert.GreaterOrEqual(t, m.Passes.Max, m.Passes.Mean)
	assert.Positive(t, m.TPS)
	assert.Positive(t, m.MessageMemory.ChunkSize)
	assert.Positive(t, m.MessageMemory.LivePages)
	assert.Positive(t, m.ExternalCached)
	assert.Equal(t, 1, m.ProcessMemory.LivePages)
	require.NoError(t, rt.Close())

	m = rt.Metrics()
	assert.Zero(t, m.MessageMemory.LivePages)
	assert.Zero(t, m.ProcessMemory.LivePages)
	assert.Positive(t, m.ProcessMemory.FreedPages)
	assert.Zero(t, m.ExternalCached)
}

func TestRuntime_Metrics_disabled(t *testing.T) {
	rt := newTestRuntime(t)
	assert.Equal(t, Metrics{}, rt.Metrics())
	require.NoError(t, rt.Close())
}
