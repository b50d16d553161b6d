package actorloop

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-actorloop/internal/wakeup"
)

// testEngine blocks on a channel while idle, like a real engine would block
// on its event source.
type testEngine struct {
	err       error
	wake      *wakeup.Chan
	handler   HandlerFunc
	name      string
	pids      []PID
	spawn     int
	idle      int
	destroyed int
	noDomain  bool
	noHungry  bool
}

func (e *testEngine) Name() string { return e.name }

func (e *testEngine) Construct(rt *Runtime) error {
	if e.err != nil {
		return e.err
	}
	if e.noDomain {
		return nil
	}
	e.wake = wakeup.NewChan()
	d, err := rt.NewDomain(e.name, e, e.spawn+1)
	if err != nil {
		return err
	}
	for range e.spawn {
		e.pids = append(e.pids, d.Spawn(e.handler))
	}
	if !e.noHungry {
		d.Spawn(HandlerFunc(e.receive), Hungry())
	}
	return nil
}

func (e *testEngine) receive(ctx *Context, msg *Message) Result {
	switch {
	case msg.Type() == MsgQueueEmpty:
		e.idle++
		<-e.wake.C()
		return Consumed
	case e.handler != nil:
		return e.handler(ctx, msg)
	case msg.Type() == MsgExit:
		return Exit
	default:
		return Consumed
	}
}

func (e *testEngine) Ingress() { e.wake.Signal() }

func (e *testEngine) Destroy() { e.destroyed++ }

func TestNew_engineContract(t *testing.T) {
	boom := errors.New("boom")
	for _, tc := range []struct {
		engine *testEngine
		err    error
	}{
		{&testEngine{name: "failing", err: boom}, boom},
		{&testEngine{name: "no-domain", noDomain: true}, ErrEngineContract},
		{&testEngine{name: "no-hungry", noHungry: true, spawn: 1, handler: func(*Context, *Message) Result { return Consumed }}, ErrEngineContract},
	} {
		t.Run(tc.engine.name, func(t *testing.T) {
			rt, err := New(WithEngines(tc.engine))
			assert.Nil(t, rt)
			assert.ErrorIs(t, err, tc.err)
			assert.Contains(t, err.Error(), fmt.Sprintf("%q", tc.engine.name))
		})
	}
}

func TestNew_tooManyDomains(t *testing.T) {
	engines := func(n int) []Engine {
		var v []Engine
		for i := range n {
			v = append(v, &testEngine{name: fmt.Sprintf("e%d", i)})
		}
		return v
	}

	// gid 0 is reserved for names, and the user domain takes gid 1
	failed := engines(MaxDomains - 1)
	_, err := New(WithEngines(failed...))
	assert.ErrorIs(t, err, ErrTooManyDomains)
	for _, e := range failed[:MaxDomains-2] {
		assert.Equal(t, 1, e.(*testEngine).destroyed, "constructed engines are destroyed")
	}
	assert.Zero(t, failed[MaxDomains-2].(*testEngine).destroyed)

	fits := engines(MaxDomains - 2)
	rt, err := New(WithEngines(fits...))
	require.NoError(t, err)
	assert.Len(t, rt.order, MaxDomains-1)
	assert.Equal(t, MaxDomains-1, rt.order[len(rt.order)-1].GID())
	require.NoError(t, rt.Close())
	for _, e := range fits {
		assert.Equal(t, 1, e.(*testEngine).destroyed)
	}
}

func TestRuntime_engineWakesForExternalSend(t *testing.T) {
	eng := &testEngine{name: "blocking"}
	rt := newTestRuntime(t, WithEngines(eng))
	assert.Equal(t, 0, rt.countHungryDomains()-1, "default worker count")

	pid, err := rt.Spawn(exitOn(func(ctx *Context, msg *Message) Result {
		ctx.LoopExit()
		return Consumed
	}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	// let the only worker block in the engine
	require.Eventually(t, func() bool { return rt.State() == StateRunning }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, rt.Send(pid, MsgUser, nil))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop")
	}
	assert.NotZero(t, eng.idle)
	require.NoError(t, rt.Close())
	assert.Equal(t, 1, eng.destroyed)
	assert.Zero(t, rt.MemoryStats())
}

func TestRuntime_crossDomainOrder(t *testing.T) {
	var got []int64
	eng := &testEngine{name: "sink", spawn: 1}
	eng.handler = func(ctx *Context, msg *Message) Result {
		switch msg.Type() {
		case MsgExit:
			return Exit
		case MsgUser:
			v, _ := msg.Int()
			got = append(got, v)
			if v == 999 {
				ctx.LoopExit()
			}
		}
		return Consumed
	}
	rt := newTestRuntime(t, WithEngines(eng), WithWorkers(1))
	require.Len(t, eng.pids, 1)
	sink := eng.pids[0]

	pid, err := rt.Spawn(exitOn(func(ctx *Context, msg *Message) Result {
		for i := range 1000 {
			ctx.Send(sink, MsgUser, Int(int64(i)))
		}
		return Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, rt.Send(pid, MsgUser, nil))

	require.NoError(t, rt.Run(context.Background()))
	require.Len(t, got, 1000)
	for i, v := range got {
		require.Equal(t, int64(i), v)
	}
	require.NoError(t, rt.Close())
}

func TestEngineRegistry(t *testing.T) {
	a := &testEngine{name: "a"}
	b := &testEngine{name: "b"}
	r, err := NewEngineRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Names())

	e, ok := r.Lookup("b")
	assert.True(t, ok)
	assert.Same(t, b, e)
	_, ok = r.Lookup("c")
	assert.False(t, ok)

	engines, err := r.Resolve("b", "a")
	require.NoError(t, err)
	assert.Equal(t, []Engine{b, a}, engines)

	_, err = r.Resolve("a", "c")
	assert.ErrorIs(t, err, ErrUnknownEngine)
	assert.ErrorContains(t, err, "c")

	assert.ErrorIs(t, r.Register(&testEngine{name: "a"}), ErrEngineRegistered)
	_, err = NewEngineRegistry(a, a)
	assert.ErrorIs(t, err, ErrEngineRegistered)
}
