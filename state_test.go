package actorloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeState_String(t *testing.T) {
	for s, want := range map[RuntimeState]string{
		StateAwake:   "awake",
		StateRunning: "running",
		StateStopped: "stopped",
		StateClosed:  "closed",
		42:           "unknown",
	} {
		assert.Equal(t, want, s.String())
	}
}

func TestFastState_TryTransition(t *testing.T) {
	var s fastState
	assert.Equal(t, StateAwake, s.Load())
	assert.True(t, s.TryTransition(StateAwake, StateRunning))
	assert.False(t, s.TryTransition(StateAwake, StateClosed))
	assert.Equal(t, StateRunning, s.Load())
	assert.True(t, s.TryTransition(StateRunning, StateClosed))
	assert.Equal(t, StateClosed, s.Load())
}

func TestRuntime_runTwice(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Run(context.Background()))
	assert.Equal(t, StateStopped, rt.State())
	assert.ErrorIs(t, rt.Run(context.Background()), ErrRuntimeStopped)

	_, err := rt.NewDomain("late", nil, 1)
	assert.ErrorIs(t, err, ErrRuntimeStopped)

	require.NoError(t, rt.Close())
	assert.ErrorIs(t, rt.Run(context.Background()), ErrRuntimeClosed)
	assert.ErrorIs(t, rt.Close(), ErrRuntimeClosed)
	assert.ErrorIs(t, rt.Send(Broadcast(UserGID), MsgUser, nil), ErrRuntimeClosed)
}
