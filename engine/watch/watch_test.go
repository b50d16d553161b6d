package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-actorloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOp_String(t *testing.T) {
	assert.Equal(t, "none", Op(0).String())
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write|chmod", (OpWrite | OpChmod).String())
}

func TestConvertOp(t *testing.T) {
	assert.Equal(t, OpCreate|OpRemove, convertOp(fsnotify.Create|fsnotify.Remove))
	assert.Equal(t, OpRename, convertOp(fsnotify.Rename))
	assert.Equal(t, Op(0), convertOp(0))
}

func TestEngine_create(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "created")

	rt, err := actorloop.New(actorloop.WithEngines(Engine{}))
	require.NoError(t, err)

	var (
		ack    actorloop.WatchPayload
		events []actorloop.WatchPayload
	)
	pid, err := rt.Spawn(actorloop.HandlerFunc(func(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
		switch msg.Type() {
		case actorloop.MsgUser:
			Add(ctx, dir)
		case actorloop.MsgWatchAdd:
			ack = msg.Payload().(actorloop.WatchPayload)
			if ack.Err != nil {
				ctx.LoopExit()
				break
			}
			if err := os.WriteFile(file, nil, 0o600); err != nil {
				t.Error(err)
				ctx.LoopExit()
			}
		case actorloop.MsgWatchEvent:
			p := msg.Payload().(actorloop.WatchPayload)
			events = append(events, p)
			if p.Path == file && Op(p.Op)&OpCreate != 0 {
				Remove(ctx, dir)
				ctx.LoopExit()
			}
		case actorloop.MsgExit:
			return actorloop.Exit
		}
		return actorloop.Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, rt.Send(pid, actorloop.MsgUser, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Close())

	require.NoError(t, ack.Err)
	assert.Equal(t, filepath.Clean(dir), ack.Path)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, file, last.Path)
	assert.NotZero(t, Op(last.Op)&OpCreate)
}

func TestEngine_addMissingPath(t *testing.T) {
	rt, err := actorloop.New(actorloop.WithEngines(Engine{}))
	require.NoError(t, err)

	var ack actorloop.WatchPayload
	pid, err := rt.Spawn(actorloop.HandlerFunc(func(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
		switch msg.Type() {
		case actorloop.MsgWatchAdd:
			ack = msg.Payload().(actorloop.WatchPayload)
			ctx.LoopExit()
		case actorloop.MsgExit:
			return actorloop.Exit
		}
		return actorloop.Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, AddFor(rt, pid, filepath.Join(t.TempDir(), "missing")))

	require.NoError(t, rt.Run(context.Background()))
	require.NoError(t, rt.Close())
	assert.Error(t, ack.Err)
}
