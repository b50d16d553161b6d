//go:build unix

package fileio

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/joeycumines/go-actorloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEngine_openPreadFsync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("hello, world"), 0o600))

	rt, err := actorloop.New(actorloop.WithEngines(Engine{}))
	require.NoError(t, err)

	var (
		replies []actorloop.IOPayload
		types   []actorloop.MsgType
		buf     = make([]byte, 5)
	)
	pid, err := rt.Spawn(actorloop.HandlerFunc(func(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
		switch msg.Type() {
		case actorloop.MsgUser:
			Open(ctx, path, unix.O_RDONLY, 0)
			return actorloop.Consumed
		case actorloop.MsgExit:
			return actorloop.Exit
		}
		p := msg.Payload().(actorloop.IOPayload)
		replies = append(replies, p)
		types = append(types, msg.Type())
		switch msg.Type() {
		case actorloop.MsgIOOpen:
			Pread(ctx, p.FD, buf, 7)
		case actorloop.MsgIOPread:
			Fsync(ctx, p.FD)
		case actorloop.MsgIOFsync:
			_ = unix.Close(p.FD)
			ctx.LoopExit()
		}
		return actorloop.Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, rt.Send(pid, actorloop.MsgUser, nil))
	require.NoError(t, rt.Run(context.Background()))
	require.NoError(t, rt.Close())

	require.Equal(t, []actorloop.MsgType{actorloop.MsgIOOpen, actorloop.MsgIOPread, actorloop.MsgIOFsync}, types)
	assert.Equal(t, syscall.Errno(0), replies[0].Errno)
	assert.Equal(t, replies[0].FD, replies[0].Ret)
	assert.Equal(t, 5, replies[1].Ret)
	assert.Equal(t, "world", string(buf))
	assert.Equal(t, 0, replies[2].Ret)
}

func TestEngine_errno(t *testing.T) {
	rt, err := actorloop.New(actorloop.WithEngines(Engine{}))
	require.NoError(t, err)

	var reply actorloop.IOPayload
	pid, err := rt.Spawn(actorloop.HandlerFunc(func(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
		switch msg.Type() {
		case actorloop.MsgIOOpen:
			reply = msg.Payload().(actorloop.IOPayload)
			ctx.LoopExit()
		case actorloop.MsgExit:
			return actorloop.Exit
		}
		return actorloop.Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, Request(rt, actorloop.MsgIOOpen, actorloop.IOPayload{
		Victim: pid,
		Path:   filepath.Join(t.TempDir(), "missing"),
		Flags:  unix.O_RDONLY,
	}))
	require.NoError(t, rt.Run(context.Background()))
	require.NoError(t, rt.Close())

	assert.Equal(t, -1, reply.Ret)
	assert.Equal(t, syscall.ENOENT, reply.Errno)
}

func TestEngine_negativeCount(t *testing.T) {
	rt, err := actorloop.New(actorloop.WithEngines(Engine{}))
	require.NoError(t, err)

	f, err := os.CreateTemp(t.TempDir(), "data")
	require.NoError(t, err)
	defer f.Close()

	var reply actorloop.IOPayload
	pid, err := rt.Spawn(actorloop.HandlerFunc(func(ctx *actorloop.Context, msg *actorloop.Message) actorloop.Result {
		switch msg.Type() {
		case actorloop.MsgIOPread:
			reply = msg.Payload().(actorloop.IOPayload)
			ctx.LoopExit()
		case actorloop.MsgExit:
			return actorloop.Exit
		}
		return actorloop.Consumed
	}))
	require.NoError(t, err)
	require.NoError(t, Request(rt, actorloop.MsgIOPread, actorloop.IOPayload{
		Victim: pid,
		FD:     int(f.Fd()),
		Buf:    make([]byte, 8),
		Count:  -1,
	}))
	require.NoError(t, rt.Run(context.Background()))
	require.NoError(t, rt.Close())

	assert.Equal(t, -1, reply.Ret)
	assert.Equal(t, syscall.EINVAL, reply.Errno)
}
