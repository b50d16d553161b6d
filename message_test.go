package actorloop

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgType_String(t *testing.T) {
	for typ := MsgFDRead; typ < MsgUser; typ++ {
		assert.NotEmpty(t, msgTypeNames[typ], "type %d", typ)
	}
	assert.Equal(t, "fd_read", MsgFDRead.String())
	assert.Equal(t, "queue_empty", MsgQueueEmpty.String())
	assert.Equal(t, "user+0", MsgUser.String())
	assert.Equal(t, "user+7", (MsgUser + 7).String())
}

func TestMessage_setPayload(t *testing.T) {
	var m Message
	require.NoError(t, m.setPayload(nil))
	assert.Nil(t, m.Payload())
	assert.Zero(t, m.Size())
	assert.Nil(t, m.Data())

	m = Message{}
	src := []byte("hello")
	require.NoError(t, m.setPayload(Data(src)))
	src[0] = 'j'
	assert.Equal(t, []byte("hello"), m.Data(), "data is copied on send")
	assert.Equal(t, Data("hello"), m.Payload())
	assert.Equal(t, 5, m.Size())
	_, ok := m.Int()
	assert.False(t, ok)

	m = Message{}
	require.NoError(t, m.setPayload(Int(-9)))
	v, ok := m.Int()
	assert.True(t, ok)
	assert.Equal(t, int64(-9), v)
	assert.Nil(t, m.Data())

	m = Message{}
	io := IOPayload{Path: "/tmp/x", Ret: -1, Errno: syscall.ENOENT}
	require.NoError(t, m.setPayload(io))
	assert.Equal(t, io, m.Payload())
	assert.Equal(t, io.Size(), m.Size())
}

func TestMessage_setPayloadTooLarge(t *testing.T) {
	var m Message
	require.NoError(t, m.setPayload(Data(make([]byte, MaxPayloadSize))))
	m = Message{}
	assert.ErrorIs(t, m.setPayload(Data(make([]byte, MaxPayloadSize+1))), ErrPayloadTooLarge)
}

func TestPayload_sizesFit(t *testing.T) {
	for _, p := range []Payload{Int(0), FDPayload{}, SignalPayload{}, IOPayload{}, WatchPayload{}} {
		assert.LessOrEqual(t, p.Size(), MaxPayloadSize, "%T", p)
	}
}

func TestMessage_copyFrom(t *testing.T) {
	var src Message
	src.target = MakePID(2, 3)
	src.typ = MsgUser
	require.NoError(t, src.setPayload(Data("abc")))

	var dst Message
	dst.copyFrom(&src)
	assert.Equal(t, src.Target(), dst.Target())
	assert.Equal(t, MsgUser, dst.Type())
	assert.Equal(t, []byte("abc"), dst.Data())
	src.buf[0] = 'x'
	assert.Equal(t, []byte("abc"), dst.Data())
}
