package actorloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakePID(t *testing.T) {
	pid := MakePID(3, 42)
	assert.Equal(t, 3, pid.GID())
	assert.Equal(t, uint64(42), pid.Offset())
	assert.False(t, pid.IsName())
	assert.False(t, pid.IsBroadcast())
	assert.Equal(t, "<3:42>", pid.String())

	last := MakePID(MaxDomains-1, poffMask)
	assert.Equal(t, MaxDomains-1, last.GID())
	assert.Equal(t, uint64(poffMask), last.Offset())

	// the offset is truncated to its field
	assert.Equal(t, MakePID(1, 0), MakePID(1, poffMask+1))
}

func TestMakePID_gidOutOfRange(t *testing.T) {
	assert.Panics(t, func() { MakePID(-1, 0) })
	assert.Panics(t, func() { MakePID(MaxDomains, 0) })
}

func TestName(t *testing.T) {
	pid := Name(NameIO)
	assert.True(t, pid.IsName())
	assert.False(t, pid.IsBroadcast())
	assert.Equal(t, 0, pid.GID())
	assert.Equal(t, uint64(NameIO), pid.Offset())
	assert.Equal(t, "<0:3>", pid.String())
}

func TestBroadcast(t *testing.T) {
	pid := Broadcast(UserGID)
	assert.True(t, pid.IsBroadcast())
	assert.False(t, pid.IsName())
	assert.Equal(t, UserGID, pid.GID())
	assert.Zero(t, pid.Offset())
}
