package actorloop

import (
	"strconv"
)

// PID addresses a process, a whole domain, or a registered name.
//
// The top [GIDBits] bits hold the domain id (gid), the remaining bits the
// process offset (poff) within that domain. A gid of 0 marks a name: the
// poff is then an index into the runtime's name table. A poff of 0 with a
// non-zero gid addresses every process of that domain.
type PID uint64

const (
	// GIDBits is the width of the domain id.
	GIDBits = 5
	// PoffBits is the width of the process offset.
	PoffBits = 64 - GIDBits

	// MaxDomains bounds gids, including the reserved gid 0.
	MaxDomains = 1 << GIDBits
	// MaxNames is the size of the name table.
	MaxNames = 32

	poffMask = 1<<PoffBits - 1
)

// Well-known names, for engine processes. Address them with [Name].
const (
	nameBroadcast = iota
	// NameSelect is the file descriptor readiness engine.
	NameSelect
	// NameWatch is the filesystem notification engine.
	NameWatch
	// NameIO is the blocking file I/O engine.
	NameIO
	// NameSignal is the OS signal engine.
	NameSignal
)

// MakePID composes a PID. It panics if gid does not fit in [GIDBits].
func MakePID(gid int, poff uint64) PID {
	if gid < 0 || gid >= MaxDomains {
		panic("actorloop: gid out of range: " + strconv.Itoa(gid))
	}
	return PID(uint64(gid)<<PoffBits | poff&poffMask)
}

// Name returns the PID addressing registered name n.
func Name(n int) PID { return MakePID(0, uint64(n)) }

// Broadcast returns the PID addressing every process in domain gid.
func Broadcast(gid int) PID { return MakePID(gid, 0) }

// GID is the domain id.
func (x PID) GID() int { return int(uint64(x) >> PoffBits) }

// Offset is the process offset within the domain.
func (x PID) Offset() uint64 { return uint64(x) & poffMask }

// IsName reports whether x addresses the name table.
func (x PID) IsName() bool { return x.GID() == 0 }

// IsBroadcast reports whether x addresses a whole domain.
func (x PID) IsBroadcast() bool { return x.GID() != 0 && x.Offset() == 0 }

// String renders x as <gid:poff>.
func (x PID) String() string {
	b := make([]byte, 0, 24)
	b = append(b, '<')
	b = strconv.AppendInt(b, int64(x.GID()), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, x.Offset(), 10)
	b = append(b, '>')
	return string(b)
}
