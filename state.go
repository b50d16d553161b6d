package actorloop

import (
	"sync/atomic"
)

// RuntimeState is the lifecycle state of a [Runtime].
//
//	StateAwake → StateRunning   [Run]
//	StateRunning → StateStopped [every domain retired]
//	StateAwake → StateClosed    [Close]
//	StateStopped → StateClosed  [Close]
type RuntimeState uint64

const (
	// StateAwake indicates the runtime has been created but not run.
	StateAwake RuntimeState = iota
	// StateRunning indicates workers are executing domains.
	StateRunning
	// StateStopped indicates a run completed.
	StateStopped
	// StateClosed indicates resources have been released.
	StateClosed
)

func (s RuntimeState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// fastState is a CAS state cell, padded to its own cache line as it is
// read on every external send.
//
// betteralign:ignore
type fastState struct {
	_ [sizeOfCacheLine]byte
	v atomic.Uint64
	_ [sizeOfCacheLine - 8]byte
}

func (s *fastState) Load() RuntimeState { return RuntimeState(s.v.Load()) }

// TryTransition moves from one state to another, reporting success.
func (s *fastState) TryTransition(from, to RuntimeState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// err maps a state that does not permit the requested operation to the
// corresponding error.
func (s RuntimeState) err() error {
	switch s {
	case StateRunning:
		return ErrRuntimeRunning
	case StateStopped:
		return ErrRuntimeStopped
	case StateClosed:
		return ErrRuntimeClosed
	default:
		return nil
	}
}
