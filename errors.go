package actorloop

import (
	"errors"
)

// Contract violations. These are raised as a panic carrying a [*FatalError]
// that wraps one of them, after being logged at critical level.
var (
	// ErrPayloadTooLarge is raised when a payload exceeds [MaxPayloadSize].
	ErrPayloadTooLarge = errors.New("actorloop: payload too large")

	// ErrNoSlots is raised when a domain's process table is full.
	ErrNoSlots = errors.New("actorloop: not enough slots for new processes")

	// ErrNameNotRegistered is raised when sending to an unregistered name.
	ErrNameNotRegistered = errors.New("actorloop: name not registered")

	// ErrNameTaken is raised when registering a name twice.
	ErrNameTaken = errors.New("actorloop: name already taken")

	// ErrNameInvalid is raised when registering with a PID that is not a
	// name (gid 0), or that is the reserved broadcast name.
	ErrNameInvalid = errors.New("actorloop: can only register as a non-zero name in domain zero")

	// ErrNameRange is raised when a name is at or above [MaxNames].
	ErrNameRange = errors.New("actorloop: name out of range")

	// ErrInvalidResult is raised when a handler returns an unknown [Result].
	ErrInvalidResult = errors.New("actorloop: invalid handler result")

	// ErrNilHandler is raised when spawning a process without a handler.
	ErrNilHandler = errors.New("actorloop: nil handler")

	// ErrUnexpectedMessage is raised by engines on messages they cannot
	// handle.
	ErrUnexpectedMessage = errors.New("actorloop: unexpected message")
)

// Lifecycle and configuration errors, returned normally.
var (
	// ErrRuntimeRunning is returned when an operation requires the runtime
	// to be idle, e.g. Run while already running.
	ErrRuntimeRunning = errors.New("actorloop: runtime is running")

	// ErrRuntimeStopped is returned by Run after the runtime has completed
	// a run.
	ErrRuntimeStopped = errors.New("actorloop: runtime has stopped")

	// ErrRuntimeClosed is returned once the runtime has been closed.
	ErrRuntimeClosed = errors.New("actorloop: runtime is closed")

	// ErrEngineRegistered is returned when registering a duplicate engine.
	ErrEngineRegistered = errors.New("actorloop: engine already registered")

	// ErrUnknownEngine is returned when resolving an unregistered engine.
	ErrUnknownEngine = errors.New("actorloop: unknown engine")

	// ErrTooManyDomains is returned when every gid is in use.
	ErrTooManyDomains = errors.New("actorloop: too many domains")

	// ErrEngineContract is returned when an engine's Construct does not
	// create exactly one domain with a hungry process.
	ErrEngineContract = errors.New("actorloop: engine violated construction contract")
)

// FatalError is the panic value for contract violations.
type FatalError struct {
	Err error
	// Op names the operation that failed.
	Op string
}

func (e *FatalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap supports [errors.Is] against the sentinels above.
func (e *FatalError) Unwrap() error { return e.Err }
