package actorloop

import (
	"time"
)

// epoch anchors Millis. The offset of one keeps Millis non-zero, since a
// zero deadline means "none".
var epoch = time.Now().Add(-time.Millisecond)

// Millis is a monotonic millisecond clock with an arbitrary fixed origin.
// Deadlines carried by messages, e.g. [FDPayload.Expires], use it.
func Millis() uint64 {
	return uint64(time.Since(epoch) / time.Millisecond)
}

// Deadline converts a relative timeout to an absolute [Millis] deadline.
// Non-positive timeouts mean no deadline, and yield 0.
func Deadline(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return 0
	}
	ms := uint64((timeout + time.Millisecond - 1) / time.Millisecond)
	return Millis() + ms
}
