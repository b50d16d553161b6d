package actorloop

import (
	"os"
	"strconv"
	"syscall"
	"unsafe"

	"github.com/joeycumines/go-actorloop/internal/slab"
)

// MaxPayloadSize is the largest payload, in bytes, a message may carry.
const MaxPayloadSize = 224

// MsgType identifies the kind of a message. Values below [MsgUser] are
// reserved by the runtime and its engines.
type MsgType uint32

const (
	// MsgFDRead reports a registered descriptor became readable.
	MsgFDRead MsgType = iota
	// MsgFDWrite reports a registered descriptor became writable.
	MsgFDWrite
	// MsgFDTimeout reports a descriptor registration expired.
	MsgFDTimeout
	// MsgFDRegisterRead asks the poll engine for read readiness.
	MsgFDRegisterRead
	// MsgFDRegisterWrite asks the poll engine for write readiness.
	MsgFDRegisterWrite
	// MsgFDUnregister cancels a descriptor registration.
	MsgFDUnregister
	// MsgFDClose reports an error or hang-up on a registered descriptor.
	MsgFDClose
	// MsgIOFsync requests (and answers) an fsync.
	MsgIOFsync
	// MsgIOOpen requests (and answers) an open.
	MsgIOOpen
	// MsgIOPread requests (and answers) a positioned read.
	MsgIOPread
	// MsgSignalRegister subscribes a process to a signal.
	MsgSignalRegister
	// MsgSignalUnregister cancels a signal subscription.
	MsgSignalUnregister
	// MsgSignal delivers a signal.
	MsgSignal
	// MsgWatchAdd subscribes a process to filesystem events on a path.
	MsgWatchAdd
	// MsgWatchRemove cancels a filesystem subscription.
	MsgWatchRemove
	// MsgWatchEvent delivers a filesystem event or watcher error.
	MsgWatchEvent
	// MsgExit asks every process to terminate.
	MsgExit
	// MsgGC asks a domain to return its cached memory.
	MsgGC
	// MsgQueueEmpty tells a hungry process its domain has gone idle.
	MsgQueueEmpty
	// MsgUser is the first application defined type.
	MsgUser
)

var msgTypeNames = [...]string{
	MsgFDRead:           "fd_read",
	MsgFDWrite:          "fd_write",
	MsgFDTimeout:        "fd_timeout",
	MsgFDRegisterRead:   "fd_register_read",
	MsgFDRegisterWrite:  "fd_register_write",
	MsgFDUnregister:     "fd_unregister",
	MsgFDClose:          "fd_close",
	MsgIOFsync:          "io_fsync",
	MsgIOOpen:           "io_open",
	MsgIOPread:          "io_pread",
	MsgSignalRegister:   "signal_register",
	MsgSignalUnregister: "signal_unregister",
	MsgSignal:           "signal",
	MsgWatchAdd:         "watch_add",
	MsgWatchRemove:      "watch_remove",
	MsgWatchEvent:       "watch_event",
	MsgExit:             "exit",
	MsgGC:               "gc",
	MsgQueueEmpty:       "queue_empty",
}

func (x MsgType) String() string {
	if int(x) < len(msgTypeNames) {
		return msgTypeNames[x]
	}
	return "user+" + strconv.FormatUint(uint64(x-MsgUser), 10)
}

// Payload is the body of a message. The set of payload kinds is closed.
type Payload interface {
	// Size is the number of bytes the payload occupies in a message.
	Size() int
	payload()
}

type (
	// Data is an opaque byte payload, copied into the message on send.
	Data []byte

	// Int is a single integer payload.
	Int int64

	// FDPayload is carried by the MsgFD* types.
	FDPayload struct {
		// Victim receives readiness notifications.
		Victim PID
		// FD is the descriptor.
		FD int
		// Expires is an absolute [Millis] deadline, or 0 for none.
		Expires uint64
	}

	// SignalPayload is carried by the MsgSignal* types.
	SignalPayload struct {
		Signal os.Signal
		// Victim receives the signal.
		Victim PID
	}

	// IOPayload is carried by the MsgIO* types, both requests and replies.
	IOPayload struct {
		Path   string
		Buf    []byte
		Victim PID
		FD     int
		Count  int
		Offset int64
		Flags  int
		Ret    int
		Mode   uint32
		Errno  syscall.Errno
	}

	// WatchPayload is carried by the MsgWatch* types.
	WatchPayload struct {
		Err    error
		Path   string
		Victim PID
		Op     uint32
	}
)

func (x Data) Size() int { return len(x) }
func (Int) Size() int { return int(unsafe.Sizeof(Int(0))) }
func (FDPayload) Size() int { return int(unsafe.Sizeof(FDPayload{})) }
func (SignalPayload) Size() int { return int(unsafe.Sizeof(SignalPayload{})) }
func (IOPayload) Size() int { return int(unsafe.Sizeof(IOPayload{})) }
func (WatchPayload) Size() int { return int(unsafe.Sizeof(WatchPayload{})) }
func (Data) payload() {}
func (Int) payload() {}
func (FDPayload) payload() {}
func (SignalPayload) payload() {}
func (IOPayload) payload() {}
func (WatchPayload) payload() {}

// Message is a fixed-size envelope. Messages are owned by the runtime: a
// handler may read the message it is given only until it returns, unless
// it returns [Deferred].
type Message struct {
	chunk   *msgChunk
	next    *Message
	payload Payload
	target  PID
	size    int
	typ     MsgType
	data    bool
	buf     [MaxPayloadSize]byte
}

// msgChunk is the slab element holding a message.
type msgChunk struct {
	slot slab.Slot
	msg  Message
}

func (x *msgChunk) SlabSlot() *slab.Slot { return &x.slot }

func (m *Message) link() **Message { return &m.next }

// Target is the PID the message was addressed to.
func (m *Message) Target() PID { return m.target }

// Type is the message type.
func (m *Message) Type() MsgType { return m.typ }

// Size is the payload size in bytes.
func (m *Message) Size() int { return m.size }

// Payload returns the payload, or nil for an empty message.
func (m *Message) Payload() Payload {
	if m.data {
		return Data(m.buf[:m.size:m.size])
	}
	return m.payload
}

// Data returns the bytes of a [Data] payload, or nil. The slice aliases the
// message.
func (m *Message) Data() []byte {
	if !m.data {
		return nil
	}
	return m.buf[:m.size:m.size]
}

// Int returns the value of an [Int] payload.
func (m *Message) Int() (int64, bool) {
	v, ok := m.payload.(Int)
	return int64(v), ok
}

func (m *Message) setPayload(p Payload) error {
	switch v := p.(type) {
	case nil:
	case Data:
		if len(v) > MaxPayloadSize {
			return ErrPayloadTooLarge
		}
		m.size = copy(m.buf[:], v)
		m.data = true
	default:
		n := v.Size()
		if n > MaxPayloadSize {
			return ErrPayloadTooLarge
		}
		m.size = n
		m.payload = v
	}
	return nil
}

// copyFrom copies the contents of src, but not its identity.
func (m *Message) copyFrom(src *Message) {
	m.target = src.target
	m.typ = src.typ
	m.size = src.size
	m.payload = src.payload
	m.data = src.data
	if src.data {
		copy(m.buf[:src.size], src.buf[:src.size])
	}
}
