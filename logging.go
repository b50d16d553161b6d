package actorloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
)

// dropCategory rate limits drop logging per domain.
type dropCategory struct {
	gid int
}

func newDropLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actorloop: invalid drop log rates: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// logDrop records an undeliverable message at debug level, subject to the
// drop rate limit.
func (rt *Runtime) logDrop(d *Domain, m *Message, reason string) {
	if rt.logger == nil {
		return
	}
	if _, ok := rt.limiter.Allow(dropCategory{gid: d.gid}); !ok {
		return
	}
	rt.logger.Debug().
		Int("gid", d.gid).
		Stringer("target", m.target).
		Stringer("type", m.typ).
		Str("reason", reason).
		Log("message dropped")
}

// fatal logs a contract violation then panics with it.
func (rt *Runtime) fatal(op string, err error, pid PID) {
	b := rt.logger.Crit().
		Str("runtime", rt.id.String()).
		Str("op", op).
		Err(err)
	if pid != 0 {
		b = b.Stringer("pid", pid)
	}
	b.Log("fatal runtime error")
	panic(&FatalError{Op: op, Err: err})
}
