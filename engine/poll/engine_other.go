//go:build !linux

package poll

import (
	"github.com/joeycumines/go-actorloop"
)

// Construct implements [actorloop.Engine]. Only linux is supported.
func (Engine) Construct(*actorloop.Runtime) error { return ErrUnsupported }
