//go:build linux

package wakeup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func readable(t *testing.T, fd int) bool {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	require.NoError(t, err)
	return n == 1 && fds[0].Revents&unix.POLLIN != 0
}

func TestEventFD(t *testing.T) {
	x, err := NewEventFD()
	require.NoError(t, err)
	defer x.Close()

	assert.False(t, readable(t, x.FD()))

	require.NoError(t, x.Signal())
	require.NoError(t, x.Signal())
	assert.True(t, readable(t, x.FD()))

	x.Drain()
	assert.False(t, readable(t, x.FD()))

	require.NoError(t, x.Signal())
	assert.True(t, readable(t, x.FD()))
}

func TestEventFD_Close(t *testing.T) {
	x, err := NewEventFD()
	require.NoError(t, err)
	require.NoError(t, x.Close())
	require.NoError(t, x.Close())
	assert.ErrorIs(t, x.Signal(), ErrClosed)
}

func TestEventFD_signalDuringClose(t *testing.T) {
	x, err := NewEventFD()
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := x.Signal(); err != nil {
					assert.ErrorIs(t, err, ErrClosed)
				}
				x.pending.Store(0)
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, x.Close())
	// likely handed the same number
	y, err := NewEventFD()
	require.NoError(t, err)
	defer y.Close()
	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.False(t, readable(t, y.FD()))
}
