package actorloop

import (
	"time"
)

// worker runs domains from the queue until it finds the queue empty. A
// domain is re-queued after each pass, unless it has no processes left, in
// which case it is retired for good.
func (rt *Runtime) worker(id int) {
	rt.logger.Debug().Int("worker", id).Log("worker started")

	var passes int
	for {
		d := rt.queue.Get()
		if d == nil {
			break
		}

		d.runLock.Lock()
		var start time.Time
		if rt.metrics != nil {
			start = time.Now()
		}
		d.work()
		if rt.metrics != nil {
			rt.metrics.recordPass(time.Since(start), d.stats)
		}
		d.stats = passStats{}
		retired := d.nlive == 0
		if retired {
			d.retired.Store(true)
		}
		d.runLock.Unlock()
		passes++

		if retired {
			rt.logger.Debug().
				Int("worker", id).
				Int("gid", d.gid).
				Str("name", d.name).
				Log("domain retired")
			continue
		}
		rt.queue.Put(&d.node)
	}

	rt.logger.Debug().
		Int("worker", id).
		Int("passes", passes).
		Log("worker stopped")
}
