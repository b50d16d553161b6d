package actorloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/go-actorloop/internal/handle"
	"github.com/joeycumines/go-actorloop/internal/msqueue"
	"github.com/joeycumines/go-actorloop/internal/slab"
	"github.com/joeycumines/go-actorloop/internal/spinlock"
)

// UserGID is the gid of the user domain, where [Runtime.Spawn] places
// processes.
const UserGID = 1

// Runtime is the root of a process hierarchy: it owns the domains, the
// queue of domains waiting to run, the name table, and the allocators
// shared by every domain.
type Runtime struct {
	// queue holds every domain that is neither running nor retired.
	queue msqueue.Queue[Domain]
	state fastState

	opts     *runtimeOptions
	logger   *logiface.Logger[logiface.Event]
	limiter  *catrate.Limiter
	metrics  *metricsRecorder
	messages *slab.Zone[msgChunk, *msgChunk]
	procs    *slab.Zone[process, *process]

	// ext allocates messages sent from outside the loop.
	ext struct {
		cache *slab.Cache[msgChunk, *msgChunk]
		sync.Mutex
	}

	order   []*Domain
	domains [MaxDomains]*Domain
	names   [MaxNames]atomic.Uint64
	// lock guards domain creation and writes to names.
	lock    spinlock.Lock
	id      uuid.UUID
}

// New creates a runtime with a user domain and any configured engines. The
// runtime must eventually be released with [Runtime.Close].
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	limiter, err := newDropLimiter(cfg.dropLogRates)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		opts:     cfg,
		logger:   cfg.logger,
		limiter:  limiter,
		messages: slab.NewZone[msgChunk](),
		procs:    slab.NewZone[process](),
		id:       uuid.New(),
	}
	rt.queue.Init()
	rt.ext.cache = rt.messages.NewCache()
	if cfg.metricsEnabled {
		rt.metrics = newMetricsRecorder()
	}

	for _, e := range append([]Engine{userEngine{}}, cfg.engines...) {
		if err := rt.construct(e); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("actorloop: engine %q: %w", e.Name(), err)
		}
	}

	rt.logger.Info().
		Str("runtime", rt.id.String()).
		Int("domains", len(rt.order)).
		Log("runtime created")
	return rt, nil
}

func (rt *Runtime) construct(e Engine) error {
	before := len(rt.order)
	if err := e.Construct(rt); err != nil {
		return err
	}
	added := rt.order[before:]
	if len(added) != 1 {
		return fmt.Errorf("%w: created %d domains", ErrEngineContract, len(added))
	}
	if _, user := e.(userEngine); !user && len(added[0].hungry) == 0 {
		return fmt.Errorf("%w: no hungry process", ErrEngineContract)
	}
	return nil
}

// NewDomain creates a domain and queues it to run. It is for use by
// [Engine.Construct]. If driver is nil, ingress notifications are
// discarded.
func (rt *Runtime) NewDomain(name string, driver Driver, maxProcesses int) (*Domain, error) {
	if err := rt.state.Load().err(); err != nil {
		return nil, err
	}
	if maxProcesses <= 0 {
		return nil, fmt.Errorf("actorloop: domain %q: max processes must be positive", name)
	}
	if driver == nil {
		driver = nopDriver{}
	}

	rt.lock.Lock()
	defer rt.lock.Unlock()

	gid := 0
	for i := 1; i < MaxDomains; i++ {
		if rt.domains[i] == nil {
			gid = i
			break
		}
	}
	if gid == 0 {
		return nil, ErrTooManyDomains
	}

	d := &Domain{
		rt:        rt,
		driver:    driver,
		procs:     handle.New[process](maxProcesses, poffMask),
		messages:  rt.messages.NewCache(),
		processes: rt.procs.NewCache(),
		name:      name,
		gid:       gid,
	}
	d.ctx.domain = d
	rt.queue.InitNode(&d.node, d)
	rt.domains[gid] = d
	rt.order = append(rt.order, d)
	rt.queue.Put(&d.node)

	rt.logger.Debug().
		Int("gid", gid).
		Str("name", name).
		Int("max_processes", maxProcesses).
		Log("domain created")
	return d, nil
}

// ID uniquely identifies this runtime instance, e.g. in logs.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// State returns the lifecycle state.
func (rt *Runtime) State() RuntimeState { return rt.state.Load() }

// Logger returns the configured logger, which may be nil.
func (rt *Runtime) Logger() *logiface.Logger[logiface.Event] { return rt.logger }

// Metrics returns a snapshot of runtime metrics. The zero value is returned
// unless enabled via [WithMetrics].
func (rt *Runtime) Metrics() Metrics {
	if rt.metrics == nil {
		return Metrics{}
	}
	m := rt.metrics.snapshot()
	m.MessageMemory = allocatorMetrics(rt.messages.Stats())
	m.ProcessMemory = allocatorMetrics(rt.procs.Stats())
	rt.ext.Lock()
	m.ExternalCached = rt.ext.cache.Len()
	rt.ext.Unlock()
	return m
}

// Domain returns the domain with the given gid, or nil.
func (rt *Runtime) Domain(gid int) *Domain { return rt.domain(gid) }

func (rt *Runtime) domain(gid int) *Domain {
	if gid <= 0 || gid >= MaxDomains {
		return nil
	}
	return rt.domains[gid]
}

// Spawn creates a process in the user domain. It is only permitted before
// Run. Running processes use [Context.Spawn] instead.
func (rt *Runtime) Spawn(h Handler, opts ...SpawnOption) (PID, error) {
	if err := rt.state.Load().err(); err != nil {
		return 0, err
	}
	d := rt.domains[UserGID]
	d.runLock.Lock()
	defer d.runLock.Unlock()
	return d.spawn(h, resolveSpawnOptions(opts)), nil
}

// Register binds name, a PID built with [Name], to pid. Names are never
// unbound. Registering the broadcast name, a name outside [MaxNames], or a
// name twice, is fatal.
func (rt *Runtime) Register(pid PID, name PID) {
	if name.GID() != 0 || name.Offset() == nameBroadcast {
		rt.fatal("register", ErrNameInvalid, name)
	}
	n := name.Offset()
	if n >= MaxNames {
		rt.fatal("register", ErrNameRange, name)
	}
	rt.lock.Lock()
	if rt.names[n].Load() != 0 {
		rt.lock.Unlock()
		rt.fatal("register", ErrNameTaken, name)
	}
	rt.names[n].Store(uint64(pid))
	rt.lock.Unlock()
	rt.logger.Debug().
		Stringer("pid", pid).
		Uint64("name", n).
		Log("name registered")
}

// Lookup returns the PID bound to name, if any.
func (rt *Runtime) Lookup(name PID) (PID, bool) {
	if name.GID() != 0 || name.Offset() >= MaxNames {
		return 0, false
	}
	v := rt.names[name.Offset()].Load()
	return PID(v), v != 0
}

// resolve maps a name to the process it is bound to. Other PIDs are
// returned as-is.
func (rt *Runtime) resolve(to PID) PID {
	if to.GID() != 0 {
		return to
	}
	if pid, ok := rt.Lookup(to); ok {
		return pid
	}
	rt.fatal("send", ErrNameNotRegistered, to)
	return 0
}

// Send delivers a message from outside the loop. It is safe to call from
// any goroutine, at any time before Close. The rules of [Context.Send]
// apply otherwise.
func (rt *Runtime) Send(to PID, typ MsgType, payload Payload) error {
	if rt.state.Load() == StateClosed {
		return ErrRuntimeClosed
	}
	to = rt.resolve(to)
	victim := rt.domain(to.GID())

	rt.ext.Lock()
	c := rt.ext.cache.Alloc()
	m := &c.msg
	m.chunk = c
	m.target = to
	m.typ = typ
	if err := m.setPayload(payload); err != nil {
		rt.ext.cache.Free(c)
		rt.ext.Unlock()
		rt.fatal("send", err, to)
	}
	if victim == nil {
		rt.ext.cache.Free(c)
		rt.ext.Unlock()
		rt.logger.Warning().
			Stringer("target", to).
			Stringer("type", typ).
			Log("send to unknown domain")
		return nil
	}
	rt.ext.Unlock()

	if rt.metrics != nil {
		rt.metrics.sent.Add(1)
	}

	victim.remoteLock.Lock()
	victim.remote.put(m)
	victim.remoteLock.Unlock()
	if !rt.ping(victim) {
		rt.nudge()
	}
	return nil
}

// ping wakes d via its driver if it is not queued, reporting whether it
// did so.
func (rt *Runtime) ping(d *Domain) bool {
	if !rt.queue.Detached(&d.node) {
		return false
	}
	if rt.metrics != nil {
		rt.metrics.ingress.Add(1)
	}
	d.driver.Ingress()
	return true
}

// nudge wakes every domain that is currently held by a worker, so that a
// worker blocked in an idle engine cycles back to the queue. Messages from
// outside the loop may otherwise wait on a queued domain while every worker
// sleeps.
func (rt *Runtime) nudge() {
	if rt.state.Load() != StateRunning {
		return
	}
	for _, d := range rt.order {
		if !d.retired.Load() {
			rt.ping(d)
		}
	}
}

// broadcastFrom sends typ to every domain, on behalf of d's owner.
func (rt *Runtime) broadcastFrom(d *Domain, typ MsgType) {
	for _, v := range rt.order {
		d.send(Broadcast(v.gid), typ, nil)
	}
}

func (rt *Runtime) broadcast(typ MsgType) error {
	for _, v := range rt.order {
		if err := rt.Send(Broadcast(v.gid), typ, nil); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown asks every process to exit, by broadcasting [MsgExit] to every
// domain. Run returns once they have.
func (rt *Runtime) Shutdown() error { return rt.broadcast(MsgExit) }

// MemoryCollect broadcasts [MsgGC], asking every domain to hand its cached
// memory back to the shared allocators. The cache used by [Runtime.Send] is
// drained straight away.
func (rt *Runtime) MemoryCollect() error {
	err := rt.broadcast(MsgGC)
	rt.drainExternal()
	return err
}

// drainExternal returns the free chunks cached for [Runtime.Send] to the
// message zone.
func (rt *Runtime) drainExternal() {
	rt.ext.Lock()
	rt.ext.cache.Drain()
	rt.ext.Unlock()
}

// MemoryStats is the number of bytes held by the message and process
// allocators, including cached free memory.
func (rt *Runtime) MemoryStats() uint64 {
	return rt.messages.UsedBytes() + rt.procs.UsedBytes()
}

// Run executes domains until every one of them has retired (has no
// processes left). The calling goroutine is one of the workers. Cancelling
// ctx broadcasts [MsgExit], and Run then returns the context's error once
// the loop has drained.
//
// A runtime may only be run once.
func (rt *Runtime) Run(ctx context.Context) error {
	if !rt.state.TryTransition(StateAwake, StateRunning) {
		return rt.state.Load().err()
	}

	workers := rt.opts.workers
	if workers < 0 {
		workers = max(0, rt.countHungryDomains()-1)
	}
	rt.logger.Info().
		Str("runtime", rt.id.String()).
		Int("workers", workers+1).
		Log("runtime started")

	shutdown := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(shutdown)
		_ = rt.Shutdown()
	})

	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			rt.worker(i + 1)
			return nil
		})
	}
	rt.worker(0)
	_ = g.Wait()

	if !stop() {
		// the shutdown broadcast may still be pinging drivers
		<-shutdown
	}
	rt.state.TryTransition(StateRunning, StateStopped)
	rt.logger.Info().
		Str("runtime", rt.id.String()).
		Log("runtime stopped")

	return ctx.Err()
}

// countHungryDomains is the number of domains with at least one hungry
// process, each of which may hold a worker while blocked.
func (rt *Runtime) countHungryDomains() int {
	var n int
	for _, d := range rt.order {
		if len(d.hungry) != 0 {
			n++
		}
	}
	return n
}

// Close destroys every domain, freeing all processes and messages. It
// fails if the runtime is running.
func (rt *Runtime) Close() error {
	for {
		s := rt.state.Load()
		switch s {
		case StateRunning:
			return ErrRuntimeRunning
		case StateClosed:
			return ErrRuntimeClosed
		}
		if rt.state.TryTransition(s, StateClosed) {
			break
		}
	}

	for _, d := range rt.order {
		d.driver.Destroy()
		d.runLock.Lock()
		d.release()
		d.runLock.Unlock()
	}
	rt.drainExternal()

	rt.logger.Info().
		Str("runtime", rt.id.String()).
		Uint64("memory", rt.MemoryStats()).
		Log("runtime closed")
	return nil
}
