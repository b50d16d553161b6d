package actorloop

import (
	"fmt"
	"slices"
)

// Engine backs a domain with some external event source, turning its events
// into messages. Engines are constructed by [New], in the order given to
// [WithEngines], after the user domain.
type Engine interface {
	// Name identifies the engine, e.g. in an [EngineRegistry].
	Name() string

	// Construct must create exactly one domain, via [Runtime.NewDomain],
	// and spawn at least one [Hungry] process in it. It typically also
	// registers that process under a well-known name.
	Construct(rt *Runtime) error
}

// Driver is the runtime's handle on an engine-backed domain.
type Driver interface {
	// Ingress is called, from any goroutine, when messages were added to
	// the domain's remote inbox while it was not queued to run. It must
	// ensure a hungry process blocked in the domain wakes up.
	Ingress()

	// Destroy releases the engine's resources. It is called once, by
	// [Runtime.Close].
	Destroy()
}

// userEngine owns gid 1, the domain of processes spawned from outside.
type userEngine struct{}

func (userEngine) Name() string { return "user" }

func (userEngine) Construct(rt *Runtime) error {
	_, err := rt.NewDomain("user", nopDriver{}, rt.opts.maxProcesses)
	return err
}

type nopDriver struct{}

func (nopDriver) Ingress() {}
func (nopDriver) Destroy() {}

// EngineRegistry maps names to engines, for configuration driven setups.
// It is not safe for concurrent use.
type EngineRegistry struct {
	engines map[string]Engine
	names   []string
}

// NewEngineRegistry returns a registry holding engines.
func NewEngineRegistry(engines ...Engine) (*EngineRegistry, error) {
	r := &EngineRegistry{engines: make(map[string]Engine)}
	for _, e := range engines {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds e under its name.
func (r *EngineRegistry) Register(e Engine) error {
	name := e.Name()
	if _, ok := r.engines[name]; ok {
		return fmt.Errorf("%w: %s", ErrEngineRegistered, name)
	}
	r.engines[name] = e
	r.names = append(r.names, name)
	return nil
}

// Lookup returns the engine registered as name.
func (r *EngineRegistry) Lookup(name string) (Engine, bool) {
	e, ok := r.engines[name]
	return e, ok
}

// Resolve maps names to engines, in order.
func (r *EngineRegistry) Resolve(names ...string) ([]Engine, error) {
	engines := make([]Engine, 0, len(names))
	for _, name := range names {
		e, ok := r.engines[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
		}
		engines = append(engines, e)
	}
	return engines, nil
}

// Names lists registered engines in registration order.
func (r *EngineRegistry) Names() []string { return slices.Clone(r.names) }
