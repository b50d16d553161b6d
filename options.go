// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package actorloop

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultMaxProcesses is the process table size of the user domain.
const DefaultMaxProcesses = 1 << 16

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	logger         *logiface.Logger[logiface.Event]
	dropLogRates   map[time.Duration]int
	engines        []Engine
	maxProcesses   int
	workers        int
	metricsEnabled bool
}

// --- Runtime Options ---

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxProcesses sets the process table size of the user domain.
// Engines choose their own table sizes.
func WithMaxProcesses(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n <= 0 {
			return errors.New("actorloop: max processes must be positive")
		}
		opts.maxProcesses = n
		return nil
	}}
}

// WithEngines appends engines, constructed in order after the user
// domain. Nil engines are ignored.
func WithEngines(engines ...Engine) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		for _, e := range engines {
			if e != nil {
				opts.engines = append(opts.engines, e)
			}
		}
		return nil
	}}
}

// WithWorkers fixes the number of extra worker goroutines started by Run,
// in addition to the calling goroutine. By default one fewer than the
// number of domains with hungry processes is used, since each of those may
// block while idle. Values below that default risk starving domains.
func WithWorkers(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 0 {
			return errors.New("actorloop: workers must not be negative")
		}
		opts.workers = n
		return nil
	}}
}

// WithMetrics enables metrics collection, accessible via Runtime.Metrics.
// This adds a clock read and a mutex acquisition per domain run pass.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithDropLogRates bounds how often undeliverable messages are logged, per
// domain, as a map of window to count (see catrate.NewLimiter).
func WithDropLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.dropLogRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to runtimeOptions.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		maxProcesses: DefaultMaxProcesses,
		workers:      -1,
		dropLogRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Spawn Options ---

// SpawnOption configures a spawned process.
type SpawnOption interface {
	applySpawn(*spawnOptions)
}

type spawnOptions struct {
	hungry bool
}

type spawnOptionImpl func(*spawnOptions)

func (f spawnOptionImpl) applySpawn(opts *spawnOptions) { f(opts) }

// Hungry marks the process as wanting a [MsgQueueEmpty] each time its
// domain finishes a pass with nothing left to do. Engines use this to block
// on their event source.
func Hungry() SpawnOption {
	return spawnOptionImpl(func(opts *spawnOptions) { opts.hungry = true })
}

func resolveSpawnOptions(opts []SpawnOption) spawnOptions {
	var cfg spawnOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applySpawn(&cfg)
		}
	}
	return cfg
}
