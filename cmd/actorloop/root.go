//go:build unix

package main

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/joeycumines/go-actorloop"
	"github.com/joeycumines/go-actorloop/engine/fileio"
	"github.com/joeycumines/go-actorloop/engine/poll"
	"github.com/joeycumines/go-actorloop/engine/signals"
	"github.com/joeycumines/go-actorloop/engine/watch"
	"github.com/joeycumines/go-actorloop/internal/config"
)

// rootOptions holds the global flags, and the state derived from them
// before any subcommand runs.
type rootOptions struct {
	logger     *logiface.Logger[logiface.Event]
	config     *config.Config
	registry   *actorloop.EngineRegistry
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "actorloop",
		Short: "Run actorloop demonstrations",
		Long: `Run demonstrations and benchmarks of the actorloop runtime.

Runtime options are read from a TOML or YAML file (--config), see the
config subcommand for the effective values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overriding the config file")

	cmd.AddCommand(newRingCommand(opts))
	cmd.AddCommand(newEchoCommand(opts))
	cmd.AddCommand(newCatCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))

	return cmd
}

func (x *rootOptions) init(stderr io.Writer) error {
	cfg := config.Default()
	if x.configPath != "" {
		var err error
		if cfg, err = config.Load(x.configPath); err != nil {
			return err
		}
	}
	if x.logLevel != "" {
		cfg.LogLevel = x.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	x.config = cfg

	x.logger = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(cfg.Level()),
	).Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		x.logger.Debug().Log(fmt.Sprintf(format, args...))
	})); err != nil {
		x.logger.Warning().Err(err).Log("failed to set GOMAXPROCS")
	}

	registry, err := newRegistry()
	if err != nil {
		return err
	}
	x.registry = registry
	return nil
}

func newRegistry() (*actorloop.EngineRegistry, error) {
	return actorloop.NewEngineRegistry(
		poll.Engine{},
		signals.Engine{},
		fileio.Engine{},
		watch.Engine{},
	)
}

// newRuntime builds a runtime from the config, with the required engines
// in addition to any it lists. Options in extra take precedence.
func (x *rootOptions) newRuntime(required []string, extra ...actorloop.Option) (*actorloop.Runtime, error) {
	opts, err := x.config.Options(x.registry, x.logger, required...)
	if err != nil {
		return nil, err
	}
	return actorloop.New(append(opts, extra...)...)
}
