// Package config loads the CLI's runtime configuration from TOML or YAML,
// and maps it onto [actorloop.Option] values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"

	"github.com/joeycumines/go-actorloop"
)

// ErrFormat is returned for a config path with an unrecognised extension.
var ErrFormat = errors.New("config: unsupported format")

// Config is the on-disk form of the runtime options. Zero fields keep
// their defaults, see [Default].
type Config struct {
	// Engines names the engines to construct, in order, see
	// [actorloop.EngineRegistry].
	Engines []string `toml:"engines" yaml:"engines"`

	// DropLogRates maps a window (a [time.ParseDuration] string) to the
	// number of dropped messages logged per domain within it.
	DropLogRates map[string]int `toml:"drop_log_rates" yaml:"drop_log_rates"`

	// Workers overrides the number of extra worker goroutines.
	Workers *int `toml:"workers" yaml:"workers"`

	LogLevel     string `toml:"log_level" yaml:"log_level"`
	MaxProcesses int    `toml:"max_processes" yaml:"max_processes"`
	Metrics      bool   `toml:"metrics" yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MaxProcesses: actorloop.DefaultMaxProcesses,
		LogLevel:     "info",
		DropLogRates: map[string]int{
			"1s": 5,
			"1m": 60,
		},
	}
}

// Load reads the file at path, as TOML or YAML depending on its extension,
// over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = cfg.decodeTOML(data)
	case ".yaml", ".yml":
		err = cfg.decodeYAML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeTOML(data []byte) error {
	// decoded maps are merged into, not replaced
	c.DropLogRates = nil
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		return fmt.Errorf("unknown keys %v", keys)
	}
	if !md.IsDefined("drop_log_rates") {
		c.DropLogRates = Default().DropLogRates
	}
	return nil
}

func (c *Config) decodeYAML(data []byte) error {
	c.DropLogRates = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if c.DropLogRates == nil {
		c.DropLogRates = Default().DropLogRates
	}
	return nil
}

// Validate checks every field, returning the first problem found.
func (c *Config) Validate() error {
	if c.MaxProcesses <= 0 {
		return fmt.Errorf("config: max_processes must be positive, got %d", c.MaxProcesses)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", *c.Workers)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.dropLogRates(); err != nil {
		return err
	}
	for i, name := range c.Engines {
		if slices.Contains(c.Engines[:i], name) {
			return fmt.Errorf("config: engine %q listed twice", name)
		}
	}
	return nil
}

func (c *Config) dropLogRates() (map[time.Duration]int, error) {
	rates := make(map[time.Duration]int, len(c.DropLogRates))
	for k, v := range c.DropLogRates {
		d, err := time.ParseDuration(k)
		if err != nil {
			return nil, fmt.Errorf("config: drop_log_rates: %w", err)
		}
		if d <= 0 || v <= 0 {
			return nil, fmt.Errorf("config: drop_log_rates: %s = %d must be positive", k, v)
		}
		rates[d] = v
	}
	return rates, nil
}

// Options maps the config onto runtime options. Engines are resolved
// against registry; required names the engines a caller needs regardless,
// appended after the configured ones unless already present.
func (c *Config) Options(registry *actorloop.EngineRegistry, logger *logiface.Logger[logiface.Event], required ...string) ([]actorloop.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	names := slices.Clone(c.Engines)
	for _, name := range required {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	engines, err := registry.Resolve(names...)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	rates, _ := c.dropLogRates()

	opts := []actorloop.Option{
		actorloop.WithLogger(logger),
		actorloop.WithMaxProcesses(c.MaxProcesses),
		actorloop.WithEngines(engines...),
		actorloop.WithMetrics(c.Metrics),
		actorloop.WithDropLogRates(rates),
	}
	if c.Workers != nil {
		opts = append(opts, actorloop.WithWorkers(*c.Workers))
	}
	return opts, nil
}

// Level is the parsed log level.
func (c *Config) Level() logiface.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// Encode writes the config as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ParseLevel parses a syslog keyword (as printed by [logiface.Level]),
// "trace", or "disabled". The deprecated keywords "panic", "error" and
// "warn" are accepted too.
func ParseLevel(s string) (logiface.Level, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "disabled", "off":
		return logiface.LevelDisabled, nil
	case "panic":
		return logiface.LevelEmergency, nil
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	}
	for level := logiface.LevelEmergency; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("config: unknown log level %q", s)
}
