// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/gao-feng/Quark/lib/asyncio"
	"github.com/gao-feng/Quark/lib/socketbuf"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "QUARK_CONFIG"

// Config is the network bridge daemon configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Listen configures the host listening socket.
	Listen ListenConfig `yaml:"listen"`

	// Buffers sizes the per-connection socket buffers.
	Buffers BuffersConfig `yaml:"buffers"`

	// Poller configures host readiness dispatch.
	Poller PollerConfig `yaml:"poller"`

	// AsyncIO configures the registered-descriptor table.
	AsyncIO AsyncIOConfig `yaml:"asyncio"`

	// Trace configures the readiness signal trace.
	Trace TraceConfig `yaml:"trace"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Development and Production override base values when
	// Environment matches.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Poller *PollerConfig `yaml:"poller,omitempty"`
	Trace  *TraceConfig  `yaml:"trace,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// State is where runtime files such as traces are written.
	// Available to other fields as ${QUARK_STATE}.
	State string `yaml:"state"`
}

// ListenConfig configures the host listening socket.
type ListenConfig struct {
	// Address is the host TCP address, host:port.
	// Default: 127.0.0.1:8642
	Address string `yaml:"address"`

	// Backlog bounds both the host listen(2) backlog and the guest
	// accept queue.
	// Default: 128
	Backlog int `yaml:"backlog"`
}

// BuffersConfig sizes the receive and send rings of each connection.
type BuffersConfig struct {
	ReadSize  int `yaml:"read_size"`
	WriteSize int `yaml:"write_size"`
}

// PollerConfig configures host readiness dispatch.
type PollerConfig struct {
	// Workers is the number of goroutines waiting on the epoll
	// instance.
	// Default: 2
	Workers int `yaml:"workers"`
}

// AsyncIOConfig configures the registered-descriptor table.
type AsyncIOConfig struct {
	// TableSize bounds the number of simultaneously open connections.
	TableSize int `yaml:"table_size"`
}

// TraceConfig configures the readiness signal trace.
type TraceConfig struct {
	// Path is the trace file. Empty disables tracing. A ".zst" or
	// ".lz4" extension selects compression.
	Path string `yaml:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json. Empty picks text when stderr is a
	// terminal and json otherwise.
	Format string `yaml:"format"`
}

// Default returns the default configuration. Values in the config file
// are merged over it.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			State: filepath.Join(homeDir, ".cache", "quark"),
		},
		Listen: ListenConfig{
			Address: "127.0.0.1:8642",
			Backlog: 128,
		},
		Buffers: BuffersConfig{
			ReadSize:  socketbuf.DefaultBufferSize,
			WriteSize: socketbuf.DefaultBufferSize,
		},
		Poller: PollerConfig{
			Workers: 2,
		},
		AsyncIO: AsyncIOConfig{
			TableSize: asyncio.DefaultTableSize,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// Load loads configuration from the file named by QUARK_CONFIG. There
// is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your quark.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc are read as JSON with comments; anything else is
// YAML. Environment variables never override config values; the only
// expansion is ${VAR} references inside path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges a single configuration file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// Plain JSON is valid YAML, so once comments and trailing
		// commas are stripped the same decoder and struct tags apply.
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific section.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs in a machine-readable
		// format.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Level: "info", Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Poller != nil && overrides.Poller.Workers != 0 {
		c.Poller.Workers = overrides.Poller.Workers
	}

	// An override section that names trace replaces the path outright,
	// so production can disable tracing with `path: ""`.
	if overrides.Trace != nil {
		c.Trace.Path = overrides.Trace.Path
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["QUARK_STATE"] = c.Paths.State

	c.Trace.Path = expandVars(c.Trace.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, _, err := net.SplitHostPort(c.Listen.Address); err != nil {
		errs = append(errs, fmt.Errorf("listen.address: %w", err))
	}
	if c.Listen.Backlog < 1 {
		errs = append(errs, fmt.Errorf("listen.backlog must be positive, got %d", c.Listen.Backlog))
	}

	if c.Buffers.ReadSize < 1 {
		errs = append(errs, fmt.Errorf("buffers.read_size must be positive, got %d", c.Buffers.ReadSize))
	}
	if c.Buffers.WriteSize < 1 {
		errs = append(errs, fmt.Errorf("buffers.write_size must be positive, got %d", c.Buffers.WriteSize))
	}

	if c.Poller.Workers < 1 {
		errs = append(errs, fmt.Errorf("poller.workers must be positive, got %d", c.Poller.Workers))
	}
	if c.AsyncIO.TableSize < 1 {
		errs = append(errs, fmt.Errorf("asyncio.table_size must be positive, got %d", c.AsyncIO.TableSize))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"text", "json"}
	if c.Log.Format != "" && !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the state directory and the trace file's parent
// directory if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.State}
	if c.Trace.Path != "" {
		paths = append(paths, filepath.Dir(c.Trace.Path))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
