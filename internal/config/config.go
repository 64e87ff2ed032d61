// Package config loads CLI and service configuration from built-in
// defaults, an optional TOML file and KRAKATAU_* environment variables, in
// that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/host"
	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/protocol"
	"github.com/wippyai/krakatau-bridge/service"
	"github.com/wippyai/krakatau-bridge/toolchain"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "KRAKATAU"

// PathEnv names the config file when no path is given explicitly.
const PathEnv = EnvPrefix + "_CONFIG"

// Backends.
const (
	BackendExec = "exec" // native krak2 binary
	BackendWasm = "wasm" // guest module exporting the boundary ABI
	BackendNATS = "nats" // remote service
)

// Config holds every tunable. Environment variables have no default tags so
// that unset variables keep the values from the file.
type Config struct {
	Backend    string `toml:"backend" envconfig:"BACKEND"`
	Krak2Path  string `toml:"krak2_path" envconfig:"KRAK2_PATH"`
	WasmModule string `toml:"wasm_module" envconfig:"WASM_MODULE"`

	// Boundary sizing, in bytes
	InputCeiling    uint32 `toml:"input_ceiling" envconfig:"INPUT_CEILING"`
	ResponseCeiling uint32 `toml:"response_ceiling" envconfig:"RESPONSE_CEILING"`
	ArenaSize       uint32 `toml:"arena_size" envconfig:"ARENA_SIZE"`

	// wazero, in 64 KiB pages
	RegionPages      uint32 `toml:"region_pages" envconfig:"REGION_PAGES"`
	MemoryLimitPages uint32 `toml:"memory_limit_pages" envconfig:"MEMORY_LIMIT_PAGES"`

	NATSURL        string        `toml:"nats_url" envconfig:"NATS_URL"`
	SubjectPrefix  string        `toml:"subject_prefix" envconfig:"SUBJECT_PREFIX"`
	RequestTimeout time.Duration `toml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	LogLevel  string `toml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" envconfig:"LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend:         BackendExec,
		Krak2Path:       toolchain.DefaultBinary,
		InputCeiling:    protocol.DefaultInputCeiling,
		ResponseCeiling: protocol.DefaultResponseCeiling,
		ArenaSize:       4 << 20,
		RegionPages:     host.DefaultRegionPages,
		NATSURL:         "nats://127.0.0.1:4222",
		SubjectPrefix:   service.DefaultPrefix,
		RequestTimeout:  service.DefaultTimeout,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Load builds the configuration. path may be empty, in which case
// KRAKATAU_CONFIG is consulted; a missing file is an error only when a path
// was named.
func Load(path string) (*Config, error) {
	c := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "read "+path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
				Path(path).
				Detail("unknown keys: %s", strings.Join(keys, ", ")).
				Build()
		}
	}

	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "environment")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(field).
			Detail(format, args...).
			Build()
	}

	switch c.Backend {
	case BackendExec:
		if c.Krak2Path == "" {
			return invalid("krak2_path", "required for the %s backend", c.Backend)
		}
	case BackendWasm:
		if c.WasmModule == "" {
			return invalid("wasm_module", "required for the %s backend", c.Backend)
		}
	case BackendNATS:
		if c.NATSURL == "" {
			return invalid("nats_url", "required for the %s backend", c.Backend)
		}
	default:
		return invalid("backend", "unknown backend %q (want %s, %s or %s)", c.Backend, BackendExec, BackendWasm, BackendNATS)
	}

	if c.InputCeiling == 0 {
		return invalid("input_ceiling", "must be positive")
	}
	if c.ResponseCeiling == 0 {
		return invalid("response_ceiling", "must be positive")
	}
	if c.ResponseCeiling < c.InputCeiling {
		return invalid("response_ceiling", "%d is smaller than input_ceiling %d", c.ResponseCeiling, c.InputCeiling)
	}
	if c.ResponseCeiling > 1<<31-1 {
		return invalid("response_ceiling", "%d does not fit a status code", c.ResponseCeiling)
	}

	need := uint64(c.InputCeiling) + uint64(c.ResponseCeiling)
	if uint64(c.ArenaSize) < need {
		return invalid("arena_size", "%d cannot hold both ceilings (%d bytes)", c.ArenaSize, need)
	}
	if uint64(c.RegionPages)*memory.PageSize < need {
		return invalid("region_pages", "%d pages cannot hold both ceilings (%d bytes)", c.RegionPages, need)
	}
	if c.MemoryLimitPages > 65536 {
		return invalid("memory_limit_pages", "%d exceeds 65536", c.MemoryLimitPages)
	}

	if c.SubjectPrefix == "" {
		return invalid("subject_prefix", "must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return invalid("request_timeout", "must be positive")
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "%v", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return invalid("log_format", "unknown format %q (want console or json)", c.LogFormat)
	}
	return nil
}

// Limits returns the boundary ceilings.
func (c *Config) Limits() protocol.Limits {
	return protocol.Limits{InputCeiling: c.InputCeiling, ResponseCeiling: c.ResponseCeiling}
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("%+v", *c)
	}
	return b.String()
}
