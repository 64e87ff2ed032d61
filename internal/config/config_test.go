package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	bridgeerrors "github.com/wippyai/krakatau-bridge/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "krakatau.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
backend = "wasm"
wasm_module = "krakatau.wasm"
input_ceiling = 32768
request_timeout = "5s"
log_level = "debug"
`)
	t.Setenv("KRAKATAU_INPUT_CEILING", "16384")
	t.Setenv("KRAKATAU_SUBJECT_PREFIX", "jvm.tools")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file overrides default", c.Backend, BackendWasm},
		{"file value kept", c.WasmModule, "krakatau.wasm"},
		{"env overrides file", c.InputCeiling, uint32(16384)},
		{"env overrides default", c.SubjectPrefix, "jvm.tools"},
		{"duration from file", c.RequestTimeout, 5 * time.Second},
		{"default kept", c.ResponseCeiling, uint32(512 << 10)},
		{"log level", c.LogLevel, "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_PathFromEnvironment(t *testing.T) {
	path := writeConfig(t, `krak2_path = "/opt/krakatau/bin/krak2"`)
	t.Setenv(PathEnv, path)

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Krak2Path != "/opt/krakatau/bin/krak2" {
		t.Errorf("Krak2Path = %q", c.Krak2Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		kind bridgeerrors.Kind
	}{
		{name: "unknown key", body: `backend = "exec"` + "\n" + `colour = "red"`, kind: bridgeerrors.KindInvalidData},
		{name: "malformed toml", body: `backend = `, kind: bridgeerrors.KindInvalidData},
		{name: "bad env value", env: map[string]string{"KRAKATAU_ARENA_SIZE": "lots"}, kind: bridgeerrors.KindInvalidData},
		{name: "invalid result", body: `backend = "jit"`, kind: bridgeerrors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			var e *bridgeerrors.Error
			if !errors.As(err, &e) || e.Kind != tt.kind || e.Phase != bridgeerrors.PhaseConfig {
				t.Errorf("err = %v, want config %s", err, tt.kind)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing explicit file accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "jit" }, "backend"},
		{"exec without binary", func(c *Config) { c.Krak2Path = "" }, "krak2_path"},
		{"wasm without module", func(c *Config) { c.Backend = BackendWasm }, "wasm_module"},
		{"nats without url", func(c *Config) { c.Backend = BackendNATS; c.NATSURL = "" }, "nats_url"},
		{"zero input ceiling", func(c *Config) { c.InputCeiling = 0 }, "input_ceiling"},
		{"zero response ceiling", func(c *Config) { c.ResponseCeiling = 0 }, "response_ceiling"},
		{"response below input", func(c *Config) { c.ResponseCeiling = c.InputCeiling - 1 }, "response_ceiling"},
		{"response beyond status range", func(c *Config) { c.ResponseCeiling = 1 << 31; c.ArenaSize = 1<<32 - 1 }, "response_ceiling"},
		{"arena too small", func(c *Config) { c.ArenaSize = c.ResponseCeiling }, "arena_size"},
		{"region too small", func(c *Config) { c.RegionPages = 8 }, "region_pages"},
		{"memory limit too large", func(c *Config) { c.MemoryLimitPages = 65537 }, "memory_limit_pages"},
		{"empty prefix", func(c *Config) { c.SubjectPrefix = "" }, "subject_prefix"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			var e *bridgeerrors.Error
			if !errors.As(err, &e) {
				t.Fatalf("err = %v, want *errors.Error", err)
			}
			if len(e.Path) == 0 || e.Path[0] != tt.field {
				t.Errorf("path = %v, want %s", e.Path, tt.field)
			}
		})
	}

	c := Default()
	c.Backend = BackendNATS
	if err := c.Validate(); err != nil {
		t.Errorf("nats backend with default url rejected: %v", err)
	}
}

func TestLimits(t *testing.T) {
	c := Default()
	c.InputCeiling = 100
	c.ResponseCeiling = 200
	l := c.Limits()
	if l.InputCeiling != 100 || l.ResponseCeiling != 200 {
		t.Errorf("Limits() = %+v", l)
	}
}
