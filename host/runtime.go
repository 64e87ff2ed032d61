package host

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/errors"
)

const wasiModuleName = "wasi_snapshot_preview1"

// Config holds configuration for runtime creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Stdout and Stderr receive guest output written through WASI. nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// Stdin feeds command modules. nil reads as EOF.
	Stdin io.Reader
}

// Runtime wraps a wazero runtime used to host boundary guests.
type Runtime struct {
	runtime      wazero.Runtime
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// NewRuntime creates a runtime. cfg may be nil.
func NewRuntime(ctx context.Context, cfg *Config) *Runtime {
	runtimeCfg := wazero.NewRuntimeConfig()
	r := &Runtime{stdout: io.Discard, stderr: io.Discard}

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Stdout != nil {
			r.stdout = cfg.Stdout
		}
		if cfg.Stderr != nil {
			r.stderr = cfg.Stderr
		}
		r.stdin = cfg.Stdin
	}

	r.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return r
}

// Wazero returns the underlying runtime.
func (r *Runtime) Wazero() wazero.Runtime {
	return r.runtime
}

// Close releases the runtime and every module instantiated in it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// InitWASI instantiates WASI preview1 once for this runtime.
// Safe for concurrent calls.
func (r *Runtime) InitWASI(ctx context.Context) error {
	if r.wasiInitDone.Load() {
		return nil
	}

	r.wasiInitMu.Lock()
	defer r.wasiInitMu.Unlock()

	if r.wasiInitDone.Load() {
		return nil
	}

	if r.runtime.Module(wasiModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			if r.runtime.Module(wasiModuleName) == nil {
				return errors.Instantiation(err)
			}
		}
	}

	r.wasiInitDone.Store(true)
	return nil
}

// Instantiate compiles and instantiates a core module under name. Reactor
// modules have their _initialize export run before the module is returned.
func (r *Runtime) Instantiate(ctx context.Context, wasm []byte, name string) (api.Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	if importsWASI(compiled) {
		if err := r.InitWASI(ctx); err != nil {
			return nil, err
		}
	}

	modConfig := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions().
		WithStdout(r.stdout).
		WithStderr(r.stderr)

	mod, err := r.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, errors.Instantiation(err)
		}
	}

	Logger().Debug("module instantiated",
		zap.String("name", name),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return mod, nil
}

// RunCommand instantiates a command module under name, runs its _start
// export with args and returns the exit code. A guest that returns from
// _start without calling proc_exit exits with 0; a trap is an error.
func (r *Runtime) RunCommand(ctx context.Context, wasm []byte, name string, args []string) (uint32, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return 0, errors.Load("compile module", err)
	}
	defer compiled.Close(ctx)

	if importsWASI(compiled) {
		if err := r.InitWASI(ctx); err != nil {
			return 0, err
		}
	}

	modConfig := wazero.NewModuleConfig().
		WithName(name).
		WithArgs(append([]string{name}, args...)...).
		WithStdout(r.stdout).
		WithStderr(r.stderr)
	if r.stdin != nil {
		modConfig = modConfig.WithStdin(r.stdin)
	}

	Logger().Debug("running command module", zap.String("name", name), zap.Strings("args", args))
	mod, err := r.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		var exit *sys.ExitError
		if stderrors.As(err, &exit) {
			return exit.ExitCode(), nil
		}
		return 0, errors.Instantiation(err)
	}
	return 0, mod.Close(ctx)
}

func importsWASI(compiled wazero.CompiledModule) bool {
	for _, def := range compiled.ImportedFunctions() {
		if moduleName, _, ok := def.Import(); ok && moduleName == wasiModuleName {
			return true
		}
	}
	return false
}
