package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wippyai/krakatau-bridge/host"
	"github.com/wippyai/krakatau-bridge/internal/config"
	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/protocol"
	"github.com/wippyai/krakatau-bridge/service"
	"github.com/wippyai/krakatau-bridge/toolchain"
)

// openBackend builds the exchanger selected by cfg. The returned function
// releases it.
func openBackend(ctx context.Context, cfg *config.Config) (service.Exchanger, func(), error) {
	switch cfg.Backend {
	case config.BackendExec:
		arena := memory.NewArena(memory.DefaultArenaBase, cfg.ArenaSize)
		b := protocol.NewBoundary(arena, memory.NewAllocator(arena.Region()),
			toolchain.NewExec(cfg.Krak2Path), protocol.WithLimits(cfg.Limits()))
		return b, func() {}, nil

	case config.BackendWasm:
		client, closeClient, err := openClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, closeClient, nil

	case config.BackendNATS:
		nc, err := service.Connect(cfg.NATSURL, "krakatau-cli")
		if err != nil {
			return nil, nil, err
		}
		return timeoutExchanger{service.NewRemote(nc, cfg.SubjectPrefix), cfg}, nc.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openToolchain returns the toolchain that serves guests run by the CLI.
// Only local backends can be used.
func openToolchain(ctx context.Context, cfg *config.Config) (toolchain.Toolchain, func(), error) {
	switch cfg.Backend {
	case config.BackendExec:
		return toolchain.NewExec(cfg.Krak2Path), func() {}, nil
	case config.BackendWasm:
		client, closeClient, err := openClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return client.Toolchain(), closeClient, nil
	}
	return nil, nil, fmt.Errorf("backend %q cannot serve guests", cfg.Backend)
}

func openClient(ctx context.Context, cfg *config.Config) (*host.Client, func(), error) {
	wasm, err := os.ReadFile(cfg.WasmModule)
	if err != nil {
		return nil, nil, fmt.Errorf("read wasm module: %w", err)
	}
	rt := host.NewRuntime(ctx, &host.Config{MemoryLimitPages: cfg.MemoryLimitPages, Stderr: os.Stderr})
	mod, err := rt.Instantiate(ctx, wasm, "krakatau-guest")
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, fmt.Errorf("instantiate %s: %w", cfg.WasmModule, err)
	}
	client, err := host.NewClient(mod)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, fmt.Errorf("bind %s: %w", cfg.WasmModule, err)
	}
	return client, func() { _ = rt.Close(context.Background()) }, nil
}

// timeoutExchanger bounds each remote exchange by the request timeout.
type timeoutExchanger struct {
	ex  service.Exchanger
	cfg *config.Config
}

func (t timeoutExchanger) Exchange(ctx context.Context, op protocol.Op, req []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()
	return t.ex.Exchange(ctx, op, req)
}
