package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/host"
	"github.com/wippyai/krakatau-bridge/internal/config"
)

// guestIO is the standard streams handed to command modules.
type guestIO struct {
	stdin          io.Reader
	stdout, stderr io.Writer
}

// runGuest runs a command module whose "krakatau" imports are served by the
// configured toolchain and returns its exit code.
func runGuest(ctx context.Context, cfg *config.Config, path string, args []string, stdio guestIO) (int, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return 1, fmt.Errorf("read guest: %w", err)
	}

	tc, closeToolchain, err := openToolchain(ctx, cfg)
	if err != nil {
		return 1, err
	}
	defer closeToolchain()

	rt := host.NewRuntime(ctx, &host.Config{
		MemoryLimitPages: cfg.MemoryLimitPages,
		Stdin:            stdio.stdin,
		Stdout:           stdio.stdout,
		Stderr:           stdio.stderr,
	})
	defer rt.Close(context.Background())

	p := host.NewProvider(tc, host.WithLimits(cfg.Limits()), host.WithRegionPages(cfg.RegionPages))
	if _, err := p.Register(ctx, rt.Wazero()); err != nil {
		return 1, err
	}

	name := filepath.Base(path)
	code, err := rt.RunCommand(ctx, wasm, name, args)
	if err != nil {
		return 1, fmt.Errorf("run %s: %w", name, err)
	}
	host.Logger().Debug("guest exited", zap.String("name", name), zap.Uint32("code", code))
	return int(code), nil
}
