package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/krakatau-bridge/host"
	"github.com/wippyai/krakatau-bridge/internal/config"
	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/protocol"
	"github.com/wippyai/krakatau-bridge/service"
	"github.com/wippyai/krakatau-bridge/toolchain"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func installLogger(l *zap.Logger) {
	memory.SetLogger(l)
	toolchain.SetLogger(l)
	protocol.SetLogger(l)
	host.SetLogger(l)
	service.SetLogger(l)
}
