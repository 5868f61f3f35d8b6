package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wirecast/pkg/config"
	"wirecast/pkg/netstack"
	"wirecast/pkg/observability"
	"wirecast/pkg/relay"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("wirecast-relay started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := relay.NewRegistry()
	fan := relay.NewFanout(reg)

	stop, err := netstack.StartFromConfig(ctx, cfg, reg, fan)
	if err != nil {
		zap.L().Error("failed to start listeners", zap.Error(err))
		return 1
	}
	defer stop()

	zap.L().Info("relay is running; press Ctrl+C to exit")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	zap.L().Info("shutting down", zap.String("signal", s.String()))
	return 0
}
