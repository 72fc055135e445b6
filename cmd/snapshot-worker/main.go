package main

import (
	"context"
	"os"
	"time"

	"gagyebu/internal/cli"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting snapshot-worker")
	cfg := cli.LoadWorkerConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	stack, err := cli.BuildStack(ctx, cfg, logger, metrics.New())
	if err != nil {
		logger.Error("Failed to initialize backend",
			applog.FieldError, err.Error(),
			"sqlite_db", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	logger.Info("Daily snapshots configured", "hour", cfg.SnapshotHour)

	daily := worker.NewDaily("investment-snapshots", cfg.SnapshotHour, func(ctx context.Context) error {
		saved, err := stack.Brokers.SnapshotAll(ctx)
		logger.InfoContext(ctx, "Snapshot pass finished", "saved", saved)
		return err
	}, logger)
	_ = daily.Run(ctx)

	cli.Shutdown(logger, 10*time.Second, cli.Step{Name: "backend", Run: stack.Close})
}
