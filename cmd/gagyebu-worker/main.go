package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/backend"
	"gagyebu/internal/cli"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting gagyebu-worker")
	cfg := cli.LoadWorkerConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	m := metrics.New()
	stack, err := cli.BuildStack(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err.Error())
		os.Exit(1)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to initialize summary writer", applog.FieldError, err.Error())
		os.Exit(1)
	}
	writer, err := backend.NewFactory(logger, m).CreateSummaryWriter(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize summary writer", applog.FieldError, err.Error())
		os.Exit(1)
	}

	exporter := worker.NewExporter(stack.Backend.Repo.Users(), stack.Household, writer, m, logger,
		worker.ExporterConfig{Interval: cfg.ExportInterval})

	// Rows missed while the worker was down are rewritten for the current
	// month on startup.
	if n, err := exporter.ExportMonth(ctx, core.MonthOf(time.Now())); err != nil {
		logger.Error("Startup export failed", applog.FieldError, err.Error(), "written", n)
	} else {
		logger.Info("Startup export complete", "written", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return exporter.Run(gctx) })
	if stack.Backend.Publisher != nil {
		g.Go(func() error {
			err := stack.Backend.Publisher.Consume(gctx, exporter.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, exporting on the flush interval only")
	}

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err.Error())
		exitCode = 1
	}
	cli.Shutdown(logger, 10*time.Second, cli.Step{Name: "backend", Run: stack.Close})
	os.Exit(exitCode)
}
