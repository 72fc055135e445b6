package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gagyebu/internal/auth"
	"gagyebu/internal/cache"
	"gagyebu/internal/cli"
	apphttp "gagyebu/internal/http"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	m := metrics.New()
	stack, err := cli.BuildStack(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("Failed to initialize backend",
			applog.FieldError, err.Error(),
			"backend", cfg.DataBackend)
		os.Exit(1)
	}

	caches := cache.NewManager(logger)
	caches.Register(stack.Household.StateCache())
	caches.StartCleanup(time.Minute)

	refresher := worker.NewRefresher(stack.Brokers, worker.RefresherConfig{
		Interval: cfg.BrokerRefreshInterval,
		Window:   cfg.BrokerActiveWindow,
	}, logger)
	if err := refresher.Start(ctx); err != nil {
		logger.Error("Failed to start broker refresher", applog.FieldError, err.Error())
		os.Exit(1)
	}

	accounts := auth.NewPasswordAuthenticator(stack.Backend.Repo.Accounts())
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Repo:               stack.Backend.Repo,
		Household:          stack.Household,
		Invitations:        stack.Invitations,
		Brokers:            stack.Brokers,
		Accounts:           accounts,
		JWT:                auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting gagyebu server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp_enabled", stack.Backend.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
			exitCode = 1
		}
	}

	cli.Shutdown(logger, 30*time.Second,
		cli.Step{Name: "http server", Run: srv.Shutdown},
		cli.Step{Name: "broker refresher", Run: refresher.Stop},
		cli.Step{Name: "cache cleanup", Run: func(ctx context.Context) error { caches.Stop(); return nil }},
		cli.Step{Name: "backend", Run: stack.Close},
	)
	os.Exit(exitCode)
}
