// Package cli provides the initialization steps shared by the commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gagyebu/internal/config"
	applog "gagyebu/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the server configuration and exits the
// process when it is invalid.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	return loadConfig(logger, (*config.Config).Validate)
}

// LoadWorkerConfig is LoadAndValidateConfig for processes that never issue
// session tokens.
func LoadWorkerConfig(logger *applog.Logger) *config.Config {
	return loadConfig(logger, (*config.Config).ValidateWorker)
}

func loadConfig(logger *applog.Logger, validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}

// Step is one named shutdown action.
type Step struct {
	Name string
	Run  func(context.Context) error
}

// Shutdown runs steps in order under a shared deadline and logs failures.
func Shutdown(logger *applog.Logger, timeout time.Duration, steps ...Step) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, step := range steps {
		if step.Run == nil {
			continue
		}
		if err := step.Run(ctx); err != nil {
			logger.ErrorContext(ctx, "Shutdown step failed", "step", step.Name, applog.FieldError, err.Error())
		}
	}
	logger.Info("Shutdown complete")
}
