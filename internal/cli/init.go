// Package cli provides the initialization steps shared by cmd/lifedash,
// cmd/lifedash-worker and cmd/lifedashctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lifedash/internal/config"
	applog "lifedash/internal/log"
	"lifedash/internal/storage"
)

// SetupLogger builds the application logger from LOG_LEVEL and LOG_FORMAT
// and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logCfg := applog.DefaultConfig()
	logCfg.Component = component
	if cfg != nil {
		logCfg.Level = applog.ParseLevel(cfg.LogLevel)
		logCfg.Format = cfg.LogFormat
	}
	logger := applog.New(logCfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads the .env file and the environment, then runs validate
// (Config.Validate or Config.ValidateServer).
func LoadConfig(validate func(*config.Config) error) (*config.Config, error) {
	LoadEnvFile()
	cfg := config.Load()
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// MustLoadConfig is LoadConfig for long-running binaries: it exits the
// process on validation failure.
func MustLoadConfig(validate func(*config.Config) error) *config.Config {
	cfg, err := LoadConfig(validate)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStorage opens the SQLite repository configured by cfg.
func OpenStorage(cfg *config.Config) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, storage.WithQueryTimeout(cfg.QueryTimeout))
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", cfg.SQLiteDBPath, err)
	}
	return repo, nil
}

// MustOpenStorage exits the process when the repository cannot be opened.
func MustOpenStorage(logger *applog.Logger, cfg *config.Config) *storage.SQLiteRepository {
	repo, err := OpenStorage(cfg)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ended.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
