package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"lifedash/internal/cli"
	"lifedash/internal/config"
	apphttp "lifedash/internal/http"
	applog "lifedash/internal/log"
	"lifedash/internal/providers"
)

func main() {
	cfg := cli.MustLoadConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	repo := cli.MustOpenStorage(logger, cfg)
	svc := cli.NewServices(cfg, repo, logger)
	states := providers.NewStateManager(cfg.StateSecret, providers.DefaultStateTTL)

	deps := apphttp.Deps{
		Ingest:             svc.Ingest,
		Sync:               svc.Sync,
		Reader:             repo,
		Connector:          svc.Registry,
		States:             states,
		APIKey:             cfg.APISecretKey,
		DashboardURL:       cfg.DashboardURL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}

	queue, err := cli.OpenQueue(cfg, logger)
	if err != nil {
		// The API still works without the broker; queued syncs answer 503.
		logger.Warn("Failed to connect to AMQP, sync requests run inline only", applog.FieldError, err)
	} else if queue != nil {
		deps.Publisher = queue
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if queue != nil {
			if err := queue.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", applog.FieldError, err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Warn("Failed to close database", applog.FieldError, err)
		}
	})

	logger.Info("Starting lifedash server",
		"port", cfg.Port,
		"providers", cfg.EnabledProviders(),
		"queue", queue != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
