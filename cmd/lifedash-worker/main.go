package main

import (
	"context"
	"errors"
	"os"
	"time"

	"lifedash/internal/cli"
	"lifedash/internal/config"
	applog "lifedash/internal/log"
	"lifedash/internal/services"
	"lifedash/internal/worker"
)

func main() {
	cfg := cli.MustLoadConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting lifedash-worker")

	repo := cli.MustOpenStorage(logger, cfg)
	svc := cli.NewServices(cfg, repo, logger)

	queue, err := cli.OpenQueue(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	processorCfg := services.DefaultSyncProcessorConfig()
	processorCfg.PollInterval = cfg.SyncInterval
	processor := services.NewSyncProcessor(repo, svc.Sync, processorCfg, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Sync processor did not stop in time", applog.FieldError, err)
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

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", applog.FieldError, err)
		os.Exit(1)
	}

	if queue != nil {
		syncWorker := worker.NewSyncWorker(svc.Sync, logger)
		go func() {
			err := queue.ConsumeSyncRequests(ctx, syncWorker.HandleSyncRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - only scheduled syncs run")
	}

	logger.Info("Worker running",
		"sync_interval", cfg.SyncInterval,
		"providers", cfg.EnabledProviders())

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
