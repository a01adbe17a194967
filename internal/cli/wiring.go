package cli

import (
	"lifedash/internal/amqp"
	"lifedash/internal/config"
	applog "lifedash/internal/log"
	"lifedash/internal/providers"
	"lifedash/internal/services"
	"lifedash/internal/storage"
)

// Services bundles the application services every binary builds on top of
// the repository.
type Services struct {
	Registry *providers.Registry
	Ingest   *services.IngestService
	Sync     *services.SyncService
}

// NewProviderRegistry registers the four providers with repo as token store.
// Providers without client credentials stay registered so that their names
// resolve, but their consent and fetch calls fail upstream.
func NewProviderRegistry(cfg *config.Config, repo *storage.SQLiteRepository, logger *applog.Logger) *providers.Registry {
	enabled := cfg.EnabledProviders()
	if len(enabled) < 4 {
		logger.Warn("Some providers have no client credentials", "enabled", enabled)
	}
	return providers.NewRegistry(repo, cfg.ProviderTimeout, logger,
		providers.NewGoogleFit(cfg.Providers[config.ServiceGoogleFit]),
		providers.NewDexcom(cfg.Providers[config.ServiceDexcom]),
		providers.NewCapitalOne(cfg.Providers[config.ServiceCapitalOne]),
		providers.NewQuickBooks(cfg.Providers[config.ServiceQuickBooks]),
	)
}

// SyncConfig maps the configuration onto the sync service tuning.
func SyncConfig(cfg *config.Config) services.SyncConfig {
	sc := services.DefaultSyncConfig()
	sc.Concurrency = cfg.SyncConcurrency
	sc.Retry.MaxAttempts = cfg.SyncMaxRetries + 1
	return sc
}

// NewServices wires the provider registry and the ingest and sync services.
func NewServices(cfg *config.Config, repo *storage.SQLiteRepository, logger *applog.Logger) *Services {
	registry := NewProviderRegistry(cfg, repo, logger)
	ingest := services.NewIngestService(repo, logger)
	return &Services{
		Registry: registry,
		Ingest:   ingest,
		Sync:     services.NewSyncService(registry, ingest, repo, SyncConfig(cfg), logger),
	}
}

// OpenQueue connects to the broker when AMQP_URL is set. A nil client means
// queued syncs are disabled.
func OpenQueue(cfg *config.Config, logger *applog.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - sync requests run inline")
		return nil, nil
	}
	return amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
}
