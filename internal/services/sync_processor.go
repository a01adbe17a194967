package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "lifedash/internal/log"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often every connected user is synced (default: 1h)
	PollInterval time.Duration

	// CleanupInterval is how often old sync runs are pruned (default: 24h)
	CleanupInterval time.Duration

	// RetentionAge is how long sync runs are kept (default: 30 days)
	RetentionAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    time.Hour,
		CleanupInterval: 24 * time.Hour,
		RetentionAge:    30 * 24 * time.Hour,
	}
}

// UserSource lists the users with at least one connected provider and
// prunes the sync history.
type UserSource interface {
	ListConnectedUsers(ctx context.Context) ([]string, error)
	PruneSyncRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserSyncer syncs the connected providers of one user.
type UserSyncer interface {
	SyncConnected(ctx context.Context, userID string) (SyncReport, error)
}

// SyncProcessor periodically syncs all connected users
type SyncProcessor struct {
	users  UserSource
	syncer UserSyncer
	config SyncProcessorConfig
	logger *applog.Logger
	now    func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(users UserSource, syncer UserSyncer, config SyncProcessorConfig, logger *applog.Logger) *SyncProcessor {
	defaults := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.RetentionAge <= 0 {
		config.RetentionAge = defaults.RetentionAge
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &SyncProcessor{
		users:  users,
		syncer: syncer,
		config: config,
		logger: logger.WithComponent(applog.ComponentSync),
		now:    time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"retention", p.config.RetentionAge)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Sync immediately on startup
	p.SyncAll(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.SyncAll(ctx)
		case <-cleanupTicker.C:
			p.cleanup(ctx)
		}
	}
}

// SyncAll syncs every connected user once and returns how many users were
// fully synced.
func (p *SyncProcessor) SyncAll(ctx context.Context) int {
	users, err := p.users.ListConnectedUsers(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list connected users", applog.FieldError, err)
		return 0
	}
	if len(users) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Syncing connected users", "count", len(users))

	complete := 0
	for _, userID := range users {
		select {
		case <-p.stopCh:
			return complete
		case <-ctx.Done():
			return complete
		default:
		}

		report, err := p.syncer.SyncConnected(ctx, userID)
		if err != nil {
			p.logger.ErrorContext(ctx, "Scheduled sync rejected", applog.FieldUserID, userID, applog.FieldError, err)
			continue
		}
		if report.Succeeded() == len(report.Results) {
			complete++
		}
		p.logger.InfoContext(ctx, "Scheduled sync finished", applog.FieldUserID, userID, "summary", report.Summary)
	}
	return complete
}

func (p *SyncProcessor) cleanup(ctx context.Context) {
	cutoff := p.now().Add(-p.config.RetentionAge)
	n, err := p.users.PruneSyncRuns(ctx, cutoff)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to prune sync runs", applog.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Pruned sync runs", "count", n)
	}
}
