package worker

import (
	"context"
	"fmt"
	"time"

	"lifedash/internal/amqp"
	"lifedash/internal/core"
	applog "lifedash/internal/log"
	"lifedash/internal/services"
)

// Syncer runs provider syncs for a user.
type Syncer interface {
	Sync(ctx context.Context, userID string, names []string) (services.SyncReport, error)
}

// SyncWorker handles sync requests queued by the API
type SyncWorker struct {
	syncer Syncer
	logger *applog.Logger
}

func NewSyncWorker(syncer Syncer, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &SyncWorker{
		syncer: syncer,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleSyncRequest runs the requested sync. Upstream failures were already
// retried by the sync service and are only reported; a storage failure is
// returned so the message can be redelivered.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	w.logger.InfoContext(ctx, "Processing sync request",
		applog.FieldMessageID, msg.ID,
		applog.FieldUserID, msg.UserID,
		"services", msg.Services,
		"queued_ms", time.Since(msg.RequestedAt).Milliseconds())

	report, err := w.syncer.Sync(ctx, msg.UserID, msg.Services)
	if err != nil {
		return fmt.Errorf("sync request %s: %w", msg.ID, err)
	}

	for service, res := range report.Results {
		if core.IsStorage(res.Err()) {
			return fmt.Errorf("sync %s for %s: %w", service, msg.UserID, res.Err())
		}
	}

	w.logger.InfoContext(ctx, "Sync request completed",
		applog.FieldMessageID, msg.ID,
		applog.FieldUserID, msg.UserID,
		"summary", report.Summary)
	return nil
}
