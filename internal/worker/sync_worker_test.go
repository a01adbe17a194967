package worker

import (
	"context"
	"errors"
	"testing"

	"lifedash/internal/amqp"
	"lifedash/internal/core"
	"lifedash/internal/services"
)

type stubSyncer struct {
	report services.SyncReport
	err    error
	gotIDs []string
}

func (s *stubSyncer) Sync(_ context.Context, userID string, svcs []string) (services.SyncReport, error) {
	s.gotIDs = append(s.gotIDs, userID)
	return s.report, s.err
}

func TestSyncWorker_HandleSyncRequest(t *testing.T) {
	msg := amqp.NewSyncRequestMessage("user-1", []string{"dexcom"})

	t.Run("provider failures are not redelivered", func(t *testing.T) {
		syncer := &stubSyncer{report: services.SyncReport{
			Results: map[string]services.ServiceResult{"dexcom": {Success: false, Error: "503"}},
			Summary: "0/1 services synced successfully",
		}}
		w := NewSyncWorker(syncer, nil)

		if err := w.HandleSyncRequest(context.Background(), msg); err != nil {
			t.Fatalf("HandleSyncRequest() error = %v", err)
		}
		if len(syncer.gotIDs) != 1 || syncer.gotIDs[0] != "user-1" {
			t.Errorf("syncer called with %v", syncer.gotIDs)
		}
	})

	t.Run("invalid request is returned", func(t *testing.T) {
		w := NewSyncWorker(&stubSyncer{err: core.NewValidationError("service", "unknown")}, nil)

		err := w.HandleSyncRequest(context.Background(), msg)
		if !core.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("storage error is returned", func(t *testing.T) {
		w := NewSyncWorker(&stubSyncer{err: core.NewStorageError("list", errors.New("locked"))}, nil)

		if err := w.HandleSyncRequest(context.Background(), msg); !core.IsStorage(err) {
			t.Errorf("expected storage error, got %v", err)
		}
	})
}
