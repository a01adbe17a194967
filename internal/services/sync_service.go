package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
	"lifedash/internal/providers"
)

// Fetcher pulls provider data for a user.
type Fetcher interface {
	Names() []string
	Fetch(ctx context.Context, userID, provider string) (providers.Batch, error)
	Connections(ctx context.Context, userID string) (map[string]bool, error)
}

// RunStore keeps the history of provider syncs.
type RunStore interface {
	RecordSyncRun(ctx context.Context, run core.SyncRun) (int64, error)
	ListSyncRuns(ctx context.Context, userID string, limit int) ([]core.SyncRun, error)
}

// SyncConfig holds the tuning of the sync service.
type SyncConfig struct {
	// Concurrency bounds how many providers sync at once (default: 4)
	Concurrency int

	// Retry is the backoff applied to transient provider failures
	Retry RetryOptions

	// HistoryLimit is how many runs Status reports (default: 20)
	HistoryLimit int
}

// DefaultSyncConfig returns sensible defaults
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Concurrency:  4,
		Retry:        DefaultRetryOptions(),
		HistoryLimit: 20,
	}
}

// ServiceResult is the outcome of syncing one provider.
type ServiceResult struct {
	Success  bool        `json:"success"`
	Records  int         `json:"records"`
	Attempts int         `json:"attempts"`
	Applied  ApplyResult `json:"applied"`
	Error    string      `json:"error,omitempty"`
	Duration string      `json:"duration"`

	err error
}

// Err returns the failure behind an unsuccessful result.
func (r ServiceResult) Err() error { return r.err }

// SyncReport aggregates the results of a sync request.
type SyncReport struct {
	UserID  string                   `json:"user_id"`
	Results map[string]ServiceResult `json:"results"`
	Summary string                   `json:"summary"`
}

// Succeeded counts the providers that synced.
func (r SyncReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// FirstError returns the failure of the alphabetically first failed provider.
func (r SyncReport) FirstError() error {
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := r.Results[name].err; err != nil {
			return err
		}
	}
	return nil
}

// SyncStatus describes which providers a user connected and how recent syncs went.
type SyncStatus struct {
	UserID      string          `json:"user_id"`
	Connections map[string]bool `json:"connections"`
	Runs        []core.SyncRun  `json:"runs"`
}

// SyncService fetches provider data and feeds it to the ingest pipeline.
type SyncService struct {
	fetcher Fetcher
	ingest  *IngestService
	runs    RunStore
	config  SyncConfig
	logger  *applog.Logger
	now     func() time.Time

	inflight singleflight.Group
}

func NewSyncService(fetcher Fetcher, ingest *IngestService, runs RunStore, config SyncConfig, logger *applog.Logger) *SyncService {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 20
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &SyncService{
		fetcher: fetcher,
		ingest:  ingest,
		runs:    runs,
		config:  config,
		logger:  logger.WithComponent(applog.ComponentSync),
		now:     time.Now,
	}
}

// WithClock replaces time.Now for run timestamps.
func (s *SyncService) WithClock(now func() time.Time) *SyncService {
	s.now = now
	return s
}

// Services lists the provider names that can be synced.
func (s *SyncService) Services() []string {
	return s.fetcher.Names()
}

// Sync runs the named providers for userID, all of them when services is
// empty. Provider failures are reported per service; the returned error is
// reserved for invalid requests.
func (s *SyncService) Sync(ctx context.Context, userID string, services []string) (SyncReport, error) {
	if err := requireUser(userID); err != nil {
		return SyncReport{}, err
	}
	names, err := s.Resolve(services)
	if err != nil {
		return SyncReport{}, err
	}

	results := make([]ServiceResult, len(names))
	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.syncOne(ctx, userID, name)
			return nil
		})
	}
	_ = g.Wait()

	report := SyncReport{UserID: userID, Results: make(map[string]ServiceResult, len(names))}
	for i, name := range names {
		report.Results[name] = results[i]
	}
	report.Summary = fmt.Sprintf("%d/%d services synced successfully", report.Succeeded(), len(names))

	s.logger.InfoContext(ctx, "Sync finished",
		applog.FieldUserID, userID, applog.FieldOperation, applog.OpSync, "summary", report.Summary)
	return report, nil
}

// SyncConnected syncs only the providers userID has connected.
func (s *SyncService) SyncConnected(ctx context.Context, userID string) (SyncReport, error) {
	if err := requireUser(userID); err != nil {
		return SyncReport{}, err
	}
	conns, err := s.fetcher.Connections(ctx, userID)
	if err != nil {
		return SyncReport{}, err
	}
	var names []string
	for _, name := range s.fetcher.Names() {
		if conns[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return SyncReport{UserID: userID, Results: map[string]ServiceResult{}, Summary: "0/0 services synced successfully"}, nil
	}
	return s.Sync(ctx, userID, names)
}

// Status reports provider connections and recent sync runs of userID.
func (s *SyncService) Status(ctx context.Context, userID string) (SyncStatus, error) {
	if err := requireUser(userID); err != nil {
		return SyncStatus{}, err
	}
	conns, err := s.fetcher.Connections(ctx, userID)
	if err != nil {
		return SyncStatus{}, err
	}
	runs, err := s.runs.ListSyncRuns(ctx, userID, s.config.HistoryLimit)
	if err != nil {
		return SyncStatus{}, err
	}
	if runs == nil {
		runs = []core.SyncRun{}
	}
	return SyncStatus{UserID: userID, Connections: conns, Runs: runs}, nil
}

// Resolve normalizes requested service names: lowercased, deduplicated and
// checked against the registered providers. No names means all of them.
func (s *SyncService) Resolve(services []string) ([]string, error) {
	known := s.fetcher.Names()
	if len(services) == 0 {
		return known, nil
	}

	var names []string
	for _, raw := range services {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || slices.Contains(names, name) {
			continue
		}
		if !slices.Contains(known, name) {
			return nil, core.NewValidationError("service", fmt.Sprintf("unknown service %q", raw))
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return known, nil
	}
	return names, nil
}

// syncOne collapses concurrent syncs of the same user and provider into one.
func (s *SyncService) syncOne(ctx context.Context, userID, provider string) ServiceResult {
	v, _, shared := s.inflight.Do(userID+"/"+provider, func() (any, error) {
		return s.run(ctx, userID, provider), nil
	})
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight sync", applog.FieldUserID, userID, applog.FieldProvider, provider)
	}
	return v.(ServiceResult)
}

func (s *SyncService) run(ctx context.Context, userID, provider string) ServiceResult {
	started := s.now()
	logger := s.logger.With(applog.FieldUserID, userID, applog.FieldProvider, provider)

	var batch providers.Batch
	attempts, err := withRetry(ctx, logger, s.config.Retry, func() error {
		var fetchErr error
		batch, fetchErr = s.fetcher.Fetch(ctx, userID, provider)
		return fetchErr
	})

	var res ServiceResult
	res.Attempts = attempts
	if err == nil {
		res.Applied, err = s.ingest.ApplyBatch(ctx, batch)
	}
	finished := s.now()
	res.Duration = finished.Sub(started).String()

	run := core.SyncRun{
		UserID:     userID,
		Provider:   provider,
		Status:     core.SyncStatusSuccess,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		res.err = err
		res.Error = err.Error()
		run.Status = core.SyncStatusFailed
		run.Error = err.Error()

		errType := applog.ErrorTypeUpstream
		switch {
		case errors.Is(err, providers.ErrNotConnected):
			errType = applog.ErrorTypeAuth
		case core.IsStorage(err):
			errType = applog.ErrorTypeDatabase
		}
		logger.WarnContext(ctx, "Provider sync failed",
			applog.FieldAttempt, attempts, applog.FieldErrorType, errType, applog.FieldError, err)
	} else {
		res.Success = true
		res.Records = res.Applied.Records()
		run.Records = res.Records
		logger.InfoContext(ctx, "Provider synced", applog.FieldRecords, res.Records, applog.FieldAttempt, attempts)
	}

	// Recorded on a detached context so a cancelled request still leaves a trace.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, recErr := s.runs.RecordSyncRun(recordCtx, run); recErr != nil {
		logger.ErrorContext(ctx, "Failed to record sync run", applog.FieldError, recErr)
	}
	return res
}
