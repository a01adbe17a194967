package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
	"lifedash/internal/providers"
	"lifedash/internal/storage"
)

// IngestStore is the persistence the ingest pipeline writes to.
type IngestStore interface {
	Accumulate(ctx context.Context, userID, category string, month core.Month, delta core.Money) (core.BudgetCategory, error)
	SetTarget(ctx context.Context, userID, category string, month core.Month, target core.Money) (core.BudgetCategory, error)
	UpsertHealth(ctx context.Context, h core.HealthMetrics) (core.HealthMetrics, error)
	IngestTransaction(ctx context.Context, t core.Transaction) (storage.IngestResult, error)
	SaveHealthSync(ctx context.Context, readings []core.GlucoseReading, days []core.HealthMetrics) error
}

// ApplyResult counts what a provider batch changed.
type ApplyResult struct {
	Transactions int `json:"transactions"`
	Replaced     int `json:"replaced"`
	Skipped      int `json:"skipped"`
	HealthDays   int `json:"health_days"`
	Readings     int `json:"readings"`
	Targets      int `json:"targets"`
}

// Records is the number of stored items.
func (r ApplyResult) Records() int {
	return r.Transactions + r.HealthDays + r.Readings + r.Targets
}

// IngestService validates submissions and routes them to the recorder and
// the accumulator.
type IngestService struct {
	store  IngestStore
	logger *applog.Logger
	now    func() time.Time
}

func NewIngestService(store IngestStore, logger *applog.Logger) *IngestService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &IngestService{
		store:  store,
		logger: logger.WithComponent(applog.ComponentIngest),
		now:    time.Now,
	}
}

// WithClock replaces time.Now, which decides the day of health submissions.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

// SubmitBudget applies a budget submission: "set" overwrites the target,
// anything else adds the amount to the spend.
func (s *IngestService) SubmitBudget(ctx context.Context, userID string, sub core.BudgetSubmission) (core.BudgetCategory, error) {
	if err := requireUser(userID); err != nil {
		return core.BudgetCategory{}, err
	}
	if err := sub.Validate(); err != nil {
		return core.BudgetCategory{}, err
	}

	category := strings.TrimSpace(sub.Category)
	month := core.Month(strings.TrimSpace(sub.Month))

	var (
		b   core.BudgetCategory
		err error
		op  = applog.OpAccumulate
	)
	if sub.IsSet() {
		op = applog.OpSetTarget
		b, err = s.store.SetTarget(ctx, userID, category, month, *sub.Amount)
	} else {
		b, err = s.store.Accumulate(ctx, userID, category, month, *sub.Amount)
	}
	if err != nil {
		return core.BudgetCategory{}, err
	}

	s.logger.InfoContext(ctx, "Budget submission applied",
		applog.NewFields().
			WithUser(userID).
			WithOperation(op).
			WithBudget(category, string(month), sub.Action, sub.Amount.Cents).
			ToSlice()...)
	return b, nil
}

// SubmitHealth stores the metrics as today's (UTC) record of userID.
func (s *IngestService) SubmitHealth(ctx context.Context, userID string, h core.HealthMetrics) (core.HealthMetrics, error) {
	if err := requireUser(userID); err != nil {
		return core.HealthMetrics{}, err
	}
	h.UserID = userID
	h.Date = core.DateOf(s.now())
	if err := h.Validate(); err != nil {
		return core.HealthMetrics{}, err
	}

	stored, err := s.store.UpsertHealth(ctx, h)
	if err != nil {
		return core.HealthMetrics{}, err
	}
	s.logger.InfoContext(ctx, "Health data stored",
		applog.FieldUserID, userID, applog.FieldOperation, applog.OpHealth, "date", stored.Date.String())
	return stored, nil
}

// IngestTransaction categorizes raw, records it and accumulates it into its
// budget as one unit.
func (s *IngestService) IngestTransaction(ctx context.Context, userID string, raw core.RawTransaction) (storage.IngestResult, error) {
	if err := requireUser(userID); err != nil {
		return storage.IngestResult{}, err
	}
	tx := raw.Categorized()
	tx.UserID = userID
	if err := tx.Validate(); err != nil {
		return storage.IngestResult{}, err
	}
	return s.store.IngestTransaction(ctx, tx)
}

// ApplyBatch stores everything a provider returned. Provider records that
// fail validation are skipped and counted; a storage failure stops the batch.
// Each transaction is applied atomically on its own.
func (s *IngestService) ApplyBatch(ctx context.Context, batch providers.Batch) (ApplyResult, error) {
	res := ApplyResult{Skipped: batch.Skipped}
	if err := requireUser(batch.UserID); err != nil {
		return res, err
	}
	logger := s.logger.With(applog.FieldUserID, batch.UserID, applog.FieldProvider, batch.Provider)

	for _, raw := range batch.Transactions {
		out, err := s.IngestTransaction(ctx, batch.UserID, raw)
		if core.IsValidation(err) {
			res.Skipped++
			logger.WarnContext(ctx, "Skipping invalid provider transaction",
				applog.FieldTransactionID, raw.TransactionID, applog.FieldError, err)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("ingest %s: %w", raw.TransactionID, err)
		}
		res.Transactions++
		if out.Replaced {
			res.Replaced++
		}
	}

	for _, t := range batch.Targets {
		if _, err := s.store.SetTarget(ctx, batch.UserID, t.Category, t.Month, t.Amount); err != nil {
			if core.IsValidation(err) {
				res.Skipped++
				logger.WarnContext(ctx, "Skipping invalid provider target", applog.FieldCategory, t.Category, applog.FieldError, err)
				continue
			}
			return res, fmt.Errorf("set target %s: %w", t.Category, err)
		}
		res.Targets++
	}

	days := make([]core.HealthMetrics, 0, len(batch.Health))
	for _, h := range batch.Health {
		h.UserID = batch.UserID
		if err := h.Validate(); err != nil || h.Date.IsZero() {
			res.Skipped++
			logger.WarnContext(ctx, "Skipping invalid provider health day", "date", h.Date.String(), applog.FieldError, err)
			continue
		}
		days = append(days, h)
	}
	readings := make([]core.GlucoseReading, 0, len(batch.Glucose))
	for _, g := range batch.Glucose {
		g.UserID = batch.UserID
		if g.RecordedAt.IsZero() {
			res.Skipped++
			continue
		}
		readings = append(readings, g)
	}
	if len(days) > 0 || len(readings) > 0 {
		if err := s.store.SaveHealthSync(ctx, readings, days); err != nil {
			return res, fmt.Errorf("save health: %w", err)
		}
		res.HealthDays = len(days)
		res.Readings = len(readings)
	}

	logger.InfoContext(ctx, "Provider batch applied",
		"transactions", res.Transactions, "replaced", res.Replaced, "skipped", res.Skipped,
		"health_days", res.HealthDays, "readings", res.Readings, "targets", res.Targets)
	return res, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return core.NewValidationError("user_id", "is required")
	}
	return nil
}
