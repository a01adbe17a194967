package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lifedash/internal/core"
)

// SaveHealthSync stores CGM readings and daily health patches of one sync in
// a single transaction. Readings are keyed on (user, recorded_at); a reading
// seen again is replaced.
func (r *SQLiteRepository) SaveHealthSync(ctx context.Context, readings []core.GlucoseReading, days []core.HealthMetrics) error {
	for _, h := range days {
		if err := h.Validate(); err != nil {
			return err
		}
		if h.Date.IsZero() {
			return core.NewValidationError("date", "is required")
		}
	}
	for _, g := range readings {
		if g.UserID == "" {
			return core.NewValidationError("user_id", "is required")
		}
		if g.RecordedAt.IsZero() {
			return core.NewValidationError("recorded_at", "is required")
		}
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.timestamp()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, g := range readings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO glucose_readings (user_id, recorded_at, value, trend, trend_rate)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(user_id, recorded_at) DO UPDATE SET
					value = excluded.value,
					trend = excluded.trend,
					trend_rate = excluded.trend_rate`,
				g.UserID, g.RecordedAt.UTC().Format(timeLayout), g.Value, g.Trend, nullable(g.TrendRate)); err != nil {
				return fmt.Errorf("upsert glucose reading: %w", err)
			}
		}
		for _, h := range days {
			if _, err := upsertHealth(ctx, tx, h, now); err != nil {
				return fmt.Errorf("upsert health: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.NewStorageError("save health sync", err)
	}
	return nil
}

// ListGlucoseReadings returns readings recorded at or after since, oldest
// first.
func (r *SQLiteRepository) ListGlucoseReadings(ctx context.Context, userID string, since time.Time) ([]core.GlucoseReading, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, recorded_at, value, trend, trend_rate FROM glucose_readings
		 WHERE user_id = ? AND recorded_at >= ?
		 ORDER BY recorded_at`,
		userID, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, core.NewStorageError("list glucose readings", err)
	}
	defer rows.Close()

	var out []core.GlucoseReading
	for rows.Next() {
		var (
			g          core.GlucoseReading
			recordedAt string
			rate       sql.NullFloat64
		)
		if err := rows.Scan(&g.UserID, &recordedAt, &g.Value, &g.Trend, &rate); err != nil {
			return nil, core.NewStorageError("scan glucose reading", err)
		}
		g.RecordedAt = parseTime(recordedAt)
		g.TrendRate = floatPtr(rate)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list glucose readings", err)
	}
	return out, nil
}
