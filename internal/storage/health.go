package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lifedash/internal/core"
)

const healthColumns = `user_id, date, sleep_hours, steps, glucose, calories, protein, updated_at`

// UpsertHealth stores the metrics of (h.UserID, h.Date). Nil fields keep the
// value already stored for that day.
func (r *SQLiteRepository) UpsertHealth(ctx context.Context, h core.HealthMetrics) (core.HealthMetrics, error) {
	if err := h.Validate(); err != nil {
		return core.HealthMetrics{}, err
	}
	if h.Date.IsZero() {
		return core.HealthMetrics{}, core.NewValidationError("date", "is required")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out, err := upsertHealth(ctx, r.db, h, r.timestamp())
	if err != nil {
		return core.HealthMetrics{}, core.NewStorageError("upsert health", err)
	}
	return out, nil
}

// GetHealth returns core.ErrNotFound when nothing was recorded for the day.
func (r *SQLiteRepository) GetHealth(ctx context.Context, userID string, day core.Date) (core.HealthMetrics, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+healthColumns+` FROM health_data WHERE user_id = ? AND date = ?`,
		userID, day.String())
	h, err := scanHealth(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HealthMetrics{}, core.ErrNotFound
	}
	if err != nil {
		return core.HealthMetrics{}, core.NewStorageError("get health", err)
	}
	return h, nil
}

// ListHealth returns the days in [from, to] that have data, newest first.
func (r *SQLiteRepository) ListHealth(ctx context.Context, userID string, from, to core.Date) ([]core.HealthMetrics, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+healthColumns+` FROM health_data
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date DESC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, core.NewStorageError("list health", err)
	}
	defer rows.Close()

	var out []core.HealthMetrics
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return nil, core.NewStorageError("scan health", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list health", err)
	}
	return out, nil
}

func upsertHealth(ctx context.Context, q dbtx, h core.HealthMetrics, now string) (core.HealthMetrics, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO health_data (user_id, date, sleep_hours, steps, glucose, calories, protein, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			sleep_hours = COALESCE(excluded.sleep_hours, health_data.sleep_hours),
			steps = COALESCE(excluded.steps, health_data.steps),
			glucose = COALESCE(excluded.glucose, health_data.glucose),
			calories = COALESCE(excluded.calories, health_data.calories),
			protein = COALESCE(excluded.protein, health_data.protein),
			updated_at = excluded.updated_at
		RETURNING `+healthColumns,
		h.UserID, h.Date.String(),
		nullable(h.SleepHours), nullable(h.Steps), nullable(h.Glucose),
		nullable(h.Calories), nullable(h.Protein), now)
	return scanHealth(row)
}

func scanHealth(s scanner) (core.HealthMetrics, error) {
	var (
		h                       core.HealthMetrics
		date, updatedAt         string
		sleep, glucose, protein sql.NullFloat64
		steps, calories         sql.NullInt64
	)
	if err := s.Scan(&h.UserID, &date, &sleep, &steps, &glucose, &calories, &protein, &updatedAt); err != nil {
		return core.HealthMetrics{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.HealthMetrics{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	h.Date = d
	h.SleepHours = floatPtr(sleep)
	h.Steps = intPtr(steps)
	h.Glucose = floatPtr(glucose)
	h.Calories = intPtr(calories)
	h.Protein = floatPtr(protein)
	h.UpdatedAt = parseTime(updatedAt)
	return h, nil
}
