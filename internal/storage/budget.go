package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"lifedash/internal/core"
)

const budgetColumns = `user_id, name, month, target_amount_cents, spent_amount_cents, updated_at`

// Accumulate adds delta to spent_amount of (userID, category, month) and
// returns the stored row. The increment happens inside a single upsert so
// concurrent calls never lose an update; target_amount is left untouched.
func (r *SQLiteRepository) Accumulate(ctx context.Context, userID, category string, month core.Month, delta core.Money) (core.BudgetCategory, error) {
	userID, category, month, err := normalizeBudgetKey(userID, category, month)
	if err != nil {
		return core.BudgetCategory{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b, err := accumulate(ctx, r.db, userID, category, month, delta, r.timestamp())
	if err != nil {
		return core.BudgetCategory{}, core.NewStorageError("accumulate budget", err)
	}
	return b, nil
}

// SetTarget overwrites target_amount of (userID, category, month) and keeps
// the accumulated spent_amount.
func (r *SQLiteRepository) SetTarget(ctx context.Context, userID, category string, month core.Month, target core.Money) (core.BudgetCategory, error) {
	userID, category, month, err := normalizeBudgetKey(userID, category, month)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	if target.Cents < 0 {
		return core.BudgetCategory{}, core.NewValidationError("amount", "target must not be negative")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO budget_categories (user_id, name, month, target_amount_cents, spent_amount_cents, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(user_id, name, month) DO UPDATE SET
			target_amount_cents = excluded.target_amount_cents,
			updated_at = excluded.updated_at
		RETURNING `+budgetColumns,
		userID, category, string(month), target.Cents, r.timestamp())

	b, err := scanBudget(row)
	if err != nil {
		return core.BudgetCategory{}, core.NewStorageError("set budget target", err)
	}
	return b, nil
}

// GetBudgetCategory returns core.ErrNotFound when the key has never been
// written.
func (r *SQLiteRepository) GetBudgetCategory(ctx context.Context, userID, category string, month core.Month) (core.BudgetCategory, error) {
	userID, category, month, err := normalizeBudgetKey(userID, category, month)
	if err != nil {
		return core.BudgetCategory{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budget_categories WHERE user_id = ? AND name = ? AND month = ?`,
		userID, category, string(month))
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetCategory{}, core.ErrNotFound
	}
	if err != nil {
		return core.BudgetCategory{}, core.NewStorageError("get budget category", err)
	}
	return b, nil
}

// ListBudgetCategories returns every category of a month ordered by name.
func (r *SQLiteRepository) ListBudgetCategories(ctx context.Context, userID string, month core.Month) ([]core.BudgetCategory, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budget_categories WHERE user_id = ? AND month = ? ORDER BY name`,
		userID, string(month))
	if err != nil {
		return nil, core.NewStorageError("list budget categories", err)
	}
	defer rows.Close()

	var out []core.BudgetCategory
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, core.NewStorageError("scan budget category", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list budget categories", err)
	}
	return out, nil
}

func accumulate(ctx context.Context, q dbtx, userID, category string, month core.Month, delta core.Money, now string) (core.BudgetCategory, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO budget_categories (user_id, name, month, target_amount_cents, spent_amount_cents, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id, name, month) DO UPDATE SET
			spent_amount_cents = budget_categories.spent_amount_cents + excluded.spent_amount_cents,
			updated_at = excluded.updated_at
		RETURNING `+budgetColumns,
		userID, category, string(month), delta.Cents, now)
	return scanBudget(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBudget(s scanner) (core.BudgetCategory, error) {
	var (
		b         core.BudgetCategory
		month     string
		updatedAt string
	)
	if err := s.Scan(&b.UserID, &b.Name, &month, &b.TargetAmount.Cents, &b.SpentAmount.Cents, &updatedAt); err != nil {
		return core.BudgetCategory{}, err
	}
	b.Month = core.Month(month)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

// normalizeBudgetKey trims the key parts so that " Food" and "Food" address
// the same row.
func normalizeBudgetKey(userID, category string, month core.Month) (string, string, core.Month, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", "", core.NewValidationError("user_id", "is required")
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return "", "", "", core.NewValidationError("category", "is required")
	}
	m, err := core.ParseMonth(string(month))
	if err != nil {
		return "", "", "", err
	}
	return userID, category, m, nil
}
