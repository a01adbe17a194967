package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lifedash/internal/core"
)

const transactionColumns = `transaction_id, user_id, account_id, amount_cents, description, merchant, account_name, category, date`

// IngestResult describes the effect of IngestTransaction.
type IngestResult struct {
	// Transaction is the row as stored.
	Transaction core.Transaction
	// Replaced is true when a row with the same transaction id existed.
	Replaced bool
	// Budget is the (category, month) aggregate the transaction now counts in.
	Budget core.BudgetCategory
}

const upsertTransactionSQL = `
	INSERT INTO transactions (transaction_id, user_id, account_id, amount_cents, description, merchant, account_name, category, date, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(transaction_id) DO UPDATE SET
		user_id = excluded.user_id,
		account_id = excluded.account_id,
		amount_cents = excluded.amount_cents,
		description = excluded.description,
		merchant = excluded.merchant,
		account_name = excluded.account_name,
		category = excluded.category,
		date = excluded.date,
		updated_at = excluded.updated_at
	RETURNING ` + transactionColumns

// RecordTransaction stores t, replacing every column of an existing row with
// the same transaction id, and returns the stored row. It does not touch
// budgets.
func (r *SQLiteRepository) RecordTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	stored, err := recordTransaction(ctx, r.db, t, r.timestamp())
	if err != nil {
		return core.Transaction{}, core.NewStorageError("record transaction", err)
	}
	return stored, nil
}

// IngestTransaction records t and moves its amount into the budget of its
// (category, month) in one database transaction. A re-ingested transaction
// first takes its previous amount out of the previous key, so spent amounts
// always equal the sum of the stored transactions.
func (r *SQLiteRepository) IngestTransaction(ctx context.Context, t core.Transaction) (IngestResult, error) {
	if err := t.Validate(); err != nil {
		return IngestResult{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.timestamp()
	var res IngestResult

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := getTransaction(ctx, tx, t.TransactionID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load previous transaction: %w", err)
		default:
			res.Replaced = true
		}

		stored, err := recordTransaction(ctx, tx, t, now)
		if err != nil {
			return fmt.Errorf("upsert transaction: %w", err)
		}
		res.Transaction = stored

		delta := t.Amount
		if res.Replaced {
			if prev.UserID == t.UserID && prev.Category == t.Category && prev.Date.Month() == t.Date.Month() {
				delta = t.Amount.Sub(prev.Amount)
			} else if _, err := accumulate(ctx, tx, prev.UserID, prev.Category, prev.Date.Month(), prev.Amount.Neg(), now); err != nil {
				return fmt.Errorf("reverse previous budget: %w", err)
			}
		}

		b, err := accumulate(ctx, tx, t.UserID, t.Category, t.Date.Month(), delta, now)
		if err != nil {
			return fmt.Errorf("accumulate budget: %w", err)
		}
		res.Budget = b
		return nil
	})
	if err != nil {
		return IngestResult{}, core.NewStorageError("ingest transaction", err)
	}
	return res, nil
}

// GetTransaction returns core.ErrNotFound for an unknown id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	t, err := getTransaction(ctx, r.db, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.NewStorageError("get transaction", err)
	}
	return t, nil
}

// ListTransactions returns the user's transactions dated within month, newest
// first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, month core.Month) ([]core.Transaction, error) {
	from, to := month.Bounds()
	if from.IsZero() {
		return nil, core.NewValidationError("month", "must be YYYY-MM")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND date >= ? AND date < ?
		 ORDER BY date DESC, transaction_id`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, core.NewStorageError("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, core.NewStorageError("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list transactions", err)
	}
	return out, nil
}

// CountTransactions returns the number of stored transactions of a user.
func (r *SQLiteRepository) CountTransactions(ctx context.Context, userID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, core.NewStorageError("count transactions", err)
	}
	return n, nil
}

func recordTransaction(ctx context.Context, q dbtx, t core.Transaction, now string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx, upsertTransactionSQL,
		t.TransactionID, t.UserID, t.AccountID, t.Amount.Cents, t.Description,
		t.Merchant, t.AccountName, t.Category, t.Date.String(), now, now)
	return scanTransaction(row)
}

func getTransaction(ctx context.Context, q dbtx, transactionID string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = ?`, transactionID)
	return scanTransaction(row)
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t    core.Transaction
		date string
	)
	if err := s.Scan(&t.TransactionID, &t.UserID, &t.AccountID, &t.Amount.Cents, &t.Description,
		&t.Merchant, &t.AccountName, &t.Category, &date); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	t.Date = d
	return t, nil
}
