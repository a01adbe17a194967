package storage

import (
	"context"
	"time"

	"lifedash/internal/core"
)

// RecordSyncRun appends the outcome of one provider sync and returns its id.
func (r *SQLiteRepository) RecordSyncRun(ctx context.Context, run core.SyncRun) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_runs (user_id, provider, status, records, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.UserID, run.Provider, run.Status, run.Records, run.Error,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, core.NewStorageError("record sync run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.NewStorageError("record sync run", err)
	}
	return id, nil
}

// ListSyncRuns returns the latest runs of a user, newest first.
func (r *SQLiteRepository) ListSyncRuns(ctx context.Context, userID string, limit int) ([]core.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, provider, status, records, error, started_at, finished_at
		FROM sync_runs WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, core.NewStorageError("list sync runs", err)
	}
	defer rows.Close()

	var out []core.SyncRun
	for rows.Next() {
		var (
			run               core.SyncRun
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.UserID, &run.Provider, &run.Status, &run.Records, &run.Error, &started, &finished); err != nil {
			return nil, core.NewStorageError("scan sync run", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list sync runs", err)
	}
	return out, nil
}

// PruneSyncRuns deletes runs that started before cutoff.
func (r *SQLiteRepository) PruneSyncRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, core.NewStorageError("prune sync runs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.NewStorageError("prune sync runs", err)
	}
	return n, nil
}
