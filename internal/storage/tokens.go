package storage

import (
	"context"
	"database/sql"
	"errors"

	"lifedash/internal/core"
)

// SaveToken upserts the OAuth grant of (UserID, Provider). An empty refresh
// token or realm id keeps the stored one, since providers omit them on
// refresh.
func (r *SQLiteRepository) SaveToken(ctx context.Context, t core.ProviderToken) error {
	if t.UserID == "" {
		return core.NewValidationError("user_id", "is required")
	}
	if t.Provider == "" {
		return core.NewValidationError("provider", "is required")
	}
	if t.AccessToken == "" {
		return core.NewValidationError("access_token", "is required")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var expiry string
	if !t.Expiry.IsZero() {
		expiry = t.Expiry.UTC().Format(timeLayout)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provider_tokens (user_id, provider, access_token, refresh_token, token_type, expiry, realm_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN provider_tokens.refresh_token ELSE excluded.refresh_token END,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			realm_id = CASE WHEN excluded.realm_id = '' THEN provider_tokens.realm_id ELSE excluded.realm_id END,
			updated_at = excluded.updated_at`,
		t.UserID, t.Provider, t.AccessToken, t.RefreshToken, t.TokenType, expiry, t.RealmID, r.timestamp())
	if err != nil {
		return core.NewStorageError("save token", err)
	}
	return nil
}

// GetToken returns core.ErrNotFound when the user never connected provider.
func (r *SQLiteRepository) GetToken(ctx context.Context, userID, provider string) (core.ProviderToken, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		t                 core.ProviderToken
		expiry, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, token_type, expiry, realm_id, updated_at
		FROM provider_tokens WHERE user_id = ? AND provider = ?`,
		userID, provider).Scan(&t.UserID, &t.Provider, &t.AccessToken, &t.RefreshToken, &t.TokenType, &expiry, &t.RealmID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProviderToken{}, core.ErrNotFound
	}
	if err != nil {
		return core.ProviderToken{}, core.NewStorageError("get token", err)
	}
	t.Expiry = parseTime(expiry)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

func (r *SQLiteRepository) DeleteToken(ctx context.Context, userID, provider string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM provider_tokens WHERE user_id = ? AND provider = ?`, userID, provider); err != nil {
		return core.NewStorageError("delete token", err)
	}
	return nil
}

// ListTokenProviders returns the providers the user has connected.
func (r *SQLiteRepository) ListTokenProviders(ctx context.Context, userID string) ([]string, error) {
	return r.listStrings(ctx, "list token providers",
		`SELECT provider FROM provider_tokens WHERE user_id = ? ORDER BY provider`, userID)
}

// ListConnectedUsers returns every user with at least one stored token.
func (r *SQLiteRepository) ListConnectedUsers(ctx context.Context) ([]string, error) {
	return r.listStrings(ctx, "list connected users",
		`SELECT DISTINCT user_id FROM provider_tokens ORDER BY user_id`)
}

func (r *SQLiteRepository) listStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewStorageError(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, core.NewStorageError(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError(op, err)
	}
	return out, nil
}
