package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// ContextEntry is a row of the context_store scratchpad table, a small
// key/value area agents use to pass working state to each other with a
// bounded time-to-live.
type ContextEntry struct {
	Key       string
	Value     string
	Scope     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// SetContext upserts a key, resetting its expiry from now.
func (s *Store) SetContext(ctx context.Context, q Querier, key, value, scope string, ttl time.Duration) error {
	_, err := q.Exec(ctx, `
		INSERT INTO context_store (key, value, scope, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, NOW(), NOW(), NOW() + $4)
		ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, scope = EXCLUDED.scope,
			    updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at
	`, key, value, scope, ttl)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to set context entry")
	}
	return nil
}

// GetContext returns a live (non-expired) context entry, or a NotFound error.
func (s *Store) GetContext(ctx context.Context, q Querier, key string) (*ContextEntry, error) {
	var e ContextEntry
	err := q.QueryRow(ctx, `
		SELECT key, value, scope, created_at, updated_at, expires_at
		FROM context_store WHERE key = $1 AND expires_at > NOW()
	`, key).Scan(&e.Key, &e.Value, &e.Scope, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.New(errs.NotFound, "context key %q not found or expired", key)
		}
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch context entry")
	}
	return &e, nil
}

// DeleteContext removes a context entry, reporting whether it existed.
func (s *Store) DeleteContext(ctx context.Context, q Querier, key string) (bool, error) {
	tag, err := q.Exec(ctx, `DELETE FROM context_store WHERE key = $1`, key)
	if err != nil {
		return false, errs.Wrap(errs.StoreUnavailable, err, "failed to delete context entry")
	}
	return tag.RowsAffected() > 0, nil
}

// ListContextKeys lists live keys, optionally filtered to one scope.
func (s *Store) ListContextKeys(ctx context.Context, q Querier, scope string) ([]ContextEntry, error) {
	var rowsIter pgx.Rows
	var err error
	if scope == "" {
		rowsIter, err = q.Query(ctx, `
			SELECT key, value, scope, created_at, updated_at, expires_at
			FROM context_store WHERE expires_at > NOW() ORDER BY key
		`)
	} else {
		rowsIter, err = q.Query(ctx, `
			SELECT key, value, scope, created_at, updated_at, expires_at
			FROM context_store WHERE expires_at > NOW() AND scope = $1 ORDER BY key
		`, scope)
	}
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to list context keys")
	}
	defer rowsIter.Close()

	var out []ContextEntry
	for rowsIter.Next() {
		var e ContextEntry
		if err := rowsIter.Scan(&e.Key, &e.Value, &e.Scope, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan context entry")
		}
		out = append(out, e)
	}
	return out, rowsIter.Err()
}

// ExtendContextTTL pushes a key's expiry forward by extend, capped at cap
// from now, and returns the new expiry.
func (s *Store) ExtendContextTTL(ctx context.Context, q Querier, key string, extend, cap time.Duration) (time.Time, error) {
	var newExpiry time.Time
	err := q.QueryRow(ctx, `
		UPDATE context_store
		SET expires_at = LEAST(expires_at + $2, NOW() + $3), updated_at = NOW()
		WHERE key = $1 AND expires_at > NOW()
		RETURNING expires_at
	`, key, extend, cap).Scan(&newExpiry)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, errs.New(errs.NotFound, "context key %q not found or expired", key)
		}
		return time.Time{}, errs.Wrap(errs.StoreUnavailable, err, "failed to extend context ttl")
	}
	return newExpiry, nil
}

// PurgeExpiredContext deletes every expired context_store row.
func (s *Store) PurgeExpiredContext(ctx context.Context, q Querier) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM context_store WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to purge expired context")
	}
	return tag.RowsAffected(), nil
}
