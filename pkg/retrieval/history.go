package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// HistoryVersion is one generation in a memory's supersession chain.
type HistoryVersion struct {
	ID            uuid.UUID
	Content       string
	SupersededBy  *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Generation    int
}

// TraceHistory walks the backward-facing supersession chain for a memory
// via a recursive CTE, returning every predecessor oldest-first so the
// caller can see how a fact evolved over time.
func (r *Retrieval) TraceHistory(ctx context.Context, memoryID uuid.UUID) ([]HistoryVersion, error) {
	rows, err := r.store.Pool().Query(ctx, `
		WITH RECURSIVE history AS (
			SELECT id, content, supersedes_id, created_at, updated_at, 0 AS generation
			FROM memories WHERE id = $1
		  UNION ALL
			SELECT m.id, m.content, m.supersedes_id, m.created_at, m.updated_at, h.generation + 1
			FROM memories m
			JOIN history h ON m.supersedes_id = h.id
			WHERE h.generation < 100
		)
		SELECT id, content, supersedes_id, created_at, updated_at, generation
		FROM history ORDER BY created_at ASC
	`, memoryID)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to trace memory history")
	}
	defer rows.Close()

	var chain []HistoryVersion
	for rows.Next() {
		var v HistoryVersion
		if err := rows.Scan(&v.ID, &v.Content, &v.SupersededBy, &v.CreatedAt, &v.UpdatedAt, &v.Generation); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan history row")
		}
		chain = append(chain, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to read history rows")
	}
	if len(chain) == 0 {
		return nil, errs.New(errs.NotFound, "memory %s not found", memoryID)
	}
	return chain, nil
}

// SystemContextRecord is an active reference.system.* record surfaced by
// InitializeContext, flagged with a TTL warning when stale.
type SystemContextRecord struct {
	ID           uuid.UUID
	Content      string
	CategoryPath string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     map[string]any
	IsExpired    bool
	Warning      string
}

// VerificationItem is an active memory whose verify_after deadline has
// passed and needs the user to confirm it's still accurate.
type VerificationItem struct {
	MemoryID        uuid.UUID
	Content         string
	CategoryPath    string
	VerifyAfter     time.Time
	VolatilityClass string
}

// InitializeContext returns every active reference.system.* record plus up
// to 3 memories overdue for verification, the session-opening primer query.
func (r *Retrieval) InitializeContext(ctx context.Context) ([]SystemContextRecord, []VerificationItem, error) {
	rows, err := r.store.Pool().Query(ctx, `
		SELECT id, content, category_path::text, created_at, updated_at, metadata
		FROM memories
		WHERE category_path ~ 'reference.system.*'::lquery
		  AND supersedes_id IS NULL AND archived_at IS NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch system context records")
	}

	var records []SystemContextRecord
	for rows.Next() {
		var rec SystemContextRecord
		var metaJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.CategoryPath, &rec.CreatedAt, &rec.UpdatedAt, &metaJSON); err != nil {
			rows.Close()
			return nil, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan system context record")
		}
		applySystemRecordTTL(&rec, metaJSON)
		records = append(records, rec)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return nil, nil, errs.Wrap(errs.StoreUnavailable, rowsErr, "failed to read system context records")
	}

	expiredRows, err := r.store.Pool().Query(ctx, `
		SELECT id, content, category_path::text, verify_after, metadata
		FROM memories
		WHERE supersedes_id IS NULL AND archived_at IS NULL AND verify_after < NOW()
		ORDER BY verify_after ASC LIMIT 3
	`)
	if err != nil {
		return nil, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch expired memories")
	}
	defer expiredRows.Close()

	var verification []VerificationItem
	for expiredRows.Next() {
		var v VerificationItem
		var metaJSON []byte
		if err := expiredRows.Scan(&v.MemoryID, &v.Content, &v.CategoryPath, &v.VerifyAfter, &metaJSON); err != nil {
			return nil, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan expired memory")
		}
		v.VolatilityClass = volatilityClassOf(metaJSON)
		verification = append(verification, v)
	}
	if err := expiredRows.Err(); err != nil {
		return nil, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to read expired memories")
	}

	return records, verification, nil
}

// ConfirmMemoryValidity recomputes verify_after from a memory's
// volatility_class without touching its content, category or history.
func (r *Retrieval) ConfirmMemoryValidity(ctx context.Context, memoryID uuid.UUID, computeVerifyAfter func(volatilityClass string, from time.Time) *time.Time) (volatilityClass string, newVerifyAfter *time.Time, err error) {
	var metaJSON []byte
	err = r.store.Pool().QueryRow(ctx, `
		SELECT metadata FROM memories WHERE id = $1 AND supersedes_id IS NULL AND archived_at IS NULL
	`, memoryID).Scan(&metaJSON)
	if err != nil {
		return "", nil, errs.New(errs.NotFound, "memory %s not found, is superseded, or is archived", memoryID)
	}

	volatilityClass = volatilityClassOf(metaJSON)
	now := time.Now().UTC()
	newVerifyAfter = computeVerifyAfter(volatilityClass, now)

	if _, err := r.store.Pool().Exec(ctx, `
		UPDATE memories SET verify_after = $1, updated_at = $2 WHERE id = $3
	`, newVerifyAfter, now, memoryID); err != nil {
		return "", nil, errs.Wrap(errs.StoreUnavailable, err, "failed to confirm memory validity")
	}
	return volatilityClass, newVerifyAfter, nil
}
