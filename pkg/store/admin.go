package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// PruneHistory deletes superseded memories older than retentionDays, keeping
// the active graph from accumulating unbounded history.
func (s *Store) PruneHistory(ctx context.Context, q Querier, retentionDays int) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM memories
		WHERE supersedes_id IS NOT NULL
		  AND updated_at < NOW() - ($1 || ' days')::interval
	`, retentionDays)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to prune memory history")
	}
	return tag.RowsAffected(), nil
}

// ExportedMemory is the flattened shape export_memories emits, independent
// of the richer internal Memory struct.
type ExportedMemory struct {
	ID           uuid.UUID       `json:"id"`
	Content      string          `json:"content"`
	CategoryPath string          `json:"category_path"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExportMemories dumps active memories, optionally restricted to a category
// subtree, for offline backup or analysis.
func (s *Store) ExportMemories(ctx context.Context, q Querier, categoryPrefix string) ([]ExportedMemory, error) {
	var rows pgxRowsLike
	var err error
	if categoryPrefix == "" {
		rows, err = q.Query(ctx, `
			SELECT id, content, category_path::text, metadata, created_at, updated_at
			FROM memories WHERE supersedes_id IS NULL AND archived_at IS NULL
			ORDER BY category_path, created_at
		`)
	} else {
		rows, err = q.Query(ctx, `
			SELECT id, content, category_path::text, metadata, created_at, updated_at
			FROM memories WHERE supersedes_id IS NULL AND archived_at IS NULL AND category_path <@ $1::ltree
			ORDER BY category_path, created_at
		`, categoryPrefix)
	}
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to export memories")
	}
	defer rows.Close()

	var out []ExportedMemory
	for rows.Next() {
		var m ExportedMemory
		if err := rows.Scan(&m.ID, &m.Content, &m.CategoryPath, &m.Metadata, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan exported memory")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Diagnostics bundles the counters run_diagnostics surfaces to an operator.
type Diagnostics struct {
	ExpiredCount       int64
	ArchivedCount      int64
	L1RootViolations   int64
	PrimerLastUpdated  *time.Time
	IngestionCounts    map[string]int64
}

var validL1Roots = []string{"profile", "projects", "organizations", "concepts", "reference"}

// RunDiagnostics gathers the set of health counters an operator needs to
// decide whether the taxonomy or ingestion pipeline needs attention.
func (s *Store) RunDiagnostics(ctx context.Context, q Querier) (*Diagnostics, error) {
	var d Diagnostics
	var err error

	if err = q.QueryRow(ctx, `
		SELECT COUNT(*) FROM memories WHERE verify_after IS NOT NULL AND verify_after < NOW() AND archived_at IS NULL
	`).Scan(&d.ExpiredCount); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to count expired memories")
	}

	if err = q.QueryRow(ctx, `SELECT COUNT(*) FROM memories WHERE archived_at IS NOT NULL`).Scan(&d.ArchivedCount); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to count archived memories")
	}

	if err = q.QueryRow(ctx, `
		SELECT COUNT(*) FROM memories
		WHERE supersedes_id IS NULL AND archived_at IS NULL
		  AND NOT (category_path ~ 'profile.*'::lquery
		       OR category_path ~ 'projects.*'::lquery
		       OR category_path ~ 'organizations.*'::lquery
		       OR category_path ~ 'concepts.*'::lquery
		       OR category_path ~ 'reference.*'::lquery)
	`).Scan(&d.L1RootViolations); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to count taxonomy root violations")
	}

	var updated time.Time
	err = q.QueryRow(ctx, `SELECT updated_at FROM primer_cache WHERE key = 'user_context'`).Scan(&updated)
	if err == nil {
		d.PrimerLastUpdated = &updated
	} else if !isNoRows(err) {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to read primer_last_updated")
	}

	d.IngestionCounts, err = s.IngestionStatusCounts(ctx, q)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// pgxRowsLike narrows the methods admin queries need from pgx.Rows, so this
// file doesn't need to import pgx directly for a type that's only ever
// produced by Querier.Query.
type pgxRowsLike interface {
	Close()
	Next() bool
	Scan(dest ...any) error
	Err() error
}
