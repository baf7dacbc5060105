package store

import (
	"context"
	"time"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// GetCachedUserContext returns the last summarized user-profile briefing, if
// any has been synthesized yet.
func (s *Store) GetCachedUserContext(ctx context.Context, q Querier) (string, bool, error) {
	var content string
	err := q.QueryRow(ctx, `SELECT content FROM primer_cache WHERE key = 'user_context'`).Scan(&content)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch cached user context")
	}
	return content, true, nil
}

// SetCachedUserContext upserts the summarized user-profile briefing.
func (s *Store) SetCachedUserContext(ctx context.Context, q Querier, content string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO primer_cache (key, content, updated_at)
		VALUES ('user_context', $1, NOW())
		ON CONFLICT (key) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
	`, content)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to cache user context")
	}
	return nil
}

// UpsertPrimerMemory marks any existing primer memory superseded and inserts
// the new one at the fixed reference.system.primer path, mirroring the same
// upsert-then-supersede shape InsertSection uses for ordinary memories but
// specialized to the primer's single-row, no-edges use case.
func (s *Store) UpsertPrimerMemory(ctx context.Context, q Querier, id, content, vectorLiteral string, now time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO memories (id, content, embedding, category_path, metadata, lexical_search, created_at, updated_at, last_accessed_at)
		VALUES ($1::uuid, $2, $3::vector, $4::ltree, '{}'::jsonb, to_tsvector('english', $2), $5, $5, $5)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding,
			lexical_search = EXCLUDED.lexical_search, updated_at = EXCLUDED.updated_at
	`, id, content, vectorLiteral, primerPath, now)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to upsert primer memory")
	}

	_, err = q.Exec(ctx, `
		UPDATE memories SET supersedes_id = $1::uuid, updated_at = $2
		WHERE category_path::text = $3 AND supersedes_id IS NULL AND archived_at IS NULL AND id != $1::uuid
	`, id, now, primerPath)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to supersede previous primer")
	}
	return nil
}
