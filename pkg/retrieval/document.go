package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// Document is a chunk chain reassembled into its original document.
type Document struct {
	MemoryID     uuid.UUID
	ChunkCount   int
	CategoryPath string
	Content      string
}

// FetchDocument walks the sequence_next chain both backward and forward from
// memoryID via a recursive CTE, deduplicates, and concatenates every chunk
// in original order.
func (r *Retrieval) FetchDocument(ctx context.Context, memoryID uuid.UUID) (*Document, error) {
	rows, err := r.store.Pool().Query(ctx, `
		WITH RECURSIVE backward AS (
			SELECT m.id, m.content, m.category_path::text, m.created_at, 0 AS depth
			FROM memories m
			WHERE m.id = $1 AND m.supersedes_id IS NULL AND m.archived_at IS NULL
		  UNION ALL
			SELECT m.id, m.content, m.category_path::text, m.created_at, b.depth + 1
			FROM backward b
			JOIN memory_edges e ON e.target_id = b.id AND e.relation_type = 'sequence_next'
			JOIN memories m ON m.id = e.source_id
			WHERE m.supersedes_id IS NULL AND m.archived_at IS NULL AND b.depth < 200
		),
		forward AS (
			SELECT m.id, m.content, m.category_path::text, m.created_at, 0 AS depth
			FROM memories m
			WHERE m.id = $1 AND m.supersedes_id IS NULL AND m.archived_at IS NULL
		  UNION ALL
			SELECT m.id, m.content, m.category_path::text, m.created_at, f.depth + 1
			FROM forward f
			JOIN memory_edges e ON e.source_id = f.id AND e.relation_type = 'sequence_next'
			JOIN memories m ON m.id = e.target_id
			WHERE m.supersedes_id IS NULL AND m.archived_at IS NULL AND f.depth < 200
		),
		combined AS (
			SELECT id, content, category_path, created_at, -depth AS sort_key FROM backward
			UNION ALL
			SELECT id, content, category_path, created_at, depth AS sort_key FROM forward WHERE depth > 0
		),
		deduped AS (
			SELECT DISTINCT ON (id) id, content, category_path, created_at, sort_key
			FROM combined ORDER BY id, sort_key
		)
		SELECT id, content, category_path, created_at, sort_key FROM deduped ORDER BY sort_key
	`, memoryID)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch document chain")
	}
	defer rows.Close()

	var chunks []string
	var categoryPath string
	count := 0
	for rows.Next() {
		var id uuid.UUID
		var content, catPath string
		var createdAt time.Time
		var sortKey int
		if err := rows.Scan(&id, &content, &catPath, &createdAt, &sortKey); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan document chunk")
		}
		if count == 0 {
			categoryPath = catPath
		}
		chunks = append(chunks, content)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to read document chunks")
	}
	if count == 0 {
		return nil, errs.New(errs.NotFound, "memory %s not found or is archived", memoryID)
	}

	return &Document{
		MemoryID:     memoryID,
		ChunkCount:   count,
		CategoryPath: categoryPath,
		Content:      strings.Join(chunks, "\n\n"),
	}, nil
}
