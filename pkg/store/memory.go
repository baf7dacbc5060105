package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// Memory is a single row of the memories table.
type Memory struct {
	ID             uuid.UUID
	Content        string
	CategoryPath   string
	SupersedesID   *uuid.UUID
	ArchivedAt     *time.Time
	Metadata       map[string]any
	VerifyAfter    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt time.Time
}

// TaxonomyCount is one row of the active category_path histogram used both
// to prime segmentation and to render the taxonomy explorer.
type TaxonomyCount struct {
	CategoryPath string
	Count        int
}

// ActiveTaxonomyPaths returns the most populous active category paths, used
// to prime the segmentation model with the taxonomy already in use.
func (s *Store) ActiveTaxonomyPaths(ctx context.Context, q Querier, limit int) ([]TaxonomyCount, error) {
	rows, err := q.Query(ctx, `
		SELECT category_path::text, COUNT(*) AS cnt
		FROM memories
		WHERE supersedes_id IS NULL AND archived_at IS NULL
		GROUP BY category_path
		ORDER BY cnt DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to list active taxonomy paths")
	}
	defer rows.Close()

	var out []TaxonomyCount
	for rows.Next() {
		var tc TaxonomyCount
		if err := rows.Scan(&tc.CategoryPath, &tc.Count); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan taxonomy row")
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// MemoryExists reports whether a memory with the given deterministic ID is
// already present, regardless of its superseded/archived state.
func (s *Store) MemoryExists(ctx context.Context, q Querier, id uuid.UUID) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM memories WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, errs.Wrap(errs.StoreUnavailable, err, "failed to check memory existence")
	}
	return true, nil
}

// NearestActive is the closest active memory in a category subtree to a
// candidate embedding, used for duplicate/conflict detection.
type NearestActive struct {
	ID         uuid.UUID
	Content    string
	Similarity float64
}

// FindNearestActive returns the single closest active memory (by cosine
// similarity) within category's subtree, or nil if none exists yet.
func (s *Store) FindNearestActive(ctx context.Context, q Querier, vectorLiteral, categoryPath string) (*NearestActive, error) {
	var n NearestActive
	err := q.QueryRow(ctx, `
		SELECT id, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM memories
		WHERE supersedes_id IS NULL
		  AND archived_at IS NULL
		  AND category_path <@ $2::ltree
		ORDER BY embedding <=> $1::vector
		LIMIT 1
	`, vectorLiteral, categoryPath).Scan(&n.ID, &n.Content, &n.Similarity)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to search for nearest active memory")
	}
	return &n, nil
}

// NewSection is the payload for inserting a freshly segmented, embedded
// section of text into the store.
type NewSection struct {
	ID              uuid.UUID
	Content         string
	VectorLiteral   string
	CategoryPath    string
	Metadata        map[string]any
	VerifyAfter     *time.Time
	Supersedes      *uuid.UUID // non-nil when this section replaces an existing memory
	RelatesToThresh float64
}

// InsertSection inserts (or touches, on ON CONFLICT) a new memory row, then
// performs the supersession edge rewire and the relates_to edge maintenance
// that keeps the memory graph connected; sequence_next edges are added
// separately by LinkSequenceNext. now is passed in
// rather than read from the database so every row in a batch shares exactly
// the same timestamp.
func (s *Store) InsertSection(ctx context.Context, q Querier, sec NewSection, now time.Time) error {
	metaJSON, err := json.Marshal(sec.Metadata)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to marshal section metadata")
	}

	_, err = q.Exec(ctx, `
		INSERT INTO memories (id, content, embedding, category_path, metadata, lexical_search, created_at, updated_at, last_accessed_at, verify_after)
		VALUES ($1, $2, $3::vector, $4::ltree, $5::jsonb, to_tsvector('english', $2), $6, $6, $6, $7)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, sec.ID, sec.Content, sec.VectorLiteral, sec.CategoryPath, metaJSON, now, sec.VerifyAfter)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to insert memory section")
	}

	if sec.Supersedes != nil {
		if err := s.rewireSupersession(ctx, q, *sec.Supersedes, sec.ID, now); err != nil {
			return err
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO memory_edges (source_id, target_id, relation_type)
		SELECT $1::uuid, id, 'relates_to'
		FROM memories
		WHERE id != $1::uuid
		  AND supersedes_id IS NULL
		  AND archived_at IS NULL
		  AND (category_path::text = $3::text OR 1 - (embedding <=> $2::vector) > $4)
		ORDER BY (1 - (embedding <=> $2::vector)) DESC, id LIMIT 6
		ON CONFLICT DO NOTHING
	`, sec.ID, sec.VectorLiteral, sec.CategoryPath, sec.RelatesToThresh)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to link relates_to edges")
	}
	return nil
}

// TouchMemory bumps last_accessed_at, used when a section was a duplicate of
// an already-ingested memory.
func (s *Store) TouchMemory(ctx context.Context, q Querier, id uuid.UUID, now time.Time) error {
	_, err := q.Exec(ctx, `UPDATE memories SET last_accessed_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to touch memory")
	}
	return nil
}

// LinkSequenceNext records that prevID was ingested immediately before id,
// letting document reconstruction walk sections back in their original order.
func (s *Store) LinkSequenceNext(ctx context.Context, q Querier, prevID, id uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO memory_edges (source_id, target_id, relation_type)
		VALUES ($1, $2, 'sequence_next') ON CONFLICT DO NOTHING
	`, prevID, id)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to link sequence_next edge")
	}
	return nil
}

// rewireSupersession points oldID at newID, migrates oldID's edges onto
// newID, then deletes oldID's now-orphaned edges. Edges are copied before
// deletion (not moved in place) to avoid a unique-violation on the PK triple
// when old and new would otherwise momentarily collide.
func (s *Store) rewireSupersession(ctx context.Context, q Querier, oldID, newID uuid.UUID, now time.Time) error {
	if _, err := q.Exec(ctx, `UPDATE memories SET supersedes_id = $1, updated_at = $2 WHERE id = $3`, newID, now, oldID); err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to mark memory superseded")
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO memory_edges (source_id, target_id, relation_type)
		SELECT $1, target_id, relation_type FROM memory_edges WHERE source_id = $2
		ON CONFLICT (source_id, target_id, relation_type) DO NOTHING
	`, newID, oldID); err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to migrate outgoing edges")
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO memory_edges (source_id, target_id, relation_type)
		SELECT source_id, $1, relation_type FROM memory_edges WHERE target_id = $2
		ON CONFLICT (source_id, target_id, relation_type) DO NOTHING
	`, newID, oldID); err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to migrate incoming edges")
	}
	if _, err := q.Exec(ctx, `DELETE FROM memory_edges WHERE source_id = $1 OR target_id = $1`, oldID); err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to drop superseded edges")
	}
	return nil
}

// ProfileChunks returns the content of every active profile.* memory, the
// raw material the primer synthesizer summarizes into user context.
func (s *Store) ProfileChunks(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT content FROM memories
		WHERE category_path <@ 'profile'::ltree
		  AND supersedes_id IS NULL
		  AND archived_at IS NULL
		ORDER BY category_path, created_at
	`)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch profile chunks")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan profile chunk")
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// GetMemory fetches a single memory by ID.
func (s *Store) GetMemory(ctx context.Context, q Querier, id uuid.UUID) (*Memory, error) {
	var m Memory
	var metaJSON []byte
	err := q.QueryRow(ctx, `
		SELECT id, content, category_path::text, supersedes_id, archived_at, metadata, verify_after, created_at, updated_at, last_accessed_at
		FROM memories WHERE id = $1
	`, id).Scan(&m.ID, &m.Content, &m.CategoryPath, &m.SupersedesID, &m.ArchivedAt, &metaJSON, &m.VerifyAfter, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.New(errs.NotFound, "memory %s not found", id)
		}
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch memory")
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "failed to decode memory metadata")
		}
	}
	return &m, nil
}

// DeleteMemoryChain removes a memory together with the whole chain of
// memories it reaches via sequence_next edges (forward and backward), the
// unit produced by one ingestion. It returns the number of rows deleted.
func (s *Store) DeleteMemoryChain(ctx context.Context, q Querier, id uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		WITH RECURSIVE backward AS (
			SELECT $1::uuid AS id
			UNION
			SELECT e.source_id FROM memory_edges e
			JOIN backward b ON e.target_id = b.id
			WHERE e.relation_type = 'sequence_next'
		),
		forward AS (
			SELECT $1::uuid AS id
			UNION
			SELECT e.target_id FROM memory_edges e
			JOIN forward f ON e.source_id = f.id
			WHERE e.relation_type = 'sequence_next'
		),
		chunk_chain AS (
			SELECT id FROM backward
			UNION
			SELECT id FROM forward
		)
		DELETE FROM memories USING chunk_chain WHERE memories.id = chunk_chain.id
	`, id)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to delete memory chain")
	}
	return tag.RowsAffected(), nil
}

// UpdateMemoryContent re-embeds a memory in place, preserving its ID,
// category, edges and created_at while recomputing verify_after.
func (s *Store) UpdateMemoryContent(ctx context.Context, q Querier, id uuid.UUID, content, vectorLiteral string, verifyAfter *time.Time, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE memories
		SET content = $2, embedding = $3::vector, lexical_search = to_tsvector('english', $2),
		    verify_after = $4, updated_at = $5
		WHERE id = $1
	`, id, content, vectorLiteral, verifyAfter, now)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to update memory content")
	}
	return nil
}

// UpdateMemoryMetadata merges patch into the existing metadata JSONB, rather
// than overwriting it outright.
func (s *Store) UpdateMemoryMetadata(ctx context.Context, q Querier, id uuid.UUID, patch map[string]any, now time.Time) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to marshal metadata patch")
	}
	tag, err := q.Exec(ctx, `
		UPDATE memories SET metadata = metadata || $1::jsonb, updated_at = $2 WHERE id = $3
	`, patchJSON, now, id)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to merge memory metadata")
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "memory %s not found", id)
	}
	return nil
}

const primerPath = "reference.system.primer"

// RecategorizeMemory moves a single memory to a new category path. The
// system primer is immutable at this path and refuses recategorization.
func (s *Store) RecategorizeMemory(ctx context.Context, q Querier, id uuid.UUID, newPath string, now time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE memories SET category_path = $2::ltree, updated_at = $3
		WHERE id = $1 AND category_path::text != $4
	`, id, newPath, now, primerPath)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to recategorize memory")
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.Conflict, "memory %s not found or is the protected system primer", id)
	}
	return nil
}

// BulkMoveCategory rewrites the category_path prefix for every memory in a
// subtree, skipping the system primer, and reports how many rows moved.
func (s *Store) BulkMoveCategory(ctx context.Context, q Querier, fromPrefix, toPrefix string, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE memories
		SET category_path = ($2 || subpath(category_path, nlevel($1::ltree)))::ltree,
		    updated_at = $3
		WHERE category_path <@ $1::ltree AND category_path::text != $4
	`, fromPrefix, toPrefix, now, primerPath)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to bulk move category")
	}
	return tag.RowsAffected(), nil
}

// IsProfilePath reports whether a category path falls under the profile
// root, the trigger condition for refreshing the system primer.
func IsProfilePath(categoryPath string) bool {
	return categoryPath == "profile" || strings.HasPrefix(categoryPath, "profile.")
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
