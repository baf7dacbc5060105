package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
	"github.com/isaacriehm/memory-mcp/pkg/identity"
)

// SearchResult is one hybrid-retrieval hit, with its neighboring chunks
// stitched onto content so a single section reads in context.
type SearchResult struct {
	ID            uuid.UUID
	Content       string
	CategoryPath  string
	Score         float64
	SemanticScore float64
	KeywordScore  float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Metadata      map[string]any
	IsExpired     bool
	Warning       string
}

// Search runs Reciprocal Rank Fusion over semantic (pgvector cosine) and
// keyword (tsvector) retrieval, optionally scoped to a category subtree, and
// stitches each hit's immediate sequence_next neighbors onto its content.
func (r *Retrieval) Search(ctx context.Context, embed func(context.Context, string) ([]float64, error), query, categoryPath string, limit int) ([]SearchResult, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	vec, err := embed(ctx, query)
	if err != nil {
		return nil, err
	}
	vecLit := identity.VectorLiteral(vec)

	where := "m.supersedes_id IS NULL AND m.archived_at IS NULL"
	args := []any{vecLit, limit, query}
	if categoryPath != "" {
		safePath := identity.SanitizePath(categoryPath)
		where += " AND m.category_path <@ $4::ltree"
		args = append(args, safePath)
	}

	sql := `
		WITH semantic_search AS (
			SELECT id, 1 - (embedding <=> $1::vector) AS semantic_score,
			       row_number() OVER (ORDER BY embedding <=> $1::vector) AS semantic_rank
			FROM memories m WHERE ` + where + `
			ORDER BY embedding <=> $1::vector LIMIT $2
		),
		keyword_search AS (
			SELECT id, ts_rank_cd(lexical_search, websearch_to_tsquery('english', $3)) AS keyword_score,
			       row_number() OVER (ORDER BY ts_rank_cd(lexical_search, websearch_to_tsquery('english', $3)) DESC) AS keyword_rank
			FROM memories m WHERE ` + where + ` AND lexical_search @@ websearch_to_tsquery('english', $3)
			ORDER BY keyword_score DESC LIMIT $2
		),
		combined AS (
			SELECT m.id, m.content, m.category_path::text, m.created_at, m.updated_at, m.metadata,
			COALESCE(s.semantic_score, 0.0) AS semantic_score,
			COALESCE(k.keyword_score, 0.0) AS keyword_score,
			COALESCE(1.0 / (60 + s.semantic_rank), 0.0) + COALESCE(1.0 / (60 + k.keyword_rank), 0.0) AS rrf_score
			FROM memories m
			LEFT JOIN semantic_search s ON m.id = s.id
			LEFT JOIN keyword_search k ON m.id = k.id
			WHERE s.id IS NOT NULL OR k.id IS NOT NULL
			ORDER BY rrf_score DESC LIMIT $2
		)
		SELECT c.*, prev_lat.prev_content, nxt_lat.next_content
		FROM combined c
		LEFT JOIN LATERAL (
			SELECT prev_inner.content AS prev_content
			FROM memory_edges ep_inner
			JOIN memories prev_inner ON prev_inner.id = ep_inner.source_id
			  AND prev_inner.supersedes_id IS NULL AND prev_inner.archived_at IS NULL
			WHERE ep_inner.target_id = c.id AND ep_inner.relation_type = 'sequence_next'
			LIMIT 1
		) prev_lat ON true
		LEFT JOIN LATERAL (
			SELECT nxt_inner.content AS next_content
			FROM memory_edges en_inner
			JOIN memories nxt_inner ON nxt_inner.id = en_inner.target_id
			  AND nxt_inner.supersedes_id IS NULL AND nxt_inner.archived_at IS NULL
			WHERE en_inner.source_id = c.id AND en_inner.relation_type = 'sequence_next'
			LIMIT 1
		) nxt_lat ON true
		ORDER BY c.rrf_score DESC
	`

	rows, err := r.store.Pool().Query(ctx, sql, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "hybrid search query failed")
	}
	defer rows.Close()

	var results []SearchResult
	var touchedIDs []uuid.UUID
	for rows.Next() {
		var (
			id                         uuid.UUID
			content, categoryPathVal   string
			createdAt, updatedAt       time.Time
			metaJSON                   []byte
			semanticScore, keywordScore, rrfScore float64
			prevContent, nextContent   *string
		)
		if err := rows.Scan(&id, &content, &categoryPathVal, &createdAt, &updatedAt, &metaJSON,
			&semanticScore, &keywordScore, &rrfScore, &prevContent, &nextContent); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan search result")
		}

		fullContent := content
		if prevContent != nil {
			fullContent = "..." + *prevContent + "\n\n" + fullContent
		}
		if nextContent != nil {
			fullContent = fullContent + "\n\n" + *nextContent + "..."
		}

		var meta map[string]any
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &meta)
		}

		res := SearchResult{
			ID: id, Content: fullContent, CategoryPath: categoryPathVal,
			Score: rrfScore, SemanticScore: semanticScore, KeywordScore: keywordScore,
			CreatedAt: createdAt, UpdatedAt: updatedAt, Metadata: meta,
		}
		applyTTLWarning(&res, updatedAt)
		results = append(results, res)
		touchedIDs = append(touchedIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to read search results")
	}

	if len(touchedIDs) > 0 {
		if _, err := r.store.Pool().Exec(ctx, `UPDATE memories SET last_accessed_at = $1 WHERE id = ANY($2)`, time.Now().UTC(), touchedIDs); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to update last_accessed_at")
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return !results[i].IsExpired && results[j].IsExpired
	})
	return results, nil
}

// applyTTLWarning flags a result as expired when its ttl_days metadata has
// elapsed since it was last updated.
func applyTTLWarning(res *SearchResult, updatedAt time.Time) {
	ttlDays, ok := res.Metadata["ttl_days"]
	if !ok {
		return
	}
	days, ok := ttlDays.(float64)
	if !ok {
		return
	}
	if time.Now().UTC().After(updatedAt.Add(time.Duration(days) * 24 * time.Hour)) {
		res.IsExpired = true
		res.Warning = "TTL EXPIRED: This memory (ID: " + res.ID.String() + ") may be outdated. Please verify with the user and update if necessary."
	}
}
