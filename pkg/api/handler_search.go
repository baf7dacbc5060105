package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

type searchMemoryRequest struct {
	Query        string `json:"query"`
	CategoryPath string `json:"category_path"`
	Limit        int    `json:"limit"`
}

func (s *Server) handleSearchMemory(c *gin.Context) {
	var req searchMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		fail(c, "query must be a non-empty string")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultSearchLimit
	}

	results, err := s.retrieval.Search(c.Request.Context(), s.embed, req.Query, req.CategoryPath, limit)
	if err != nil {
		failErr(c, err)
		return
	}

	out := make([]gin.H, len(results))
	for i, r := range results {
		item := gin.H{
			"id":             r.ID,
			"content":        r.Content,
			"category_path":  r.CategoryPath,
			"score":          r.Score,
			"semantic_score": r.SemanticScore,
			"keyword_score":  r.KeywordScore,
			"created_at":     r.CreatedAt,
			"updated_at":     r.UpdatedAt,
			"metadata":       r.Metadata,
		}
		if r.IsExpired {
			item["ttl_warning"] = r.Warning
		}
		out[i] = item
	}
	ok(c, gin.H{"results": out})
}

func (s *Server) handleListCategories(c *gin.Context) {
	cats, err := s.retrieval.ListCategories(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"categories": cats})
}

type exploreTaxonomyRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleExploreTaxonomy(c *gin.Context) {
	var req exploreTaxonomyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	tree, total, categories, err := s.retrieval.ExploreTaxonomy(c.Request.Context(), req.Path)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"path": req.Path, "tree": tree, "total": total, "categories": categories})
}

type fetchDocumentRequest struct {
	MemoryID string `json:"memory_id"`
}

func (s *Server) handleFetchDocument(c *gin.Context) {
	var req fetchDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.MemoryID)
	if err != nil {
		fail(c, "memory_id must be a valid UUID")
		return
	}

	doc, err := s.retrieval.FetchDocument(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{
		"memory_id":     doc.MemoryID,
		"chunk_count":   doc.ChunkCount,
		"category_path": doc.CategoryPath,
		"content":       doc.Content,
	})
}

type traceHistoryRequest struct {
	MemoryID string `json:"memory_id"`
}

func (s *Server) handleTraceHistory(c *gin.Context) {
	var req traceHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.MemoryID)
	if err != nil {
		fail(c, "memory_id must be a valid UUID")
		return
	}

	chain, err := s.retrieval.TraceHistory(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}

	out := make([]gin.H, len(chain))
	for i, v := range chain {
		out[i] = gin.H{
			"id":            v.ID,
			"content":       v.Content,
			"superseded_by": v.SupersededBy,
			"created_at":    v.CreatedAt,
			"updated_at":    v.UpdatedAt,
			"generation":    v.Generation,
		}
	}
	ok(c, gin.H{
		"memory_id":     id,
		"version_count": len(chain),
		"chain":         out,
	})
}
