package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacriehm/memory-mcp/pkg/identity"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

type deleteMemoryRequest struct {
	ID string `json:"id"`
}

// handleDeleteMemory removes a memory together with the whole chunk chain
// it belongs to (every section linked by sequence_next, forward and
// backward), the unit one ingestion call produced.
func (s *Server) handleDeleteMemory(c *gin.Context) {
	var req deleteMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.ID)
	if err != nil {
		fail(c, "id must be a valid UUID")
		return
	}

	ctx := c.Request.Context()
	mem, err := s.store.GetMemory(ctx, s.store.Pool(), id)
	profileChanged := err == nil && store.IsProfilePath(mem.CategoryPath)

	deletedCount, err := s.store.DeleteMemoryChain(ctx, s.store.Pool(), id)
	if err != nil {
		failErr(c, err)
		return
	}

	if deletedCount > 0 {
		if err := s.primer.Synthesize(ctx, profileChanged); err != nil {
			slog.Warn("Primer refresh after delete_memory failed.", "error", err)
		}
	}
	ok(c, gin.H{"deleted": deletedCount > 0, "id": id})
}

type updateMemoryMetadataRequest struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
}

// handleUpdateMemoryMetadata merges new key/value pairs into a memory's
// metadata without touching content or category — the way to set
// ttl_days or add tags after the fact.
func (s *Server) handleUpdateMemoryMetadata(c *gin.Context) {
	var req updateMemoryMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.ID)
	if err != nil {
		fail(c, "id must be a valid UUID")
		return
	}
	if ttlDays, present := req.Metadata["ttl_days"]; present {
		n, isNumber := ttlDays.(float64)
		if !isNumber || n < 1 {
			fail(c, "ttl_days must be a positive integer")
			return
		}
	}

	ctx := c.Request.Context()
	if err := s.store.UpdateMemoryMetadata(ctx, s.store.Pool(), id, req.Metadata, time.Now().UTC()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"id": id, "metadata": req.Metadata})
}

type recategorizeMemoryRequest struct {
	ID              string `json:"id"`
	NewCategoryPath string `json:"new_category_path"`
}

// handleRecategorizeMemory fixes the category path of a single
// miscategorized memory. The system primer is pinned at
// reference.system.primer and refuses to move.
func (s *Server) handleRecategorizeMemory(c *gin.Context) {
	var req recategorizeMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.ID)
	if err != nil {
		fail(c, "id must be a valid UUID")
		return
	}
	safePath := identity.SanitizePath(req.NewCategoryPath)

	ctx := c.Request.Context()
	if err := s.store.RecategorizeMemory(ctx, s.store.Pool(), id, safePath, time.Now().UTC()); err != nil {
		failErr(c, err)
		return
	}
	if err := s.primer.Synthesize(ctx, true); err != nil {
		slog.Warn("Primer refresh after recategorize_memory failed.", "error", err)
	}
	ok(c, gin.H{"id": id, "new_category_path": safePath})
}

type bulkMoveCategoryRequest struct {
	OldPathPrefix string `json:"old_path_prefix"`
	NewPathPrefix string `json:"new_path_prefix"`
}

// handleBulkMoveCategory rewrites the category prefix for every memory in a
// taxonomy subtree, superseded and archived ones included, e.g. moving software.web.* to
// projects.myapp.backend.*.
func (s *Server) handleBulkMoveCategory(c *gin.Context) {
	var req bulkMoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	safeOld := identity.SanitizePath(req.OldPathPrefix)
	safeNew := identity.SanitizePath(req.NewPathPrefix)

	ctx := c.Request.Context()
	updatedCount, err := s.store.BulkMoveCategory(ctx, s.store.Pool(), safeOld, safeNew, time.Now().UTC())
	if err != nil {
		failErr(c, err)
		return
	}
	if updatedCount > 0 {
		if err := s.primer.Synthesize(ctx, true); err != nil {
			slog.Warn("Primer refresh after bulk_move_category failed.", "error", err)
		}
	}
	ok(c, gin.H{
		"updated_count": updatedCount,
		"message":       "Moved matching records.",
	})
}
