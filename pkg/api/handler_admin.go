package api

import (
	"github.com/gin-gonic/gin"

	"github.com/isaacriehm/memory-mcp/pkg/identity"
)

type pruneHistoryRequest struct {
	DaysOld int `json:"days_old"`
}

// handlePruneHistory batch-deletes superseded memories older than the given
// retention window, keeping the supersession graph from growing unbounded.
func (s *Server) handlePruneHistory(c *gin.Context) {
	var req pruneHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.DaysOld < 0 {
		fail(c, "days_old must be a non-negative integer")
		return
	}

	deleted, err := s.store.PruneHistory(c.Request.Context(), s.store.Pool(), req.DaysOld)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted_count": deleted})
}

type exportMemoriesRequest struct {
	CategoryPath string `json:"category_path"`
}

// handleExportMemories dumps every active memory (optionally restricted to
// a category subtree) as a portable list, for offline backup or analysis.
func (s *Server) handleExportMemories(c *gin.Context) {
	var req exportMemoriesRequest
	_ = c.ShouldBindJSON(&req)

	var prefix string
	if req.CategoryPath != "" {
		prefix = identity.SanitizePath(req.CategoryPath)
	}

	memories, err := s.store.ExportMemories(c.Request.Context(), s.store.Pool(), prefix)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"count": len(memories), "memories": memories})
}

// handleRunDiagnostics reports DB pool stats, ingestion counts and taxonomy
// health counters an operator needs to judge system state at a glance.
func (s *Server) handleRunDiagnostics(c *gin.Context) {
	ctx := c.Request.Context()

	diag, err := s.store.RunDiagnostics(ctx, s.store.Pool())
	if err != nil {
		failErr(c, err)
		return
	}
	health, err := s.store.Health(ctx)
	if err != nil {
		failErr(c, err)
		return
	}

	var primerLastUpdated any
	if diag.PrimerLastUpdated != nil {
		primerLastUpdated = *diag.PrimerLastUpdated
	}

	ok(c, gin.H{
		"pool_stats": gin.H{
			"size": health.AcquiredConns + health.IdleConns,
			"idle": health.IdleConns,
		},
		"ingestion":            diag.IngestionCounts,
		"expired_memories":     diag.ExpiredCount,
		"archived_memories":    diag.ArchivedCount,
		"primer_last_updated":  primerLastUpdated,
		"l1_root_violations":   diag.L1RootViolations,
	})
}

// handleGetIngestionStats reports counts by status, the oldest pending
// job's age, and the last few failed jobs, for diagnosing a stuck queue.
func (s *Server) handleGetIngestionStats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := s.store.IngestionStatusCounts(ctx, s.store.Pool())
	if err != nil {
		failErr(c, err)
		return
	}
	oldestAge, err := s.store.OldestPendingAge(ctx, s.store.Pool())
	if err != nil {
		failErr(c, err)
		return
	}
	failedJobs, err := s.store.RecentFailedJobs(ctx, s.store.Pool(), 5)
	if err != nil {
		failErr(c, err)
		return
	}

	lastFailed := make([]gin.H, len(failedJobs))
	for i, j := range failedJobs {
		lastFailed[i] = gin.H{"job_id": j.JobID, "error": j.Error, "created_at": j.CreatedAt}
	}

	var oldestPendingAgeSeconds any
	if oldestAge > 0 {
		oldestPendingAgeSeconds = oldestAge.Seconds()
	}

	ok(c, gin.H{
		"counts":                      counts,
		"oldest_pending_age_seconds": oldestPendingAgeSeconds,
		"last_failed":                lastFailed,
	})
}

type flushStagingRequest struct {
	DaysOld *int `json:"days_old"`
}

// handleFlushStaging deletes complete/failed staging rows older than the
// given retention window (7 days by default), keeping ingestion_staging
// from growing unbounded.
func (s *Server) handleFlushStaging(c *gin.Context) {
	var req flushStagingRequest
	_ = c.ShouldBindJSON(&req)

	daysOld := 7
	if req.DaysOld != nil {
		daysOld = *req.DaysOld
	}
	if daysOld < 0 {
		fail(c, "days_old must be a non-negative integer")
		return
	}

	deleted, err := s.store.PurgeOldStaging(c.Request.Context(), s.store.Pool(), daysOld)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted_count": deleted})
}
