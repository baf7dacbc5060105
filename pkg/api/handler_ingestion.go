package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

type memorizeContextRequest struct {
	Text    string `json:"text"`
	TTLDays *int   `json:"ttl_days"`
}

// handleMemorizeContext enqueues text for autonomous ingestion, returning a
// job_id immediately — the background queue worker does the actual
// chunking, categorizing, deduplicating and merging.
func (s *Server) handleMemorizeContext(c *gin.Context) {
	var req memorizeContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		fail(c, "text must be a non-empty string")
		return
	}
	if len(req.Text) > s.cfg.MaxMemorizeTextLength {
		fail(c, "text exceeds maximum allowed length")
		return
	}
	if req.TTLDays != nil && *req.TTLDays < 1 {
		fail(c, "ttl_days must be a positive integer")
		return
	}

	jobID, err := s.store.EnqueueJob(c.Request.Context(), s.store.Pool(), req.Text, req.TTLDays)
	if err != nil {
		failErr(c, err)
		return
	}

	ok(c, gin.H{
		"job_id":  jobID,
		"message": "Ingestion enqueued. Poll check_ingestion_status(job_id) for progress.",
	})
}

type checkIngestionStatusRequest struct {
	JobID string `json:"job_id"`
}

// handleCheckIngestionStatus polls the processing status of a
// memorize_context job.
func (s *Server) handleCheckIngestionStatus(c *gin.Context) {
	var req checkIngestionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	jobID, err := parseUUID(req.JobID)
	if err != nil {
		fail(c, "job_id must be a valid UUID")
		return
	}

	job, err := s.store.JobStatus(c.Request.Context(), s.store.Pool(), jobID)
	if err != nil {
		failErr(c, err)
		return
	}

	ok(c, gin.H{
		"job_id":     job.JobID,
		"status":     job.Status,
		"error":      job.Error,
		"created_at": job.CreatedAt,
	})
}
