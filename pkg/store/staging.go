package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
)

// IngestionJob is a row of ingestion_staging: a piece of raw text queued for
// the background worker to segment, embed and persist.
type IngestionJob struct {
	JobID     uuid.UUID
	RawText   string
	TTLDays   *int
	Status    string
	CreatedAt time.Time
	Error     *string
}

// EnqueueJob stages raw text for asynchronous ingestion and returns the new
// job's ID.
func (s *Store) EnqueueJob(ctx context.Context, q Querier, rawText string, ttlDays *int) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO ingestion_staging (raw_text, ttl_days, status)
		VALUES ($1, $2, 'pending')
		RETURNING job_id
	`, rawText, ttlDays).Scan(&id)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.StoreUnavailable, err, "failed to enqueue ingestion job")
	}
	return id, nil
}

// JobStatus fetches the status (and any error) of a single ingestion job.
func (s *Store) JobStatus(ctx context.Context, q Querier, jobID uuid.UUID) (*IngestionJob, error) {
	var j IngestionJob
	err := q.QueryRow(ctx, `
		SELECT job_id, raw_text, ttl_days, status, created_at, error
		FROM ingestion_staging WHERE job_id = $1
	`, jobID).Scan(&j.JobID, &j.RawText, &j.TTLDays, &j.Status, &j.CreatedAt, &j.Error)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.New(errs.NotFound, "ingestion job %s not found", jobID)
		}
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch ingestion job")
	}
	return &j, nil
}

// ResetStaleProcessing resets jobs left in 'processing' by a worker that
// crashed mid-run back to 'pending', run once at worker startup.
func (s *Store) ResetStaleProcessing(ctx context.Context, q Querier) (int64, error) {
	tag, err := q.Exec(ctx, `UPDATE ingestion_staging SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to reset stale ingestion jobs")
	}
	return tag.RowsAffected(), nil
}

// ClaimNextJob atomically claims the oldest pending job for processing using
// SELECT ... FOR UPDATE SKIP LOCKED nested in the UPDATE, so concurrent
// workers never race on the same row. Returns nil, nil if no job is pending.
func (s *Store) ClaimNextJob(ctx context.Context, q Querier) (*IngestionJob, error) {
	var j IngestionJob
	err := q.QueryRow(ctx, `
		UPDATE ingestion_staging
		SET status = 'processing'
		WHERE job_id = (
			SELECT job_id FROM ingestion_staging
			WHERE status = 'pending'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING job_id, raw_text, ttl_days, status, created_at, error
	`).Scan(&j.JobID, &j.RawText, &j.TTLDays, &j.Status, &j.CreatedAt, &j.Error)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to claim ingestion job")
	}
	return &j, nil
}

// CompleteJob marks a job as successfully processed.
func (s *Store) CompleteJob(ctx context.Context, q Querier, jobID uuid.UUID) error {
	_, err := q.Exec(ctx, `UPDATE ingestion_staging SET status = 'complete', error = NULL WHERE job_id = $1`, jobID)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to mark ingestion job complete")
	}
	return nil
}

// FailJob marks a job as failed, recording a truncated error message.
func (s *Store) FailJob(ctx context.Context, q Querier, jobID uuid.UUID, errMsg string) error {
	const maxErrLen = 1000
	if len(errMsg) > maxErrLen {
		errMsg = errMsg[:maxErrLen]
	}
	_, err := q.Exec(ctx, `UPDATE ingestion_staging SET status = 'failed', error = $2 WHERE job_id = $1`, jobID, errMsg)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, err, "failed to mark ingestion job failed")
	}
	return nil
}

// IngestionStatusCounts summarizes ingestion_staging by status.
func (s *Store) IngestionStatusCounts(ctx context.Context, q Querier) (map[string]int64, error) {
	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM ingestion_staging GROUP BY status`)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to count ingestion statuses")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan ingestion status row")
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// OldestPendingAge returns how long the oldest pending job has been waiting,
// or zero if none is pending.
func (s *Store) OldestPendingAge(ctx context.Context, q Querier) (time.Duration, error) {
	var created *time.Time
	err := q.QueryRow(ctx, `SELECT MIN(created_at) FROM ingestion_staging WHERE status = 'pending'`).Scan(&created)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch oldest pending job")
	}
	if created == nil {
		return 0, nil
	}
	return time.Since(*created), nil
}

// RecentFailedJobs returns the most recent failed ingestion jobs, most
// recent first.
func (s *Store) RecentFailedJobs(ctx context.Context, q Querier, limit int) ([]IngestionJob, error) {
	rows, err := q.Query(ctx, `
		SELECT job_id, raw_text, ttl_days, status, created_at, error
		FROM ingestion_staging WHERE status = 'failed'
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch recent failed jobs")
	}
	defer rows.Close()

	var out []IngestionJob
	for rows.Next() {
		var j IngestionJob
		if err := rows.Scan(&j.JobID, &j.RawText, &j.TTLDays, &j.Status, &j.CreatedAt, &j.Error); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan failed job row")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// PurgeOldStaging deletes completed/failed staging rows older than
// retentionDays.
func (s *Store) PurgeOldStaging(ctx context.Context, q Querier, retentionDays int) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM ingestion_staging
		WHERE status IN ('complete', 'failed')
		  AND created_at < NOW() - ($1 || ' days')::interval
	`, retentionDays)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to purge old staging rows")
	}
	return tag.RowsAffected(), nil
}

// FlushStaging deletes every pending/processing staging row, an operator
// escape hatch for clearing a backlog that should not be retried.
func (s *Store) FlushStaging(ctx context.Context, q Querier) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM ingestion_staging WHERE status IN ('pending', 'processing')`)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to flush staging")
	}
	return tag.RowsAffected(), nil
}
