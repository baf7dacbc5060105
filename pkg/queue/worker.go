// Package queue runs the single long-lived background worker that drains
// ingestion_staging: claim the oldest pending job, hand its raw text to the
// ingestion pipeline, and record the outcome. memorize_context jobs are
// cheap to queue and rare enough that one poller is sufficient — SKIP
// LOCKED claiming still makes it safe to run more than one if that ever
// changes.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/isaacriehm/memory-mcp/pkg/pipeline"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

const pollInterval = 2 * time.Second

// Worker polls ingestion_staging and runs the ingestion pipeline against
// each claimed job.
type Worker struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(s *store.Store, p *pipeline.Pipeline) *Worker {
	return &Worker{store: s, pipeline: p, stopCh: make(chan struct{})}
}

// Start resets any jobs orphaned by a previous crash and begins the polling
// loop in a goroutine.
func (w *Worker) Start(ctx context.Context) error {
	n, err := w.store.ResetStaleProcessing(ctx, w.store.Pool())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Warn("Reset stale processing ingestion jobs", "count", n)
	}

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop signals the worker to stop and waits for it to finish its current
// job, if any. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	slog.Info("Ingestion worker started")

	for {
		select {
		case <-w.stopCh:
			slog.Info("Ingestion worker shutting down")
			return
		case <-ctx.Done():
			slog.Info("Context cancelled, ingestion worker shutting down")
			return
		default:
			processed, err := w.pollAndProcess(ctx)
			if err != nil {
				slog.Error("Error processing ingestion job", "error", err)
				w.sleep(5 * time.Second)
				continue
			}
			if !processed {
				w.sleep(pollInterval)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims at most one pending job and runs it through the
// pipeline, reporting whether a job was found.
func (w *Worker) pollAndProcess(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, w.store.Pool())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := slog.With("job_id", job.JobID)
	log.Info("Ingestion job claimed")

	_, runErr := w.pipeline.Run(ctx, job.RawText, job.TTLDays)
	if runErr != nil {
		log.Error("Ingestion job failed", "error", runErr)
		if err := w.store.FailJob(ctx, w.store.Pool(), job.JobID, runErr.Error()); err != nil {
			return true, err
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, w.store.Pool(), job.JobID); err != nil {
		return true, err
	}
	log.Info("Ingestion job complete")
	return true, nil
}
