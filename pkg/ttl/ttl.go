// Package ttl runs the hourly maintenance daemon: it soft-archives memories
// whose ttl_days has elapsed, hard-deletes records archived more than 30
// days ago, purges stale ingestion_staging and context_store rows, and
// triggers a primer refresh whenever any of those passes touched a row.
package ttl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/errs"
	"github.com/isaacriehm/memory-mcp/pkg/primer"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

const interval = time.Hour

// Daemon is the hourly retention sweep.
type Daemon struct {
	store  *store.Store
	primer *primer.Synthesizer
	cfg    config.Config

	cancel context.CancelFunc
	done   chan struct{}
}

func New(s *store.Store, pr *primer.Synthesizer, cfg config.Config) *Daemon {
	return &Daemon{store: s, primer: pr, cfg: cfg}
}

// Start launches the background sweep loop. Safe to call once.
func (d *Daemon) Start(ctx context.Context) {
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx)
	slog.Info("TTL daemon started", "interval", interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (d *Daemon) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	slog.Info("TTL daemon stopped")
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep runs one maintenance pass. It never returns an error: every step is
// independent and logs its own failure so one bad step doesn't block the
// rest.
func (d *Daemon) sweep(ctx context.Context) {
	pool := d.store.Pool()

	softCount, err := d.archiveExpired(ctx, pool)
	if err != nil {
		slog.Error("TTL daemon: soft-archive failed", "error", err)
	}

	hardCount, err := d.hardDeleteArchived(ctx, pool)
	if err != nil {
		slog.Error("TTL daemon: hard-delete failed", "error", err)
	}

	stagingCount, err := d.store.PurgeOldStaging(ctx, pool, d.cfg.StagingRetentionDays)
	if err != nil {
		slog.Error("TTL daemon: staging purge failed", "error", err)
	}

	contextCount, err := d.store.PurgeExpiredContext(ctx, pool)
	if err != nil {
		slog.Error("TTL daemon: context purge failed", "error", err)
	}

	if contextCount > 0 {
		slog.Info("TTL daemon: deleted expired context entries", "count", contextCount)
	}
	if softCount > 0 || hardCount > 0 || stagingCount > 0 {
		slog.Info("TTL daemon: maintenance pass complete",
			"soft_archived", softCount, "hard_deleted", hardCount, "staging_purged", stagingCount)
		if d.primer != nil {
			if err := d.primer.Synthesize(ctx, true); err != nil {
				slog.Error("TTL daemon: primer refresh failed", "error", err)
			}
		}
	} else if contextCount == 0 {
		slog.Debug("TTL daemon: no expired records found")
	}
}

// archiveExpired soft-deletes every memory whose ttl_days metadata has
// elapsed since it was last updated.
func (d *Daemon) archiveExpired(ctx context.Context, q store.Querier) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE memories
		SET archived_at = NOW()
		WHERE archived_at IS NULL
		  AND metadata->>'ttl_days' IS NOT NULL
		  AND NOW() > updated_at + (metadata->>'ttl_days')::int * INTERVAL '1 day'
	`)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to archive expired memories")
	}
	return tag.RowsAffected(), nil
}

// hardDeleteArchived permanently removes memories that have sat archived
// past the retention window.
func (d *Daemon) hardDeleteArchived(ctx context.Context, q store.Querier) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM memories WHERE archived_at IS NOT NULL AND archived_at < NOW() - INTERVAL '30 days'
	`)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, err, "failed to hard-delete archived memories")
	}
	return tag.RowsAffected(), nil
}
