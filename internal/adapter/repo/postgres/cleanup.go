package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Beginner is the subset of *pgxpool.Pool used by CleanupService, kept
// narrow so unit tests can fake it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CleanupService enforces data retention by deleting saga instances and
// their result documents older than Retention, per the retention policy
// shared by the saga store and the result store.
type CleanupService struct {
	Pool      Beginner
	Retention time.Duration
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool Beginner, retention time.Duration) *CleanupService {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &CleanupService{Pool: pool, Retention: retention}
}

// CleanupOldData removes saga instances older than Retention, deleting their
// result documents first in the same transaction.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().Add(-s.Retention)

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var deletedResults int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM result_documents
			WHERE job_id IN (
				SELECT job_id FROM saga_instances WHERE created_at < $1
			)
			RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedResults)
	if err != nil {
		slog.Debug("no result documents to delete", slog.Any("error", err))
	}

	var deletedSagas int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM saga_instances
			WHERE created_at < $1
			RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedSagas)
	if err != nil {
		slog.Debug("no saga instances to delete", slog.Any("error", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_sagas", deletedSagas),
		slog.Int64("deleted_results", deletedResults),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
