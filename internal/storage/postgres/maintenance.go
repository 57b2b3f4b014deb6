package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cartrita/cartrita/internal/domain"
)

type maintenanceRepo struct {
	db *gorm.DB
}

// ArchiveExecutions moves terminal executions that started before the cutoff
// into workflow_executions_archive. Insert and delete run in one transaction
// on the same predicate; the returned count is the number of rows moved.
// Rows with a NULL started_at (cancelled before ever running) never age out
// by this predicate.
func (r *maintenanceRepo) ArchiveExecutions(ctx context.Context, before time.Time) (int64, string, error) {
	var archived int64
	var sizeEstimate string

	terminal := []string{
		string(domain.ExecutionCompleted),
		string(domain.ExecutionFailed),
		string(domain.ExecutionCancelled),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(`
			SELECT pg_size_pretty(COALESCE(SUM(pg_column_size(we.*)), 0)::bigint)
			FROM workflow_executions we
			WHERE we.started_at < ? AND we.status IN ?`,
			before, terminal,
		).Scan(&sizeEstimate).Error
		if err != nil {
			return fmt.Errorf("estimating archive size: %w", err)
		}

		res := tx.Exec(`
			INSERT INTO workflow_executions_archive
				(id, old_id, workflow_id, user_id, status, triggered_by,
				 input, output, error, started_at, completed_at, duration_ms,
				 created_at, archived_at)
			SELECT
				id, old_id, workflow_id, user_id, status, triggered_by,
				input, output, error, started_at, completed_at, duration_ms,
				created_at, NOW()
			FROM workflow_executions
			WHERE started_at < ? AND status IN ?`,
			before, terminal,
		)
		if res.Error != nil {
			return fmt.Errorf("copying to archive: %w", res.Error)
		}
		archived = res.RowsAffected

		del := tx.Exec(`
			DELETE FROM workflow_executions
			WHERE started_at < ? AND status IN ?`,
			before, terminal,
		)
		if del.Error != nil {
			return fmt.Errorf("deleting archived rows: %w", del.Error)
		}
		if del.RowsAffected != archived {
			return fmt.Errorf("archive count mismatch: copied %d, deleted %d",
				archived, del.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("archiving executions: %w", err)
	}
	return archived, sizeEstimate, nil
}

// RefreshPerformanceViews rebuilds each materialized view. CONCURRENTLY keeps
// the old contents readable during the rebuild; it needs the unique indexes
// created by ensureViews.
func (r *maintenanceRepo) RefreshPerformanceViews(ctx context.Context) error {
	for _, v := range performanceViews {
		stmt := fmt.Sprintf(`REFRESH MATERIALIZED VIEW CONCURRENTLY %s`, v.name)
		if err := r.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("refreshing view %s: %w", v.name, err)
		}
	}
	return nil
}

func (r *maintenanceRepo) RecordHealthSnapshots(ctx context.Context, snaps []domain.HealthSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	models := make([]HealthSnapshotModel, 0, len(snaps))
	for _, s := range snaps {
		models = append(models, HealthSnapshotModel{
			ID:         s.ID,
			EntityType: s.EntityType,
			EntityID:   s.EntityID,
			Score:      s.Score,
			CreatedAt:  s.CreatedAt,
		})
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("recording health snapshots: %w", err)
	}
	return nil
}

func (r *maintenanceRepo) CountArchived(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&WorkflowExecutionArchiveModel{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting archived executions: %w", err)
	}
	return count, nil
}
