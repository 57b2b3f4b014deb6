package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/scheduler"
)

type scheduleRepo struct {
	db *gorm.DB
}

func (r *scheduleRepo) Create(ctx context.Context, s *domain.WorkflowSchedule) error {
	m := toScheduleModel(s)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowSchedule, error) {
	var m WorkflowScheduleModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduler.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting schedule %s: %w", id, err)
	}
	return toScheduleDomain(&m), nil
}

func (r *scheduleRepo) List(ctx context.Context, userID uuid.UUID) ([]domain.WorkflowSchedule, error) {
	var models []WorkflowScheduleModel
	err := r.db.WithContext(ctx).Scopes(UserScope(userID)).
		Order("created_at ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}

	schedules := make([]domain.WorkflowSchedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *toScheduleDomain(&models[i]))
	}
	return schedules, nil
}

func (r *scheduleRepo) Update(ctx context.Context, s *domain.WorkflowSchedule) error {
	m := toScheduleModel(s)
	res := r.db.WithContext(ctx).Model(&WorkflowScheduleModel{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"name":            m.Name,
			"schedule_type":   m.ScheduleType,
			"cron_expression": m.CronExpression,
			"interval_s":      m.IntervalS,
			"run_at":          m.RunAt,
			"priority":        m.Priority,
			"enabled":         m.Enabled,
			"next_run_at":     m.NextRunAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating schedule %s: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrNotFound
	}
	return nil
}

func (r *scheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&WorkflowScheduleModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting schedule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrNotFound
	}
	return nil
}

func (r *scheduleRepo) GetDue(ctx context.Context, now time.Time) ([]domain.WorkflowSchedule, error) {
	var models []WorkflowScheduleModel
	err := r.db.WithContext(ctx).
		Where("enabled AND schedule_type IN ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
			[]string{string(domain.ScheduleCron), string(domain.ScheduleInterval), string(domain.ScheduleOnce)},
			now).
		Order("priority DESC, next_run_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("getting due schedules: %w", err)
	}

	schedules := make([]domain.WorkflowSchedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *toScheduleDomain(&models[i]))
	}
	return schedules, nil
}

func (r *scheduleRepo) AdvanceNextRun(ctx context.Context, id uuid.UUID, nextRunAt *time.Time) error {
	var next any = gorm.Expr("NULL")
	if nextRunAt != nil {
		next = *nextRunAt
	}
	// A NULL next_run_at drops the schedule out of GetDue for good; only
	// one-shot and externally fired schedules end up there.
	res := r.db.WithContext(ctx).Model(&WorkflowScheduleModel{}).
		Where("id = ?", id).Update("next_run_at", next)
	if res.Error != nil {
		return fmt.Errorf("advancing schedule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrNotFound
	}
	return nil
}

func (r *scheduleRepo) RecordRun(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, errMsg string) error {
	res := r.db.WithContext(ctx).Model(&WorkflowScheduleModel{}).
		Where("id = ?", id).Updates(map[string]any{
		"last_run_at": time.Now().UTC(),
		"last_status": string(status),
		"last_error":  errMsg,
	})
	if res.Error != nil {
		return fmt.Errorf("recording schedule run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrNotFound
	}
	return nil
}

type queueRepo struct {
	db *gorm.DB
}

func (r *queueRepo) Enqueue(ctx context.Context, item *domain.ScheduleQueueItem) error {
	m := toQueueModel(item)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("enqueueing schedule item: %w", err)
	}
	return nil
}

// Claim selects up to limit pending items FOR UPDATE SKIP LOCKED so several
// workers can poll the same queue without double-claiming.
func (r *queueRepo) Claim(ctx context.Context, workerID string, limit int) ([]domain.ScheduleQueueItem, error) {
	var claimed []domain.ScheduleQueueItem

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []ScheduleQueueModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", string(domain.ExecutionPending)).
			Order("priority DESC, enqueued_at ASC").
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return fmt.Errorf("selecting pending items: %w", err)
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
		}

		now := time.Now().UTC()
		err = tx.Model(&ScheduleQueueModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     string(domain.ExecutionRunning),
				"claimed_by": workerID,
				"claimed_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("marking items running: %w", err)
		}

		claimed = make([]domain.ScheduleQueueItem, 0, len(models))
		for i := range models {
			item := toQueueDomain(&models[i])
			item.Status = domain.ExecutionRunning
			item.ClaimedBy = workerID
			item.ClaimedAt = &now
			claimed = append(claimed, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claiming queue items: %w", err)
	}
	return claimed, nil
}

func (r *queueRepo) Complete(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	res := r.db.WithContext(ctx).Model(&ScheduleQueueModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(status),
			"completed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("completing queue item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrNotFound
	}
	return nil
}

func (r *queueRepo) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ScheduleQueueModel{}).
		Where("status = ?", string(domain.ExecutionPending)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting pending queue items: %w", err)
	}
	return count, nil
}

type historyRepo struct {
	db *gorm.DB
}

func (r *historyRepo) RecordExecution(ctx context.Context, ex *domain.ScheduleExecution) error {
	m := toScheduleExecutionModel(ex)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("recording schedule execution: %w", err)
	}
	return nil
}

func (r *historyRepo) ListExecutions(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ScheduleExecution, error) {
	var models []ScheduleExecutionModel
	q := r.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing schedule executions: %w", err)
	}

	execs := make([]domain.ScheduleExecution, 0, len(models))
	for i := range models {
		execs = append(execs, toScheduleExecutionDomain(&models[i]))
	}
	return execs, nil
}

func (r *historyRepo) Statistics(ctx context.Context, scheduleID uuid.UUID) (*domain.ScheduleStatistics, error) {
	var m ScheduleStatisticsModel
	err := r.db.WithContext(ctx).First(&m, "schedule_id = ?", scheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduler.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting schedule statistics: %w", err)
	}
	return toStatisticsDomain(&m), nil
}

func (r *historyRepo) UpsertStatistics(ctx context.Context, stats *domain.ScheduleStatistics) error {
	m := toStatisticsModel(stats)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "schedule_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_runs", "success_runs", "failed_runs",
				"avg_duration_ms", "last_run_at", "updated_at",
			}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("upserting schedule statistics: %w", err)
	}
	return nil
}

func (r *historyRepo) CleanupExecutions(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("started_at < ?", before).
		Delete(&ScheduleExecutionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleaning up schedule executions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
