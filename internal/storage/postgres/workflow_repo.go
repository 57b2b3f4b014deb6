package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/workflow"
)

type workflowRepo struct {
	db *gorm.DB
}

func (r *workflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	m := toWorkflowModel(wf)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating workflow: %w", err)
	}
	return nil
}

func (r *workflowRepo) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Workflow, error) {
	var m WorkflowModel
	err := r.db.WithContext(ctx).Scopes(UserScope(userID)).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting workflow %s: %w", id, err)
	}
	return toWorkflowDomain(&m), nil
}

func (r *workflowRepo) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]domain.Workflow, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&WorkflowModel{}).
		Scopes(UserScope(userID)).Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("counting workflows: %w", err)
	}

	var models []WorkflowModel
	q := r.db.WithContext(ctx).Scopes(UserScope(userID)).
		Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("listing workflows: %w", err)
	}

	flows := make([]domain.Workflow, 0, len(models))
	for i := range models {
		flows = append(flows, *toWorkflowDomain(&models[i]))
	}
	return flows, total, nil
}

func (r *workflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	m := toWorkflowModel(wf)
	res := r.db.WithContext(ctx).Model(&WorkflowModel{}).
		Scopes(UserScope(wf.UserID)).
		Where("id = ?", wf.ID).
		Updates(map[string]any{
			"name":          m.Name,
			"description":   m.Description,
			"workflow_data": m.WorkflowData,
			"is_active":     m.IsActive,
		})
	if res.Error != nil {
		return fmt.Errorf("updating workflow %s: %w", wf.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *workflowRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Scopes(UserScope(userID)).Delete(&WorkflowModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting workflow %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

type executionRepo struct {
	db *gorm.DB
}

func (r *executionRepo) Create(ctx context.Context, ex *domain.WorkflowExecution) error {
	m := toExecutionModel(ex)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating execution: %w", err)
	}
	// Surface the sequence-assigned legacy identifier to the caller.
	ex.OldID = m.OldID
	return nil
}

func (r *executionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	var m WorkflowExecutionModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting execution %s: %w", id, err)
	}
	return toExecutionDomain(&m), nil
}

func (r *executionRepo) Update(ctx context.Context, ex *domain.WorkflowExecution) error {
	m := toExecutionModel(ex)
	res := r.db.WithContext(ctx).Model(&WorkflowExecutionModel{}).
		Where("id = ?", ex.ID).
		Updates(map[string]any{
			"status":       m.Status,
			"output":       m.Output,
			"error":        m.Error,
			"started_at":   m.StartedAt,
			"completed_at": m.CompletedAt,
			"duration_ms":  m.DurationMS,
		})
	if res.Error != nil {
		return fmt.Errorf("updating execution %s: %w", ex.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *executionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&WorkflowExecutionModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting execution %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

// executionSortColumns whitelists sortable columns; anything else falls back
// to created_at.
var executionSortColumns = map[string]string{
	"created_at":  "created_at",
	"status":      "status",
	"duration_ms": "duration_ms",
}

func (r *executionRepo) List(ctx context.Context, filter workflow.ExecutionFilter) ([]domain.WorkflowExecution, int64, error) {
	q := r.db.WithContext(ctx).Model(&WorkflowExecutionModel{}).Scopes(UserScope(filter.UserID))
	if filter.WorkflowID != uuid.Nil {
		q = q.Where("workflow_id = ?", filter.WorkflowID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting executions: %w", err)
	}

	column, ok := executionSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if filter.SortOrder == "asc" {
		direction = "ASC"
	}

	q = q.Order(column + " " + direction).Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var models []WorkflowExecutionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("listing executions: %w", err)
	}

	execs := make([]domain.WorkflowExecution, 0, len(models))
	for i := range models {
		execs = append(execs, *toExecutionDomain(&models[i]))
	}
	return execs, total, nil
}
