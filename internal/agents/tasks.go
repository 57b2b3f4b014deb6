package agents

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/workflow"
)

// Export formats.
const (
	ExportCSV  = "csv"
	ExportJSON = "json"
)

// TaskFilter narrows the dashboard task listing.
type TaskFilter struct {
	Status    string // Empty = all statuses.
	SortBy    string // "created_at" (default), "status", "duration_ms".
	SortOrder string // "asc" or "desc" (default).
	Limit     int    // 0 = dashboard default of 50.
}

// TaskView exposes workflow executions as dashboard tasks with the actions
// the dashboard offers: cancel, retry, delete, export.
type TaskView struct {
	engine     *workflow.Engine
	executions workflow.ExecutionStore
}

// NewTaskView creates a TaskView.
func NewTaskView(engine *workflow.Engine, executions workflow.ExecutionStore) *TaskView {
	return &TaskView{engine: engine, executions: executions}
}

// List returns executions matching the filter plus the unfiltered total.
func (v *TaskView) List(ctx context.Context, f TaskFilter) ([]domain.WorkflowExecution, int64, error) {
	status := domain.ExecutionStatus(f.Status)
	if f.Status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status filter %q", f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	return v.executions.List(ctx, workflow.ExecutionFilter{
		Status:    status,
		SortBy:    f.SortBy,
		SortOrder: f.SortOrder,
		Limit:     limit,
	})
}

// Cancel aborts the execution.
func (v *TaskView) Cancel(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	return v.engine.Cancel(ctx, id)
}

// Retry clones a failed or cancelled execution as a fresh pending one.
func (v *TaskView) Retry(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	return v.engine.Retry(ctx, id)
}

// Delete removes the execution record.
func (v *TaskView) Delete(ctx context.Context, id uuid.UUID) error {
	return v.executions.Delete(ctx, id)
}

// Export renders the filtered tasks as CSV or JSON, returning the bytes and
// content type.
func (v *TaskView) Export(ctx context.Context, format string, f TaskFilter) ([]byte, string, error) {
	tasks, _, err := v.List(ctx, f)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case ExportJSON:
		data, err := json.MarshalIndent(exportRows(tasks), "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encoding export: %w", err)
		}
		return data, "application/json", nil
	case ExportCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"id", "workflow_id", "status", "triggered_by", "created_at", "duration_ms", "error"})
		for _, ex := range tasks {
			_ = w.Write([]string{
				ex.ID.String(),
				ex.WorkflowID.String(),
				string(ex.Status),
				ex.TriggeredBy,
				ex.CreatedAt.Format(time.RFC3339),
				strconv.FormatInt(ex.DurationMS, 10),
				ex.Error,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", fmt.Errorf("encoding export: %w", err)
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

type exportRow struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
	TriggeredBy string `json:"triggered_by"`
	CreatedAt   string `json:"created_at"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

func exportRows(tasks []domain.WorkflowExecution) []exportRow {
	rows := make([]exportRow, 0, len(tasks))
	for _, ex := range tasks {
		rows = append(rows, exportRow{
			ID:          ex.ID.String(),
			WorkflowID:  ex.WorkflowID.String(),
			Status:      string(ex.Status),
			TriggeredBy: ex.TriggeredBy,
			CreatedAt:   ex.CreatedAt.Format(time.RFC3339),
			DurationMS:  ex.DurationMS,
			Error:       ex.Error,
		})
	}
	return rows
}
