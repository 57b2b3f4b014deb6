// Package workflow manages user workflows and their executions.
// An execution moves pending → running → {completed, failed, cancelled};
// the engine rejects any other transition before it reaches storage.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// ErrNotFound is returned when a workflow or execution does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned for status changes outside the lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the persistence interface for workflows.
type Store interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Workflow, error)
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]domain.Workflow, int64, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ExecutionStore is the persistence interface for workflow executions.
type ExecutionStore interface {
	Create(ctx context.Context, ex *domain.WorkflowExecution) error
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error)
	Update(ctx context.Context, ex *domain.WorkflowExecution) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ExecutionFilter) ([]domain.WorkflowExecution, int64, error)
}

// ExecutionFilter narrows and orders execution listings.
type ExecutionFilter struct {
	UserID     uuid.UUID // uuid.Nil = all users.
	WorkflowID uuid.UUID // uuid.Nil = all workflows.
	Status     domain.ExecutionStatus
	SortBy     string // "created_at" (default), "status", "duration_ms".
	SortOrder  string // "asc" or "desc" (default).
	Offset     int
	Limit      int
}

// Engine drives the execution lifecycle.
type Engine struct {
	workflows  Store
	executions ExecutionStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(workflows Store, executions ExecutionStore, logger *slog.Logger) *Engine {
	return &Engine{
		workflows:  workflows,
		executions: executions,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a pending execution for the workflow.
func (e *Engine) Submit(ctx context.Context, userID, workflowID uuid.UUID, triggeredBy string, input []byte) (*domain.WorkflowExecution, error) {
	wf, err := e.workflows.Get(ctx, userID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", workflowID, err)
	}
	if !wf.IsActive {
		return nil, fmt.Errorf("workflow %s is inactive", workflowID)
	}

	now := e.now()
	ex := &domain.WorkflowExecution{
		ID:          uuid.New(),
		WorkflowID:  wf.ID,
		UserID:      userID,
		Status:      domain.ExecutionPending,
		TriggeredBy: triggeredBy,
		Input:       input,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.executions.Create(ctx, ex); err != nil {
		return nil, fmt.Errorf("creating execution: %w", err)
	}

	e.logger.Info("execution submitted",
		slog.String("execution_id", ex.ID.String()),
		slog.String("workflow_id", wf.ID.String()),
		slog.String("triggered_by", triggeredBy),
	)
	return ex, nil
}

// Start moves a pending execution to running.
func (e *Engine) Start(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	return e.transition(ctx, id, domain.ExecutionRunning, nil, "")
}

// Complete finishes a running execution with its output.
func (e *Engine) Complete(ctx context.Context, id uuid.UUID, output []byte) (*domain.WorkflowExecution, error) {
	return e.transition(ctx, id, domain.ExecutionCompleted, output, "")
}

// Fail finishes a running execution with an error message.
func (e *Engine) Fail(ctx context.Context, id uuid.UUID, errMsg string) (*domain.WorkflowExecution, error) {
	return e.transition(ctx, id, domain.ExecutionFailed, nil, errMsg)
}

// Cancel aborts a pending or running execution.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	return e.transition(ctx, id, domain.ExecutionCancelled, nil, "")
}

// Retry clones a terminal failed/cancelled execution as a fresh pending one.
func (e *Engine) Retry(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	prev, err := e.executions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading execution %s: %w", id, err)
	}
	if prev.Status != domain.ExecutionFailed && prev.Status != domain.ExecutionCancelled {
		return nil, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, prev.Status)
	}

	now := e.now()
	ex := &domain.WorkflowExecution{
		ID:          uuid.New(),
		WorkflowID:  prev.WorkflowID,
		UserID:      prev.UserID,
		Status:      domain.ExecutionPending,
		TriggeredBy: "retry",
		Input:       prev.Input,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.executions.Create(ctx, ex); err != nil {
		return nil, fmt.Errorf("creating retry execution: %w", err)
	}
	return ex, nil
}

// allowed transitions keyed by target status.
var allowedFrom = map[domain.ExecutionStatus][]domain.ExecutionStatus{
	domain.ExecutionRunning:   {domain.ExecutionPending},
	domain.ExecutionCompleted: {domain.ExecutionRunning},
	domain.ExecutionFailed:    {domain.ExecutionRunning, domain.ExecutionPending},
	domain.ExecutionCancelled: {domain.ExecutionPending, domain.ExecutionRunning},
}

func (e *Engine) transition(ctx context.Context, id uuid.UUID, to domain.ExecutionStatus, output []byte, errMsg string) (*domain.WorkflowExecution, error) {
	if err := domain.ValidateExecutionStatus(to); err != nil {
		return nil, err
	}

	ex, err := e.executions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading execution %s: %w", id, err)
	}

	ok := false
	for _, from := range allowedFrom[to] {
		if ex.Status == from {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, ex.Status, to)
	}

	now := e.now()
	ex.Status = to
	ex.UpdatedAt = now
	switch to {
	case domain.ExecutionRunning:
		ex.StartedAt = &now
	case domain.ExecutionCompleted, domain.ExecutionFailed, domain.ExecutionCancelled:
		ex.CompletedAt = &now
		if ex.StartedAt != nil {
			ex.DurationMS = now.Sub(*ex.StartedAt).Milliseconds()
		}
		ex.Output = output
		ex.Error = errMsg
	}

	if err := e.executions.Update(ctx, ex); err != nil {
		return nil, fmt.Errorf("updating execution: %w", err)
	}

	e.logger.Info("execution transitioned",
		slog.String("execution_id", ex.ID.String()),
		slog.String("status", string(to)),
	)
	return ex, nil
}
