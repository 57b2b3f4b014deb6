package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

func testEngine() (*Engine, *InMemoryStore, *InMemoryExecutionStore) {
	wfStore := NewInMemoryStore()
	exStore := NewInMemoryExecutionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(wfStore, exStore, logger), wfStore, exStore
}

func seedWorkflow(t *testing.T, store *InMemoryStore, userID uuid.UUID, active bool) *domain.Workflow {
	t.Helper()
	wf := &domain.Workflow{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         "nightly-report",
		WorkflowData: []byte(`{"steps":[]}`),
		IsActive:     active,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.Create(context.Background(), wf); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return wf
}

func TestSubmitCreatesPendingExecution(t *testing.T) {
	ctx := context.Background()
	engine, wfStore, _ := testEngine()
	userID := uuid.New()
	wf := seedWorkflow(t, wfStore, userID, true)

	ex, err := engine.Submit(ctx, userID, wf.ID, "manual", []byte(`{}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ex.Status != domain.ExecutionPending {
		t.Errorf("status = %s, want pending", ex.Status)
	}
	if ex.OldID == 0 {
		t.Error("legacy old_id not assigned")
	}
}

func TestSubmitInactiveWorkflow(t *testing.T) {
	ctx := context.Background()
	engine, wfStore, _ := testEngine()
	userID := uuid.New()
	wf := seedWorkflow(t, wfStore, userID, false)

	if _, err := engine.Submit(ctx, userID, wf.ID, "manual", nil); err == nil {
		t.Fatal("expected error for inactive workflow")
	}
}

func TestExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, wfStore, _ := testEngine()
	userID := uuid.New()
	wf := seedWorkflow(t, wfStore, userID, true)

	ex, _ := engine.Submit(ctx, userID, wf.ID, "api", nil)

	started, err := engine.Start(ctx, ex.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartedAt == nil {
		t.Error("started_at not set")
	}

	done, err := engine.Complete(ctx, ex.ID, []byte(`{"rows":12}`))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.ExecutionCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	engine, wfStore, _ := testEngine()
	userID := uuid.New()
	wf := seedWorkflow(t, wfStore, userID, true)

	// Complete before start.
	ex, _ := engine.Submit(ctx, userID, wf.ID, "api", nil)
	if _, err := engine.Complete(ctx, ex.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending→completed: got %v, want ErrInvalidTransition", err)
	}

	// Cancel, then start the cancelled execution.
	if _, err := engine.Cancel(ctx, ex.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := engine.Start(ctx, ex.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancelled→running: got %v, want ErrInvalidTransition", err)
	}
}

func TestInvalidStatusRejectedByStore(t *testing.T) {
	store := NewInMemoryExecutionStore()
	err := store.Create(context.Background(), &domain.WorkflowExecution{
		ID:     uuid.New(),
		Status: domain.ExecutionStatus("exploded"),
	})
	if err == nil {
		t.Fatal("store accepted a status outside the allowed set")
	}
}

func TestRetryClonesFailedExecution(t *testing.T) {
	ctx := context.Background()
	engine, wfStore, _ := testEngine()
	userID := uuid.New()
	wf := seedWorkflow(t, wfStore, userID, true)

	ex, _ := engine.Submit(ctx, userID, wf.ID, "api", []byte(`{"n":1}`))
	_, _ = engine.Start(ctx, ex.ID)
	failed, _ := engine.Fail(ctx, ex.ID, "upstream 502")

	clone, err := engine.Retry(ctx, failed.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if clone.ID == failed.ID {
		t.Error("retry must produce a new execution")
	}
	if clone.Status != domain.ExecutionPending || clone.TriggeredBy != "retry" {
		t.Errorf("clone = %s/%s, want pending/retry", clone.Status, clone.TriggeredBy)
	}
	if string(clone.Input) != `{"n":1}` {
		t.Errorf("input not carried over: %s", clone.Input)
	}

	// Retry of a completed execution is rejected.
	ex2, _ := engine.Submit(ctx, userID, wf.ID, "api", nil)
	_, _ = engine.Start(ctx, ex2.ID)
	_, _ = engine.Complete(ctx, ex2.ID, nil)
	if _, err := engine.Retry(ctx, ex2.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("retry of completed: got %v, want ErrInvalidTransition", err)
	}
}

func TestListFilterAndSort(t *testing.T) {
	ctx := context.Background()
	engine, wfStore, exStore := testEngine()
	userID := uuid.New()
	wf := seedWorkflow(t, wfStore, userID, true)

	var failedID uuid.UUID
	for i := 0; i < 3; i++ {
		ex, _ := engine.Submit(ctx, userID, wf.ID, "api", nil)
		_, _ = engine.Start(ctx, ex.ID)
		if i == 1 {
			_, _ = engine.Fail(ctx, ex.ID, "boom")
			failedID = ex.ID
		} else {
			_, _ = engine.Complete(ctx, ex.ID, nil)
		}
	}

	failed, total, err := exStore.List(ctx, ExecutionFilter{
		UserID: userID,
		Status: domain.ExecutionFailed,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(failed) != 1 || failed[0].ID != failedID {
		t.Errorf("failed filter: total=%d len=%d", total, len(failed))
	}

	all, total, _ := exStore.List(ctx, ExecutionFilter{UserID: userID, SortBy: "created_at", SortOrder: "asc", Limit: 2})
	if total != 3 || len(all) != 2 {
		t.Errorf("pagination: total=%d len=%d, want 3/2", total, len(all))
	}
}
