package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

func testRunner() *Runner {
	return NewRunner(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunAllIsolatesFailures(t *testing.T) {
	r := testRunner()
	r.Register("ok_task", func(context.Context) (string, error) {
		return "did the thing", nil
	})
	r.Register("broken_task", func(context.Context) (string, error) {
		return "", errors.New("connection refused")
	})
	r.Register("panicky_task", func(context.Context) (string, error) {
		panic("boom")
	})
	r.Register("after_panic", func(context.Context) (string, error) {
		return "still ran", nil
	})

	results := r.RunAll(context.Background())
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}

	want := []struct {
		task   string
		status string
	}{
		{"ok_task", StatusCompleted},
		{"broken_task", StatusFailed},
		{"panicky_task", StatusFailed},
		{"after_panic", StatusCompleted},
	}
	for i, w := range want {
		if results[i].Task != w.task {
			t.Errorf("result %d task = %q, want %q (registration order)", i, results[i].Task, w.task)
		}
		if results[i].Status != w.status {
			t.Errorf("%s status = %q, want %q", w.task, results[i].Status, w.status)
		}
	}
	if results[1].Message != "connection refused" {
		t.Errorf("failed task message = %q", results[1].Message)
	}
	if !strings.Contains(results[2].Message, "panicked") {
		t.Errorf("panicked task message = %q", results[2].Message)
	}
	if results[3].Message != "still ran" {
		t.Error("batch did not continue after a panic")
	}
}

func terminalExec(status domain.ExecutionStatus, age time.Duration) domain.WorkflowExecution {
	started := time.Now().UTC().Add(-age)
	return domain.WorkflowExecution{
		ID:        uuid.New(),
		Status:    status,
		StartedAt: &started,
	}
}

func TestArchiveExactCount(t *testing.T) {
	ctx := context.Background()
	archiver := NewInMemoryArchiver()

	old := 95 * 24 * time.Hour
	recent := 5 * 24 * time.Hour
	runningStarted := time.Now().UTC().Add(-old)
	archiver.Seed(
		terminalExec(domain.ExecutionCompleted, old),
		terminalExec(domain.ExecutionFailed, old),
		terminalExec(domain.ExecutionCancelled, old),
		terminalExec(domain.ExecutionCompleted, recent),
		// Old but still running: stays live.
		domain.WorkflowExecution{ID: uuid.New(), Status: domain.ExecutionRunning, StartedAt: &runningStarted},
		// Cancelled while still pending, never started: age is measured from
		// started_at, so it stays live too.
		domain.WorkflowExecution{ID: uuid.New(), Status: domain.ExecutionCancelled, CreatedAt: time.Now().UTC().Add(-old)},
	)

	liveBefore := archiver.LiveCount()
	archived, size, err := archiver.ArchiveExecutions(ctx, time.Now().UTC().Add(-ExecutionArchiveAge))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived != 3 {
		t.Errorf("archived = %d, want 3", archived)
	}
	if size == "" {
		t.Error("size estimate empty")
	}

	// Live table shrinks by exactly the archived count.
	if got := liveBefore - archiver.LiveCount(); int64(got) != archived {
		t.Errorf("live table shrank by %d, want %d", got, archived)
	}
	if archiver.ArchivedCount() != 3 {
		t.Errorf("archive holds %d rows, want 3", archiver.ArchivedCount())
	}
}

type fakeExpirer struct{ removed int64 }

func (f fakeExpirer) DeleteExpired(context.Context, time.Time) (int64, error) {
	return f.removed, nil
}

type fakeRefresher struct{ err error }

func (f fakeRefresher) RefreshPerformanceViews(context.Context) error { return f.err }

func TestRegisterStandardTasks(t *testing.T) {
	r := testRunner()
	archiver := NewInMemoryArchiver()
	archiver.Seed(terminalExec(domain.ExecutionCompleted, 100*24*time.Hour))

	snapshots := NewInMemorySnapshotStore()
	RegisterStandardTasks(r, Deps{
		Archiver: archiver,
		ScheduleRuns: CleanupFunc(func(context.Context, time.Time) (int64, error) {
			return 7, nil
		}),
		KnowledgeLog: CleanupFunc(func(context.Context, time.Time) (int64, error) {
			return 0, errors.New("table locked")
		}),
		Sessions:   fakeExpirer{removed: 2},
		AuthTokens: fakeExpirer{},
		Views:      fakeRefresher{},
		Snapshots:  snapshots,
		Scorers: []HealthScorer{
			ScoreFunc(func(context.Context) ([]domain.HealthSnapshot, error) {
				return []domain.HealthSnapshot{
					{ID: uuid.New(), EntityType: domain.HealthEntityIntegration, EntityID: uuid.New(), Score: 90},
					{ID: uuid.New(), EntityType: domain.HealthEntityIntegration, EntityID: uuid.New(), Score: 40},
				}, nil
			}),
			ScoreFunc(func(context.Context) ([]domain.HealthSnapshot, error) {
				return []domain.HealthSnapshot{
					{ID: uuid.New(), EntityType: domain.HealthEntitySchedule, EntityID: uuid.New(), Score: 100},
				}, nil
			}),
		},
	})

	results := r.RunAll(context.Background())
	if len(results) != 7 {
		t.Fatalf("got %d results, want 7", len(results))
	}

	byTask := map[string]TaskResult{}
	for _, res := range results {
		byTask[res.Task] = res
	}

	if res := byTask["archive_old_workflow_executions"]; res.Status != StatusCompleted || !strings.Contains(res.Message, "archived 1") {
		t.Errorf("archive result = %+v", res)
	}
	if res := byTask["cleanup_old_schedule_executions"]; !strings.Contains(res.Message, "7") {
		t.Errorf("schedule cleanup result = %+v", res)
	}
	if res := byTask["cleanup_old_knowledge_queries"]; res.Status != StatusFailed {
		t.Errorf("locked cleanup should fail, got %+v", res)
	}
	if res := byTask["cleanup_expired_sessions"]; !strings.Contains(res.Message, "2 expired sessions") {
		t.Errorf("session cleanup result = %+v", res)
	}
	if res := byTask["refresh_performance_views"]; res.Status != StatusCompleted {
		t.Errorf("view refresh result = %+v", res)
	}
	if res := byTask["snapshot_health_scores"]; res.Status != StatusCompleted || !strings.Contains(res.Message, "recorded 3") {
		t.Errorf("snapshot result = %+v", res)
	}
	if got := len(snapshots.Snapshots()); got != 3 {
		t.Errorf("persisted %d snapshots, want 3", got)
	}
}
