package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/cartrita/cartrita/internal/domain"
)

// Default retention windows.
const (
	ExecutionArchiveAge = 90 * 24 * time.Hour
	ScheduleHistoryAge  = 180 * 24 * time.Hour
	KnowledgeQueryAge   = 30 * 24 * time.Hour
)

// ExecutionArchiver moves terminal workflow executions older than the cutoff
// into the archive table. The count is exact: the live table shrinks by
// exactly archived rows.
type ExecutionArchiver interface {
	ArchiveExecutions(ctx context.Context, before time.Time) (archived int64, sizeEstimate string, err error)
}

// Cleaner deletes rows older than the cutoff, returning the count.
type Cleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// Expirer deletes expired rows as of now, returning the count.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ViewRefresher refreshes the materialized performance views.
type ViewRefresher interface {
	RefreshPerformanceViews(ctx context.Context) error
}

// HealthScorer recomputes health scores for one entity family.
type HealthScorer interface {
	ScoreAll(ctx context.Context) ([]domain.HealthSnapshot, error)
}

// SnapshotStore persists recomputed health scores.
type SnapshotStore interface {
	RecordHealthSnapshots(ctx context.Context, snaps []domain.HealthSnapshot) error
}

// CleanupFunc adapts a bare function to Cleaner.
type CleanupFunc func(ctx context.Context, before time.Time) (int64, error)

func (f CleanupFunc) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return f(ctx, before)
}

// ScoreFunc adapts a bare function to HealthScorer.
type ScoreFunc func(ctx context.Context) ([]domain.HealthSnapshot, error)

func (f ScoreFunc) ScoreAll(ctx context.Context) ([]domain.HealthSnapshot, error) {
	return f(ctx)
}

// Deps collects the stores the standard task set operates on.
// Nil fields skip registration of the corresponding task.
type Deps struct {
	Archiver     ExecutionArchiver
	ScheduleRuns Cleaner
	KnowledgeLog Cleaner
	Sessions     Expirer
	AuthTokens   Expirer
	Views        ViewRefresher

	// Scorers feed the health snapshot task; Snapshots receives the results.
	Scorers   []HealthScorer
	Snapshots SnapshotStore
}

// RegisterStandardTasks wires the default housekeeping set onto the runner.
func RegisterStandardTasks(r *Runner, deps Deps) {
	now := func() time.Time { return time.Now().UTC() }

	if deps.Archiver != nil {
		r.Register("archive_old_workflow_executions", func(ctx context.Context) (string, error) {
			archived, size, err := deps.Archiver.ArchiveExecutions(ctx, now().Add(-ExecutionArchiveAge))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("archived %d executions (%s)", archived, size), nil
		})
	}
	if deps.ScheduleRuns != nil {
		r.Register("cleanup_old_schedule_executions", func(ctx context.Context) (string, error) {
			removed, err := deps.ScheduleRuns.Cleanup(ctx, now().Add(-ScheduleHistoryAge))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d schedule executions", removed), nil
		})
	}
	if deps.KnowledgeLog != nil {
		r.Register("cleanup_old_knowledge_queries", func(ctx context.Context) (string, error) {
			removed, err := deps.KnowledgeLog.Cleanup(ctx, now().Add(-KnowledgeQueryAge))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d knowledge queries", removed), nil
		})
	}
	if deps.Sessions != nil {
		r.Register("cleanup_expired_sessions", func(ctx context.Context) (string, error) {
			removed, err := deps.Sessions.DeleteExpired(ctx, now())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d expired sessions", removed), nil
		})
	}
	if deps.AuthTokens != nil {
		r.Register("cleanup_expired_auth_tokens", func(ctx context.Context) (string, error) {
			removed, err := deps.AuthTokens.DeleteExpired(ctx, now())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("removed %d expired auth tokens", removed), nil
		})
	}
	if deps.Views != nil {
		r.Register("refresh_performance_views", func(ctx context.Context) (string, error) {
			if err := deps.Views.RefreshPerformanceViews(ctx); err != nil {
				return "", err
			}
			return "performance views refreshed", nil
		})
	}
	if deps.Snapshots != nil && len(deps.Scorers) > 0 {
		r.Register("snapshot_health_scores", func(ctx context.Context) (string, error) {
			var snaps []domain.HealthSnapshot
			for _, scorer := range deps.Scorers {
				scored, err := scorer.ScoreAll(ctx)
				if err != nil {
					return "", err
				}
				snaps = append(snaps, scored...)
			}
			if err := deps.Snapshots.RecordHealthSnapshots(ctx, snaps); err != nil {
				return "", err
			}
			return fmt.Sprintf("recorded %d health snapshots", len(snaps)), nil
		})
	}
}
