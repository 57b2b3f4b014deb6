package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// recentWindow bounds the streak lookback when scoring all schedules.
const recentWindow = 5

// HealthScore computes a 0-100 score for a schedule from its statistics
// rollup and most-recent executions (newest first).
//
// Weighting: success rate 40 points, average latency 30 points, recent
// failure streak 30 points. A schedule with no run history scores 100.
func HealthScore(stats *domain.ScheduleStatistics, recent []domain.ScheduleExecution) float64 {
	if stats == nil || stats.TotalRuns == 0 {
		return 100
	}

	score := float64(stats.SuccessRuns) / float64(stats.TotalRuns) * 40

	switch avg := stats.AvgDurationMS; {
	case avg < 2000:
		score += 30
	case avg < 5000:
		score += 20
	case avg < 10000:
		score += 10
	}

	streak := 0
	for _, ex := range recent {
		if ex.Status == domain.ExecutionCompleted {
			break
		}
		streak++
	}
	switch {
	case streak == 0:
		score += 30
	case streak == 1:
		score += 20
	case streak == 2:
		score += 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ScoreAll recomputes the health score of every schedule as of now.
// The maintenance batch calls this to snapshot scores across all users.
func ScoreAll(ctx context.Context, schedules ScheduleStore, history HistoryStore, now time.Time) ([]domain.HealthSnapshot, error) {
	all, err := schedules.List(ctx, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("listing schedules for scoring: %w", err)
	}

	snaps := make([]domain.HealthSnapshot, 0, len(all))
	for i := range all {
		stats, err := history.Statistics(ctx, all[i].ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("loading statistics for %s: %w", all[i].ID, err)
		}
		recent, err := history.ListExecutions(ctx, all[i].ID, recentWindow)
		if err != nil {
			return nil, fmt.Errorf("loading executions for %s: %w", all[i].ID, err)
		}
		snaps = append(snaps, domain.HealthSnapshot{
			ID:         uuid.New(),
			EntityType: domain.HealthEntitySchedule,
			EntityID:   all[i].ID,
			Score:      HealthScore(stats, recent),
			CreatedAt:  now,
		})
	}
	return snaps, nil
}
