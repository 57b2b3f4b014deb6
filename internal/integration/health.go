package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// healthWindow is the lookback for health scoring.
const healthWindow = 7 * 24 * time.Hour

// HealthScore computes a 0-100 score for the integration over the last seven
// days of executions.
//
// Weighting: success rate 40 points, average response time 30 points (tiers
// at 2s, 5s, 10s), recent failure streak 30 points. An integration with no
// executions in the window scores 100.
func (s *Service) HealthScore(ctx context.Context, integrationID uuid.UUID) (float64, error) {
	since := s.now().Add(-healthWindow)
	execs, err := s.executions.ListSince(ctx, integrationID, since)
	if err != nil {
		return 0, fmt.Errorf("loading executions for health score: %w", err)
	}
	return scoreExecutions(execs), nil
}

// ScoreAll recomputes the health score of every integration as of now.
// The maintenance batch calls this to snapshot scores across all users.
func ScoreAll(ctx context.Context, integrations Store, execs ExecutionStore, now time.Time) ([]domain.HealthSnapshot, error) {
	all, err := integrations.List(ctx, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("listing integrations for scoring: %w", err)
	}

	since := now.Add(-healthWindow)
	snaps := make([]domain.HealthSnapshot, 0, len(all))
	for i := range all {
		window, err := execs.ListSince(ctx, all[i].ID, since)
		if err != nil {
			return nil, fmt.Errorf("loading executions for %s: %w", all[i].ID, err)
		}
		snaps = append(snaps, domain.HealthSnapshot{
			ID:         uuid.New(),
			EntityType: domain.HealthEntityIntegration,
			EntityID:   all[i].ID,
			Score:      scoreExecutions(window),
			CreatedAt:  now,
		})
	}
	return snaps, nil
}

// scoreExecutions applies the weighted formula to a newest-first execution
// window.
func scoreExecutions(execs []domain.IntegrationExecution) float64 {
	if len(execs) == 0 {
		return 100
	}

	var succeeded int
	var totalMS int64
	for _, ex := range execs {
		if ex.Status == domain.ExecutionCompleted {
			succeeded++
		}
		totalMS += ex.DurationMS
	}

	score := float64(succeeded) / float64(len(execs)) * 40

	switch avg := totalMS / int64(len(execs)); {
	case avg < 2000:
		score += 30
	case avg < 5000:
		score += 20
	case avg < 10000:
		score += 10
	}

	streak := 0
	for _, ex := range execs {
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
