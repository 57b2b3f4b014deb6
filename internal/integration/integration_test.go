package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/ratelimit"
)

func testService(limiterCfg ratelimit.Config) (*Service, *InMemoryStore, *InMemoryExecutionStore, *InMemoryTokenStore) {
	store := NewInMemoryStore()
	execs := NewInMemoryExecutionStore()
	tokens := NewInMemoryTokenStore()
	limits := NewInMemoryRateLimitStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, execs, tokens, limits, ratelimit.NewLimiter(limiterCfg), logger)
	return svc, store, execs, tokens
}

func seedIntegration(t *testing.T, store *InMemoryStore, userID uuid.UUID, enabled bool) *domain.Integration {
	t.Helper()
	in := &domain.Integration{
		ID:          uuid.New(),
		UserID:      userID,
		ServiceName: "slack",
		DisplayName: "Team Slack",
		Enabled:     enabled,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.Create(context.Background(), in); err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	return in
}

func TestExecuteRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	svc, store, execs, _ := testService(ratelimit.Config{})
	userID := uuid.New()
	in := seedIntegration(t, store, userID, true)

	if err := svc.Execute(ctx, userID, in.ID, "post_message", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("execute: %v", err)
	}
	callErr := errors.New("channel_not_found")
	if err := svc.Execute(ctx, userID, in.ID, "post_message", func(context.Context) error { return callErr }); !errors.Is(err, callErr) {
		t.Fatalf("execute should surface the call error, got %v", err)
	}

	logged, _ := execs.ListSince(ctx, in.ID, time.Time{})
	if len(logged) != 2 {
		t.Fatalf("logged %d executions, want 2", len(logged))
	}
	var completed, failed int
	for _, ex := range logged {
		switch ex.Status {
		case domain.ExecutionCompleted:
			completed++
		case domain.ExecutionFailed:
			failed++
			if ex.Error == "" {
				t.Error("failed execution must record the error text")
			}
		}
	}
	if completed != 1 || failed != 1 {
		t.Errorf("completed/failed = %d/%d, want 1/1", completed, failed)
	}
}

func TestExecuteDisabledIntegration(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := testService(ratelimit.Config{})
	userID := uuid.New()
	in := seedIntegration(t, store, userID, false)

	err := svc.Execute(ctx, userID, in.ID, "post_message", func(context.Context) error { return nil })
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("got %v, want ErrDisabled", err)
	}
}

func TestExecuteRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := testService(ratelimit.Config{RequestsPerMinute: 60, BurstSize: 1})
	userID := uuid.New()
	in := seedIntegration(t, store, userID, true)

	if err := svc.Execute(ctx, userID, in.ID, "op", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first call: %v", err)
	}
	err := svc.Execute(ctx, userID, in.ID, "op", func(context.Context) error { return nil })
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}
}

func TestSetRateLimitOverride(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := testService(ratelimit.Config{RequestsPerMinute: 600, BurstSize: 10})
	userID := uuid.New()
	in := seedIntegration(t, store, userID, true)

	err := svc.SetRateLimit(ctx, &domain.IntegrationRateLimit{
		IntegrationID:     in.ID,
		RequestsPerMinute: 60,
		BurstSize:         1,
	})
	if err != nil {
		t.Fatalf("set rate limit: %v", err)
	}

	if err := svc.Execute(ctx, userID, in.ID, "op", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first call under override: %v", err)
	}
	if err := svc.Execute(ctx, userID, in.ID, "op", func(context.Context) error { return nil }); !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Errorf("override burst of 1 not enforced: %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	svc, store, _, tokens := testService(ratelimit.Config{})
	in := seedIntegration(t, store, uuid.New(), true)

	past := time.Now().UTC().Add(-time.Hour)
	_ = tokens.Upsert(ctx, &domain.IntegrationAuthToken{
		ID:            uuid.New(),
		IntegrationID: in.ID,
		TokenType:     "oauth2",
		AccessToken:   "xoxb-expired",
		ExpiresAt:     &past,
	})

	if _, err := svc.Token(ctx, in.ID); err == nil {
		t.Error("expired token must be refused")
	}

	future := time.Now().UTC().Add(time.Hour)
	_ = tokens.Upsert(ctx, &domain.IntegrationAuthToken{
		ID:            uuid.New(),
		IntegrationID: in.ID,
		TokenType:     "oauth2",
		AccessToken:   "xoxb-live",
		ExpiresAt:     &future,
	})
	tok, err := svc.Token(ctx, in.ID)
	if err != nil {
		t.Fatalf("live token: %v", err)
	}
	if tok.AccessToken != "xoxb-live" {
		t.Errorf("token = %q", tok.AccessToken)
	}
}

func TestHealthScoreZeroHistory(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := testService(ratelimit.Config{})
	in := seedIntegration(t, store, uuid.New(), true)

	score, err := svc.HealthScore(ctx, in.ID)
	if err != nil {
		t.Fatalf("health score: %v", err)
	}
	if score != 100 {
		t.Errorf("zero-history score = %v, want 100", score)
	}
}

func TestHealthScoreWeighting(t *testing.T) {
	now := time.Now().UTC()
	exec := func(status domain.ExecutionStatus, durMS int64, age time.Duration) domain.IntegrationExecution {
		return domain.IntegrationExecution{
			ID:         uuid.New(),
			Status:     status,
			DurationMS: durMS,
			CreatedAt:  now.Add(-age),
		}
	}

	// All fast successes: full marks.
	perfect := []domain.IntegrationExecution{
		exec(domain.ExecutionCompleted, 300, time.Minute),
		exec(domain.ExecutionCompleted, 400, 2*time.Minute),
	}
	if got := scoreExecutions(perfect); got != 100 {
		t.Errorf("perfect = %v, want 100", got)
	}

	// Half failing, 12s average, three-deep failure streak:
	// 20 (success) + 0 (latency) + 0 (streak).
	degraded := []domain.IntegrationExecution{
		exec(domain.ExecutionFailed, 20000, time.Minute),
		exec(domain.ExecutionFailed, 15000, 2*time.Minute),
		exec(domain.ExecutionFailed, 9000, 3*time.Minute),
		exec(domain.ExecutionCompleted, 4000, 4*time.Minute),
		exec(domain.ExecutionCompleted, 6000, 5*time.Minute),
		exec(domain.ExecutionCompleted, 6000, 6*time.Minute),
	}
	if got := scoreExecutions(degraded); got != 20 {
		t.Errorf("degraded = %v, want 20", got)
	}

	// One recent failure on an otherwise fast history:
	// 40*(3/4) + 30 + 20 = 80.
	oneFail := []domain.IntegrationExecution{
		exec(domain.ExecutionFailed, 500, time.Minute),
		exec(domain.ExecutionCompleted, 500, 2*time.Minute),
		exec(domain.ExecutionCompleted, 500, 3*time.Minute),
		exec(domain.ExecutionCompleted, 500, 4*time.Minute),
	}
	if got := scoreExecutions(oneFail); got != 80 {
		t.Errorf("one recent failure = %v, want 80", got)
	}

	for _, execs := range [][]domain.IntegrationExecution{perfect, degraded, oneFail} {
		if got := scoreExecutions(execs); got < 0 || got > 100 {
			t.Errorf("score %v out of [0,100]", got)
		}
	}
}

func TestWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"workflow.completed","execution_id":"abc"}`)
	sig := Sign("whsec_topsecret", payload)

	if !VerifySignature("whsec_topsecret", payload, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature("whsec_other", payload, sig) {
		t.Error("signature verified with the wrong secret")
	}
	if VerifySignature("whsec_topsecret", []byte(`{"tampered":true}`), sig) {
		t.Error("signature verified for a tampered payload")
	}
}

func TestWebhookListForEvent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryWebhookStore()
	integrationID := uuid.New()

	subscribed := &domain.Webhook{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		URL:           "https://example.com/hook",
		EventTypes:    []string{"workflow.completed", "workflow.failed"},
		Enabled:       true,
		CreatedAt:     time.Now().UTC(),
	}
	disabled := &domain.Webhook{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		URL:           "https://example.com/hook2",
		EventTypes:    []string{"workflow.completed"},
		Enabled:       false,
		CreatedAt:     time.Now().UTC(),
	}
	otherEvent := &domain.Webhook{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		URL:           "https://example.com/hook3",
		EventTypes:    []string{"workflow.failed"},
		Enabled:       true,
		CreatedAt:     time.Now().UTC(),
	}
	for _, wh := range []*domain.Webhook{subscribed, disabled, otherEvent} {
		if err := store.Create(ctx, wh); err != nil {
			t.Fatalf("create webhook: %v", err)
		}
	}

	hooks, err := store.ListForEvent(ctx, integrationID, "workflow.completed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hooks) != 1 || hooks[0].ID != subscribed.ID {
		t.Errorf("got %d hooks, want only the enabled subscribed one", len(hooks))
	}
}

func TestScoreAllSnapshotsEveryIntegration(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	execs := NewInMemoryExecutionStore()

	healthy := seedIntegration(t, store, uuid.New(), true)
	failing := seedIntegration(t, store, uuid.New(), true)

	now := time.Now().UTC()
	_ = execs.Record(ctx, &domain.IntegrationExecution{
		ID: uuid.New(), IntegrationID: healthy.ID,
		Status: domain.ExecutionCompleted, DurationMS: 150, CreatedAt: now,
	})
	for i := 0; i < 3; i++ {
		_ = execs.Record(ctx, &domain.IntegrationExecution{
			ID: uuid.New(), IntegrationID: failing.ID,
			Status: domain.ExecutionFailed, DurationMS: 15000, CreatedAt: now,
		})
	}

	snaps, err := ScoreAll(ctx, store, execs, now)
	if err != nil {
		t.Fatalf("score all: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}

	byID := map[uuid.UUID]domain.HealthSnapshot{}
	for _, s := range snaps {
		if s.EntityType != domain.HealthEntityIntegration {
			t.Errorf("entity type = %s", s.EntityType)
		}
		byID[s.EntityID] = s
	}
	if got := byID[healthy.ID].Score; got != 100 {
		t.Errorf("healthy score = %v, want 100", got)
	}
	// All failed, slow, and on a streak: every component scores zero.
	if got := byID[failing.ID].Score; got != 0 {
		t.Errorf("failing score = %v, want 0", got)
	}
}
